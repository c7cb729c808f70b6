// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asar

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// extractedTypeASAR is the archive type reported in telemetry data.
const extractedTypeASAR = "asar"

// referenceTime for duration capturing, swappable in tests
var now = time.Now

// captureExtractionDuration stores the duration since start in td.
func captureExtractionDuration(td *TelemetryData, start time.Time) {
	td.ExtractionDuration = time.Since(start)
}

// extraction bundles the configuration and telemetry of a single extraction
// run. Telemetry updates are guarded by a mutex since file writes may run
// in parallel.
type extraction struct {
	cfg *Config
	td  *TelemetryData
	mu  sync.Mutex
}

// handleError increases the error counter, sets the latest error and
// decides if the extraction should continue.
func (ex *extraction) handleError(msg string, err error) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	// increase error counter and set error
	ex.td.ExtractionErrors++
	ex.td.LastExtractionError = fmt.Errorf("%s: %w", msg, err)

	// do not end on error
	if ex.cfg.ContinueOnError() {
		ex.cfg.Logger().Error(msg, "error", err)
		return nil
	}

	// end extraction on error
	return ex.td.LastExtractionError
}

// recordFile reserves size bytes against the extraction size limit and
// counts the file. It fails if the limit would be exceeded.
func (ex *extraction) recordFile(size int64) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if err := ex.cfg.CheckExtractionSize(ex.td.ExtractionSize + size); err != nil {
		return err
	}
	ex.td.ExtractionSize += size
	ex.td.ExtractedFiles++
	return nil
}

// recordDir counts an extracted directory.
func (ex *extraction) recordDir() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.td.ExtractedDirs++
}

// recordSymlink counts an extracted link.
func (ex *extraction) recordSymlink() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.td.ExtractedSymlinks++
}

// recordUnsupported counts a skipped unsupported entry.
func (ex *extraction) recordUnsupported(path string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.td.UnsupportedFiles++
	ex.td.LastUnsupportedFile = path
}

// Extract materializes the subtree below root onto the local filesystem at
// dst. If root resolves to a file, its content is written to dst as a
// single file. If root resolves to a directory, the directory structure is
// recreated below dst and every descendant file's content is written to its
// corresponding relative path. The empty root extracts the whole archive.
//
// By default the extraction aborts on the first error and leaves whatever
// was already written in place; see [WithContinueOnError]. A nil cfg uses
// the default configuration.
func (a *Archive) Extract(ctx context.Context, root string, dst string, cfg *Config) error {
	return a.ExtractTo(ctx, NewTargetDisk(), root, dst, cfg)
}

// ExtractTo extracts like [Archive.Extract] but writes to the given
// [Target] instead of the local filesystem.
func (a *Archive) ExtractTo(ctx context.Context, t Target, root string, dst string, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}

	// prepare telemetry data collection and emit
	td := &TelemetryData{ExtractedType: extractedTypeASAR, InputSize: a.size}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureExtractionDuration(td, now())

	ex := &extraction{cfg: cfg, td: td}

	rootEntry, err := a.root.resolve(root)
	if err != nil {
		return ex.handleError("cannot resolve extraction root", err)
	}
	rootPath := strings.Trim(root, "/")

	// a single file or link is materialized at dst directly
	if !rootEntry.IsDir() {
		if err := a.extractSingleFile(t, ex, rootPath, rootEntry, dst); err != nil {
			return err
		}
		return nil
	}

	cfg.Logger().Info("extracting archive", "root", root, "dst", dst)

	if err := t.CreateDir(dst, cfg.CustomCreateDirMode()); err != nil {
		return ex.handleError("cannot create destination", err)
	}

	// file contents are written through an errgroup so that extraction can
	// be parallelized; directory and link creation stays on the walk
	// goroutine to keep parents ordered before their children
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency())

	var objectCount int64
	walkErr := walk(rootEntry, func(p string, e *Entry) error {
		if err := gctx.Err(); err != nil {
			return ex.handleError("context error", err)
		}

		objectCount++
		if err := cfg.CheckMaxFiles(objectCount); err != nil {
			return ex.handleError("max objects check failed", err)
		}

		name := filepath.Join(dst, filepath.FromSlash(p))
		switch {
		case e.IsDir():
			cfg.Logger().Debug("extract dir", "path", p)
			if err := t.CreateDir(name, cfg.CustomCreateDirMode()); err != nil {
				return ex.handleError("failed to create directory", err)
			}
			ex.recordDir()

		case e.IsLink():
			return a.extractLink(t, ex, rootPath, p, e, name)

		default:
			entry := e
			archivePath := joinArchivePath(rootPath, p)
			g.Go(func() error {
				cfg.Logger().Debug("extract file", "path", archivePath)
				return a.extractFileContent(t, ex, archivePath, entry, name)
			})
		}
		return nil
	})

	// the first file write error wins over the cancellation error the walk
	// observed because of it
	if err := g.Wait(); err != nil {
		return err
	}
	return walkErr
}

// ExtractFile extracts a single file entry to dst on the local filesystem,
// creating parent directories as needed. Extracting a directory fails with
// [ErrIsADirectory].
func (a *Archive) ExtractFile(ctx context.Context, path string, dst string, cfg *Config) error {
	return a.ExtractFileTo(ctx, NewTargetDisk(), path, dst, cfg)
}

// ExtractFileTo extracts like [Archive.ExtractFile] but writes to the given
// [Target] instead of the local filesystem.
func (a *Archive) ExtractFileTo(ctx context.Context, t Target, path string, dst string, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}

	// prepare telemetry data collection and emit
	td := &TelemetryData{ExtractedType: extractedTypeASAR, InputSize: a.size}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureExtractionDuration(td, now())

	ex := &extraction{cfg: cfg, td: td}

	e, err := a.root.resolve(path)
	if err != nil {
		return ex.handleError("cannot resolve file", err)
	}
	if e.IsDir() {
		return ex.handleError("cannot extract file", fmt.Errorf("%w: %q", ErrIsADirectory, path))
	}
	return a.extractSingleFile(t, ex, strings.Trim(path, "/"), e, dst)
}

// extractSingleFile writes the content of a file or link entry to dst,
// creating parent directories as needed.
func (a *Archive) extractSingleFile(t Target, ex *extraction, archivePath string, e *Entry, dst string) error {
	if dir := filepath.Dir(dst); dir != "." {
		if err := t.CreateDir(dir, ex.cfg.CustomCreateDirMode()); err != nil {
			return ex.handleError("failed to create directory", err)
		}
	}
	return a.extractFileContent(t, ex, archivePath, e, dst)
}

// extractFileContent reads the content of a file entry and writes it to the
// target. Link entries are followed within the archive.
func (a *Archive) extractFileContent(t Target, ex *extraction, archivePath string, e *Entry, dst string) error {
	data, err := a.readEntry(archivePath, e)
	if err != nil {
		return ex.handleError("cannot read file", err)
	}
	if err := ex.recordFile(int64(len(data))); err != nil {
		return ex.handleError("max extraction size check failed", err)
	}
	cfg := ex.cfg
	if _, err := t.CreateFile(dst, bytes.NewReader(data), cfg.CustomCreateFileMode(), cfg.Overwrite(), cfg.MaxExtractionSize()); err != nil {
		return ex.handleError("failed to create file", err)
	}
	return nil
}

// extractLink recreates a link entry as a symlink at dst. The symlink
// target is rewritten relative to the link's parent directory so that it
// points at the extracted copy of its target. The link target in the header
// is archive-root-relative while p is relative to the extraction root, so
// the extraction root prefix must be stripped from the target first; a
// target outside the extracted subtree has no extracted counterpart and is
// treated as an unsupported entry.
func (a *Archive) extractLink(t Target, ex *extraction, rootPath string, p string, e *Entry, dst string) error {
	cfg := ex.cfg
	if cfg.DenySymlinkExtraction() {
		if cfg.ContinueOnUnsupportedFiles() {
			cfg.Logger().Warn("skipped link entry", "path", p)
			ex.recordUnsupported(p)
			return nil
		}
		return ex.handleError("symlink extraction denied", fmt.Errorf("%w: link entry %q", ErrUnsupportedFile, p))
	}

	link := e.Link
	if rootPath != "" {
		if !strings.HasPrefix(link, rootPath+"/") {
			if cfg.ContinueOnUnsupportedFiles() {
				cfg.Logger().Warn("skipped link entry", "path", p, "target", link)
				ex.recordUnsupported(p)
				return nil
			}
			return ex.handleError("cannot extract link", fmt.Errorf("%w: link entry %q points outside %q", ErrUnsupportedFile, p, rootPath))
		}
		link = strings.TrimPrefix(link, rootPath+"/")
	}

	target, err := filepath.Rel(filepath.Dir(filepath.FromSlash(p)), filepath.FromSlash(link))
	if err != nil {
		return ex.handleError("cannot resolve link target", fmt.Errorf("%w: %q: %s", ErrUnresolvedLink, p, err))
	}
	cfg.Logger().Debug("extract link", "path", p, "target", target)
	if err := t.CreateSymlink(target, dst, cfg.Overwrite()); err != nil {
		return ex.handleError("failed to create symlink", err)
	}
	ex.recordSymlink()
	return nil
}

// joinArchivePath joins a walk-relative path onto the extraction root path.
func joinArchivePath(root, p string) string {
	if root == "" {
		return p
	}
	return root + "/" + p
}
