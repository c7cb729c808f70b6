// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asar_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	asar "github.com/hashicorp/go-asar"
)

func TestExtractDirectory(t *testing.T) {
	a := newTestArchive(t, testHeader, testData)
	tm := asar.NewTargetMemory()

	if err := a.ExtractTo(context.Background(), tm, "dir", "out", nil); err != nil {
		t.Fatalf("ExtractTo() failed: %s", err)
	}

	data, err := tm.ReadFile("out/b.txt")
	if err != nil {
		t.Fatalf("ReadFile() failed: %s", err)
	}
	if string(data) != "abc" {
		t.Fatalf("ReadFile() = %q, want %q", data, "abc")
	}

	// nothing but dir/b.txt may appear below the destination
	if _, err := tm.Lstat("out/a.txt"); err == nil {
		t.Fatalf("extraction of dir produced out/a.txt")
	}
}

func TestExtractWholeArchive(t *testing.T) {
	a := newTestArchive(t, testHeader, testData)
	tm := asar.NewTargetMemory()

	if err := a.ExtractTo(context.Background(), tm, "", "out", nil); err != nil {
		t.Fatalf("ExtractTo() failed: %s", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"out/a.txt", "hello"},
		{"out/dir/b.txt", "abc"},
	}
	for _, tt := range tests {
		data, err := tm.ReadFile(tt.path)
		if err != nil {
			t.Fatalf("ReadFile(%q) failed: %s", tt.path, err)
		}
		if string(data) != tt.want {
			t.Fatalf("ReadFile(%q) = %q, want %q", tt.path, data, tt.want)
		}
	}
}

func TestExtractToDisk(t *testing.T) {
	path := writeTestArchive(t, testHeader, testData)
	a, err := asar.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %s", err)
	}
	defer a.Close()

	dst := filepath.Join(t.TempDir(), "out")
	if err := a.Extract(context.Background(), "", dst, nil); err != nil {
		t.Fatalf("Extract() failed: %s", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "dir", "b.txt"))
	if err != nil {
		t.Fatalf("ReadFile() failed: %s", err)
	}
	if string(data) != "abc" {
		t.Fatalf("ReadFile() = %q, want %q", data, "abc")
	}
}

func TestExtractFile(t *testing.T) {
	a := newTestArchive(t, testHeader, testData)

	dst := filepath.Join(t.TempDir(), "sub", "deeper", "a.txt")
	if err := a.ExtractFile(context.Background(), "a.txt", dst, nil); err != nil {
		t.Fatalf("ExtractFile() failed: %s", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile() failed: %s", err)
	}
	if string(data) != "hello" {
		t.Fatalf("ReadFile() = %q, want %q", data, "hello")
	}

	// extracting a directory as a file is an error
	if err := a.ExtractFile(context.Background(), "dir", dst, nil); !errors.Is(err, asar.ErrIsADirectory) {
		t.Fatalf("ExtractFile(dir) = %v, want ErrIsADirectory", err)
	}
}

func TestExtractAbortsOnFirstError(t *testing.T) {
	// good.txt is declared before bad.txt, whose range exceeds the archive
	header := `{"files":{"good.txt":{"offset":"0","size":2},"bad.txt":{"offset":"2","size":100}}}`
	a := newTestArchive(t, header, "hi")
	tm := asar.NewTargetMemory()

	err := a.ExtractTo(context.Background(), tm, "", "out", nil)
	if !errors.Is(err, asar.ErrTruncatedRead) {
		t.Fatalf("ExtractTo() = %v, want ErrTruncatedRead", err)
	}

	// already-written files stay in place, no rollback
	data, err := tm.ReadFile("out/good.txt")
	if err != nil {
		t.Fatalf("ReadFile(good.txt) failed: %s", err)
	}
	if string(data) != "hi" {
		t.Fatalf("ReadFile(good.txt) = %q, want %q", data, "hi")
	}
}

func TestExtractContinueOnError(t *testing.T) {
	header := `{"files":{"bad.txt":{"offset":"2","size":100},"good.txt":{"offset":"0","size":2}}}`
	a := newTestArchive(t, header, "hi")
	tm := asar.NewTargetMemory()

	var td *asar.TelemetryData
	cfg := asar.NewConfig(
		asar.WithContinueOnError(true),
		asar.WithTelemetryHook(func(ctx context.Context, d *asar.TelemetryData) {
			td = d
		}),
	)

	if err := a.ExtractTo(context.Background(), tm, "", "out", cfg); err != nil {
		t.Fatalf("ExtractTo() failed: %s", err)
	}

	// the error is counted, the remaining files are extracted
	if td == nil {
		t.Fatalf("telemetry hook was not called")
	}
	if td.ExtractionErrors != 1 {
		t.Fatalf("ExtractionErrors = %d, want 1", td.ExtractionErrors)
	}
	if !errors.Is(td.LastExtractionError, asar.ErrTruncatedRead) {
		t.Fatalf("LastExtractionError = %v, want ErrTruncatedRead", td.LastExtractionError)
	}
	if _, err := tm.ReadFile("out/good.txt"); err != nil {
		t.Fatalf("ReadFile(good.txt) failed: %s", err)
	}
}

func TestExtractTelemetry(t *testing.T) {
	a := newTestArchive(t, testHeader, testData)
	tm := asar.NewTargetMemory()

	var td *asar.TelemetryData
	cfg := asar.NewConfig(
		asar.WithTelemetryHook(func(ctx context.Context, d *asar.TelemetryData) {
			td = d
		}),
	)

	if err := a.ExtractTo(context.Background(), tm, "", "out", cfg); err != nil {
		t.Fatalf("ExtractTo() failed: %s", err)
	}

	if td == nil {
		t.Fatalf("telemetry hook was not called")
	}
	want := &asar.TelemetryData{
		ExtractedType:  "asar",
		ExtractedDirs:  1,
		ExtractedFiles: 2,
		ExtractionSize: 8,
		InputSize:      a.Size(),
	}
	if !td.Equals(want) {
		t.Fatalf("telemetry = %s, want %s", td, want)
	}
	if td.ExtractionDuration < 0 {
		t.Fatalf("ExtractionDuration = %s, want >= 0", td.ExtractionDuration)
	}
}

func TestExtractMaxFiles(t *testing.T) {
	a := newTestArchive(t, testHeader, testData)
	tm := asar.NewTargetMemory()

	cfg := asar.NewConfig(asar.WithMaxFiles(1))
	err := a.ExtractTo(context.Background(), tm, "", "out", cfg)
	if !errors.Is(err, asar.ErrMaxFilesExceeded) {
		t.Fatalf("ExtractTo() = %v, want ErrMaxFilesExceeded", err)
	}
}

func TestExtractMaxExtractionSize(t *testing.T) {
	a := newTestArchive(t, testHeader, testData)
	tm := asar.NewTargetMemory()

	cfg := asar.NewConfig(asar.WithMaxExtractionSize(4))
	err := a.ExtractTo(context.Background(), tm, "", "out", cfg)
	if !errors.Is(err, asar.ErrMaxExtractionSizeExceeded) {
		t.Fatalf("ExtractTo() = %v, want ErrMaxExtractionSizeExceeded", err)
	}
}

func TestExtractLinkAsSymlink(t *testing.T) {
	header := `{"files":{"a.txt":{"offset":"0","size":5},"dir":{"files":{"ln":{"link":"a.txt"}}}}}`
	a := newTestArchive(t, header, "hello")

	dst := filepath.Join(t.TempDir(), "out")
	if err := a.Extract(context.Background(), "", dst, nil); err != nil {
		t.Fatalf("Extract() failed: %s", err)
	}

	// the symlink points at the extracted copy of its root-relative target
	target, err := os.Readlink(filepath.Join(dst, "dir", "ln"))
	if err != nil {
		t.Fatalf("Readlink() failed: %s", err)
	}
	if target != filepath.Join("..", "a.txt") {
		t.Fatalf("Readlink() = %q, want %q", target, filepath.Join("..", "a.txt"))
	}

	data, err := os.ReadFile(filepath.Join(dst, "dir", "ln"))
	if err != nil {
		t.Fatalf("ReadFile() through symlink failed: %s", err)
	}
	if string(data) != "hello" {
		t.Fatalf("ReadFile() = %q, want %q", data, "hello")
	}
}

func TestExtractLinkInSubtree(t *testing.T) {
	// link targets are archive-root-relative; extracting a subtree must
	// rewrite them against the subtree, not the archive root
	header := `{"files":{"dir":{"files":{"a.txt":{"offset":"0","size":5},"sub":{"files":{"ln":{"link":"dir/a.txt"}}}}}}}`
	a := newTestArchive(t, header, "hello")

	dst := filepath.Join(t.TempDir(), "out")
	if err := a.Extract(context.Background(), "dir", dst, nil); err != nil {
		t.Fatalf("Extract(dir) failed: %s", err)
	}

	target, err := os.Readlink(filepath.Join(dst, "sub", "ln"))
	if err != nil {
		t.Fatalf("Readlink() failed: %s", err)
	}
	if target != filepath.Join("..", "a.txt") {
		t.Fatalf("Readlink() = %q, want %q", target, filepath.Join("..", "a.txt"))
	}

	data, err := os.ReadFile(filepath.Join(dst, "sub", "ln"))
	if err != nil {
		t.Fatalf("ReadFile() through extracted symlink failed: %s", err)
	}
	if string(data) != "hello" {
		t.Fatalf("ReadFile() = %q, want %q", data, "hello")
	}
}

func TestExtractLinkEscapingSubtree(t *testing.T) {
	// a link whose target lies outside the extracted subtree has no
	// extracted counterpart and cannot be recreated
	header := `{"files":{"top.txt":{"offset":"0","size":5},"dir":{"files":{"ln":{"link":"top.txt"}}}}}`
	a := newTestArchive(t, header, "hello")

	dst := filepath.Join(t.TempDir(), "out")
	err := a.Extract(context.Background(), "dir", dst, nil)
	if !errors.Is(err, asar.ErrUnsupportedFile) {
		t.Fatalf("Extract(dir) = %v, want ErrUnsupportedFile", err)
	}

	// with continue-on-unsupported, the link is skipped and counted
	var td *asar.TelemetryData
	cfg := asar.NewConfig(
		asar.WithContinueOnUnsupportedFiles(true),
		asar.WithTelemetryHook(func(ctx context.Context, d *asar.TelemetryData) {
			td = d
		}),
	)
	dst = filepath.Join(t.TempDir(), "out")
	if err := a.Extract(context.Background(), "dir", dst, cfg); err != nil {
		t.Fatalf("Extract(dir) failed: %s", err)
	}
	if td.UnsupportedFiles != 1 || td.LastUnsupportedFile != "ln" {
		t.Fatalf("telemetry = %s, want 1 unsupported entry %q", td, "ln")
	}
	if _, err := os.Lstat(filepath.Join(dst, "ln")); err == nil {
		t.Fatalf("escaping link was extracted anyway")
	}
}

func TestExtractDenySymlinks(t *testing.T) {
	header := `{"files":{"a.txt":{"offset":"0","size":5},"ln":{"link":"a.txt"}}}`
	a := newTestArchive(t, header, "hello")

	// denied links abort the extraction by default
	tm := asar.NewTargetMemory()
	cfg := asar.NewConfig(asar.WithDenySymlinkExtraction(true))
	if err := a.ExtractTo(context.Background(), tm, "", "out", cfg); !errors.Is(err, asar.ErrUnsupportedFile) {
		t.Fatalf("ExtractTo() = %v, want ErrUnsupportedFile", err)
	}

	// with continue-on-unsupported, the link is skipped and counted
	tm = asar.NewTargetMemory()
	var td *asar.TelemetryData
	cfg = asar.NewConfig(
		asar.WithDenySymlinkExtraction(true),
		asar.WithContinueOnUnsupportedFiles(true),
		asar.WithTelemetryHook(func(ctx context.Context, d *asar.TelemetryData) {
			td = d
		}),
	)
	if err := a.ExtractTo(context.Background(), tm, "", "out", cfg); err != nil {
		t.Fatalf("ExtractTo() failed: %s", err)
	}
	if td.UnsupportedFiles != 1 || td.LastUnsupportedFile != "ln" {
		t.Fatalf("telemetry = %s, want 1 unsupported entry %q", td, "ln")
	}
	if _, err := tm.Lstat("out/ln"); err == nil {
		t.Fatalf("denied link was extracted anyway")
	}
}

func TestExtractConcurrent(t *testing.T) {
	header := `{"files":{
		"f0.txt":{"offset":"0","size":1},
		"f1.txt":{"offset":"1","size":1},
		"f2.txt":{"offset":"2","size":1},
		"f3.txt":{"offset":"3","size":1},
		"f4.txt":{"offset":"4","size":1},
		"f5.txt":{"offset":"5","size":1},
		"f6.txt":{"offset":"6","size":1},
		"f7.txt":{"offset":"7","size":1}
	}}`
	a := newTestArchive(t, header, "01234567")
	tm := asar.NewTargetMemory()

	cfg := asar.NewConfig(asar.WithConcurrency(4))
	if err := a.ExtractTo(context.Background(), tm, "", "out", cfg); err != nil {
		t.Fatalf("ExtractTo() failed: %s", err)
	}

	for i := 0; i < 8; i++ {
		name := "out/f" + string(rune('0'+i)) + ".txt"
		data, err := tm.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%q) failed: %s", name, err)
		}
		if string(data) != string(rune('0'+i)) {
			t.Fatalf("ReadFile(%q) = %q, want %q", name, data, string(rune('0'+i)))
		}
	}
}

func TestExtractOverwrite(t *testing.T) {
	a := newTestArchive(t, testHeader, testData)
	tm := asar.NewTargetMemory()

	if err := a.ExtractTo(context.Background(), tm, "", "out", nil); err != nil {
		t.Fatalf("ExtractTo() failed: %s", err)
	}

	// a second extraction fails on existing files unless overwrite is set
	if err := a.ExtractTo(context.Background(), tm, "", "out", nil); err == nil {
		t.Fatalf("ExtractTo() over existing files succeeded without overwrite")
	}
	cfg := asar.NewConfig(asar.WithOverwrite(true))
	if err := a.ExtractTo(context.Background(), tm, "", "out", cfg); err != nil {
		t.Fatalf("ExtractTo() with overwrite failed: %s", err)
	}
}

func TestExtractContextCanceled(t *testing.T) {
	a := newTestArchive(t, testHeader, testData)
	tm := asar.NewTargetMemory()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.ExtractTo(ctx, tm, "", "out", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("ExtractTo() = %v, want context.Canceled", err)
	}
}

func TestExtractUnresolvedRoot(t *testing.T) {
	a := newTestArchive(t, testHeader, testData)
	tm := asar.NewTargetMemory()

	if err := a.ExtractTo(context.Background(), tm, "missing", "out", nil); !errors.Is(err, asar.ErrNotFound) {
		t.Fatalf("ExtractTo() = %v, want ErrNotFound", err)
	}
}
