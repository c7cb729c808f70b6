// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
)

// unpackedSuffix is appended to the archive path to derive the sidecar
// directory that holds the content of unpacked entries.
const unpackedSuffix = ".unpacked"

// maxLinkHops caps how many link redirections a single content read will
// follow before giving up with [ErrUnresolvedLink].
const maxLinkHops = 8

// Archive is an open ASAR archive. The header is decoded and the entry tree
// is built when the archive is opened; all subsequent lookups are in-memory
// traversals.
//
// Content reads use positioned reads ([io.ReaderAt]) exclusively and never
// share a cursor, so an Archive is safe for concurrent use as long as the
// underlying source supports concurrent positioned reads. *os.File does;
// a source wrapping a single shared cursor must be serialized by the caller.
type Archive struct {
	src        io.ReaderAt
	size       int64
	baseOffset int64
	root       *Entry

	// path of the archive file, empty for reader-backed archives
	path string

	// unpackedPath is the sidecar directory for unpacked entries
	unpackedPath string

	// closer releases the source when the archive owns it
	closer io.Closer

	closed atomic.Bool
}

// Option adjusts how an archive is opened.
type Option func(*Archive)

// WithUnpackedPath overrides the directory that content reads of unpacked
// entries are served from. By default it is derived from the archive path by
// appending ".unpacked"; reader-backed archives have no default and fail
// unpacked reads unless this option is given.
func WithUnpackedPath(dir string) Option {
	return func(a *Archive) {
		a.unpackedPath = dir
	}
}

// Open opens the named archive file, decodes its header and builds the
// entry tree. The returned archive holds an open file handle until Close is
// called. If decoding fails, the file handle is released before returning
// and no archive is returned.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open archive: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot stat archive: %w", err)
	}

	a, err := New(f, stat.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.path = path
	a.closer = f
	if a.unpackedPath == "" {
		a.unpackedPath = path + unpackedSuffix
	}
	return a, nil
}

// New decodes an archive from an already-open byte source of the given
// total size. The source is not closed by the returned archive; Close only
// marks the archive as closed.
func New(src io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	header, baseOffset, err := decodeHeader(src, size)
	if err != nil {
		return nil, err
	}
	root, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		src:        src,
		size:       size,
		baseOffset: baseOffset,
		root:       root,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Close releases the underlying file handle if the archive owns one. Close
// is idempotent. Content reads after Close fail with [ErrClosed]; lookups
// against the already-built entry tree remain valid.
func (a *Archive) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Size returns the total byte length of the archive file.
func (a *Archive) Size() int64 {
	return a.size
}

// BaseOffset returns the byte position at which the data region begins.
func (a *Archive) BaseOffset() int64 {
	return a.baseOffset
}

// Root returns the root directory entry of the archive.
func (a *Archive) Root() *Entry {
	return a.root
}

// Lookup resolves an archive path to its entry. The empty path resolves to
// the root. Lookup is deterministic and does not follow link entries; the
// link entry itself is returned.
func (a *Archive) Lookup(path string) (*Entry, error) {
	return a.root.resolve(path)
}

// List returns the names within a directory of the archive, in header
// declaration order. Listing a file fails with [ErrNotADirectory].
func (a *Archive) List(path string) ([]DirEntry, error) {
	e, err := a.root.resolve(path)
	if err != nil {
		return nil, err
	}
	if !e.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrNotADirectory, path)
	}
	entries := make([]DirEntry, 0, len(e.names))
	for _, name := range e.names {
		entries = append(entries, DirEntry{Name: name, IsDir: e.children[name].IsDir()})
	}
	return entries, nil
}

// Walk visits every entry below root in breadth-first order, parents before
// children, siblings in header declaration order. The path passed to fn is
// relative to root. The first error returned by fn stops the walk.
func (a *Archive) Walk(root string, fn func(path string, e *Entry) error) error {
	e, err := a.root.resolve(root)
	if err != nil {
		return err
	}
	if !e.IsDir() {
		return fmt.Errorf("%w: %q", ErrNotADirectory, root)
	}
	return walk(e, fn)
}

// ReadFile returns the content of the file at the given archive path. Link
// entries are followed within the archive. Reading a directory fails with
// [ErrIsADirectory].
func (a *Archive) ReadFile(path string) ([]byte, error) {
	e, err := a.root.resolve(path)
	if err != nil {
		return nil, err
	}
	return a.readEntry(path, e)
}

// readEntry returns the content of a resolved entry. The path is the full
// archive path of the entry and is needed to locate unpacked content in the
// sidecar directory.
func (a *Archive) readEntry(path string, e *Entry) ([]byte, error) {
	e, path, err := a.resolveLink(path, e)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrIsADirectory, path)
	}
	if e.Unpacked {
		return a.readUnpacked(path)
	}

	if a.closed.Load() {
		return nil, fmt.Errorf("%w: %q", ErrClosed, path)
	}

	// bounds invariant: entries must lie within the data region of the
	// archive as it exists now, not as the header claims
	if a.baseOffset+e.Offset+e.Size > a.size {
		return nil, fmt.Errorf("%w: %q at offset %d exceeds archive size", ErrTruncatedRead, path, e.Offset)
	}

	buf := make([]byte, e.Size)
	if n, err := a.src.ReadAt(buf, a.baseOffset+e.Offset); int64(n) < e.Size {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %q", ErrTruncatedRead, path)
		}
		if errors.Is(err, os.ErrClosed) {
			return nil, fmt.Errorf("%w: %q", ErrClosed, path)
		}
		return nil, fmt.Errorf("cannot read %q: %w", path, err)
	}
	return buf, nil
}

// readUnpacked serves a content read from the sidecar directory.
func (a *Archive) readUnpacked(path string) ([]byte, error) {
	if a.unpackedPath == "" {
		return nil, fmt.Errorf("%w: %q: no unpacked directory", ErrUnpackedFileMissing, path)
	}
	name := filepath.Join(a.unpackedPath, filepath.FromSlash(path))
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrUnpackedFileMissing, path)
		}
		return nil, fmt.Errorf("cannot read unpacked file %q: %w", path, err)
	}
	return data, nil
}

// resolveLink follows link redirections starting at e. Targets are resolved
// relative to the archive root. The hop count is capped so that link cycles
// fail with [ErrUnresolvedLink] instead of spinning.
func (a *Archive) resolveLink(path string, e *Entry) (*Entry, string, error) {
	for hops := 0; e.IsLink(); hops++ {
		if hops >= maxLinkHops {
			return nil, "", fmt.Errorf("%w: %q: too many levels of links", ErrUnresolvedLink, path)
		}
		target, err := a.root.resolve(e.Link)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %q points at %q: %s", ErrUnresolvedLink, path, e.Link, err)
		}
		path = e.Link
		e = target
	}
	return e, path, nil
}
