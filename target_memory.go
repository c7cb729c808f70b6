// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asar

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

// TargetMemory is an in-memory filesystem implementation that can be used
// as an extraction destination, mainly for testing and for consumers that
// inspect extracted contents without touching the disk. Entries are stored
// in a map of slash-separated paths. Permissions on entries are not
// enforced.
type TargetMemory struct {
	files sync.Map // map[string]*memoryEntry
}

// NewTargetMemory creates a new in-memory extraction target.
func NewTargetMemory() *TargetMemory {
	return &TargetMemory{}
}

// memoryEntry is a single file, directory or symlink in the in-memory
// filesystem.
type memoryEntry struct {
	fileInfo *memoryFileInfo
	data     []byte
}

// CreateFile creates a new file in the in-memory filesystem. If the overwrite flag is set
// to false and the file already exists, an error is returned. The maxSize parameter can be
// used to limit the size of the file; if the file exceeds maxSize, an error is returned.
// If the file is created successfully, the number of bytes written is returned.
func (m *TargetMemory) CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	if !fs.ValidPath(path) {
		return 0, fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	if !overwrite {
		if _, ok := m.files.Load(path); ok {
			return 0, fmt.Errorf("%w: %s", fs.ErrExist, path)
		}
	}

	// write to buffer, limited to maxSize
	var buf bytes.Buffer
	w := limitWriter(&buf, maxSize)
	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}

	// create entry
	fName := filepath.Base(path)
	m.files.Store(path, &memoryEntry{
		fileInfo: &memoryFileInfo{name: fName, size: n, mode: mode.Perm(), modTime: time.Now()},
		data:     buf.Bytes(),
	})

	return n, nil
}

// CreateDir creates a new directory in the in-memory filesystem.
// If the directory already exists, nothing is done.
func (m *TargetMemory) CreateDir(path string, mode fs.FileMode) error {
	if !fs.ValidPath(path) {
		return fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}

	// check if an entry already exists
	if _, ok := m.files.Load(path); ok {
		return nil
	}

	// create entry
	dName := filepath.Base(path)
	m.files.Store(path, &memoryEntry{
		fileInfo: &memoryFileInfo{name: dName, mode: mode.Perm() | fs.ModeDir},
	})

	return nil
}

// CreateSymlink creates a new symlink in the in-memory filesystem.
// If the overwrite flag is set to false and the symlink already exists, an
// error is returned.
func (m *TargetMemory) CreateSymlink(oldname string, newname string, overwrite bool) error {
	if !fs.ValidPath(newname) {
		return fmt.Errorf("%w: %s", fs.ErrInvalid, newname)
	}
	if !overwrite {
		if _, ok := m.files.Load(newname); ok {
			return fmt.Errorf("%w: %s", fs.ErrExist, newname)
		}
	}

	lName := filepath.Base(newname)
	m.files.Store(newname, &memoryEntry{
		fileInfo: &memoryFileInfo{name: lName, mode: 0777 | fs.ModeSymlink},
		data:     []byte(oldname),
	})

	return nil
}

// Open opens the named file for reading. If the file is a symlink, the
// target of the symlink is opened. If the file does not exist, or is a
// directory, an error is returned.
func (m *TargetMemory) Open(path string) (fs.File, error) {
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}

	e, ok := m.files.Load(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}

	me := e.(*memoryEntry)
	if me.fileInfo.Mode()&fs.ModeDir != 0 {
		return nil, fmt.Errorf("cannot open directory")
	}

	// follow symlink
	if me.fileInfo.Mode()&fs.ModeSymlink != 0 {
		linkTarget := string(me.data)
		if !filepath.IsAbs(linkTarget) {
			linkTarget = filepath.Join(filepath.Dir(path), linkTarget)
		}
		return m.Open(filepath.ToSlash(linkTarget))
	}

	return &memoryFile{fileInfo: me.fileInfo, reader: bytes.NewReader(me.data)}, nil
}

// ReadFile returns the content of the named file.
func (m *TargetMemory) ReadFile(path string) ([]byte, error) {
	f, err := m.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Lstat returns the FileInfo of the named entry without following symlinks.
func (m *TargetMemory) Lstat(path string) (fs.FileInfo, error) {
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	e, ok := m.files.Load(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}
	return e.(*memoryEntry).fileInfo, nil
}

// Stat returns the FileInfo of the named entry, following symlinks.
func (m *TargetMemory) Stat(path string) (fs.FileInfo, error) {
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	e, ok := m.files.Load(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}
	me := e.(*memoryEntry)
	if me.fileInfo.Mode()&fs.ModeSymlink != 0 {
		linkTarget := string(me.data)
		if !filepath.IsAbs(linkTarget) {
			linkTarget = filepath.Join(filepath.Dir(path), linkTarget)
		}
		return m.Stat(filepath.ToSlash(linkTarget))
	}
	return me.fileInfo, nil
}

// memoryFile is an open file in the in-memory filesystem.
type memoryFile struct {
	fileInfo *memoryFileInfo
	reader   *bytes.Reader
}

// Stat returns the FileInfo of the file.
func (f *memoryFile) Stat() (fs.FileInfo, error) {
	return f.fileInfo, nil
}

// Read reads up to len(p) bytes into p.
func (f *memoryFile) Read(p []byte) (int, error) {
	return f.reader.Read(p)
}

// Close closes the file.
func (f *memoryFile) Close() error {
	return nil
}

// memoryFileInfo implements fs.FileInfo for in-memory entries.
type memoryFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

// Name returns the base name of the entry.
func (fi *memoryFileInfo) Name() string {
	return fi.name
}

// Size returns the size of the entry in bytes.
func (fi *memoryFileInfo) Size() int64 {
	return fi.size
}

// Mode returns the file mode bits of the entry.
func (fi *memoryFileInfo) Mode() fs.FileMode {
	return fi.mode
}

// ModTime returns the modification time of the entry.
func (fi *memoryFileInfo) ModTime() time.Time {
	return fi.modTime
}

// IsDir returns true if the entry is a directory.
func (fi *memoryFileInfo) IsDir() bool {
	return fi.mode&fs.ModeDir != 0
}

// Sys returns nil.
func (fi *memoryFileInfo) Sys() interface{} {
	return nil
}
