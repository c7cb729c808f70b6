// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asar

import (
	"fmt"
	"strings"
)

// Entry is a node in the decoded archive tree. An entry is either a
// directory that holds named children in header declaration order, a file
// addressed by offset and size relative to the data region, or a link that
// redirects to another path within the archive.
//
// The entry tree is immutable after [Open] or [New] returns and may be
// shared across goroutines without locking.
type Entry struct {
	// Offset is the position of the file content relative to the start of
	// the data region. It is meaningless for directories, links and
	// unpacked files.
	Offset int64

	// Size is the length of the file content in bytes.
	Size int64

	// Unpacked is true if the content lives in the ".unpacked" sidecar
	// directory instead of the archive's data region.
	Unpacked bool

	// Link is the target path of a link entry, relative to the archive root.
	Link string

	// children holds the named children of a directory in header
	// declaration order. It is nil for files and links.
	names    []string
	children map[string]*Entry
}

// DirEntry is a single name within a directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
}

// newDirEntry returns an empty directory entry.
func newDirEntry() *Entry {
	return &Entry{children: map[string]*Entry{}}
}

// IsDir returns true if the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.children != nil
}

// IsLink returns true if the entry redirects to another path in the archive.
func (e *Entry) IsLink() bool {
	return e.Link != ""
}

// Names returns the child names of a directory in header declaration order.
// It returns nil for files and links.
func (e *Entry) Names() []string {
	if e.children == nil {
		return nil
	}
	names := make([]string, len(e.names))
	copy(names, e.names)
	return names
}

// Child returns the named child of a directory, or nil if the entry is not a
// directory or has no such child.
func (e *Entry) Child(name string) *Entry {
	if e.children == nil {
		return nil
	}
	return e.children[name]
}

// addChild appends a child to a directory, keeping declaration order.
// Duplicate names cannot occur in a well-formed JSON object; if one does,
// the later record wins without duplicating the name.
func (e *Entry) addChild(name string, child *Entry) {
	if _, ok := e.children[name]; !ok {
		e.names = append(e.names, name)
	}
	e.children[name] = child
}

// splitPath splits an archive path on the canonical "/" separator. Leading
// and trailing separators are tolerated; empty segments within the path are
// rejected. The empty path resolves to zero segments, i.e. the root.
func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	segments := strings.Split(trimmed, "/")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment in path %q", ErrNotFound, path)
		}
	}
	return segments, nil
}

// resolve descends from e one path segment at a time. Descending into a
// non-directory fails with [ErrNotADirectory], a missing segment fails with
// [ErrNotFound].
func (e *Entry) resolve(path string) (*Entry, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	cur := e
	for i, s := range segments {
		if !cur.IsDir() {
			return nil, fmt.Errorf("%w: %q", ErrNotADirectory, strings.Join(segments[:i], "/"))
		}
		next := cur.children[s]
		if next == nil {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		cur = next
	}
	return cur, nil
}

// walkEntry is a node scheduled for visiting during a tree walk.
type walkEntry struct {
	path  string
	entry *Entry
}

// walk visits every descendant of root in breadth-first order, parents
// before children, siblings in header declaration order. The walk uses an
// explicit queue instead of recursion so that deeply nested archives cannot
// exhaust the call stack. The first error returned by fn stops the walk.
func walk(root *Entry, fn func(path string, e *Entry) error) error {
	queue := []walkEntry{{"", root}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, name := range cur.entry.names {
			child := cur.entry.children[name]
			path := name
			if cur.path != "" {
				path = cur.path + "/" + name
			}
			if err := fn(path, child); err != nil {
				return err
			}
			if child.IsDir() {
				queue = append(queue, walkEntry{path, child})
			}
		}
	}
	return nil
}
