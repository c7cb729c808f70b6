// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asar

import (
	"path/filepath"
	"strings"
)

// treeNode is a node scheduled for rendering, tagged with its depth.
type treeNode struct {
	name  string
	entry *Entry
	level int
}

// Tree renders the directory structure below root as a multi-line string.
// The first line names the rendered root; every entry below it is rendered
// depth-first in header declaration order, never sorted. The output is
// stable across calls.
func (a *Archive) Tree(root string) (string, error) {
	return a.TreeDepth(root, -1)
}

// TreeDepth renders like [Archive.Tree] but stops descending below the
// given depth. The root line is depth zero; depth < 0 renders all levels.
func (a *Archive) TreeDepth(root string, depth int) (string, error) {
	e, err := a.root.resolve(root)
	if err != nil {
		return "", err
	}

	name := strings.Trim(root, "/")
	if name == "" {
		if a.path != "" {
			name = filepath.Base(a.path)
		} else {
			name = "."
		}
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('\n')

	// depth-first with an explicit stack; children are pushed in reverse so
	// that they pop in declaration order
	var stack []treeNode
	push := func(e *Entry, level int) {
		for i := len(e.names) - 1; i >= 0; i-- {
			n := e.names[i]
			stack = append(stack, treeNode{n, e.children[n], level})
		}
	}
	if depth != 0 {
		push(e, 1)
	}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b.WriteString(strings.Repeat("│  ", cur.level-1))
		b.WriteString("├─ ")
		b.WriteString(cur.name)
		b.WriteByte('\n')
		if cur.entry.IsDir() && (depth < 0 || cur.level < depth) {
			push(cur.entry, cur.level+1)
		}
	}
	return b.String(), nil
}
