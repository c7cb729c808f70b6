// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asar_test

import (
	"errors"
	"testing"

	asar "github.com/hashicorp/go-asar"
)

const treeTestHeader = `{"files":{
	"file1.txt":{"offset":"0","size":1},
	"file2.txt":{"offset":"1","size":1},
	"folder":{"files":{
		"file.txt":{"offset":"2","size":1},
		"nested":{"files":{"deep.txt":{"offset":"3","size":1}}}
	}},
	"last.txt":{"offset":"4","size":1}
}}`

func TestTree(t *testing.T) {
	a := newTestArchive(t, treeTestHeader, "abcde")

	want := ".\n" +
		"├─ file1.txt\n" +
		"├─ file2.txt\n" +
		"├─ folder\n" +
		"│  ├─ file.txt\n" +
		"│  ├─ nested\n" +
		"│  │  ├─ deep.txt\n" +
		"├─ last.txt\n"

	got, err := a.Tree("")
	if err != nil {
		t.Fatalf("Tree() failed: %s", err)
	}
	if got != want {
		t.Fatalf("Tree() = %q, want %q", got, want)
	}

	// rendering is stable across calls
	again, err := a.Tree("")
	if err != nil {
		t.Fatalf("Tree() failed: %s", err)
	}
	if again != got {
		t.Fatalf("Tree() output changed between calls")
	}
}

func TestTreeSubdir(t *testing.T) {
	a := newTestArchive(t, treeTestHeader, "abcde")

	want := "folder\n" +
		"├─ file.txt\n" +
		"├─ nested\n" +
		"│  ├─ deep.txt\n"

	got, err := a.Tree("folder")
	if err != nil {
		t.Fatalf("Tree(folder) failed: %s", err)
	}
	if got != want {
		t.Fatalf("Tree(folder) = %q, want %q", got, want)
	}

	// separators around the root are trimmed from the header line
	got, err = a.Tree("/folder/")
	if err != nil {
		t.Fatalf("Tree(/folder/) failed: %s", err)
	}
	if got != want {
		t.Fatalf("Tree(/folder/) = %q, want %q", got, want)
	}
}

func TestTreeDepth(t *testing.T) {
	a := newTestArchive(t, treeTestHeader, "abcde")

	tests := []struct {
		depth int
		want  string
	}{
		{0, ".\n"},
		{1, ".\n├─ file1.txt\n├─ file2.txt\n├─ folder\n├─ last.txt\n"},
		{2, ".\n├─ file1.txt\n├─ file2.txt\n├─ folder\n│  ├─ file.txt\n│  ├─ nested\n├─ last.txt\n"},
	}
	for _, tt := range tests {
		got, err := a.TreeDepth("", tt.depth)
		if err != nil {
			t.Fatalf("TreeDepth(%d) failed: %s", tt.depth, err)
		}
		if got != tt.want {
			t.Fatalf("TreeDepth(%d) = %q, want %q", tt.depth, got, tt.want)
		}
	}
}

func TestTreeNamedByArchive(t *testing.T) {
	path := writeTestArchive(t, treeTestHeader, "abcde")
	a, err := asar.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %s", err)
	}
	defer a.Close()

	got, err := a.TreeDepth("", 0)
	if err != nil {
		t.Fatalf("TreeDepth() failed: %s", err)
	}
	if got != "test.asar\n" {
		t.Fatalf("TreeDepth() root line = %q, want %q", got, "test.asar\n")
	}
}

func TestTreeErrors(t *testing.T) {
	a := newTestArchive(t, treeTestHeader, "abcde")

	if _, err := a.Tree("missing"); !errors.Is(err, asar.ErrNotFound) {
		t.Fatalf("Tree(missing) = %v, want ErrNotFound", err)
	}
}
