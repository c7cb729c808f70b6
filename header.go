// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asar

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// outerSize is the constant value of the first length field of an archive.
// It declares the byte length of the following header size field.
const outerSize = 4

// preambleLength is the combined length of the two length fields that
// precede the header payload.
const preambleLength = 8

// magicBytesASAR contains the little-endian encoding of the outer size
// field, which is constant for all well-formed archives.
var magicBytesASAR = [][]byte{
	{0x04, 0x00, 0x00, 0x00},
}

// IsASAR checks if data starts like an ASAR archive. It inspects only the
// constant outer size field, so a positive result does not guarantee that
// the archive decodes successfully.
func IsASAR(data []byte) bool {
	return matchesMagicBytes(data, 0, magicBytesASAR)
}

// matchesMagicBytes checks data at offset against all given magic byte
// sequences until a match is found.
func matchesMagicBytes(data []byte, offset int, magicBytes [][]byte) bool {
	for _, mb := range magicBytes {
		// check if data is long enough
		if offset+len(mb) > len(data) {
			continue
		}

		// check for byte match
		if bytes.Equal(mb, data[offset:offset+len(mb)]) {
			return true
		}
	}

	// no match found
	return false
}

// decodeHeader reads the length-prefixed preamble from src and returns the
// raw header payload and the offset at which the data region begins. All
// integers in the preamble are 4-byte little-endian unsigned values. The
// payload may be followed by zero padding that aligns the data region to a
// 4-byte boundary; the padding is accounted for in the returned base offset.
func decodeHeader(src io.ReaderAt, size int64) (header []byte, baseOffset int64, err error) {
	var preamble [preambleLength]byte
	if n, err := src.ReadAt(preamble[:], 0); n < len(preamble) {
		return nil, 0, fmt.Errorf("%w: cannot read preamble: %s", ErrMalformedHeader, err)
	}

	// first length field declares the width of the header size field and is
	// constant; anything else is an unsupported or corrupted archive
	if outer := binary.LittleEndian.Uint32(preamble[0:4]); outer != outerSize {
		return nil, 0, fmt.Errorf("%w: unexpected size field %d", ErrMalformedHeader, outer)
	}

	// the declared payload length is untrusted input; validate it against
	// the known source size before allocating a buffer for it
	headerSize := int64(binary.LittleEndian.Uint32(preamble[4:8]))
	if preambleLength+headerSize > size {
		return nil, 0, fmt.Errorf("%w: header size %d exceeds archive size %d", ErrMalformedHeader, headerSize, size)
	}
	header = make([]byte, headerSize)
	if n, err := src.ReadAt(header, preambleLength); int64(n) < headerSize {
		return nil, 0, fmt.Errorf("%w: cannot read header payload: %s", ErrMalformedHeader, err)
	}

	padding := (4 - headerSize%4) % 4
	baseOffset = preambleLength + headerSize + padding
	return header, baseOffset, nil
}

// parseHeader parses the JSON header payload and builds the entry tree. The
// declaration order of each "files" object is preserved, which requires
// walking the token stream by hand since map-based decoding loses key order.
func parseHeader(data []byte) (*Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
	}

	root := newDirEntry()
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
		}
		if key != "files" {
			// unknown top-level keys are ignored for forward compatibility
			if err := skipValue(dec); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
			}
			continue
		}
		if err := parseFiles(dec, root); err != nil {
			return nil, err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
	}
	return root, nil
}

// parseFiles consumes a "files" object from the token stream and attaches
// its records to dir. Nested directories are handled with an explicit work
// stack instead of recursion so that pathologically deep archives cannot
// exhaust the call stack.
func parseFiles(dec *json.Decoder, dir *Entry) error {
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidHeader, err)
	}

	stack := []*Entry{dir}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]

		// end of the current files object
		if !dec.More() {
			if err := expectDelim(dec, '}'); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidHeader, err)
			}
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				// consume the remainder of the entry object that wrapped
				// the finished files object
				if err := finishObject(dec); err != nil {
					return fmt.Errorf("%w: %s", ErrInvalidHeader, err)
				}
			}
			continue
		}

		name, err := stringToken(dec)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidHeader, err)
		}
		child, isDir, err := parseEntry(dec, name)
		if err != nil {
			return err
		}
		cur.addChild(name, child)
		if isDir {
			// parseEntry stopped right before the nested files object
			if err := expectDelim(dec, '{'); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidHeader, err)
			}
			stack = append(stack, child)
		}
	}
	return nil
}

// parseEntry consumes a single entry object. For file and link records the
// whole object is consumed and validated. For directories the stream is
// left positioned at the value of the "files" key, to be descended into by
// the caller; keys declared after "files" are consumed when the directory
// is popped from the work stack.
func parseEntry(dec *json.Decoder, name string) (e *Entry, isDir bool, err error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
	}

	var (
		offset    int64
		size      int64
		unpacked  bool
		link      string
		hasOffset bool
		hasSize   bool
	)
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
		}
		switch key {
		case "files":
			return newDirEntry(), true, nil
		case "offset":
			if offset, err = numberToken(dec); err != nil {
				return nil, false, fmt.Errorf("%w: offset of %q: %s", ErrInvalidEntry, name, err)
			}
			hasOffset = true
		case "size":
			if size, err = numberToken(dec); err != nil {
				return nil, false, fmt.Errorf("%w: size of %q: %s", ErrInvalidEntry, name, err)
			}
			hasSize = true
		case "unpacked":
			tok, err := dec.Token()
			if err != nil {
				return nil, false, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
			}
			b, ok := tok.(bool)
			if !ok {
				return nil, false, fmt.Errorf("%w: unpacked of %q is not a bool", ErrInvalidEntry, name)
			}
			unpacked = b
		case "link":
			tok, err := dec.Token()
			if err != nil {
				return nil, false, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
			}
			s, ok := tok.(string)
			if !ok {
				return nil, false, fmt.Errorf("%w: link of %q is not a string", ErrInvalidEntry, name)
			}
			link = s
		default:
			// unexpected keys (integrity, executable, ...) are ignored
			if err := skipValue(dec); err != nil {
				return nil, false, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
	}

	// link records carry only their target path
	if link != "" {
		return &Entry{Link: link}, false, nil
	}
	if !hasOffset || !hasSize {
		return nil, false, fmt.Errorf("%w: %q lacks offset or size", ErrInvalidEntry, name)
	}
	return &Entry{Offset: offset, Size: size, Unpacked: unpacked}, false, nil
}

// expectDelim consumes the next token and checks that it is the given
// delimiter.
func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	got, ok := tok.(json.Delim)
	if !ok || got != want {
		return fmt.Errorf("expected %q, got %v", want.String(), tok)
	}
	return nil
}

// stringToken consumes the next token and checks that it is a string.
func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %v", tok)
	}
	return s, nil
}

// numberToken consumes the next token and parses it as a non-negative
// integer. The format encodes offsets as decimal strings since they can
// exceed the safe integer range of JavaScript numbers; plain numbers are
// accepted as well.
func numberToken(dec *json.Decoder) (int64, error) {
	tok, err := dec.Token()
	if err != nil {
		return 0, err
	}
	var s string
	switch v := tok.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	default:
		return 0, fmt.Errorf("expected number, got %v", tok)
	}
	n, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// skipValue consumes the next value from the token stream, including all
// nested objects and arrays.
func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}

// finishObject consumes the remaining key/value pairs of the current object
// and its closing brace.
func finishObject(dec *json.Decoder) error {
	for dec.More() {
		if _, err := stringToken(dec); err != nil {
			return err
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	return expectDelim(dec, '}')
}
