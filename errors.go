// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package asar

import "errors"

var (
	// ErrMalformedHeader indicates that the length-prefixed preamble of the
	// archive is damaged or truncated, e.g. the outer size field is not 4 or
	// the declared header payload runs past the end of the source.
	ErrMalformedHeader = errors.New("malformed archive header")

	// ErrInvalidHeader indicates that the header payload is not valid JSON.
	ErrInvalidHeader = errors.New("invalid archive header")

	// ErrInvalidEntry indicates an entry record in the header that is neither
	// a directory nor a complete file record (missing offset or size).
	ErrInvalidEntry = errors.New("invalid file entry")

	// ErrNotFound indicates that a path does not exist in the archive.
	ErrNotFound = errors.New("path not found in archive")

	// ErrNotADirectory indicates a path that descends through a file entry.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory indicates a content read of a directory entry.
	ErrIsADirectory = errors.New("is a directory")

	// ErrTruncatedRead indicates that an entry's offset and size point past
	// the end of the archive, i.e. the archive shrank or the header lies.
	ErrTruncatedRead = errors.New("truncated read")

	// ErrUnpackedFileMissing indicates that an entry marked as unpacked has no
	// corresponding file in the ".unpacked" sidecar directory. This signals a
	// packaging defect of the shipped application, not archive corruption.
	ErrUnpackedFileMissing = errors.New("unpacked file missing")

	// ErrUnresolvedLink indicates a link entry whose target cannot be
	// resolved to a file within the archive.
	ErrUnresolvedLink = errors.New("unresolved link target")

	// ErrClosed indicates a content read against a closed archive.
	ErrClosed = errors.New("archive closed")

	// ErrMaxFilesExceeded indicates that the extraction wrote more entries
	// than allowed by [Config.MaxFiles].
	ErrMaxFilesExceeded = errors.New("maximum files exceeded")

	// ErrMaxExtractionSizeExceeded indicates that the extraction wrote more
	// bytes than allowed by [Config.MaxExtractionSize].
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrUnsupportedFile indicates an entry that cannot be extracted with the
	// current configuration, e.g. a link entry when symlink extraction is
	// denied.
	ErrUnsupportedFile = errors.New("unsupported file")
)
