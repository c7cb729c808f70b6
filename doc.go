// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package asar provides read-only, random-access decoding of Electron ASAR
// archives and extraction of their contents to the underlying OS, in-memory,
// or a custom filesystem target.
//
// An archive is opened with [Open] (or [New] for an already-open byte
// source); the header is decoded and the full directory tree is built
// eagerly, so all lookups after open are pure in-memory traversals. File
// contents are read on demand with positioned reads against the data region
// of the archive, or from the ".unpacked" sidecar directory for entries
// marked as unpacked.
//
// Extraction is configured using the [Config], which can be used to set the
// logger, the telemetry hook, overwrite behavior, and resource limits.
// Telemetry data is captured during the extraction process and handed to the
// configured [TelemetryHook] when the extraction finishes.
package asar
