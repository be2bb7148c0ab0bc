// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Open/OpenMmap and by queries that cannot be
// attributed to a single scan.
var (
	// ErrNotFound is returned when the container path cannot be opened.
	ErrNotFound = errors.New("rawspec: file not found")

	// ErrIO names an I/O failure against the backing store. No function in
	// this package returns it: Open and OpenMmap return the underlying os
	// or mmap error unwrapped (a missing file becomes ErrNotFound).
	ErrIO = errors.New("rawspec: io error")

	// ErrUnknownFormat is returned when the vendor interchange blob never
	// yields a recognizable file-info signature within the search cap.
	ErrUnknownFormat = errors.New("rawspec: unknown container format")

	// ErrUnsupportedVersion is returned when the file header version is
	// below minSupportedVersion. A version above maxSupportedVersion is
	// accepted and recorded as an anomaly.
	ErrUnsupportedVersion = errors.New("rawspec: unsupported format version")

	// ErrBadCrc names a file-level checksum mismatch. No checksum is
	// computed or compared when a container is opened, so no function in
	// this package returns it (see design notes).
	ErrBadCrc = errors.New("rawspec: checksum mismatch")

	// ErrMissingRunHeader is returned when the run-header address block is
	// absent, inconsistent with the scan index, or the event-stream stride
	// does not divide evenly.
	ErrMissingRunHeader = errors.New("rawspec: run header addresses inconsistent")

	// ErrCancelled is returned by a query whose cancellation token fired.
	ErrCancelled = errors.New("rawspec: query cancelled")

	// ErrNoMSController is returned when the controller table has no MS
	// device entry to anchor the run-header locator on.
	ErrNoMSController = errors.New("rawspec: no mass-spectrometer controller found")
)

// BoundsError is returned whenever a read, whether user-driven or derived
// from version-dependent arithmetic, would run past the backing store.
type BoundsError struct {
	Offset uint32
	Need   uint32
	Have   uint32
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("rawspec: read at offset %d needs %d bytes, have %d",
		e.Offset, e.Need, e.Have)
}

// BadScanIndexError is returned when the scan index fails its stride probe
// or violates a monotonicity invariant for the named scan.
type BadScanIndexError struct {
	Scan   int
	Reason string
}

func (e *BadScanIndexError) Error() string {
	return fmt.Sprintf("rawspec: bad scan index entry at scan %d: %s", e.Scan, e.Reason)
}

// DecodeError is returned when decoding a single scan's packet bytes fails.
// It always names the offending scan number, per the propagation policy:
// TIC/BPC never decode and so can never raise this.
type DecodeError struct {
	Scan   int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("rawspec: decode failed for scan %d: %s", e.Scan, e.Reason)
}

// TrailerFieldAbsentError is returned by Trailer lookups for a label that
// does not appear in the discovered generic-data-header descriptor list.
type TrailerFieldAbsentError struct {
	Label string
}

func (e *TrailerFieldAbsentError) Error() string {
	return fmt.Sprintf("rawspec: trailer field %q absent", e.Label)
}

// OutOfRangeError is returned by Scan(n) when n falls outside [1, NScans].
type OutOfRangeError struct {
	Scan   int
	NScans int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("rawspec: scan %d out of range [1, %d]", e.Scan, e.NScans)
}
