// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

// SampleInfo carries the acquisition-identifying strings the file-info
// structure stores immediately after its controller table: the instrument
// model, its serial number, the acquisition software version, and the
// sample name entered for the run.
type SampleInfo struct {
	InstrumentModel string
	Serial          string
	SoftwareVersion string
	SampleName      string
}

// controllerTableBytes returns how many bytes the on-disk controller table
// occupies given the number of entries parseControllerTable returned: every
// entry read plus the single terminator slot that ended the scan, capped at
// the table's fixed capacity for the degenerate case where maxControllers
// entries appear with no terminator at all.
func controllerTableBytes(nControllers int) uint32 {
	slots := nControllers + 1
	if slots > maxControllers {
		slots = maxControllers
	}
	return uint32(slots) * controllerEntrySize
}

// parseSampleInfo reads the four length-prefixed wide-character strings
// that immediately follow the controller table in the file-info structure.
// A short or unreadable block is not fatal: unreadable strings are left
// empty and Open still succeeds, since earlier format versions are not
// guaranteed to carry this block. An anomaly is recorded only when none of
// the four strings can be read.
func (h *Handle) parseSampleInfo(fileInfoOffset uint32, nControllers int) SampleInfo {
	off := fileInfoOffset + uint32(len(fileInfoSignature)) + controllerTableBytes(nControllers)

	read := func() string {
		s, n, err := h.src.ReadWideString(off)
		if err != nil {
			return ""
		}
		off += n
		return s
	}

	info := SampleInfo{
		InstrumentModel: read(),
		Serial:          read(),
		SoftwareVersion: read(),
		SampleName:      read(),
	}
	if info == (SampleInfo{}) {
		h.addAnomaly("sample/instrument identification block absent or unreadable past the controller table")
	}
	return info
}
