// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

// runHeaderAddrDisplacement is the fixed byte displacement, relative to the
// run header's base offset, at which the seven-address block begins.
const runHeaderAddrDisplacement = 7408

// scanCountDisplacement is the fixed byte displacement, relative to the run
// header's base offset, at which the i32 first-scan/last-scan pair sits,
// immediately ahead of the seven-address block.
const scanCountDisplacement = 7400

// parseScanCount reads the first-scan/last-scan pair for the given
// controller and returns the dense scan count (last - first + 1).
func (h *Handle) parseScanCount(ctrl ControllerDescriptor) (int, error) {
	base := uint32(ctrl.Offset) + scanCountDisplacement

	first, err := h.src.ReadInt32(base)
	if err != nil {
		return 0, err
	}
	last, err := h.src.ReadInt32(base + 4)
	if err != nil {
		return 0, err
	}
	if last < first {
		return 0, &BadScanIndexError{Scan: 0, Reason: "last scan number precedes first scan number"}
	}
	return int(last-first) + 1, nil
}

// RunHeader holds the seven addresses every controller's run header
// carries, all absolute offsets into the backing store unless noted.
type RunHeader struct {
	ScanIndexAddr    int64
	PacketBaseAddr   int64
	StatusLogAddr    int64
	ErrorLogAddr     int64
	SelfAddr         int64
	EventStreamAddr  int64
	TrailerStreamAddr int64
}

// parseRunHeader reads the seven-address block for the given controller and
// resolves the often-zero self-address field by substituting the
// controller-table's own VCI offset, per the invariant that the VCI offset
// is always authoritative. An address that lies past the end of the backing
// store (a truncated file) is reported as *BoundsError.
func (h *Handle) parseRunHeader(ctrl ControllerDescriptor) (RunHeader, error) {
	base := uint32(ctrl.Offset) + runHeaderAddrDisplacement

	addrs := make([]int64, 7)
	for i := range addrs {
		v, err := h.src.ReadInt64(base + uint32(i)*8)
		if err != nil {
			return RunHeader{}, err
		}
		addrs[i] = v
	}
	for _, a := range addrs {
		if a < 0 || a > int64(h.src.Len()) {
			return RunHeader{}, &BoundsError{Offset: uint32(a), Need: 1, Have: h.src.Len()}
		}
	}

	rh := RunHeader{
		ScanIndexAddr:     addrs[0],
		PacketBaseAddr:    addrs[1],
		StatusLogAddr:     addrs[2],
		ErrorLogAddr:      addrs[3],
		SelfAddr:          addrs[4],
		EventStreamAddr:   addrs[5],
		TrailerStreamAddr: addrs[6],
	}

	if rh.SelfAddr == 0 {
		h.addAnomaly("run header self-address is zero, substituting controller-table offset")
		rh.SelfAddr = ctrl.Offset
	}

	if ctrl.DeviceType == DeviceMS {
		if rh.ScanIndexAddr == 0 || rh.PacketBaseAddr == 0 {
			return RunHeader{}, ErrMissingRunHeader
		}
	}

	return rh, nil
}

// validateEventStreamAddr cross-checks that the recorded event-stream
// address matches scan-index start + nScans*entrySize, the position the
// event stream must occupy if the scan index and event stream are
// contiguous. A mismatch is fatal for MS controllers.
func validateEventStreamAddr(rh RunHeader, nScans int, scanIndexEntrySize uint32) error {
	expected := rh.ScanIndexAddr + int64(nScans)*int64(scanIndexEntrySize)
	if rh.EventStreamAddr != 0 && rh.EventStreamAddr != expected {
		return ErrMissingRunHeader
	}
	return nil
}
