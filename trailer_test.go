// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"errors"
	"testing"
)

func buildMS1AndMS2Container() []byte {
	pkt := centroidPacket([]Peak{{MZ: 100, Intensity: 10}, {MZ: 200, Intensity: 20}})
	return buildContainer([]testScanSpec{
		{packetType: packetIonTrapCentroid, rt: 0.0, tic: 100, lowMass: 70, highMass: 1000, packet: pkt, msLevel: 0, masterScan: 0},
		{packetType: packetIonTrapCentroid, rt: 0.1, tic: 50, lowMass: 70, highMass: 1000, packet: pkt, msLevel: 1, masterScan: 1},
		{packetType: packetIonTrapCentroid, rt: 0.2, tic: 80, lowMass: 70, highMass: 1000, packet: pkt, msLevel: 0, masterScan: 0},
	})
}

func TestTrailerLayoutDiscoversAllFields(t *testing.T) {
	h := mustHandle(buildMS1AndMS2Container())
	defer h.Close()

	if _, ok := h.trailerLayout.offsets[masterScanNumberLabel]; !ok {
		t.Fatal("trailer layout must discover the Master Scan Number field")
	}
	if h.trailerLayout.RecordSize == 0 {
		t.Fatal("RecordSize must be non-zero once fields are discovered")
	}
}

func TestTrailerMasterScanNumberDistinguishesMSLevel(t *testing.T) {
	h := mustHandle(buildMS1AndMS2Container())
	defer h.Close()

	fields, err := h.Trailer(1)
	if err != nil {
		t.Fatalf("Trailer(1) failed: %v", err)
	}
	if fields[masterScanNumberLabel] != int32(0) {
		t.Fatalf("scan 1 Master Scan Number = %v; want 0 (MS1)", fields[masterScanNumberLabel])
	}

	fields, err = h.Trailer(2)
	if err != nil {
		t.Fatalf("Trailer(2) failed: %v", err)
	}
	if fields[masterScanNumberLabel] == int32(0) {
		t.Fatal("scan 2 Master Scan Number should be non-zero (MS2)")
	}
}

func TestTrailerFieldAbsentForUnknownLabel(t *testing.T) {
	h := mustHandle(buildMS1AndMS2Container())
	defer h.Close()

	_, err := h.TrailerField(1, "Not A Real Field")
	var absentErr *TrailerFieldAbsentError
	if !errors.As(err, &absentErr) {
		t.Fatalf("TrailerField() = %v; want *TrailerFieldAbsentError", err)
	}
}

func TestTrailerFieldKnownLabelRoundTrips(t *testing.T) {
	h := mustHandle(buildMS1AndMS2Container())
	defer h.Close()

	v, err := h.TrailerField(1, masterScanNumberLabel)
	if err != nil {
		t.Fatalf("TrailerField() failed: %v", err)
	}
	if v != int32(0) {
		t.Fatalf("TrailerField(1, %q) = %v; want 0", masterScanNumberLabel, v)
	}
}

func TestFieldValidWithoutMaskAssumesEveryFieldValid(t *testing.T) {
	layout := TrailerLayout{}
	if !layout.fieldValid(nil, 0) {
		t.Fatal("a layout with no validity mask must treat every field as valid")
	}
}

func TestBuildTrailerLayoutComputesOffsets(t *testing.T) {
	fields := []fieldDescriptor{
		{Label: "A", Type: FieldInteger, ByteLength: 4},
		{Label: "B", Type: FieldDouble, ByteLength: 8},
		{Label: "C", Type: FieldAsciiString, ByteLength: 16},
	}
	layout := buildTrailerLayout(fields)

	if layout.offsets["A"].Offset != 0 {
		t.Fatalf("A offset = %d; want 0", layout.offsets["A"].Offset)
	}
	if layout.offsets["B"].Offset != 4 {
		t.Fatalf("B offset = %d; want 4", layout.offsets["B"].Offset)
	}
	if layout.offsets["C"].Offset != 12 {
		t.Fatalf("C offset = %d; want 12", layout.offsets["C"].Offset)
	}
	if layout.RecordSize != 28 {
		t.Fatalf("RecordSize = %d; want 28", layout.RecordSize)
	}
}

func TestBuildTrailerLayoutRecognizesValidityMarker(t *testing.T) {
	fields := []fieldDescriptor{
		{Label: validityMarkerLabel, Type: FieldAsciiString, ByteLength: 2},
		{Label: "A", Type: FieldInteger, ByteLength: 4},
	}
	layout := buildTrailerLayout(fields)
	if !layout.hasValidityMask {
		t.Fatal("expected the validity marker descriptor to be recognized")
	}
	if layout.offsets["A"].Offset != 2 {
		t.Fatalf("A offset = %d; want 2 (after the 2-byte validity bitmap)", layout.offsets["A"].Offset)
	}
}

func TestFieldTypeValidity(t *testing.T) {
	for _, typ := range []FieldType{FieldSeparator, FieldBoolean, FieldFlag, FieldInteger, FieldDouble, FieldAsciiString} {
		if !typ.valid() {
			t.Errorf("FieldType(%#x).valid() = false; want true", byte(typ))
		}
	}
	if FieldType(0x7F).valid() {
		t.Fatal("an unrecognized type code must not be valid")
	}
}
