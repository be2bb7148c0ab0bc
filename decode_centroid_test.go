// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"encoding/binary"
	"testing"
)

func TestDecodeIonTrapCentroidRoundTrips(t *testing.T) {
	want := []Peak{{MZ: 100.5, Intensity: 42}, {MZ: 200.25, Intensity: 17}}
	packet := centroidPacket(want)

	scan, err := decodeIonTrapCentroid(packet)
	if err != nil {
		t.Fatalf("decodeIonTrapCentroid() failed: %v", err)
	}
	if len(scan.Centroids) != len(want) {
		t.Fatalf("len(Centroids) = %d; want %d", len(scan.Centroids), len(want))
	}
	for i, p := range want {
		if scan.Centroids[i].MZ != p.MZ {
			t.Errorf("Centroids[%d].MZ = %v; want %v", i, scan.Centroids[i].MZ, p.MZ)
		}
		if scan.Centroids[i].Intensity != p.Intensity {
			t.Errorf("Centroids[%d].Intensity = %v; want %v", i, scan.Centroids[i].Intensity, p.Intensity)
		}
	}
}

func TestDecodeIonTrapCentroidRejectsTruncatedPacket(t *testing.T) {
	packet := centroidPacket([]Peak{{MZ: 1, Intensity: 1}})
	truncated := packet[:len(packet)-1]
	if _, err := decodeIonTrapCentroid(truncated); err == nil {
		t.Fatal("decodeIonTrapCentroid() should fail on a truncated packet")
	}
}

func TestDecodeIonTrapCentroidPreservesSaturationFlag(t *testing.T) {
	buf := make([]byte, labelArrayHeaderSize+ionTrapLabelStride)
	binary.LittleEndian.PutUint32(buf, 1)
	cursor := labelArrayHeaderSize
	binary.LittleEndian.PutUint64(buf[cursor:], 0x4059000000000000) // ~100.0 as float64 bits
	binary.LittleEndian.PutUint32(buf[cursor+12:], labelFlagSaturated)

	scan, err := decodeIonTrapCentroid(buf)
	if err != nil {
		t.Fatalf("decodeIonTrapCentroid() failed: %v", err)
	}
	if !scan.SaturatedMask.get(0) {
		t.Fatal("expected peak 0 to be marked saturated")
	}
	if scan.ReferenceMask.get(0) {
		t.Fatal("peak 0 should not be marked as a reference peak")
	}
}

func TestDecodeFTCentroidCarriesChargeAndFlags(t *testing.T) {
	buf := make([]byte, labelArrayHeaderSize+ftLabelStride)
	binary.LittleEndian.PutUint32(buf, 1)
	cursor := labelArrayHeaderSize
	binary.LittleEndian.PutUint64(buf[cursor:], 0x4059000000000000)
	binary.LittleEndian.PutUint32(buf[cursor+24:], labelFlagReference)

	scan, err := decodeFTCentroid(buf)
	if err != nil {
		t.Fatalf("decodeFTCentroid() failed: %v", err)
	}
	if len(scan.Centroids) != 1 {
		t.Fatalf("len(Centroids) = %d; want 1", len(scan.Centroids))
	}
	if !scan.ReferenceMask.get(0) {
		t.Fatal("expected peak 0 to be marked as a reference peak")
	}
}

func TestBitsetSetGetOutOfRangeIsSafe(t *testing.T) {
	b := newBitset(4)
	b.set(100) // must not panic
	if b.get(100) {
		t.Fatal("get() past the bitset length must return false, not panic or read garbage")
	}
}
