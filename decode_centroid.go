// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"encoding/binary"
	"errors"
	"math"
)

// labelArrayHeaderSize is the fixed preamble of a label-array packet: u32
// peak count followed by the label records themselves.
const labelArrayHeaderSize = 4

// ionTrapLabelStride is the byte width of one ion-trap centroid label: f64
// m/z, f32 intensity, u32 flags (saturated/reference/exception/merged).
const ionTrapLabelStride = 16

const (
	labelFlagSaturated = 1 << 0
	labelFlagReference = 1 << 1
)

// decodeIonTrapCentroid decodes tag 0x14: a label array of (m/z, intensity,
// flags) tuples with no auxiliary fields.
func decodeIonTrapCentroid(window []byte) (DecodedScan, error) {
	if len(window) < labelArrayHeaderSize {
		return DecodedScan{}, errors.New("ion-trap centroid packet shorter than header")
	}
	count := binary.LittleEndian.Uint32(window)
	peaks := make([]Peak, 0, count)
	saturated := newBitset(int(count))
	reference := newBitset(int(count))

	cursor := labelArrayHeaderSize
	for i := uint32(0); i < count; i++ {
		if cursor+ionTrapLabelStride > len(window) {
			return DecodedScan{}, errors.New("ion-trap centroid packet truncated")
		}
		mz := math.Float64frombits(binary.LittleEndian.Uint64(window[cursor:]))
		intensity := math.Float32frombits(binary.LittleEndian.Uint32(window[cursor+8:]))
		flags := binary.LittleEndian.Uint32(window[cursor+12:])

		peaks = append(peaks, Peak{MZ: mz, Intensity: float64(intensity)})
		if flags&labelFlagSaturated != 0 {
			saturated.set(int(i))
		}
		if flags&labelFlagReference != 0 {
			reference.set(int(i))
		}
		cursor += ionTrapLabelStride
	}

	return DecodedScan{
		Centroids:     peaks,
		SaturatedMask: saturated,
		ReferenceMask: reference,
	}, nil
}

// ftLabelStride is the byte width of one FT centroid label: f64 m/z, f32
// intensity, f32 resolution, f32 baseline, f32 noise, u32 charge+flags.
const ftLabelStride = 28

// decodeFTCentroid decodes tag 0x15: a label array carrying per-peak
// resolution, noise, baseline and charge auxiliaries in addition to the
// (m/z, intensity) pair every centroid exposes.
func decodeFTCentroid(window []byte) (DecodedScan, error) {
	if len(window) < labelArrayHeaderSize {
		return DecodedScan{}, errors.New("FT centroid packet shorter than header")
	}
	count := binary.LittleEndian.Uint32(window)
	peaks := make([]Peak, 0, count)
	saturated := newBitset(int(count))
	reference := newBitset(int(count))

	cursor := labelArrayHeaderSize
	for i := uint32(0); i < count; i++ {
		if cursor+ftLabelStride > len(window) {
			return DecodedScan{}, errors.New("FT centroid packet truncated")
		}
		mz := math.Float64frombits(binary.LittleEndian.Uint64(window[cursor:]))
		intensity := math.Float32frombits(binary.LittleEndian.Uint32(window[cursor+8:]))
		// resolution, baseline, noise carried at +12, +16, +20 are auxiliary
		// and not surfaced on Peak today; charge+flags at +24.
		chargeAndFlags := binary.LittleEndian.Uint32(window[cursor+24:])

		peaks = append(peaks, Peak{MZ: mz, Intensity: float64(intensity)})
		if chargeAndFlags&labelFlagSaturated != 0 {
			saturated.set(int(i))
		}
		if chargeAndFlags&labelFlagReference != 0 {
			reference.set(int(i))
		}
		cursor += ftLabelStride
	}

	return DecodedScan{
		Centroids:     peaks,
		SaturatedMask: saturated,
		ReferenceMask: reference,
	}, nil
}
