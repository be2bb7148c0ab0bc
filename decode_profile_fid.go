// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"encoding/binary"
	"errors"
)

// stdAccuracyPairSize is the packed width of one standard-accuracy sample:
// a 13-bit scaled intensity (bits 0-12) and a 24-bit fractional frequency
// (bits 13-36) of the little-endian 10-byte (80-bit) pair; the remaining
// bits are unused.
const stdAccuracyPairSize = 10

// stdAccuracyIntensityBits/FrequencyBits are the field widths packed into
// each sample pair.
const (
	stdAccuracyIntensityBits = 13
	stdAccuracyFrequencyBits = 24
	stdAccuracyIntensityMax  = (1 << stdAccuracyIntensityBits) - 1
	stdAccuracyFrequencyMax  = (1 << stdAccuracyFrequencyBits) - 1
)

// decodeProfileStdAccuracy decodes tag 0x18: a dense array of packed
// (scaled intensity, fractional frequency) pairs, each converted to m/z by
// evaluating a cubic in frequency using the four mass-calibration
// coefficients carried on the owning scan event (c0 + c1*f + c2*f^2 + c3*f^3),
// via Horner's method.
func decodeProfileStdAccuracy(window []byte, calib [4]float64) (DecodedScan, error) {
	if len(window) < 4 {
		return DecodedScan{}, errors.New("standard-accuracy profile packet shorter than header")
	}
	count := binary.LittleEndian.Uint32(window)

	cursor := 4
	peaks := make([]Peak, 0, count)

	for i := uint32(0); i < count; i++ {
		if cursor+stdAccuracyPairSize > len(window) {
			return DecodedScan{}, errors.New("standard-accuracy profile packet truncated")
		}
		pair := window[cursor : cursor+stdAccuracyPairSize]

		// Read the 10-byte little-endian pair as two words, lo (bytes 0-7)
		// and hi (bytes 8-9), so bitfield extraction is uniform across the
		// 64-bit boundary.
		var lo, hi uint64
		lo = uint64(pair[0]) | uint64(pair[1])<<8 | uint64(pair[2])<<16 | uint64(pair[3])<<24 |
			uint64(pair[4])<<32 | uint64(pair[5])<<40 | uint64(pair[6])<<48 | uint64(pair[7])<<56
		hi = uint64(pair[8]) | uint64(pair[9])<<8

		scaledIntensity := lo & stdAccuracyIntensityMax
		freqBits := ((lo >> stdAccuracyIntensityBits) | (hi << (64 - stdAccuracyIntensityBits))) & stdAccuracyFrequencyMax

		frequency := float64(freqBits)
		mz := calib[3]
		mz = mz*frequency + calib[2]
		mz = mz*frequency + calib[1]
		mz = mz*frequency + calib[0]

		peaks = append(peaks, Peak{MZ: mz, Intensity: float64(scaledIntensity)})
		cursor += stdAccuracyPairSize
	}

	return DecodedScan{Profile: peaks}, nil
}
