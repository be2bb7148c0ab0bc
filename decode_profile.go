// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"encoding/binary"
	"errors"
	"math"
)

// currentProfileSegmentDescSize is one "current" profile segment header:
// f64 low m/z, f64 m/z tick, u32 sample count.
const currentProfileSegmentDescSize = 20

// decodeProfileCurrent decodes the current-version segmented profile
// encoding: a segment-count header, one fixed descriptor per segment, then
// the concatenated float32 intensity samples for every segment in order.
// m/z values are reconstructed from the uniform tick: mz[i] = lowMz + i*tick.
func decodeProfileCurrent(window []byte) (DecodedScan, error) {
	if len(window) < 4 {
		return DecodedScan{}, errors.New("profile packet shorter than header")
	}
	segCount := binary.LittleEndian.Uint32(window)

	descBase := 4
	if descBase+int(segCount)*currentProfileSegmentDescSize > len(window) {
		return DecodedScan{}, errors.New("profile segment descriptor table truncated")
	}

	type segDesc struct {
		lowMz, tick float64
		n           uint32
	}
	descs := make([]segDesc, segCount)
	for i := uint32(0); i < segCount; i++ {
		off := descBase + int(i)*currentProfileSegmentDescSize
		descs[i] = segDesc{
			lowMz: math.Float64frombits(binary.LittleEndian.Uint64(window[off:])),
			tick:  math.Float64frombits(binary.LittleEndian.Uint64(window[off+8:])),
			n:     binary.LittleEndian.Uint32(window[off+16:]),
		}
	}

	cursor := descBase + int(segCount)*currentProfileSegmentDescSize
	segments := make([]Segment, 0, segCount)
	profile := make([]Peak, 0)

	for _, d := range descs {
		peaks := make([]Peak, 0, d.n)
		for i := uint32(0); i < d.n; i++ {
			if cursor+4 > len(window) {
				return DecodedScan{}, errors.New("profile sample data truncated")
			}
			intensity := math.Float32frombits(binary.LittleEndian.Uint32(window[cursor:]))
			mz := d.lowMz + float64(i)*d.tick
			peaks = append(peaks, Peak{MZ: mz, Intensity: float64(intensity)})
			cursor += 4
		}
		highMz := d.lowMz
		if d.n > 0 {
			highMz = d.lowMz + float64(d.n-1)*d.tick
		}
		segments = append(segments, Segment{LowMZ: d.lowMz, HighMZ: highMz, Peaks: peaks})
		profile = append(profile, peaks...)
	}

	return DecodedScan{Profile: profile, Segments: segments}, nil
}

// compressedSegmentDescSize is one compressed-profile segment descriptor as
// stored in the buffer's tail: f64 low m/z, f64 m/z tick, u32 packet count,
// u32 running data position (byte offset of the segment's packed-word
// stream, relative to the start of the buffer).
const compressedSegmentDescSize = 24

// packedWordPresenceBit marks that a packed 32-bit word carries a sample
// (as opposed to a zero-run marker).
const packedWordPresenceBit = 1 << 31

// packedWordScaleShift/Mask extract the two-bit power-of-eight scale
// multiplier from the top non-presence bits of a packed sample word.
const (
	packedWordScaleShift = 29
	packedWordScaleMask  = 0x3
	packedWordMagMask    = 0x1FFFFFFF
	packedWordRunLenMask = 0x7FFFFFFF
	maxZeroSmoothSamples = 8
)

// decodeProfileCompressed decodes the run-length-compressed segmented
// profile encoding: segment descriptors live in the buffer's tail, and each
// segment's packed-word stream encodes either a present sample (top bit
// set, two-bit power-of-eight scale, 29-bit magnitude) or a run of
// consecutive zero samples to skip (top bit clear, 31-bit run length).
// When smoothZeroRuns is requested, up to maxZeroSmoothSamples zero-
// intensity peaks are emitted at the start of each zero run; otherwise
// zero runs only advance the tick cursor and contribute no peaks.
func decodeProfileCompressed(window []byte, smoothZeroRuns bool) (DecodedScan, error) {
	if len(window) < 4 {
		return DecodedScan{}, errors.New("compressed profile packet shorter than trailer")
	}
	segCount := binary.LittleEndian.Uint32(window[len(window)-4:])

	descTableSize := int(segCount) * compressedSegmentDescSize
	descBase := len(window) - 4 - descTableSize
	if descBase < 0 {
		return DecodedScan{}, errors.New("compressed profile segment descriptor table truncated")
	}

	type segDesc struct {
		lowMz, tick    float64
		packetCount    uint32
		dataPos        uint32
	}
	descs := make([]segDesc, segCount)
	for i := uint32(0); i < segCount; i++ {
		off := descBase + int(i)*compressedSegmentDescSize
		descs[i] = segDesc{
			lowMz:       math.Float64frombits(binary.LittleEndian.Uint64(window[off:])),
			tick:        math.Float64frombits(binary.LittleEndian.Uint64(window[off+8:])),
			packetCount: binary.LittleEndian.Uint32(window[off+16:]),
			dataPos:     binary.LittleEndian.Uint32(window[off+20:]),
		}
	}

	segments := make([]Segment, 0, segCount)
	profile := make([]Peak, 0)

	for _, d := range descs {
		peaks := make([]Peak, 0, d.packetCount)
		cursor := int(d.dataPos)
		tickIndex := 0

		for wordsRead := uint32(0); wordsRead < d.packetCount; wordsRead++ {
			if cursor+4 > len(window) {
				return DecodedScan{}, errors.New("compressed profile packed word stream truncated")
			}
			word := binary.LittleEndian.Uint32(window[cursor:])
			cursor += 4

			if word&packedWordPresenceBit != 0 {
				scale := (word >> packedWordScaleShift) & packedWordScaleMask
				mag := word & packedWordMagMask
				intensity := float64(mag) * math.Pow(8, float64(scale))
				mz := d.lowMz + float64(tickIndex)*d.tick
				peaks = append(peaks, Peak{MZ: mz, Intensity: intensity})
				tickIndex++
				continue
			}

			runLen := int(word & packedWordRunLenMask)
			if smoothZeroRuns {
				edge := runLen
				if edge > maxZeroSmoothSamples {
					edge = maxZeroSmoothSamples
				}
				for i := 0; i < edge; i++ {
					mz := d.lowMz + float64(tickIndex+i)*d.tick
					peaks = append(peaks, Peak{MZ: mz, Intensity: 0})
				}
			}
			tickIndex += runLen
		}

		highMz := d.lowMz
		if tickIndex > 0 {
			highMz = d.lowMz + float64(tickIndex-1)*d.tick
		}
		segments = append(segments, Segment{LowMZ: d.lowMz, HighMZ: highMz, Peaks: peaks})
		profile = append(profile, peaks...)
	}

	return DecodedScan{Profile: profile, Segments: segments}, nil
}
