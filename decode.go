// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

// packetTag identifies the wire encoding of one scan's peak packet. The
// dispatch table below is a closed switch over this small set of tags, not
// an open/registry-based dispatch, so it is amenable to exhaustive-match
// review.
type packetTag uint32

const (
	packetIonTrapCentroid  packetTag = 0x14
	packetFTCentroid       packetTag = 0x15
	packetProfileCurrent   packetTag = 0x16
	packetProfileCompressed packetTag = 0x17
	packetProfileStdAccuracy packetTag = 0x18
)

// Peak is one (m/z, intensity) sample, whether a detected centroid or a
// profile sample. Intensity is always widened to f64 on output even when
// the wire format stores f32 or an integer-scaled value.
type Peak struct {
	MZ        float64
	Intensity float64
}

// Segment is one contiguous m/z range of a profile or label-array packet.
type Segment struct {
	LowMZ  float64
	HighMZ float64
	Peaks  []Peak
}

// PrecursorInfo describes the isolation and fragmentation applied before an
// MSn scan, derived from the scan event's reaction list.
type PrecursorInfo struct {
	Mz              float64
	IsolationWidth  float64
	CollisionEnergy float64
	Activation      ActivationKind
}

// DecodedScan is the caller-owned result of decoding one scan's packet
// bytes. It is never cached by the reader; every call to Scan(n) produces a
// fresh value.
type DecodedScan struct {
	ScanNumber    int
	MSLevel       MSLevel
	RetentionTime float64
	Centroids     []Peak
	Profile       []Peak
	Segments      []Segment
	Precursor     *PrecursorInfo
	FilterString  string

	// SaturatedMask/ReferenceMask are optional parallel bitsets, one bit per
	// entry in Profile (or, for centroid packets, per entry in Centroids),
	// present only for decoders that carry saturation/reference flags.
	SaturatedMask bitset
	ReferenceMask bitset
}

// bitset is a minimal, allocation-light bit vector used to carry optional
// per-peak flags without widening every Peak with two rarely-used bools.
type bitset []byte

func newBitset(n int) bitset {
	return make(bitset, (n+7)/8)
}

func (b bitset) set(i int) {
	if i/8 >= len(b) {
		return
	}
	b[i/8] |= 1 << uint(i%8)
}

func (b bitset) get(i int) bool {
	if i/8 >= len(b) {
		return false
	}
	return b[i/8]&(1<<uint(i%8)) != 0
}

// DecodeOptions configures scan-decoder behavior. SmoothZeroRuns controls
// the compressed-profile decoder's optional zero-sample reconstruction,
// default false (skip zeros) per spec.
type DecodeOptions struct {
	SmoothZeroRuns bool
}

// decodeScan dispatches on the scan index entry's packet-type tag to the
// matching decoder. It never allocates beyond the output peak/segment
// slices.
func decodeScan(entry ScanIndexEntry, window []byte, event ScanEventPreamble, opts DecodeOptions) (DecodedScan, error) {
	var scan DecodedScan
	var err error

	switch packetTag(entry.PacketType) {
	case packetIonTrapCentroid:
		scan, err = decodeIonTrapCentroid(window)
	case packetFTCentroid:
		scan, err = decodeFTCentroid(window)
	case packetProfileCurrent:
		scan, err = decodeProfileCurrent(window)
	case packetProfileCompressed:
		scan, err = decodeProfileCompressed(window, opts.SmoothZeroRuns)
	case packetProfileStdAccuracy:
		scan, err = decodeProfileStdAccuracy(window, event.MassCalibration)
	default:
		return DecodedScan{}, &DecodeError{
			Scan:   int(entry.ScanNumber),
			Reason: "unrecognized packet type tag",
		}
	}
	if err != nil {
		return DecodedScan{}, &DecodeError{Scan: int(entry.ScanNumber), Reason: err.Error()}
	}

	scan.ScanNumber = int(entry.ScanNumber)
	scan.RetentionTime = entry.RetentionTime
	scan.MSLevel = event.MSLevel
	if event.MSLevel > Ms1 && len(event.Reactions) > 0 {
		r := event.Reactions[len(event.Reactions)-1]
		scan.Precursor = &PrecursorInfo{
			Mz:              r.PrecursorMz,
			IsolationWidth:  r.IsolationWidth,
			CollisionEnergy: r.CollisionEnergy,
			Activation:      r.Activation,
		}
	}
	return scan, nil
}
