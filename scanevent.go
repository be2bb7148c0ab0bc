// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

// MSLevel classifies a scan's position in an MS^n fragmentation tree.
type MSLevel int

const (
	Ms1 MSLevel = iota + 1
	Ms2
	Ms3
	MsOther
)

func (l MSLevel) String() string {
	switch l {
	case Ms1:
		return "Ms1"
	case Ms2:
		return "Ms2"
	case Ms3:
		return "Ms3"
	default:
		return "Other"
	}
}

// msLevelFromByte decodes the scan-event preamble's raw MS-level byte:
// 0 => MS1, 1 => MS2, 2 => MS3, anything higher => MsOther.
func msLevelFromByte(b uint8) MSLevel {
	switch b {
	case 0:
		return Ms1
	case 1:
		return Ms2
	case 2:
		return Ms3
	default:
		return MsOther
	}
}

// Polarity is the detector polarity a scan was acquired in.
type Polarity uint8

const (
	PolarityPositive Polarity = 0
	PolarityNegative Polarity = 1
)

// Analyzer identifies the mass analyzer that produced a scan.
type Analyzer uint8

const (
	AnalyzerITMS Analyzer = iota
	AnalyzerTQMS
	AnalyzerSQMS
	AnalyzerTOFMS
	AnalyzerFTMS
	AnalyzerSector
)

// ActivationKind identifies the fragmentation method of one reaction.
type ActivationKind uint32

const (
	ActivationCID ActivationKind = iota
	ActivationHCD
	ActivationETD
	ActivationECD
	ActivationPQD
)

// ReactionRecord describes one precursor-selection/fragmentation step.
type ReactionRecord struct {
	PrecursorMz      float64
	IsolationWidth   float64
	CollisionEnergy  float64
	Activation       ActivationKind
	MultiActivation  bool
}

// ScanEventPreamble is the fixed, per-scan event record exposing
// acquisition-time metadata that does not live in the scan index.
type ScanEventPreamble struct {
	MSLevel         MSLevel
	Polarity        Polarity
	Analyzer        Analyzer
	DependencyFlag  bool
	Reactions       []ReactionRecord
	MassCalibration [4]float64
}

// scanEventFixedSize is the version-dependent byte width of one scan-event
// record for the current format version.
const scanEventFixedSize = 272

// scanEventReactionStride is the byte width of one ReactionRecord:
// f64 mz, f64 isolation width, f64 collision energy, u32 activation+flag.
const scanEventReactionStride = 28

const (
	scanEventMSLevelOffset    = 0
	scanEventPolarityOffset   = 1
	scanEventAnalyzerOffset   = 2
	scanEventDependencyOffset = 3
	scanEventReactionCountOff = 4
	scanEventReactionsOffset  = 8
	scanEventCalibrationTail  = 32 // 4 x f64, located at the fixed record's tail
)

// activationMultiBit marks "multiple activations" within the packed u32
// activation-kind field.
const activationMultiBit = 0x80000000

// deriveEventSize returns the per-scan event-record stride, cross-checked
// against (eventStreamEnd-eventStreamStart)/nScans per the design notes;
// the file is rejected if that quotient is not integral.
func deriveEventSize(streamStart, streamEnd int64, nScans int) (uint32, error) {
	if nScans == 0 {
		return scanEventFixedSize, nil
	}
	span := streamEnd - streamStart
	if span <= 0 || span%int64(nScans) != 0 {
		return 0, ErrMissingRunHeader
	}
	return uint32(span / int64(nScans)), nil
}

// parseScanEvent reads the fixed-width event record for scan s (1-based)
// from eventArrayBase using the locator-derived event size, decoding up to
// maxReactions reaction records.
func (h *Handle) parseScanEvent(scan int, eventArrayBase int64, eventSize uint32, maxReactions uint32) (ScanEventPreamble, error) {
	base := uint32(eventArrayBase) + uint32(scan-1)*eventSize

	levelByte, err := h.src.ReadUint8(base + scanEventMSLevelOffset)
	if err != nil {
		return ScanEventPreamble{}, err
	}
	polarityByte, err := h.src.ReadUint8(base + scanEventPolarityOffset)
	if err != nil {
		return ScanEventPreamble{}, err
	}
	analyzerByte, err := h.src.ReadUint8(base + scanEventAnalyzerOffset)
	if err != nil {
		return ScanEventPreamble{}, err
	}
	depByte, err := h.src.ReadUint8(base + scanEventDependencyOffset)
	if err != nil {
		return ScanEventPreamble{}, err
	}
	reactionCount, err := h.src.ReadUint32(base + scanEventReactionCountOff)
	if err != nil {
		return ScanEventPreamble{}, err
	}
	if reactionCount > maxReactions {
		reactionCount = maxReactions
	}

	reactions := make([]ReactionRecord, 0, reactionCount)
	for i := uint32(0); i < reactionCount; i++ {
		off := base + scanEventReactionsOffset + i*scanEventReactionStride
		if off+scanEventReactionStride > base+eventSize {
			break
		}
		mz, err := h.src.ReadFloat64(off)
		if err != nil {
			break
		}
		iso, err := h.src.ReadFloat64(off + 8)
		if err != nil {
			break
		}
		ce, err := h.src.ReadFloat64(off + 16)
		if err != nil {
			break
		}
		actRaw, err := h.src.ReadUint32(off + 24)
		if err != nil {
			break
		}
		reactions = append(reactions, ReactionRecord{
			PrecursorMz:     mz,
			IsolationWidth:  iso,
			CollisionEnergy: ce,
			Activation:      ActivationKind(actRaw &^ activationMultiBit),
			MultiActivation: actRaw&activationMultiBit != 0,
		})
	}

	var calib [4]float64
	calibOff := base + eventSize - scanEventCalibrationTail
	for i := 0; i < 4; i++ {
		v, err := h.src.ReadFloat64(calibOff + uint32(i)*8)
		if err != nil {
			break
		}
		calib[i] = v
	}

	return ScanEventPreamble{
		MSLevel:         msLevelFromByte(levelByte),
		Polarity:        Polarity(polarityByte),
		Analyzer:        Analyzer(analyzerByte),
		DependencyFlag:  depByte != 0,
		Reactions:       reactions,
		MassCalibration: calib,
	}, nil
}
