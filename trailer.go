// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import "math"

// FieldType is the wire type of one trailer (generic-data-header) field
// descriptor.
type FieldType byte

const (
	FieldSeparator   FieldType = 0x00
	FieldBoolean     FieldType = 0x03
	FieldFlag        FieldType = 0x04
	FieldInteger     FieldType = 0x08
	FieldDouble      FieldType = 0x0B
	FieldAsciiString FieldType = 0x0C
)

func (t FieldType) valid() bool {
	switch t {
	case FieldSeparator, FieldBoolean, FieldFlag, FieldInteger, FieldDouble, FieldAsciiString:
		return true
	default:
		return false
	}
}

// fieldDescriptor is one entry of the generic-data-header descriptor list,
// as read off disk before offsets are computed.
type fieldDescriptor struct {
	Label      string
	Type       FieldType
	ByteLength uint32
}

// fieldOffset is the derived, constant-time-lookup location of one field
// within a single trailer record.
type fieldOffset struct {
	Offset     uint32
	Type       FieldType
	ByteLength uint32
}

// validityMarkerLabel is the single-code-unit label (U+0001) marking the
// optional "first-byte valid marker" descriptor, whose payload is a string
// of tab characters acting as a validity bitmap for subsequent fields.
const validityMarkerLabel = ""

// TrailerLayout is the eagerly parsed, one-pass field-offset cache built
// from the generic-data-header descriptor list. Accessing a named field for
// any scan is then a single bounds-checked read at
// trailerArrayBase + (scan-1)*RecordSize + offsets[label].Offset for a
// 1-based scan number.
type TrailerLayout struct {
	fields     []fieldDescriptor
	offsets    map[string]fieldOffset
	RecordSize uint32

	// validityOffset/validityLen locate the validity-bitmap payload within
	// a record, when the optional marker descriptor is present. A bitmap
	// byte of '\t' (tab) at index i means field i (in declaration order,
	// excluding the marker itself) is valid.
	hasValidityMask bool
	validityOffset  uint32
	validityLen     uint32
}

const (
	trailerCountMin       = 10
	trailerCountMax       = 300
	trailerBackscanWindow = 20 * 1024
)

// locateTrailerLayout searches the trailerBackscanWindow bytes that precede
// scanIndexStart, walking forward one byte at a time, for a u32
// descriptor count in [trailerCountMin, trailerCountMax] immediately
// followed by that many descriptors whose type codes are all in the
// allowed set. This is a scan-for-signature technique over a bounded
// window ending at the scan index: generalized from
// "decrypt until a known constant reappears" to "probe until a well-formed
// descriptor list appears". The first match (scanning from the window start
// forward) wins.
func (h *Handle) locateTrailerLayout(scanIndexStart uint32) (TrailerLayout, error) {
	windowStart := uint32(0)
	if scanIndexStart > trailerBackscanWindow {
		windowStart = scanIndexStart - trailerBackscanWindow
	}

	for off := windowStart; off < scanIndexStart; off++ {
		count, err := h.src.ReadUint32(off)
		if err != nil {
			continue
		}
		if count < trailerCountMin || count > trailerCountMax {
			continue
		}

		layout, ok := h.tryParseDescriptorList(off+4, count)
		if ok {
			return layout, nil
		}
	}

	return TrailerLayout{}, ErrMissingRunHeader
}

// tryParseDescriptorList attempts to parse count descriptors starting at
// off, returning ok=false at the first invalid type code or bounds error
// without mutating any shared state.
func (h *Handle) tryParseDescriptorList(off uint32, count uint32) (TrailerLayout, bool) {
	fields := make([]fieldDescriptor, 0, count)
	cursor := off

	for i := uint32(0); i < count; i++ {
		typByte, err := h.src.ReadUint8(cursor)
		if err != nil {
			return TrailerLayout{}, false
		}
		typ := FieldType(typByte)
		if !typ.valid() {
			return TrailerLayout{}, false
		}
		cursor++

		label, labelBytes, err := h.src.ReadWideString(cursor)
		if err != nil {
			return TrailerLayout{}, false
		}
		cursor += labelBytes

		var byteLen uint32
		if typ == FieldAsciiString {
			byteLen, err = h.src.ReadUint32(cursor)
			if err != nil {
				return TrailerLayout{}, false
			}
			cursor += 4
		} else {
			byteLen = fixedFieldWidth(typ)
		}

		fields = append(fields, fieldDescriptor{Label: label, Type: typ, ByteLength: byteLen})
	}

	return buildTrailerLayout(fields), true
}

// fixedFieldWidth returns the on-disk byte width of a non-string field.
func fixedFieldWidth(t FieldType) uint32 {
	switch t {
	case FieldBoolean, FieldFlag, FieldInteger:
		return 4
	case FieldDouble:
		return 8
	default:
		return 0
	}
}

// buildTrailerLayout computes the byte offset of every field within one
// trailer record and the total record size, and recognizes the optional
// validity-marker descriptor.
func buildTrailerLayout(fields []fieldDescriptor) TrailerLayout {
	layout := TrailerLayout{
		fields:  fields,
		offsets: make(map[string]fieldOffset, len(fields)),
	}

	var cursor uint32
	for _, f := range fields {
		if f.Label == validityMarkerLabel {
			layout.hasValidityMask = true
			layout.validityOffset = cursor
			layout.validityLen = f.ByteLength
			cursor += f.ByteLength
			continue
		}
		layout.offsets[f.Label] = fieldOffset{Offset: cursor, Type: f.Type, ByteLength: f.ByteLength}
		cursor += f.ByteLength
	}
	layout.RecordSize = cursor
	return layout
}

// fieldValid reports whether the field at validity-bitmap index idx is
// marked valid in record. When no validity mask was discovered, every
// field is assumed valid.
func (tl TrailerLayout) fieldValid(record []byte, idx int) bool {
	if !tl.hasValidityMask {
		return true
	}
	if idx < 0 || uint32(idx) >= tl.validityLen {
		return true
	}
	b := record[tl.validityOffset+uint32(idx)]
	return b == '\t'
}

// Trailer reads every discovered field for scan n into a label->value map.
// "Master Scan Number" and any other Integer, Boolean or Flag field decode
// to int32, Double to float64 and AsciiString to string; Separator fields
// are skipped.
func (h *Handle) Trailer(scan int) (map[string]any, error) {
	if scan < 1 || scan > len(h.scanIndex) {
		return nil, &OutOfRangeError{Scan: scan, NScans: len(h.scanIndex)}
	}

	recordOff := uint32(h.trailerStreamBase) + uint32(scan-1)*h.trailerLayout.RecordSize
	record, err := h.src.ReadBytes(recordOff, h.trailerLayout.RecordSize)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(h.trailerLayout.offsets))
	i := 0
	for _, f := range h.trailerLayout.fields {
		if f.Label == validityMarkerLabel {
			continue
		}
		fo := h.trailerLayout.offsets[f.Label]
		if !h.trailerLayout.fieldValid(record, i) {
			i++
			continue
		}
		i++

		switch fo.Type {
		case FieldSeparator:
			continue
		case FieldBoolean, FieldFlag, FieldInteger:
			out[f.Label] = int32(leUint32(record[fo.Offset:]))
		case FieldDouble:
			out[f.Label] = leFloat64(record[fo.Offset:])
		case FieldAsciiString:
			end := fo.Offset + fo.ByteLength
			if end > uint32(len(record)) {
				end = uint32(len(record))
			}
			out[f.Label] = trimNulString(record[fo.Offset:end])
		}
	}
	return out, nil
}

// TrailerField reads a single named field for scan n, returning
// TrailerFieldAbsentError if the label was never discovered.
func (h *Handle) TrailerField(scan int, label string) (any, error) {
	if _, known := h.trailerLayout.offsets[label]; !known {
		return nil, &TrailerFieldAbsentError{Label: label}
	}
	fields, err := h.Trailer(scan)
	if err != nil {
		return nil, err
	}
	return fields[label], nil
}

func leUint32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leFloat64(b []byte) float64 {
	if len(b) < 8 {
		return 0
	}
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(b[i]) << (8 * i)
	}
	return math.Float64frombits(bits)
}

func trimNulString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// masterScanNumberLabel is the trailer field whose value is 0 iff a scan is
// MS1.
const masterScanNumberLabel = "Master Scan Number"
