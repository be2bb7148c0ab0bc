// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"bytes"
	"encoding/binary"
	"math"
)

// The functions in this file assemble synthetic, minimal-but-valid
// container byte streams entirely in memory rather than depend on a shipped
// binary fixture. No real vendor sample file is small enough (or
// redistributable) to ship in this repository, so every test here
// constructs its own tiny container byte-for-byte.

const testVersion = 62

const (
	testInstrumentModel = "Q Exactive HF"
	testSerial          = "Exactive Series slot #1"
	testSoftwareVersion = "3.1.2416.20"
	testSampleName      = "QC_Pool_01"
)

// testScanSpec describes one scan to embed in a synthetic container.
type testScanSpec struct {
	packetType  packetTag
	rt          float64
	tic         float64
	bpIntensity float64
	bpMass      float64
	lowMass     float64
	highMass    float64
	packet      []byte
	msLevel     uint8
	masterScan  int32
}

func writeWideString(buf *bytes.Buffer, s string) {
	runes := []rune(s)
	binary.Write(buf, binary.LittleEndian, uint32(len(runes)))
	for _, r := range runes {
		binary.Write(buf, binary.LittleEndian, uint16(r))
	}
}

func padTo(buf *bytes.Buffer, offset int) {
	for buf.Len() < offset {
		buf.WriteByte(0)
	}
}

// buildContainer assembles a complete synthetic container for the given
// scans and returns its bytes. Every scan gets a trivial 272-byte event
// record (MS level + no reactions + identity mass calibration) and a
// one-field trailer record carrying "Master Scan Number".
func buildContainer(scans []testScanSpec) []byte {
	buf := new(bytes.Buffer)

	// File header.
	binary.Write(buf, binary.LittleEndian, uint16(magicSignature))
	sig := new(bytes.Buffer)
	for _, c := range vendorSignature {
		binary.Write(sig, binary.LittleEndian, uint16(c))
	}
	buf.Write(sig.Bytes())
	binary.Write(buf, binary.LittleEndian, uint16(1))           // file type
	binary.Write(buf, binary.LittleEndian, uint16(testVersion)) // version
	padTo(buf, fileHeaderSize)

	// Vendor blob / file-info signature.
	buf.WriteString(fileInfoSignature)

	const ctrlOffset = 1 << 14 // 16384
	const scanIndexBase = 1 << 16
	const stride = uint32(88)
	const sentinel = uint32(0xFFFFFFFF) // chosen so a misaligned stride probe
	// reading these bytes as part of a float64 lands in the NaN/Inf
	// exponent range, defeating the 72/80-byte candidate strides.

	// Controller table: one MS controller, then the terminator slot.
	binary.Write(buf, binary.LittleEndian, int32(DeviceMS))
	binary.Write(buf, binary.LittleEndian, int32(0))
	binary.Write(buf, binary.LittleEndian, int64(ctrlOffset))
	binary.Write(buf, binary.LittleEndian, int32(DeviceNone))
	binary.Write(buf, binary.LittleEndian, int32(0))
	binary.Write(buf, binary.LittleEndian, int64(0))

	// Sample/instrument identification block, immediately following the
	// controller table's terminator slot.
	writeWideString(buf, testInstrumentModel)
	writeWideString(buf, testSerial)
	writeWideString(buf, testSoftwareVersion)
	writeWideString(buf, testSampleName)

	nScans := len(scans)
	eventArrayBase := uint32(scanIndexBase) + uint32(nScans)*stride
	packetBase := eventArrayBase + uint32(nScans)*scanEventFixedSize

	// Run header: scan-count pair then the seven-address block.
	padTo(buf, ctrlOffset+int(scanCountDisplacement))
	binary.Write(buf, binary.LittleEndian, int32(1))
	binary.Write(buf, binary.LittleEndian, int32(nScans))
	padTo(buf, ctrlOffset+int(runHeaderAddrDisplacement))
	binary.Write(buf, binary.LittleEndian, int64(scanIndexBase))   // ScanIndexAddr
	binary.Write(buf, binary.LittleEndian, int64(packetBase))      // PacketBaseAddr
	binary.Write(buf, binary.LittleEndian, int64(0))                // StatusLogAddr
	binary.Write(buf, binary.LittleEndian, int64(0))                // ErrorLogAddr
	binary.Write(buf, binary.LittleEndian, int64(ctrlOffset))       // SelfAddr
	binary.Write(buf, binary.LittleEndian, int64(eventArrayBase))   // EventStreamAddr
	// TrailerStreamAddr is filled in below, once packet sizes are known.
	trailerAddrFieldOffset := buf.Len()
	binary.Write(buf, binary.LittleEndian, int64(0))

	// Trailer field-descriptor list, placed just ahead of the scan index so
	// locateTrailerLayout's backward probe finds it.
	fieldNames := []string{
		"Master Scan Number", "Ion Injection Time (ms)", "Elapsed Scan Time (sec)",
		"API Source CID Energy", "Micro Scan Count", "Scan Segment",
		"Scan Event", "Charge State", "Monoisotopic M/Z", "HCD Energy",
	}
	fieldTypes := []FieldType{
		FieldInteger, FieldDouble, FieldDouble,
		FieldDouble, FieldInteger, FieldInteger,
		FieldInteger, FieldInteger, FieldDouble, FieldDouble,
	}
	descBuf := new(bytes.Buffer)
	for i, name := range fieldNames {
		descBuf.WriteByte(byte(fieldTypes[i]))
		writeWideString(descBuf, name)
	}
	descStart := scanIndexBase - len(descBuf.Bytes()) - 4 - 64
	padTo(buf, descStart)
	binary.Write(buf, binary.LittleEndian, uint32(len(fieldNames)))
	buf.Write(descBuf.Bytes())

	recordSize := uint32(0)
	for _, t := range fieldTypes {
		recordSize += fixedFieldWidth(t)
	}

	// Scan index. Every record is stride (88) bytes: the fields the real
	// parser reads, a 4-byte reserved gap before the retention-time field,
	// and a trailing cycle-number word.
	padTo(buf, scanIndexBase)
	for i, s := range scans {
		recordStart := buf.Len()
		binary.Write(buf, binary.LittleEndian, sentinel)    // trailer index
		binary.Write(buf, binary.LittleEndian, uint16(sentinel)) // event index
		binary.Write(buf, binary.LittleEndian, uint16(sentinel)) // segment
		binary.Write(buf, binary.LittleEndian, uint32(i+1))      // scan number (must stay dense)
		binary.Write(buf, binary.LittleEndian, uint32(s.packetType))
		binary.Write(buf, binary.LittleEndian, sentinel) // packet count (unused by decoders here)
		binary.Write(buf, binary.LittleEndian, sentinel) // reserved gap before RT
		binary.Write(buf, binary.LittleEndian, s.rt)
		binary.Write(buf, binary.LittleEndian, s.tic)
		binary.Write(buf, binary.LittleEndian, s.bpIntensity)
		binary.Write(buf, binary.LittleEndian, s.bpMass)
		binary.Write(buf, binary.LittleEndian, s.lowMass)
		binary.Write(buf, binary.LittleEndian, s.highMass)
		binary.Write(buf, binary.LittleEndian, int64(0)) // data offset, patched below
		binary.Write(buf, binary.LittleEndian, sentinel) // cycle number
		padTo(buf, recordStart+int(stride))
	}

	// Event records.
	padTo(buf, int(eventArrayBase))
	for _, s := range scans {
		start := buf.Len()
		buf.WriteByte(s.msLevel)
		buf.WriteByte(0) // polarity
		buf.WriteByte(byte(AnalyzerFTMS))
		buf.WriteByte(0) // dependency flag
		binary.Write(buf, binary.LittleEndian, uint32(0)) // reaction count
		padTo(buf, start+int(scanEventFixedSize)-32)
		for _, c := range [4]float64{0, 0, 0, 1} { // identity-ish calibration (mz == frequency bucket index here)
			binary.Write(buf, binary.LittleEndian, c)
		}
		padTo(buf, start+int(scanEventFixedSize))
	}

	// Packet payloads, recording each scan's data offset relative to the
	// packet base.
	padTo(buf, int(packetBase))
	dataOffsets := make([]uint32, nScans)
	for i, s := range scans {
		dataOffsets[i] = uint32(buf.Len()) - packetBase
		buf.Write(s.packet)
	}
	trailerStreamBase := uint32(buf.Len())

	// Trailer records: Master Scan Number is the only field this builder
	// populates meaningfully; the rest read as zero.
	for _, s := range scans {
		recBuf := make([]byte, recordSize)
		binary.LittleEndian.PutUint32(recBuf[0:4], uint32(s.masterScan))
		buf.Write(recBuf)
	}

	out := buf.Bytes()

	// Patch the forward-referenced offsets now that every section's
	// absolute position is known.
	binary.LittleEndian.PutUint64(out[trailerAddrFieldOffset:], uint64(trailerStreamBase))
	for i := range scans {
		off := scanIndexBase + i*int(stride) + 72 // dataOffset field position
		binary.LittleEndian.PutUint64(out[off:], uint64(dataOffsets[i]))
	}

	return out
}

// centroidPacket builds a tag-0x14 ion-trap centroid packet from (mz,
// intensity) pairs, with no saturation/reference flags set.
func centroidPacket(peaks []Peak) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(peaks)))
	for _, p := range peaks {
		binary.Write(buf, binary.LittleEndian, p.MZ)
		binary.Write(buf, binary.LittleEndian, float32(p.Intensity))
		binary.Write(buf, binary.LittleEndian, uint32(0))
	}
	return buf.Bytes()
}

func mustHandle(data []byte) *Handle {
	h, err := OpenBytes(data, &Options{Logger: NopLogger()})
	if err != nil {
		panic(err)
	}
	return h
}

func nearlyEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
