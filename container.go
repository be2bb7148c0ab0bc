// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

const (
	// fileHeaderSize is the fixed size of the container's leading header,
	// magic through the reserved description field.
	fileHeaderSize = 2402

	// magicSignature is the 16-bit magic every supported container begins
	// with.
	magicSignature = 0xA101

	// vendorSignature is the wide-character signature following the magic.
	vendorSignature = "Finnigan"

	// minSupportedVersion is the lowest format version this reader accepts.
	// Versions below this reject with ErrUnsupportedVersion; the legacy
	// pre-version-25 variant is explicitly out of scope.
	minSupportedVersion = 25

	// maxSupportedVersion is the highest format version this reader has
	// been validated against.
	maxSupportedVersion = 66

	// vendorBlobScanStart is the offset, 18 bytes before the end of the
	// 2402-byte file header, from which the walker begins its forward scan
	// for the file-info
	// signature. The vendor interchange blob between the header and the
	// file-info structure is variable-sized and NOT 4-byte aligned, so the
	// scan steps 2 bytes at a time.
	vendorBlobScanStart = 2384

	// vendorBlobSearchCap bounds how far past vendorBlobScanStart the walker
	// will look before giving up with ErrUnknownFormat.
	vendorBlobSearchCap = 16 * 1024

	// fileInfoSignature marks the start of the file-info structure that
	// holds the virtual controller table. It is a small ASCII tag embedded
	// in the vendor interchange blob.
	fileInfoSignature = "GenericFileInfo"
)

// FileHeader is the leading 2402-byte header every supported container
// begins with.
type FileHeader struct {
	Magic     uint16
	Signature string
	FileType  uint16
	Version   uint16
}

// parseFileHeader reads and validates the file header at offset 0. It never
// trusts the file to be large enough; a short file is rejected with
// *BoundsError before any field is interpreted.
func (h *Handle) parseFileHeader() error {
	if h.src.Len() < fileHeaderSize {
		return &BoundsError{Offset: 0, Need: fileHeaderSize, Have: h.src.Len()}
	}

	magic, err := h.src.ReadUint16(0)
	if err != nil {
		return err
	}
	if magic != magicSignature {
		return ErrUnknownFormat
	}

	sigBytes, err := h.src.ReadBytes(2, 16)
	if err != nil {
		return err
	}
	sig := decodeFixedWideString(sigBytes)
	if sig != vendorSignature {
		return ErrUnknownFormat
	}

	fileType, err := h.src.ReadUint16(18)
	if err != nil {
		return err
	}
	version, err := h.src.ReadUint16(20)
	if err != nil {
		return err
	}

	if version < minSupportedVersion {
		return ErrUnsupportedVersion
	}
	if version > maxSupportedVersion {
		h.addAnomaly("file header version exceeds the highest version this reader was validated against")
	}

	h.header = FileHeader{
		Magic:     magic,
		Signature: sig,
		FileType:  fileType,
		Version:   version,
	}
	return nil
}

// decodeFixedWideString decodes a fixed-width buffer of 16-bit little-endian
// code units, trimming at the first NUL code unit. Used for the fixed
// 8-code-unit "Finnigan" signature, which is not length-prefixed the way
// the trailer and metadata strings are.
func decodeFixedWideString(b []byte) string {
	out := make([]rune, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		lo, hi := b[i], b[i+1]
		cu := uint16(lo) | uint16(hi)<<8
		if cu == 0 {
			break
		}
		out = append(out, rune(cu))
	}
	return string(out)
}

// locateFileInfo scans forward from vendorBlobScanStart in 2-byte steps for
// the file-info structure signature, a bounded byte-signature scan over a
// capped window. It fails with
// ErrUnknownFormat when no candidate appears within vendorBlobSearchCap
// bytes of slack.
func (h *Handle) locateFileInfo() (uint32, error) {
	sig := []byte(fileInfoSignature)
	limit := vendorBlobScanStart + vendorBlobSearchCap
	if limit > h.src.Len() {
		limit = h.src.Len()
	}

	for off := uint32(vendorBlobScanStart); off+uint32(len(sig)) <= limit; off += 2 {
		window, err := h.src.ReadBytes(off, uint32(len(sig)))
		if err != nil {
			break
		}
		if string(window) == fileInfoSignature {
			return off, nil
		}
	}
	return 0, ErrUnknownFormat
}
