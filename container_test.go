// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"errors"
	"testing"
)

func TestParseFileHeaderAcceptsSupportedVersion(t *testing.T) {
	data := buildContainer(nil)
	h := &Handle{src: &ownedBuffer{data: data}}
	if err := h.parseFileHeader(); err != nil {
		t.Fatalf("parseFileHeader() failed: %v", err)
	}
	if h.header.Magic != magicSignature {
		t.Fatalf("Magic = %#x; want %#x", h.header.Magic, magicSignature)
	}
	if h.header.Signature != vendorSignature {
		t.Fatalf("Signature = %q; want %q", h.header.Signature, vendorSignature)
	}
	if h.header.Version != testVersion {
		t.Fatalf("Version = %d; want %d", h.header.Version, testVersion)
	}
}

func TestParseFileHeaderRejectsBadMagic(t *testing.T) {
	data := buildContainer(nil)
	data[0] = 0x00
	data[1] = 0x00
	h := &Handle{src: &ownedBuffer{data: data}}
	if err := h.parseFileHeader(); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("parseFileHeader() = %v; want ErrUnknownFormat", err)
	}
}

func TestParseFileHeaderRejectsUnsupportedVersion(t *testing.T) {
	data := buildContainer(nil)
	data[20] = byte(minSupportedVersion - 1)
	data[21] = 0
	h := &Handle{src: &ownedBuffer{data: data}}
	if err := h.parseFileHeader(); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("parseFileHeader() = %v; want ErrUnsupportedVersion", err)
	}
}

func TestParseFileHeaderRejectsTruncatedFile(t *testing.T) {
	data := buildContainer(nil)[:fileHeaderSize-1]
	h := &Handle{src: &ownedBuffer{data: data}}
	var boundsErr *BoundsError
	if err := h.parseFileHeader(); !errors.As(err, &boundsErr) {
		t.Fatalf("parseFileHeader() = %v; want *BoundsError", err)
	}
}

func TestLocateFileInfoFindsSignature(t *testing.T) {
	data := buildContainer(nil)
	h := &Handle{src: &ownedBuffer{data: data}}
	if err := h.parseFileHeader(); err != nil {
		t.Fatalf("parseFileHeader() failed: %v", err)
	}
	off, err := h.locateFileInfo()
	if err != nil {
		t.Fatalf("locateFileInfo() failed: %v", err)
	}
	if off < vendorBlobScanStart {
		t.Fatalf("locateFileInfo() = %d; want >= %d", off, vendorBlobScanStart)
	}
}

func TestLocateFileInfoFailsWithinCap(t *testing.T) {
	data := make([]byte, fileHeaderSize+100)
	h := &Handle{src: &ownedBuffer{data: data}}
	if _, err := h.locateFileInfo(); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("locateFileInfo() = %v; want ErrUnknownFormat", err)
	}
}
