// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"errors"
	"testing"
)

func openThroughControllerTable(t *testing.T, data []byte) (*Handle, []ControllerDescriptor) {
	t.Helper()
	h := &Handle{src: &ownedBuffer{data: data}}
	if err := h.parseFileHeader(); err != nil {
		t.Fatalf("parseFileHeader() failed: %v", err)
	}
	off, err := h.locateFileInfo()
	if err != nil {
		t.Fatalf("locateFileInfo() failed: %v", err)
	}
	controllers, err := h.parseControllerTable(off)
	if err != nil {
		t.Fatalf("parseControllerTable() failed: %v", err)
	}
	return h, controllers
}

func TestParseControllerTableFindsMSController(t *testing.T) {
	data := buildContainer([]testScanSpec{{packetType: packetIonTrapCentroid, rt: 0, tic: 1, lowMass: 70, highMass: 1000, packet: centroidPacket(nil)}})
	_, controllers := openThroughControllerTable(t, data)

	if len(controllers) != 1 {
		t.Fatalf("len(controllers) = %d; want 1", len(controllers))
	}
	if controllers[0].DeviceType != DeviceMS {
		t.Fatalf("DeviceType = %v; want DeviceMS", controllers[0].DeviceType)
	}
}

func TestSelectPrimaryMSControllerPicksSmallestIndex(t *testing.T) {
	controllers := []ControllerDescriptor{
		{DeviceType: DeviceUV, DeviceIndex: 0, Offset: 10},
		{DeviceType: DeviceMS, DeviceIndex: 1, Offset: 20},
		{DeviceType: DeviceMS, DeviceIndex: 0, Offset: 30},
	}
	best, err := selectPrimaryMSController(controllers)
	if err != nil {
		t.Fatalf("selectPrimaryMSController() failed: %v", err)
	}
	if best.Offset != 30 {
		t.Fatalf("selected controller offset = %d; want 30 (device-index 0)", best.Offset)
	}
}

func TestSelectPrimaryMSControllerErrorsWithoutMS(t *testing.T) {
	controllers := []ControllerDescriptor{{DeviceType: DeviceUV, DeviceIndex: 0, Offset: 10}}
	if _, err := selectPrimaryMSController(controllers); !errors.Is(err, ErrNoMSController) {
		t.Fatalf("selectPrimaryMSController() = %v; want ErrNoMSController", err)
	}
}

// DeviceType == 2 is a known-wrong decompiled alternate encoding (spec
// §4.3); confirm our enumeration still places Analog at 2, not MS.
func TestDeviceTypeEnumerationMatchesSpec(t *testing.T) {
	if DeviceMS != 0 {
		t.Fatalf("DeviceMS = %d; want 0", DeviceMS)
	}
	if DeviceAnalog != 2 {
		t.Fatalf("DeviceAnalog = %d; want 2 (not MS)", DeviceAnalog)
	}
}
