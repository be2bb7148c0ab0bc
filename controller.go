// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

// DeviceType identifies the kind of virtual controller/device a run header
// belongs to.
//
// This is the authoritative enumeration. Some decompiled copies of the
// vendor SDK list MS as device-type 2; that table is wrong for every
// version this reader has observed and must never be used here.
type DeviceType int32

const (
	DeviceNone     DeviceType = -1
	DeviceMS       DeviceType = 0
	DeviceMSAnalog DeviceType = 1
	DeviceAnalog   DeviceType = 2
	DeviceUV       DeviceType = 3
	DevicePDA      DeviceType = 4
	DeviceOther    DeviceType = 5
)

// maxControllers bounds the fixed-capacity virtual-controller array read
// from the file-info structure.
const maxControllers = 64

// controllerEntrySize is the on-disk size of one ControllerDescriptor:
// i32 device-type, i32 device-index, i64 offset.
const controllerEntrySize = 16

// ControllerDescriptor names one virtual controller/device and the absolute
// offset of its run header. The offset is authoritative even when the run
// header's own self-address field reads zero.
type ControllerDescriptor struct {
	DeviceType  DeviceType
	DeviceIndex int32
	Offset      int64
}

// parseControllerTable reads the fixed-capacity virtual-controller array
// starting at fileInfoOffset, stopping at the first slot whose device-type
// is DeviceNone and whose offset is zero (the table's terminator) or after
// maxControllers entries.
func (h *Handle) parseControllerTable(fileInfoOffset uint32) ([]ControllerDescriptor, error) {
	base := fileInfoOffset + uint32(len(fileInfoSignature))
	controllers := make([]ControllerDescriptor, 0, maxControllers)

	for i := uint32(0); i < maxControllers; i++ {
		off := base + i*controllerEntrySize

		devType, err := h.src.ReadInt32(off)
		if err != nil {
			return nil, err
		}
		devIdx, err := h.src.ReadInt32(off + 4)
		if err != nil {
			return nil, err
		}
		vciOffset, err := h.src.ReadInt64(off + 8)
		if err != nil {
			return nil, err
		}

		dt := DeviceType(devType)
		if dt == DeviceNone && vciOffset == 0 {
			break
		}

		controllers = append(controllers, ControllerDescriptor{
			DeviceType:  dt,
			DeviceIndex: devIdx,
			Offset:      vciOffset,
		})
	}

	return controllers, nil
}

// selectPrimaryMSController returns the controller with DeviceType == MS
// and the smallest DeviceIndex. Non-MS controllers are reported as existing
// (callers can enumerate h.controllers) but are never resolved further,
// per the non-goal of supporting non-mass-spectrometer controllers beyond
// existence reporting.
func selectPrimaryMSController(controllers []ControllerDescriptor) (ControllerDescriptor, error) {
	var best *ControllerDescriptor
	for i := range controllers {
		c := &controllers[i]
		if c.DeviceType != DeviceMS {
			continue
		}
		if best == nil || c.DeviceIndex < best.DeviceIndex {
			best = c
		}
	}
	if best == nil {
		return ControllerDescriptor{}, ErrNoMSController
	}
	return *best, nil
}
