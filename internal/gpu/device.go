// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// ErrNoDevice is returned when no usable GPU adapter is found.
var ErrNoDevice = errors.New("gpu: no GPU adapter available")

// ownedDevice is a device the package opened itself.
type ownedDevice struct {
	instance hal.Instance
	device   hal.Device
}

func (o *ownedDevice) destroy() {
	if o.device != nil {
		o.device.Destroy()
	}
	if o.instance != nil {
		o.instance.Destroy()
	}
}

// NewDevice opens the first discrete or integrated GPU on the Vulkan
// backend, falling back to any adapter, and wraps it. Close releases
// the device.
func NewDevice() (*Adapter, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not registered", ErrNoDevice)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoDevice
	}
	selected := &adapters[0]
	for i := range adapters {
		t := adapters[i].Info.DeviceType
		if t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	limits := selected.Capabilities.Limits
	open, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open %s: %w", selected.Info.Name, err)
	}
	a, err := NewAdapter(open.Device, open.Queue, &limits)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	a.owner = &ownedDevice{instance: instance, device: open.Device}
	slogger().Info("gpu: device opened", "adapter", selected.Info.Name, "type", selected.Info.DeviceType,
		"storage_offset_alignment", limits.MinStorageBufferOffsetAlignment)
	return a, nil
}
