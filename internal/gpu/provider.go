// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// ErrProviderNotHAL is returned when a DeviceProvider does not expose
// its HAL device and queue.
var ErrProviderNotHAL = errors.New("gpu: provider does not expose HAL types")

// halProvider is implemented by gogpu device providers that expose the
// underlying hal.Device and hal.Queue.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider shares the device of a host application, e.g. a gogpu
// window. The provider keeps ownership of the device.
func NewFromProvider(p gpucontext.DeviceProvider) (*Adapter, error) {
	if p == nil {
		return nil, ErrProviderNotHAL
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, ErrProviderNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, ErrProviderNotHAL
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, ErrProviderNotHAL
	}
	a, err := NewAdapter(device, queue, nil)
	if err != nil {
		return nil, err
	}
	if info := p.AdapterInfo(); info.Name != "" {
		slogger().Info("gpu: sharing provider device", "adapter", info.Name)
	}
	return a, nil
}
