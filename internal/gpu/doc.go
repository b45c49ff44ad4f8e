// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu implements gpucore.GPUAdapter on a gogpu/wgpu HAL device.
//
// WGSL is compiled to SPIR-V with gogpu/naga. Compute passes are recorded
// as command lists and replayed into a single hal command encoder on
// Submit; command buffers are freed once the queue reports them done.
//
// The adapter either opens its own Vulkan device (NewDevice), wraps an
// existing device and queue (NewAdapter), or borrows them from a
// gpucontext.DeviceProvider (NewFromProvider).
//
// Build with -tags nogpu to leave this package out.
package gpu
