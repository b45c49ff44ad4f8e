// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpucore provides shared GPU abstractions for the exposure passes.
//
// This package defines the [GPUAdapter] interface, which abstracts over
// the backends the auto-exposure passes can run on:
//   - gogpu/wgpu (Pure Go WebGPU via HAL)
//   - the CPU reference executor used by tests and headless tools
//
// # Architecture
//
// The pass orchestration (layouts, pipeline cache, per-view state) is
// written once against [GPUAdapter], while thin adapters translate
// between the interface and specific backend APIs.
//
//	        +----------------------+
//	        |     autoexposure     |
//	        | (passes, view state) |
//	        +----------+-----------+
//	                   |
//	       +-----------+-----------+
//	       |                       |
//	+------v-------+       +-------v------+
//	| wgpu adapter |       | CPU executor |
//	| (hal.Device) |       |   (kernel)   |
//	+--------------+       +--------------+
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.).
// The [GPUAdapter] interface provides creation and destruction methods for
// each resource type. Adapters are responsible for tracking the mapping
// between IDs and actual GPU resources.
//
// # Layout Validation
//
// [ValidateLayout] checks a bind group layout for the structural rules
// every backend enforces (unique bindings, sane sizes, dynamic offsets only
// on buffers). Backends call it before creating native objects so that a
// malformed layout fails the same way everywhere.
package gpucore
