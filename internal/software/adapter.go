// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software implements gpucore.GPUAdapter on the CPU.
//
// It executes the two auto-exposure entry points with the reference
// kernels in internal/kernel, binding resources by their slot in the
// shared layout. Shader source is only checked for the entry point the
// pipeline names; nothing else is parsed.
package software

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/parallel"
)

// Errors returned by the adapter.
var (
	ErrUnknownResource   = errors.New("software: unknown resource")
	ErrEntryPointMissing = errors.New("software: entry point not found in shader")
	ErrUnsupported       = errors.New("software: unsupported")
	ErrOutOfBounds       = errors.New("software: access out of bounds")
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLayoutRejection makes CreateBindGroupLayout fail with err.
func WithLayoutRejection(err error) Option {
	return func(a *Adapter) { a.rejectLayouts = err }
}

// WithOffsetAlignment sets the reported dynamic offset alignment.
func WithOffsetAlignment(n uint32) Option {
	return func(a *Adapter) { a.alignment = n }
}

// WithWorkers runs histogram workgroups on n goroutines. n <= 0 uses
// GOMAXPROCS. Call Close to stop them.
func WithWorkers(n int) Option {
	return func(a *Adapter) { a.pool = parallel.NewPool(n) }
}

type buffer struct {
	data  []byte
	usage gpucore.BufferUsage
}

type texture struct {
	desc gpucore.TextureDesc
	data []byte
}

type pipeline struct {
	layout gpucore.PipelineLayoutID
	entry  string
}

type bindGroup struct {
	layout  gpucore.BindGroupLayoutID
	entries []gpucore.BindGroupEntry
}

// Adapter is a CPU implementation of gpucore.GPUAdapter.
type Adapter struct {
	alignment     uint32
	rejectLayouts error
	pool          *parallel.Pool

	nextID atomic.Uint64

	mu              sync.Mutex
	buffers         map[gpucore.BufferID]*buffer
	textures        map[gpucore.TextureID]*texture
	shaders         map[gpucore.ShaderModuleID]string
	layouts         map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc
	pipelineLayouts map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	pipelines       map[gpucore.ComputePipelineID]pipeline
	bindGroups      map[gpucore.BindGroupID]bindGroup
	pending         []*encoder
	stats           Stats
}

// Stats counts adapter activity.
type Stats struct {
	PipelinesCreated int
	PipelineFailures int
	Submits          int
	Dispatches       int
}

// New returns an empty CPU adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		alignment:       256,
		buffers:         make(map[gpucore.BufferID]*buffer),
		textures:        make(map[gpucore.TextureID]*texture),
		shaders:         make(map[gpucore.ShaderModuleID]string),
		layouts:         make(map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc),
		pipelineLayouts: make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		pipelines:       make(map[gpucore.ComputePipelineID]pipeline),
		bindGroups:      make(map[gpucore.BindGroupID]bindGroup),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) newID() uint64 { return a.nextID.Add(1) }

// Close stops the worker goroutines started by WithWorkers.
func (a *Adapter) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// Stats returns a snapshot of the activity counters.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// LiveObjects returns the number of resources not yet destroyed.
func (a *Adapter) LiveObjects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers) + len(a.textures) + len(a.shaders) + len(a.layouts) +
		len(a.pipelineLayouts) + len(a.pipelines) + len(a.bindGroups)
}

// SupportsCompute implements gpucore.GPUAdapter.
func (a *Adapter) SupportsCompute() bool { return true }

// MinStorageBufferOffsetAlignment implements gpucore.GPUAdapter.
func (a *Adapter) MinStorageBufferOffsetAlignment() uint32 { return a.alignment }

// CreateShaderModule stores the source.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if desc == nil || strings.TrimSpace(desc.WGSL) == "" {
		return gpucore.InvalidID, fmt.Errorf("software: empty shader source")
	}
	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaders[id] = desc.WGSL
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	delete(a.shaders, id)
	a.mu.Unlock()
}

// CreateBuffer allocates a zeroed buffer.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("software: buffer size %d", size)
	}
	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &buffer{data: make([]byte, size), usage: usage}
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	delete(a.buffers, id)
	a.mu.Unlock()
}

// WriteBuffer copies data into the buffer. Out-of-range writes are dropped.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok || offset+uint64(len(data)) > uint64(len(b.data)) {
		return
	}
	copy(b.data[offset:], data)
}

// ReadBuffer returns a copy of the requested range.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("%w: read %d+%d of %d", ErrOutOfBounds, offset, size, len(b.data))
	}
	return append([]byte(nil), b.data[offset:offset+size]...), nil
}

// CreateTexture allocates a zeroed texture.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: empty texture")
	}
	if desc.Dimension == gpucore.TextureDimension1D && desc.Height != 1 {
		return gpucore.InvalidID, fmt.Errorf("software: 1d texture with height %d", desc.Height)
	}
	switch desc.Format {
	case gpucore.TextureFormatR8Unorm, gpucore.TextureFormatR32Float, gpucore.TextureFormatRGBA32Float:
	default:
		return gpucore.InvalidID, fmt.Errorf("%w: texture format %d", ErrUnsupported, desc.Format)
	}
	id := gpucore.TextureID(a.newID())
	size := int(desc.Width) * int(desc.Height) * desc.Format.BytesPerTexel()
	a.mu.Lock()
	a.textures[id] = &texture{desc: *desc, data: make([]byte, size)}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture implements gpucore.GPUAdapter.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	delete(a.textures, id)
	a.mu.Unlock()
}

// WriteTexture replaces the texture contents.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	if len(data) != len(t.data) {
		return fmt.Errorf("%w: texture %d wants %d bytes, got %d", ErrOutOfBounds, id, len(t.data), len(data))
	}
	copy(t.data, data)
	return nil
}

// CreateBindGroupLayout validates and stores the layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if a.rejectLayouts != nil {
		return gpucore.InvalidID, a.rejectLayouts
	}
	if err := gpucore.ValidateLayout(desc); err != nil {
		return gpucore.InvalidID, err
	}
	cp := *desc
	cp.Entries = append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...)
	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.layouts[id] = &cp
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.layouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range layouts {
		if _, ok := a.layouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, l)
		}
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.pipelineLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline checks that the module defines the entry point
// and that the CPU executor knows it.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	src, ok := a.shaders[desc.ShaderModule]
	if !ok {
		a.stats.PipelineFailures++
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", ErrUnknownResource, desc.ShaderModule)
	}
	if _, ok := a.pipelineLayouts[desc.Layout]; !ok {
		a.stats.PipelineFailures++
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrUnknownResource, desc.Layout)
	}
	if !strings.Contains(src, "fn "+desc.EntryPoint+"(") {
		a.stats.PipelineFailures++
		return gpucore.InvalidID, fmt.Errorf("%w: %q", ErrEntryPointMissing, desc.EntryPoint)
	}
	if _, ok := kernels[desc.EntryPoint]; !ok {
		a.stats.PipelineFailures++
		return gpucore.InvalidID, fmt.Errorf("%w: entry point %q", ErrUnsupported, desc.EntryPoint)
	}
	id := gpucore.ComputePipelineID(a.newID())
	a.pipelines[id] = pipeline{layout: desc.Layout, entry: desc.EntryPoint}
	a.stats.PipelinesCreated++
	return id, nil
}

// DestroyComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	delete(a.pipelines, id)
	a.mu.Unlock()
}

// CreateBindGroup checks every layout entry is bound with a matching resource.
func (a *Adapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.layouts[layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, layout)
	}
	byBinding := make(map[uint32]gpucore.BindGroupEntry, len(entries))
	for _, e := range entries {
		byBinding[e.Binding] = e
	}
	for _, le := range l.Entries {
		e, ok := byBinding[le.Binding]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("software: binding %d not provided", le.Binding)
		}
		if le.Type.IsBuffer() {
			b, ok := a.buffers[e.Buffer]
			if !ok {
				return gpucore.InvalidID, fmt.Errorf("%w: buffer %d at binding %d", ErrUnknownResource, e.Buffer, le.Binding)
			}
			size := e.Size
			if size == 0 {
				size = uint64(len(b.data)) - e.Offset
			}
			if size < le.MinBindingSize || e.Offset+size > uint64(len(b.data)) {
				return gpucore.InvalidID, fmt.Errorf("%w: binding %d range %d+%d of %d (min %d)",
					ErrOutOfBounds, le.Binding, e.Offset, size, len(b.data), le.MinBindingSize)
			}
			continue
		}
		t, ok := a.textures[e.Texture]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: texture %d at binding %d", ErrUnknownResource, e.Texture, le.Binding)
		}
		if t.desc.Dimension != le.ViewDimension {
			return gpucore.InvalidID, fmt.Errorf("software: binding %d wants a %s texture, got %s",
				le.Binding, le.ViewDimension, t.desc.Dimension)
		}
	}
	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = bindGroup{layout: layout, entries: append([]gpucore.BindGroupEntry(nil), entries...)}
	return id, nil
}

// DestroyBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// BeginComputePass starts recording. Commands run at Submit.
func (a *Adapter) BeginComputePass(label string) gpucore.ComputePassEncoder {
	return &encoder{adapter: a, label: label}
}

// Submit runs every ended pass in recording order.
func (a *Adapter) Submit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	passes := a.pending
	a.pending = nil
	a.stats.Submits++
	for _, e := range passes {
		if err := a.run(e); err != nil {
			return err
		}
	}
	return nil
}

// WaitIdle is a no-op: Submit runs synchronously.
func (a *Adapter) WaitIdle() {}
