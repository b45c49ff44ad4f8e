// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/autoexposure/gpucore"
)

// Errors returned by Adapter.
var (
	ErrUnknownResource = errors.New("gpu: unknown resource")
	ErrClosed          = errors.New("gpu: adapter closed")
)

type buffer struct {
	hal  hal.Buffer
	size uint64
}

type texture struct {
	hal  hal.Texture
	view hal.TextureView
	desc gpucore.TextureDesc
}

type layout struct {
	hal     hal.BindGroupLayout
	entries []gpucore.BindGroupLayoutEntry
}

type pass struct {
	label    string
	commands []command
}

type command struct {
	pipeline   gpucore.ComputePipelineID
	bindGroup  gpucore.BindGroupID
	offsets    []uint32
	x, y, z    uint32
	isPipeline bool
	isBind     bool
}

// op is one unit of recorded work. Ops are encoded at Submit in the
// order they were recorded.
type op struct {
	pass  *pass
	write *stagedWrite
}

// stagedWrite copies host data from an upload buffer into dst.
type stagedWrite struct {
	staging hal.Buffer
	dst     gpucore.BufferID
	offset  uint64
	size    uint64
}

type inflight struct {
	index uint64
	cmd   hal.CommandBuffer
}

// retired holds a release that must wait for the GPU. A queued entry
// waits for the next submission; otherwise it waits for index.
type retired struct {
	index   uint64
	queued  bool
	release func()
}

// Adapter implements gpucore.GPUAdapter on a gogpu/wgpu HAL device.
//
// Compute passes and buffer writes are recorded into a CPU-side list
// and encoded into a single command buffer at Submit. Host data reaches
// device-local buffers through mapped upload buffers and copy commands.
// Command buffers, upload buffers and destroyed resources are released
// once the queue reports the submission that used them completed.
type Adapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue
	limits gputypes.Limits
	owner  *ownedDevice
	closed bool

	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	shaders          map[gpucore.ShaderModuleID]hal.ShaderModule
	layouts          map[gpucore.BindGroupLayoutID]*layout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup

	pending   []op
	inflight  []inflight
	retired   []retired
	submitted uint64
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

// NewAdapter wraps an open device and queue. The caller keeps ownership
// of both; Close releases only the resources created through the adapter.
func NewAdapter(device hal.Device, queue hal.Queue, limits *gputypes.Limits) (*Adapter, error) {
	if device == nil || queue == nil {
		return nil, errors.New("gpu: device and queue are required")
	}
	lim := gputypes.DefaultLimits()
	if limits != nil {
		lim = *limits
	}
	return &Adapter{
		device:           device,
		queue:            queue,
		limits:           lim,
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		shaders:          make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		layouts:          make(map[gpucore.BindGroupLayoutID]*layout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
	}, nil
}

// SetLogger routes the package's diagnostics to l.
func (a *Adapter) SetLogger(l *slog.Logger) { setLogger(l) }

func (a *Adapter) newID() uint64 { return a.nextID.Add(1) }

// SupportsCompute implements gpucore.GPUAdapter.
func (a *Adapter) SupportsCompute() bool {
	return a.limits.MaxComputeWorkgroupSizeX >= 64 && a.limits.MaxComputeInvocationsPerWorkgroup >= 256
}

// MinStorageBufferOffsetAlignment implements gpucore.GPUAdapter.
func (a *Adapter) MinStorageBufferOffsetAlignment() uint32 {
	return a.limits.MinStorageBufferOffsetAlignment
}

// CreateShaderModule compiles the WGSL source to SPIR-V and creates a module.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if desc == nil {
		return gpucore.InvalidID, errors.New("gpu: nil shader module descriptor")
	}
	spirv, err := CompileWGSL(desc.WGSL)
	if err != nil {
		return gpucore.InvalidID, err
	}
	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: create shader module %q: %w", desc.Label, err)
	}
	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaders[id] = module
	a.mu.Unlock()
	slogger().Debug("gpu: shader module created", "label", desc.Label, "words", len(spirv))
	return id, nil
}

// DestroyShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.shaders[id]; ok {
		delete(a.shaders, id)
		a.releaseLocked(func() { a.device.DestroyShaderModule(m) })
	}
}

// CreateBuffer implements gpucore.GPUAdapter.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("gpu: buffer size %d must be positive", size)
	}
	b, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(size),
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: create buffer: %w", err)
	}
	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &buffer{hal: b, size: uint64(size)}
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer implements gpucore.GPUAdapter. The ID is invalid on
// return; the buffer itself is released once no pending or in-flight
// work can use it.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.buffers[id]; ok {
		delete(a.buffers, id)
		a.releaseLocked(func() { a.device.DestroyBuffer(b.hal) })
	}
}

// WriteBuffer implements gpucore.GPUAdapter. The data is copied into a
// mapped upload buffer now and into the destination ahead of the passes
// recorded after this call. Failures are logged.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	size := uint64(len(data))
	a.mu.RLock()
	b, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return
	}
	if offset%4 != 0 || size%4 != 0 || offset+size > b.size {
		slogger().Warn("gpu: write buffer rejected", "buffer", id, "offset", offset, "size", size, "buffer_size", b.size)
		return
	}
	staging, err := a.stage(data)
	if err != nil {
		slogger().Warn("gpu: write buffer failed", "buffer", id, "offset", offset, "err", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.device.DestroyBuffer(staging)
		return
	}
	a.pending = append(a.pending, op{write: &stagedWrite{staging: staging, dst: id, offset: offset, size: size}})
}

// stage creates an upload buffer holding data.
func (a *Adapter) stage(data []byte) (hal.Buffer, error) {
	size := uint64(len(data))
	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "autoexposure_upload",
		Size:  size,
		Usage: convertBufferUsage(gpucore.BufferUsageMapWrite | gpucore.BufferUsageCopySrc),
	})
	if err != nil {
		return nil, fmt.Errorf("create upload buffer: %w", err)
	}
	m, err := a.device.MapBuffer(staging, 0, size)
	if err != nil {
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("map upload buffer: %w", err)
	}
	copy(unsafe.Slice((*byte)(m.Ptr), size), data)
	if err := a.device.UnmapBuffer(staging); err != nil {
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("unmap upload buffer: %w", err)
	}
	return staging, nil
}

// ReadBuffer submits the recorded work together with a copy of the range
// into a mappable buffer and waits for the device to go idle.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	b, ok := a.buffers[id]
	if !ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if offset+size > b.size {
		a.mu.Unlock()
		return nil, fmt.Errorf("gpu: read %d+%d past buffer size %d", offset, size, b.size)
	}
	readback, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "autoexposure_readback",
		Size:  size,
		Usage: convertBufferUsage(gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst),
	})
	if err != nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("gpu: create readback buffer: %w", err)
	}
	err = a.flushLocked("readback", func(encoder hal.CommandEncoder) {
		encoder.CopyBufferToBuffer(b.hal, readback, []hal.BufferCopy{{SrcOffset: offset, Size: size}})
	})
	if err != nil {
		a.device.DestroyBuffer(readback)
		a.mu.Unlock()
		return nil, err
	}
	a.mu.Unlock()

	if err := a.device.WaitIdle(); err != nil {
		a.mu.Lock()
		a.releaseLocked(func() { a.device.DestroyBuffer(readback) })
		a.mu.Unlock()
		return nil, fmt.Errorf("gpu: wait for readback: %w", err)
	}
	defer a.device.DestroyBuffer(readback)
	a.mu.Lock()
	a.reclaimLocked()
	a.mu.Unlock()

	m, err := a.device.MapBuffer(readback, 0, size)
	if err != nil {
		return nil, fmt.Errorf("gpu: map readback buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(m.Ptr), size))
	if err := a.device.UnmapBuffer(readback); err != nil {
		return nil, fmt.Errorf("gpu: unmap readback buffer: %w", err)
	}
	return out, nil
}

// CreateTexture creates the texture and the single view bind groups use.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, errors.New("gpu: texture dimensions must be positive")
	}
	format, err := convertTextureFormat(desc.Format)
	if err != nil {
		return gpucore.InvalidID, err
	}
	dim, viewDim := convertDimension(desc.Dimension)
	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     dim,
		Format:        format,
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: create texture %q: %w", desc.Label, err)
	}
	view, err := a.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        format,
		Dimension:     viewDim,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		a.device.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("gpu: create texture view %q: %w", desc.Label, err)
	}
	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = &texture{hal: tex, view: view, desc: *desc}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture implements gpucore.GPUAdapter.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.textures[id]; ok {
		delete(a.textures, id)
		a.releaseLocked(func() {
			a.device.DestroyTextureView(t.view)
			a.device.DestroyTexture(t.hal)
		})
	}
}

// WriteTexture implements gpucore.GPUAdapter.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte) error {
	a.mu.RLock()
	t, ok := a.textures[id]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	d := t.desc
	rowBytes := d.Width * uint32(d.Format.BytesPerTexel())
	if want := int(rowBytes * d.Height); len(data) != want {
		return fmt.Errorf("gpu: texture %q wants %d bytes, got %d", d.Label, want, len(data))
	}
	return a.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.hal, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: rowBytes, RowsPerImage: d.Height},
		&hal.Extent3D{Width: d.Width, Height: d.Height, DepthOrArrayLayers: 1},
	)
}

// CreateBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, errors.New("gpu: nil bind group layout descriptor")
	}
	if err := gpucore.ValidateLayout(desc); err != nil {
		return gpucore.InvalidID, err
	}
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		var err error
		if entries[i], err = convertLayoutEntry(e); err != nil {
			return gpucore.InvalidID, err
		}
	}
	l, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: desc.Label, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: create bind group layout %q: %w", desc.Label, err)
	}
	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.layouts[id] = &layout{hal: l, entries: append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...)}
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.layouts[id]; ok {
		delete(a.layouts, id)
		a.releaseLocked(func() { a.device.DestroyBindGroupLayout(l.hal) })
	}
}

// CreatePipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreatePipelineLayout(ids []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	layouts := make([]hal.BindGroupLayout, len(ids))
	for i, id := range ids {
		l, ok := a.layouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, id)
		}
		layouts[i] = l.hal
	}
	a.mu.RUnlock()

	pl, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "autoexposure_pipeline_layout",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: create pipeline layout: %w", err)
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipelineLayouts[id] = pl
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pl, ok := a.pipelineLayouts[id]; ok {
		delete(a.pipelineLayouts, id)
		a.releaseLocked(func() { a.device.DestroyPipelineLayout(pl) })
	}
}

// CreateComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.RLock()
	module, okModule := a.shaders[desc.ShaderModule]
	pl, okLayout := a.pipelineLayouts[desc.Layout]
	a.mu.RUnlock()
	if !okModule {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", ErrUnknownResource, desc.ShaderModule)
	}
	if !okLayout {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrUnknownResource, desc.Layout)
	}

	p, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  pl,
		Compute: hal.ComputeState{Module: module, EntryPoint: desc.EntryPoint},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: create compute pipeline %q: %w", desc.EntryPoint, err)
	}
	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.computePipelines[id] = p
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.computePipelines[id]; ok {
		delete(a.computePipelines, id)
		a.releaseLocked(func() { a.device.DestroyComputePipeline(p) })
	}
}

// CreateBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroup(layoutID gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	l, ok := a.layouts[layoutID]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, layoutID)
	}
	types := make(map[uint32]gpucore.BindingType, len(l.entries))
	for _, le := range l.entries {
		types[le.Binding] = le.Type
	}
	out := make([]gputypes.BindGroupEntry, 0, len(entries))
	for _, e := range entries {
		typ, ok := types[e.Binding]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("gpu: binding %d not in layout", e.Binding)
		}
		if typ.IsBuffer() {
			b, ok := a.buffers[e.Buffer]
			if !ok {
				a.mu.RUnlock()
				return gpucore.InvalidID, fmt.Errorf("%w: buffer %d at binding %d", ErrUnknownResource, e.Buffer, e.Binding)
			}
			out = append(out, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.BufferBinding{Buffer: b.hal.NativeHandle(), Offset: e.Offset, Size: e.Size},
			})
			continue
		}
		t, ok := a.textures[e.Texture]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: texture %d at binding %d", ErrUnknownResource, e.Texture, e.Binding)
		}
		out = append(out, gputypes.BindGroupEntry{
			Binding:  e.Binding,
			Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
		})
	}
	a.mu.RUnlock()

	bg, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "autoexposure_bind_group",
		Layout:  l.hal,
		Entries: out,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: create bind group: %w", err)
	}
	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = bg
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if bg, ok := a.bindGroups[id]; ok {
		delete(a.bindGroups, id)
		a.releaseLocked(func() { a.device.DestroyBindGroup(bg) })
	}
}

// BeginComputePass starts recording a pass. It is encoded at Submit.
func (a *Adapter) BeginComputePass(label string) gpucore.ComputePassEncoder {
	return &passEncoder{adapter: a, pass: &pass{label: label}}
}

// Submit encodes the recorded writes and passes into one command buffer
// and submits it.
func (a *Adapter) Submit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.reclaimLocked()
	if len(a.pending) == 0 {
		return nil
	}
	return a.flushLocked("autoexposure", nil)
}

// flushLocked encodes the pending ops, then extra if set, and submits the
// result. Upload buffers and queued releases are tied to the submission.
func (a *Adapter) flushLocked(label string, extra func(hal.CommandEncoder)) error {
	ops := a.pending
	a.pending = nil
	var staged []hal.Buffer
	for _, o := range ops {
		if o.write != nil {
			staged = append(staged, o.write.staging)
		}
	}

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		a.abandonLocked(staged)
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		a.abandonLocked(staged)
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}
	for _, o := range ops {
		if o.write != nil {
			a.encodeWriteLocked(encoder, o.write)
			continue
		}
		if err := a.encodeLocked(encoder, o.pass); err != nil {
			encoder.DiscardEncoding()
			a.abandonLocked(staged)
			return err
		}
	}
	if extra != nil {
		extra(encoder)
	}
	cmd, err := encoder.EndEncoding()
	if err != nil {
		a.abandonLocked(staged)
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	idx, err := a.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		a.device.FreeCommandBuffer(cmd)
		a.abandonLocked(staged)
		return fmt.Errorf("gpu: submit: %w", err)
	}

	a.submitted = idx
	a.inflight = append(a.inflight, inflight{index: idx, cmd: cmd})
	for i := range a.retired {
		if a.retired[i].queued {
			a.retired[i] = retired{index: idx, release: a.retired[i].release}
		}
	}
	for _, buf := range staged {
		a.retired = append(a.retired, retired{index: idx, release: func() { a.device.DestroyBuffer(buf) }})
	}
	return nil
}

// encodeWriteLocked copies an upload into its destination. Writes to
// buffers destroyed since they were recorded are dropped.
func (a *Adapter) encodeWriteLocked(encoder hal.CommandEncoder, w *stagedWrite) {
	dst, ok := a.buffers[w.dst]
	if !ok {
		return
	}
	encoder.CopyBufferToBuffer(w.staging, dst.hal, []hal.BufferCopy{{DstOffset: w.offset, Size: w.size}})
}

func (a *Adapter) encodeLocked(encoder hal.CommandEncoder, p *pass) error {
	cp := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.label})
	defer cp.End()
	for _, c := range p.commands {
		switch {
		case c.isPipeline:
			pl, ok := a.computePipelines[c.pipeline]
			if !ok {
				return fmt.Errorf("%w: pipeline %d in pass %q", ErrUnknownResource, c.pipeline, p.label)
			}
			cp.SetPipeline(pl)
		case c.isBind:
			bg, ok := a.bindGroups[c.bindGroup]
			if !ok {
				return fmt.Errorf("%w: bind group %d in pass %q", ErrUnknownResource, c.bindGroup, p.label)
			}
			cp.SetBindGroup(0, bg, c.offsets)
		default:
			cp.Dispatch(c.x, c.y, c.z)
		}
	}
	return nil
}

// abandonLocked releases what a failed flush would have tied to its
// submission. Nothing was submitted, so it is safe to do now.
func (a *Adapter) abandonLocked(staged []hal.Buffer) {
	for _, buf := range staged {
		a.device.DestroyBuffer(buf)
	}
	keep := a.retired[:0]
	for _, r := range a.retired {
		if r.queued {
			r.release()
			continue
		}
		keep = append(keep, r)
	}
	a.retired = keep
}

// releaseLocked runs release once no recorded or in-flight work can
// reference the object.
func (a *Adapter) releaseLocked(release func()) {
	switch {
	case len(a.pending) > 0:
		a.retired = append(a.retired, retired{queued: true, release: release})
	case len(a.inflight) > 0 && a.submitted > a.queue.PollCompleted():
		a.retired = append(a.retired, retired{index: a.submitted, release: release})
	default:
		release()
	}
}

// reclaimLocked frees command buffers and runs releases whose
// submissions completed.
func (a *Adapter) reclaimLocked() {
	if len(a.inflight) == 0 && len(a.retired) == 0 {
		return
	}
	done := a.queue.PollCompleted()
	keep := a.inflight[:0]
	for _, f := range a.inflight {
		if f.index <= done {
			a.device.FreeCommandBuffer(f.cmd)
			continue
		}
		keep = append(keep, f)
	}
	a.inflight = keep

	kept := a.retired[:0]
	for _, r := range a.retired {
		if !r.queued && r.index <= done {
			r.release()
			continue
		}
		kept = append(kept, r)
	}
	a.retired = kept
}

// WaitIdle implements gpucore.GPUAdapter.
func (a *Adapter) WaitIdle() {
	if err := a.device.WaitIdle(); err != nil {
		slogger().Warn("gpu: wait idle failed", "err", err)
	}
	a.mu.Lock()
	a.reclaimLocked()
	a.mu.Unlock()
}

// Close waits for the device, frees every resource created through the
// adapter and, for devices opened by NewDevice, the device itself.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	if err := a.device.WaitIdle(); err != nil {
		slogger().Warn("gpu: wait idle on close failed", "err", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range a.pending {
		if o.write != nil {
			a.device.DestroyBuffer(o.write.staging)
		}
	}
	a.pending = nil
	for _, r := range a.retired {
		r.release()
	}
	a.retired = nil
	for _, f := range a.inflight {
		a.device.FreeCommandBuffer(f.cmd)
	}
	a.inflight = nil
	for id, bg := range a.bindGroups {
		a.device.DestroyBindGroup(bg)
		delete(a.bindGroups, id)
	}
	for id, p := range a.computePipelines {
		a.device.DestroyComputePipeline(p)
		delete(a.computePipelines, id)
	}
	for id, pl := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(pl)
		delete(a.pipelineLayouts, id)
	}
	for id, l := range a.layouts {
		a.device.DestroyBindGroupLayout(l.hal)
		delete(a.layouts, id)
	}
	for id, m := range a.shaders {
		a.device.DestroyShaderModule(m)
		delete(a.shaders, id)
	}
	for id, t := range a.textures {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.hal)
		delete(a.textures, id)
	}
	for id, b := range a.buffers {
		a.device.DestroyBuffer(b.hal)
		delete(a.buffers, id)
	}
	if a.owner != nil {
		a.owner.destroy()
		a.owner = nil
	}
	slogger().Info("gpu: adapter closed")
}

// passEncoder records commands for one compute pass.
type passEncoder struct {
	adapter *Adapter
	pass    *pass
	ended   bool
}

func (e *passEncoder) SetPipeline(p gpucore.ComputePipelineID) {
	e.pass.commands = append(e.pass.commands, command{pipeline: p, isPipeline: true})
}

func (e *passEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID, offsets []uint32) {
	if index != 0 {
		slogger().Warn("gpu: only bind group 0 is supported", "index", index)
		return
	}
	e.pass.commands = append(e.pass.commands, command{
		bindGroup: group,
		offsets:   append([]uint32(nil), offsets...),
		isBind:    true,
	})
}

func (e *passEncoder) Dispatch(x, y, z uint32) {
	e.pass.commands = append(e.pass.commands, command{x: x, y: y, z: z})
}

func (e *passEncoder) End() {
	if e.ended {
		return
	}
	e.ended = true
	e.adapter.mu.Lock()
	e.adapter.pending = append(e.adapter.pending, op{pass: e.pass})
	e.adapter.mu.Unlock()
}
