// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/kernel"
)

// Slots of the auto-exposure layout the kernels read.
const (
	bindingParams uint32 = iota
	bindingColor
	bindingMask
	bindingCurveLUT
	bindingCurve
	bindingHistogram
	bindingState
	bindingView
)

type cmdKind uint8

const (
	cmdSetPipeline cmdKind = iota
	cmdSetBindGroup
	cmdDispatch
)

type command struct {
	kind     cmdKind
	pipeline gpucore.ComputePipelineID
	index    uint32
	group    gpucore.BindGroupID
	offsets  []uint32
	x, y, z  uint32
}

// encoder records commands for one compute pass.
type encoder struct {
	adapter *Adapter
	label   string
	cmds    []command
	ended   bool
}

func (e *encoder) SetPipeline(p gpucore.ComputePipelineID) {
	e.cmds = append(e.cmds, command{kind: cmdSetPipeline, pipeline: p})
}

func (e *encoder) SetBindGroup(index uint32, group gpucore.BindGroupID, dynamicOffsets []uint32) {
	e.cmds = append(e.cmds, command{
		kind:    cmdSetBindGroup,
		index:   index,
		group:   group,
		offsets: append([]uint32(nil), dynamicOffsets...),
	})
}

func (e *encoder) Dispatch(x, y, z uint32) {
	e.cmds = append(e.cmds, command{kind: cmdDispatch, x: x, y: y, z: z})
}

func (e *encoder) End() {
	if e.ended {
		return
	}
	e.ended = true
	e.adapter.mu.Lock()
	e.adapter.pending = append(e.adapter.pending, e)
	e.adapter.mu.Unlock()
}

// bindings resolves the resources of the bind group at index 0.
type bindings struct {
	a       *Adapter
	entries map[uint32]gpucore.BindGroupEntry
	dynamic map[uint32]uint32
}

// run executes one pass. a.mu is held.
func (a *Adapter) run(e *encoder) error {
	var (
		current *pipeline
		bound   *bindings
	)
	for _, c := range e.cmds {
		switch c.kind {
		case cmdSetPipeline:
			p, ok := a.pipelines[c.pipeline]
			if !ok {
				return fmt.Errorf("%w: %s: pipeline %d", ErrUnknownResource, e.label, c.pipeline)
			}
			current = &p
		case cmdSetBindGroup:
			if c.index != 0 {
				return fmt.Errorf("%w: %s: bind group index %d", ErrUnsupported, e.label, c.index)
			}
			b, err := a.bind(c.group, c.offsets)
			if err != nil {
				return fmt.Errorf("%s: %w", e.label, err)
			}
			bound = b
		case cmdDispatch:
			if current == nil || bound == nil {
				return fmt.Errorf("software: %s: dispatch without pipeline or bind group", e.label)
			}
			a.stats.Dispatches++
			if err := kernels[current.entry](bound, c.x, c.y, c.z); err != nil {
				return fmt.Errorf("software: %s: %s: %w", e.label, current.entry, err)
			}
		}
	}
	return nil
}

func (a *Adapter) bind(id gpucore.BindGroupID, offsets []uint32) (*bindings, error) {
	g, ok := a.bindGroups[id]
	if !ok {
		return nil, fmt.Errorf("%w: bind group %d", ErrUnknownResource, id)
	}
	layout, ok := a.layouts[g.layout]
	if !ok {
		return nil, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, g.layout)
	}
	dyn := gpucore.DynamicBindings(layout.Entries)
	if len(dyn) != len(offsets) {
		return nil, fmt.Errorf("software: %d dynamic offsets for %d dynamic bindings", len(offsets), len(dyn))
	}
	b := &bindings{a: a, entries: make(map[uint32]gpucore.BindGroupEntry), dynamic: make(map[uint32]uint32)}
	for _, e := range g.entries {
		b.entries[e.Binding] = e
	}
	for i, binding := range dyn {
		if a.alignment > 0 && offsets[i]%a.alignment != 0 {
			return nil, fmt.Errorf("software: dynamic offset %d not aligned to %d", offsets[i], a.alignment)
		}
		b.dynamic[binding] = offsets[i]
	}
	return b, nil
}

// buffer returns the bound range of a buffer binding, aliasing its storage.
func (b *bindings) buffer(binding uint32) ([]byte, error) {
	e, ok := b.entries[binding]
	if !ok {
		return nil, fmt.Errorf("binding %d not bound", binding)
	}
	buf, ok := b.a.buffers[e.Buffer]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, e.Buffer)
	}
	off := e.Offset + uint64(b.dynamic[binding])
	size := e.Size
	if size == 0 {
		size = uint64(len(buf.data)) - e.Offset
	}
	if off+size > uint64(len(buf.data)) {
		return nil, fmt.Errorf("%w: binding %d range %d+%d of %d", ErrOutOfBounds, binding, off, size, len(buf.data))
	}
	return buf.data[off : off+size], nil
}

// plane decodes a texture binding into texels.
func (b *bindings) plane(binding uint32) (kernel.Plane, error) {
	e, ok := b.entries[binding]
	if !ok {
		return kernel.Plane{}, fmt.Errorf("binding %d not bound", binding)
	}
	t, ok := b.a.textures[e.Texture]
	if !ok {
		return kernel.Plane{}, fmt.Errorf("%w: texture %d", ErrUnknownResource, e.Texture)
	}
	return decodePlane(t), nil
}

func decodePlane(t *texture) kernel.Plane {
	ch := t.desc.Format.Channels()
	n := int(t.desc.Width) * int(t.desc.Height) * ch
	pix := make([]float32, n)
	switch t.desc.Format {
	case gpucore.TextureFormatR8Unorm:
		for i := range pix {
			pix[i] = float32(t.data[i]) / 255
		}
	case gpucore.TextureFormatR32Float, gpucore.TextureFormatRGBA32Float:
		for i := range pix {
			pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.data[i*4:]))
		}
	}
	return kernel.Plane{Width: int(t.desc.Width), Height: int(t.desc.Height), Channels: ch, Pix: pix}
}

type kernelFunc func(b *bindings, x, y, z uint32) error

var kernels = map[string]kernelFunc{
	"compute_histogram": runHistogram,
	"compute_average":   runAverage,
}

func runHistogram(b *bindings, x, y, z uint32) error {
	in, err := histogramInputs(b)
	if err != nil {
		return err
	}
	histBytes, err := b.buffer(bindingHistogram)
	if err != nil {
		return err
	}
	hist, err := kernel.ParseHistogram(histBytes)
	if err != nil {
		return err
	}

	// One work item per row of workgroups, each with its own partial
	// histogram, like the workgroup-shared histogram of the shader.
	const wg = kernel.HistogramWorkgroupSize
	rows := make([]kernel.Histogram, int(y)*int(z))
	b.a.pool.Run(len(rows), func(r int) {
		wy := uint32(r) % y
		local := &rows[r]
		for wx := uint32(0); wx < x; wx++ {
			for ly := uint32(0); ly < wg; ly++ {
				for lx := uint32(0); lx < wg; lx++ {
					if bin, c, ok := in.Texel(wx*wg+lx, wy*wg+ly); ok {
						local[bin] += c
					}
				}
			}
		}
	})
	for r := range rows {
		for i, c := range rows[r] {
			hist[i] += c
		}
	}
	copy(histBytes, hist.Bytes())
	return nil
}

func histogramInputs(b *bindings) (*kernel.HistogramInputs, error) {
	in := &kernel.HistogramInputs{}
	raw, err := b.buffer(bindingParams)
	if err != nil {
		return nil, err
	}
	if in.Params, err = kernel.ParseParams(raw); err != nil {
		return nil, err
	}
	if raw, err = b.buffer(bindingView); err != nil {
		return nil, err
	}
	if in.View, err = kernel.ParseViewUniform(raw); err != nil {
		return nil, err
	}
	if raw, err = b.buffer(bindingCurve); err != nil {
		return nil, err
	}
	if in.Curve, err = kernel.ParseCurveUniform(raw); err != nil {
		return nil, err
	}
	if in.Color, err = b.plane(bindingColor); err != nil {
		return nil, err
	}
	if in.Mask, err = b.plane(bindingMask); err != nil {
		return nil, err
	}
	if in.CurveLUT, err = b.plane(bindingCurveLUT); err != nil {
		return nil, err
	}
	return in, nil
}

func runAverage(b *bindings, x, y, z uint32) error {
	raw, err := b.buffer(bindingParams)
	if err != nil {
		return err
	}
	params, err := kernel.ParseParams(raw)
	if err != nil {
		return err
	}
	if raw, err = b.buffer(bindingView); err != nil {
		return err
	}
	view, err := kernel.ParseViewUniform(raw)
	if err != nil {
		return err
	}
	if raw, err = b.buffer(bindingHistogram); err != nil {
		return err
	}
	hist, err := kernel.ParseHistogram(raw)
	if err != nil {
		return err
	}
	state, err := b.buffer(bindingState)
	if err != nil {
		return err
	}
	prev, err := kernel.ParseState(state)
	if err != nil {
		return err
	}

	for n := uint64(0); n < uint64(x)*uint64(y)*uint64(z); n++ {
		next, updated := kernel.Average(&hist, prev, view.DeltaTime, params)
		if !updated {
			return nil
		}
		prev = next
		copy(state, kernel.StateBytes(prev))
	}
	return nil
}
