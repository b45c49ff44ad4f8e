// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"fmt"

	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/kernel"
)

var zeroHistogram = make([]byte, kernel.HistogramSize)

// dispatchItem is one enabled view prepared for recording.
type dispatchItem struct {
	view      *View
	bindGroup gpucore.BindGroupID
	offset    uint32
	groupsX   uint32
	groupsY   uint32
}

// Dispatch meters every enabled view listed in f. Per view it clears
// the histogram, records the Histogram pass, then the Average pass, and
// submits all of it once. Disabled views are skipped and keep their
// fallback luminance.
func (ae *AutoExposure) Dispatch(f Frame) error {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return ErrClosed
	}

	ae.releaseBindGroups()

	for _, vf := range f.Views {
		if _, ok := ae.views[vf.View]; !ok {
			return fmt.Errorf("%w: %s", ErrViewNotFound, vf.View)
		}
	}
	if len(ae.slots) > ae.viewCapacity {
		if err := ae.growViewBuffer(max(len(ae.slots), ae.viewCapacity*2)); err != nil {
			return err
		}
	}

	items, err := ae.prepare(f)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	for _, it := range items {
		ae.record(it)
	}
	if err := ae.adapter.Submit(); err != nil {
		return fmt.Errorf("autoexposure: submit frame %d: %w", ae.frame, err)
	}
	Logger().Debug("autoexposure: frame dispatched", "frame", ae.frame, "views", len(items))
	ae.frame++
	return nil
}

// prepare uploads per-view data and creates this frame's bind groups.
func (ae *AutoExposure) prepare(f Frame) ([]dispatchItem, error) {
	items := make([]dispatchItem, 0, len(f.Views))
	for _, vf := range f.Views {
		v := ae.views[vf.View]
		if !v.enabled {
			continue
		}

		offset := v.slot * ae.stride
		vu := vf.uniform(f.DeltaTime, ae.frame)
		ae.adapter.WriteBuffer(ae.viewBuffer, uint64(offset), vu.Bytes())
		ae.adapter.WriteBuffer(v.histogram, 0, zeroHistogram)

		bg, err := ae.adapter.CreateBindGroup(ae.bindLayout, ae.bindGroupEntries(v, vf.Color))
		if err != nil {
			ae.releaseBindGroups()
			return nil, fmt.Errorf("autoexposure: bind view %s: %w", v.id, err)
		}
		ae.bindGroups = append(ae.bindGroups, bg)

		gx, gy := kernel.HistogramWorkgroups(vu)
		items = append(items, dispatchItem{view: v, bindGroup: bg, offset: offset, groupsX: gx, groupsY: gy})
	}
	return items, nil
}

// record encodes the two passes of one view. They are separate compute
// passes so the histogram writes are visible to the average pass.
func (ae *AutoExposure) record(it dispatchItem) {
	offsets := []uint32{it.offset}

	pass := ae.adapter.BeginComputePass(ae.opts.label + "_histogram")
	if it.groupsX > 0 && it.groupsY > 0 {
		pass.SetPipeline(it.view.pipelines[PassHistogram])
		pass.SetBindGroup(0, it.bindGroup, offsets)
		pass.Dispatch(it.groupsX, it.groupsY, 1)
	}
	pass.End()

	pass = ae.adapter.BeginComputePass(ae.opts.label + "_average")
	pass.SetPipeline(it.view.pipelines[PassAverage])
	pass.SetBindGroup(0, it.bindGroup, offsets)
	pass.Dispatch(1, 1, 1)
	pass.End()
}

// bindGroupEntries binds v's buffers and resolved assets in layout order.
func (ae *AutoExposure) bindGroupEntries(v *View, color gpucore.TextureID) []gpucore.BindGroupEntry {
	curve, ok := ae.curves[v.curve]
	if !ok {
		curve = ae.defaultCurve
	}
	mask, ok := ae.masks[v.mask]
	if !ok {
		mask = ae.defaultMask
	}
	return []gpucore.BindGroupEntry{
		{Binding: BindingParameters, Buffer: v.params, Size: kernel.ParamsSize},
		{Binding: BindingColor, Texture: color},
		{Binding: BindingMask, Texture: mask.texture},
		{Binding: BindingCurveLUT, Texture: curve.lut},
		{Binding: BindingCurve, Buffer: curve.uniform, Size: kernel.CurveUniformSize},
		{Binding: BindingHistogram, Buffer: v.histogram, Size: kernel.HistogramSize},
		{Binding: BindingState, Buffer: v.state, Size: kernel.StateSize},
		{Binding: BindingView, Buffer: ae.viewBuffer, Size: kernel.ViewUniformSize},
	}
}
