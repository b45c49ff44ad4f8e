// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/kernel"
)

// AutoExposure owns the shared layout, shader module and pipelines of
// the exposure passes, the per-view state and the curve and mask assets.
//
// All methods are safe for concurrent use. Dispatch is expected to be
// called once per frame from the render loop.
type AutoExposure struct {
	adapter gpucore.GPUAdapter
	opts    options
	stride  uint32

	bindLayout     gpucore.BindGroupLayoutID
	pipelineLayout gpucore.PipelineLayoutID
	cache          *pipelineCache

	mu           sync.Mutex
	closed       bool
	shader       gpucore.ShaderModuleID
	views        map[ViewID]*View
	slots        []*View
	viewBuffer   gpucore.BufferID
	viewCapacity int
	curves       map[CurveHandle]*curveResource
	masks        map[MaskHandle]*maskResource
	defaultCurve *curveResource
	defaultMask  *maskResource
	bindGroups   []gpucore.BindGroupID
	frame        uint32
}

// New creates the layout, shader module and default assets on adapter.
//
// A layout the adapter rejects is reported as ErrLayoutRejected and is
// not recoverable. Pipelines are built lazily by AddView.
func New(adapter gpucore.GPUAdapter, opts ...Option) (*AutoExposure, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	if !adapter.SupportsCompute() {
		return nil, ErrNoCompute
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.settings.Validate(); err != nil {
		return nil, err
	}

	ae := &AutoExposure{
		adapter: adapter,
		opts:    o,
		stride:  viewStride(adapter.MinStorageBufferOffsetAlignment()),
		cache:   newPipelineCache(adapter, o.label),
		views:   make(map[ViewID]*View),
		curves:  make(map[CurveHandle]*curveResource),
		masks:   make(map[MaskHandle]*maskResource),
	}
	if err := ae.init(); err != nil {
		ae.destroyPartialInit()
		return nil, err
	}
	trackAdapter(adapter)

	Logger().Info("autoexposure: initialized",
		"label", o.label, "view_stride", ae.stride, "view_capacity", ae.viewCapacity)
	return ae, nil
}

func (ae *AutoExposure) init() error {
	a := ae.adapter
	label := ae.opts.label

	desc := &gpucore.BindGroupLayoutDesc{Label: label + "_layout", Entries: LayoutEntries()}
	bgl, err := a.CreateBindGroupLayout(desc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLayoutRejected, err)
	}
	ae.bindLayout = bgl

	pl, err := a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bgl})
	if err != nil {
		return fmt.Errorf("%w: pipeline layout: %w", ErrLayoutRejected, err)
	}
	ae.pipelineLayout = pl

	shader, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: label, WGSL: ae.opts.shaderSource})
	if err != nil {
		return fmt.Errorf("autoexposure: create shader module: %w", err)
	}
	ae.shader = shader

	if ae.defaultCurve, err = newCurveResource(a, FlatCurve(), label+"_default"); err != nil {
		return err
	}
	if ae.defaultMask, err = newMaskResource(a, UniformMask(), label+"_default"); err != nil {
		return err
	}
	return ae.growViewBuffer(ae.opts.viewCapacity)
}

// destroyPartialInit releases whatever init managed to create.
func (ae *AutoExposure) destroyPartialInit() {
	a := ae.adapter
	if ae.viewBuffer != gpucore.InvalidID {
		a.DestroyBuffer(ae.viewBuffer)
	}
	if ae.defaultMask != nil {
		ae.defaultMask.destroy(a)
	}
	if ae.defaultCurve != nil {
		ae.defaultCurve.destroy(a)
	}
	if ae.shader != gpucore.InvalidID {
		a.DestroyShaderModule(ae.shader)
	}
	if ae.pipelineLayout != gpucore.InvalidID {
		a.DestroyPipelineLayout(ae.pipelineLayout)
	}
	if ae.bindLayout != gpucore.InvalidID {
		a.DestroyBindGroupLayout(ae.bindLayout)
	}
}

// viewStride rounds ViewUniformStride up to the adapter's dynamic offset alignment.
func viewStride(align uint32) uint32 {
	stride := uint32(ViewUniformStride)
	if align > stride {
		stride = align
	}
	if align > 0 && stride%align != 0 {
		stride += align - stride%align
	}
	return stride
}

// growViewBuffer replaces the shared view buffer with one holding n records.
// Callers must have released bind groups referencing the old buffer.
func (ae *AutoExposure) growViewBuffer(n int) error {
	buf, err := ae.adapter.CreateBuffer(n*int(ae.stride), gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)
	if err != nil {
		return fmt.Errorf("autoexposure: create view buffer: %w", err)
	}
	if ae.viewBuffer != gpucore.InvalidID {
		ae.adapter.DestroyBuffer(ae.viewBuffer)
	}
	ae.viewBuffer = buf
	ae.viewCapacity = n
	Logger().Debug("autoexposure: view buffer sized", "records", n, "bytes", n*int(ae.stride))
	return nil
}

// AddView creates the state for a new view and resolves its pipelines.
//
// If a pipeline cannot be built the view is still added, disabled, and
// the returned error is a *PipelineBuildError. The view starts
// dispatching once ReloadShader or Retry builds both pipelines.
func (ae *AutoExposure) AddView(cfg ViewConfig) (*View, error) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return nil, ErrClosed
	}

	settings := ae.opts.settings
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	v := &View{
		ae:       ae,
		id:       ViewID(uuid.New()),
		settings: settings,
		curve:    cfg.Curve,
		mask:     cfg.Mask,
	}
	if err := ae.createViewBuffers(v); err != nil {
		return nil, err
	}
	ae.adapter.WriteBuffer(v.params, 0, settings.Parameters().Bytes())
	ae.adapter.WriteBuffer(v.state, 0, kernel.StateBytes(settings.InitialState()))

	v.slot = ae.allocSlot(v)
	ae.views[v.id] = v

	err := ae.resolvePipelines(v)
	Logger().Info("autoexposure: view added", "view", v.id, "slot", v.slot, "enabled", v.enabled)
	return v, err
}

func (ae *AutoExposure) createViewBuffers(v *View) error {
	a := ae.adapter
	var err error
	if v.params, err = a.CreateBuffer(paramsBufferSize, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst); err != nil {
		return fmt.Errorf("autoexposure: create params buffer: %w", err)
	}
	v.histogram, err = a.CreateBuffer(kernel.HistogramSize,
		gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst|gpucore.BufferUsageCopySrc)
	if err != nil {
		a.DestroyBuffer(v.params)
		return fmt.Errorf("autoexposure: create histogram buffer: %w", err)
	}
	v.state, err = a.CreateBuffer(kernel.StateSize,
		gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst|gpucore.BufferUsageCopySrc)
	if err != nil {
		a.DestroyBuffer(v.histogram)
		a.DestroyBuffer(v.params)
		return fmt.Errorf("autoexposure: create state buffer: %w", err)
	}
	return nil
}

func (ae *AutoExposure) destroyViewBuffers(v *View) {
	ae.adapter.DestroyBuffer(v.state)
	ae.adapter.DestroyBuffer(v.histogram)
	ae.adapter.DestroyBuffer(v.params)
}

// allocSlot returns the lowest free view-buffer record.
func (ae *AutoExposure) allocSlot(v *View) uint32 {
	for i, s := range ae.slots {
		if s == nil {
			ae.slots[i] = v
			return uint32(i)
		}
	}
	ae.slots = append(ae.slots, v)
	return uint32(len(ae.slots) - 1)
}

// resolvePipelines looks up both pipelines for v and enables or disables it.
func (ae *AutoExposure) resolvePipelines(v *View) error {
	var pipelines [passCount]gpucore.ComputePipelineID
	var errs []error
	for _, pass := range Passes {
		id, err := ae.cache.specialize(pipelineKey{shader: ae.shader, layout: ae.pipelineLayout, pass: pass})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pipelines[pass] = id
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if v.enabled || v.err == nil {
			Logger().Warn("autoexposure: view disabled", "view", v.id, "err", joined)
		}
		v.pipelines = [passCount]gpucore.ComputePipelineID{}
		v.err = joined
		v.enabled = false
		ae.adapter.WriteBuffer(v.state, 0, kernel.StateBytes(v.settings.InitialState()))
		return v.err
	}

	if v.err != nil {
		Logger().Info("autoexposure: view re-enabled", "view", v.id)
	}
	v.pipelines = pipelines
	v.enabled = true
	v.err = nil
	return nil
}

// reloadLocked forgets cached failures and re-resolves every view.
// It returns the distinct build errors that remain.
func (ae *AutoExposure) reloadLocked() error {
	ae.cache.forgetFailures()
	seen := make(map[error]struct{})
	var errs []error
	for _, v := range ae.sortedViews() {
		if err := ae.resolvePipelines(v); err != nil {
			for _, e := range unjoin(err) {
				if _, dup := seen[e]; !dup {
					seen[e] = struct{}{}
					errs = append(errs, e)
				}
			}
		}
	}
	return errors.Join(errs...)
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// sortedViews returns the views in slot order.
func (ae *AutoExposure) sortedViews() []*View {
	out := make([]*View, 0, len(ae.views))
	for _, v := range ae.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].slot < out[j].slot })
	return out
}

// RemoveView destroys the view's buffers.
func (ae *AutoExposure) RemoveView(id ViewID) error {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return ErrClosed
	}
	v, ok := ae.views[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	ae.releaseBindGroups()
	ae.destroyViewBuffers(v)
	ae.slots[v.slot] = nil
	delete(ae.views, id)
	Logger().Info("autoexposure: view removed", "view", id)
	return nil
}

// View returns the view with the given ID.
func (ae *AutoExposure) View(id ViewID) (*View, bool) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	v, ok := ae.views[id]
	return v, ok
}

// Views returns all views in slot order.
func (ae *AutoExposure) Views() []*View {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.sortedViews()
}

// SetViewSettings replaces a view's settings. The state buffer keeps its
// value unless the view is disabled, in which case it takes the new
// initial luminance.
func (ae *AutoExposure) SetViewSettings(id ViewID, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	ae.mu.Lock()
	defer ae.mu.Unlock()
	v, err := ae.lookup(id)
	if err != nil {
		return err
	}
	v.settings = s
	ae.adapter.WriteBuffer(v.params, 0, s.Parameters().Bytes())
	if !v.enabled {
		ae.adapter.WriteBuffer(v.state, 0, kernel.StateBytes(s.InitialState()))
	}
	return nil
}

// SetViewAssets points a view at other curve and mask handles.
func (ae *AutoExposure) SetViewAssets(id ViewID, curve CurveHandle, mask MaskHandle) error {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	v, err := ae.lookup(id)
	if err != nil {
		return err
	}
	v.curve, v.mask = curve, mask
	return nil
}

func (ae *AutoExposure) lookup(id ViewID) (*View, error) {
	if ae.closed {
		return nil, ErrClosed
	}
	v, ok := ae.views[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	return v, nil
}

// AddCurve uploads a compensation curve and returns its handle.
func (ae *AutoExposure) AddCurve(c *CompensationCurve) (CurveHandle, error) {
	if err := checkCurve(c); err != nil {
		return CurveHandle{}, err
	}
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return CurveHandle{}, ErrClosed
	}
	h := CurveHandle(uuid.New())
	r, err := newCurveResource(ae.adapter, c, ae.opts.label+"_"+h.String())
	if err != nil {
		return CurveHandle{}, err
	}
	ae.curves[h] = r
	return h, nil
}

// SetCurve replaces the contents of a registered curve. It is a reload
// event: pipelines that failed to build are retried.
func (ae *AutoExposure) SetCurve(h CurveHandle, c *CompensationCurve) error {
	if err := checkCurve(c); err != nil {
		return err
	}
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return ErrClosed
	}
	r, ok := ae.curves[h]
	if !ok {
		return fmt.Errorf("%w: unknown curve %s", ErrInvalidCurve, h)
	}
	if err := r.upload(ae.adapter, c); err != nil {
		return err
	}
	return ae.reloadLocked()
}

// RemoveCurve releases a curve. Views still referencing it fall back to
// the flat curve.
func (ae *AutoExposure) RemoveCurve(h CurveHandle) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	r, ok := ae.curves[h]
	if !ok || ae.closed {
		return
	}
	ae.releaseBindGroups()
	r.destroy(ae.adapter)
	delete(ae.curves, h)
}

// AddMask uploads a metering mask and returns its handle.
func (ae *AutoExposure) AddMask(m *MeteringMask) (MaskHandle, error) {
	if err := checkMask(m); err != nil {
		return MaskHandle{}, err
	}
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return MaskHandle{}, ErrClosed
	}
	h := MaskHandle(uuid.New())
	r, err := newMaskResource(ae.adapter, m, ae.opts.label+"_"+h.String())
	if err != nil {
		return MaskHandle{}, err
	}
	ae.masks[h] = r
	return h, nil
}

// SetMask replaces the contents of a registered mask. It is a reload
// event: pipelines that failed to build are retried.
func (ae *AutoExposure) SetMask(h MaskHandle, m *MeteringMask) error {
	if err := checkMask(m); err != nil {
		return err
	}
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return ErrClosed
	}
	old, ok := ae.masks[h]
	if !ok {
		return fmt.Errorf("%w: unknown mask %s", ErrInvalidMask, h)
	}
	if old.width == m.width && old.height == m.height {
		if err := ae.adapter.WriteTexture(old.texture, float32Bytes(m.pix)); err != nil {
			return fmt.Errorf("autoexposure: upload mask: %w", err)
		}
	} else {
		r, err := newMaskResource(ae.adapter, m, ae.opts.label+"_"+h.String())
		if err != nil {
			return err
		}
		ae.releaseBindGroups()
		old.destroy(ae.adapter)
		ae.masks[h] = r
	}
	return ae.reloadLocked()
}

// RemoveMask releases a mask. Views still referencing it fall back to
// the uniform mask.
func (ae *AutoExposure) RemoveMask(h MaskHandle) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	r, ok := ae.masks[h]
	if !ok || ae.closed {
		return
	}
	ae.releaseBindGroups()
	r.destroy(ae.adapter)
	delete(ae.masks, h)
}

// ReloadShader swaps in new WGSL source and rebuilds both pipelines for
// every view. If the module itself cannot be created the old shader
// stays in use. Build failures disable views and are returned.
func (ae *AutoExposure) ReloadShader(src string) error {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return ErrClosed
	}
	mod, err := ae.adapter.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: ae.opts.label, WGSL: src})
	if err != nil {
		return fmt.Errorf("autoexposure: reload shader: %w", err)
	}
	old := ae.shader
	ae.shader = mod
	ae.opts.shaderSource = src
	ae.releaseBindGroups()

	err = ae.reloadLocked()
	ae.cache.evictShader(old)
	ae.adapter.DestroyShaderModule(old)
	Logger().Info("autoexposure: shader reloaded", "ok", err == nil)
	return err
}

// Retry rebuilds pipelines that failed, re-enabling views on success.
func (ae *AutoExposure) Retry() error {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return ErrClosed
	}
	return ae.reloadLocked()
}

// CacheStats returns pipeline cache statistics.
func (ae *AutoExposure) CacheStats() CacheStats {
	return ae.cache.stats()
}

// releaseBindGroups destroys the bind groups of the previous dispatch.
func (ae *AutoExposure) releaseBindGroups() {
	for _, bg := range ae.bindGroups {
		ae.adapter.DestroyBindGroup(bg)
	}
	ae.bindGroups = ae.bindGroups[:0]
}

// Close releases every GPU object. Views must not be used afterwards.
func (ae *AutoExposure) Close() error {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	if ae.closed {
		return nil
	}
	ae.closed = true

	ae.releaseBindGroups()
	for _, v := range ae.views {
		ae.destroyViewBuffers(v)
	}
	clear(ae.views)
	ae.slots = nil
	for _, r := range ae.curves {
		r.destroy(ae.adapter)
	}
	clear(ae.curves)
	for _, r := range ae.masks {
		r.destroy(ae.adapter)
	}
	clear(ae.masks)
	ae.cache.clear()
	ae.destroyPartialInit()
	untrackAdapter(ae.adapter)

	Logger().Info("autoexposure: closed", "label", ae.opts.label)
	return nil
}
