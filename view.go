// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/kernel"
)

// Histogram is the 64-bucket histogram a view's Histogram pass produces.
type Histogram = kernel.Histogram

// ViewID identifies a view registered with AddView.
type ViewID uuid.UUID

func (id ViewID) String() string { return uuid.UUID(id).String() }

// ViewConfig describes a view to add.
type ViewConfig struct {
	// Settings overrides the AutoExposure-wide default settings.
	Settings *Settings
	// Curve and Mask select registered assets. Zero or removed handles
	// resolve to the flat curve and the uniform mask.
	Curve CurveHandle
	Mask  MaskHandle
}

// View is the persistent auto-exposure state of one camera.
//
// The buffers are owned by the AutoExposure and live until RemoveView.
// StateBuffer holds the smoothed luminance as a single f32 and is what
// tone mapping binds.
type View struct {
	ae   *AutoExposure
	id   ViewID
	slot uint32

	params    gpucore.BufferID
	histogram gpucore.BufferID
	state     gpucore.BufferID

	// Guarded by ae.mu.
	settings  Settings
	curve     CurveHandle
	mask      MaskHandle
	pipelines [passCount]gpucore.ComputePipelineID
	enabled   bool
	err       error
}

// ID returns the view identifier.
func (v *View) ID() ViewID { return v.id }

// StateBuffer returns the 4-byte buffer holding the smoothed luminance.
func (v *View) StateBuffer() gpucore.BufferID { return v.state }

// HistogramBuffer returns the 256-byte histogram buffer.
func (v *View) HistogramBuffer() gpucore.BufferID { return v.histogram }

// Settings returns the view's current settings.
func (v *View) Settings() Settings {
	v.ae.mu.Lock()
	defer v.ae.mu.Unlock()
	return v.settings
}

// Parameters returns the parameter block derived from the settings.
func (v *View) Parameters() Parameters {
	return v.Settings().Parameters()
}

// Assets returns the curve and mask handles the view references.
func (v *View) Assets() (CurveHandle, MaskHandle) {
	v.ae.mu.Lock()
	defer v.ae.mu.Unlock()
	return v.curve, v.mask
}

// Enabled reports whether the view is dispatched. A view is disabled
// while one of its pipelines fails to build.
func (v *View) Enabled() bool {
	v.ae.mu.Lock()
	defer v.ae.mu.Unlock()
	return v.enabled
}

// Err returns the pipeline build error that disabled the view, if any.
func (v *View) Err() error {
	v.ae.mu.Lock()
	defer v.ae.mu.Unlock()
	return v.err
}

// Pipeline returns the pipeline the view uses for pass, or InvalidID
// while the view is disabled.
func (v *View) Pipeline(pass Pass) gpucore.ComputePipelineID {
	v.ae.mu.Lock()
	defer v.ae.mu.Unlock()
	if pass >= passCount {
		return gpucore.InvalidID
	}
	return v.pipelines[pass]
}

// ReadLuminance reads the state buffer back. Meant for debugging and
// tests; it stalls until the GPU is idle.
func (v *View) ReadLuminance() (float32, error) {
	b, err := v.ae.adapter.ReadBuffer(v.state, 0, kernel.StateSize)
	if err != nil {
		return 0, fmt.Errorf("autoexposure: read state: %w", err)
	}
	return kernel.ParseState(b)
}

// ReadHistogram reads the histogram of the last dispatch back.
func (v *View) ReadHistogram() (Histogram, error) {
	b, err := v.ae.adapter.ReadBuffer(v.histogram, 0, kernel.HistogramSize)
	if err != nil {
		return Histogram{}, fmt.Errorf("autoexposure: read histogram: %w", err)
	}
	return kernel.ParseHistogram(b)
}

// Viewport is the metered region of the color target in texels.
type Viewport struct {
	X, Y          uint32
	Width, Height uint32
}

// ViewFrame binds a view to this frame's color target.
type ViewFrame struct {
	View     ViewID
	Color    gpucore.TextureID
	Viewport Viewport
}

// Frame is the input of one Dispatch.
type Frame struct {
	// DeltaTime is the time since the previous frame in seconds.
	DeltaTime float32
	// Views lists the views to meter. Views not listed keep their state.
	Views []ViewFrame
}

func (f ViewFrame) uniform(dt float32, frame uint32) ViewUniform {
	return ViewUniform{
		Viewport: [4]float32{
			float32(f.Viewport.X), float32(f.Viewport.Y),
			float32(f.Viewport.Width), float32(f.Viewport.Height),
		},
		DeltaTime:  dt,
		FrameIndex: frame,
	}
}
