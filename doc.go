// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package autoexposure adapts camera exposure to scene brightness on the GPU.
//
// # Overview
//
// Every frame, two compute passes run per view. The Histogram pass bins
// the log2 luminance of each pixel in the view's viewport into 64
// buckets, weighting pixels by a metering mask and a compensation curve.
// The Average pass drops the darkest and brightest fractions of the
// histogram mass, averages the rest and eases the view's stored
// luminance toward that target with separate rates for brightening and
// darkening. Tone mapping reads the stored luminance from the view's
// state buffer.
//
// # Quick Start
//
//	ae, err := autoexposure.New(adapter)
//	if err != nil {
//	    return err
//	}
//	defer ae.Close()
//
//	view, err := ae.AddView(autoexposure.ViewConfig{})
//	...
//	err = ae.Dispatch(autoexposure.Frame{
//	    DeltaTime: dt,
//	    Views: []autoexposure.ViewFrame{{
//	        View:     view.ID(),
//	        Color:    hdrTarget,
//	        Viewport: autoexposure.Viewport{Width: w, Height: h},
//	    }},
//	})
//
// # Adapters
//
// AutoExposure drives any gpucore.GPUAdapter. internal/software runs the
// kernels on the CPU and is used for tests and headless runs;
// internal/gpu runs the WGSL module on a wgpu HAL device.
//
// # Pipelines
//
// The two passes share one bind group layout (LayoutEntries) and one
// shader module, so their pipelines are built once and shared by all
// views. A pipeline that fails to build disables the views needing it
// until the next ReloadShader, SetCurve, SetMask or Retry.
//
// # Logging
//
// The package is silent by default. SetLogger installs a *slog.Logger
// for this package and the adapters it drives.
package autoexposure
