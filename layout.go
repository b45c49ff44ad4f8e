// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/kernel"
)

// Binding slots of the shared layout, in declaration order.
const (
	BindingParameters uint32 = iota
	BindingColor
	BindingMask
	BindingCurveLUT
	BindingCurve
	BindingHistogram
	BindingState
	BindingView
)

// ViewUniform is the per-view record at binding 7.
type ViewUniform = kernel.ViewUniform

// ViewUniformStride is the default distance between view records in
// the shared view buffer. Adapters with a larger offset alignment raise it.
const ViewUniformStride = 256

// paramsBufferSize rounds the 36-byte parameter block up to the 16-byte
// uniform struct alignment.
const paramsBufferSize = 48

// LayoutEntries returns the bind group layout both passes share. The
// order is part of the shader contract.
func LayoutEntries() []gpucore.BindGroupLayoutEntry {
	return []gpucore.BindGroupLayoutEntry{
		{Binding: BindingParameters, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.ParamsSize},
		{
			Binding:       BindingColor,
			Type:          gpucore.BindingTypeSampledTexture,
			SampleType:    gpucore.TextureSampleTypeUnfilterableFloat,
			ViewDimension: gpucore.TextureDimension2D,
		},
		{
			Binding:       BindingMask,
			Type:          gpucore.BindingTypeSampledTexture,
			SampleType:    gpucore.TextureSampleTypeUnfilterableFloat,
			ViewDimension: gpucore.TextureDimension2D,
		},
		{
			Binding:       BindingCurveLUT,
			Type:          gpucore.BindingTypeSampledTexture,
			SampleType:    gpucore.TextureSampleTypeUnfilterableFloat,
			ViewDimension: gpucore.TextureDimension1D,
		},
		{Binding: BindingCurve, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.CurveUniformSize},
		{Binding: BindingHistogram, Type: gpucore.BindingTypeStorageBuffer, MinBindingSize: kernel.HistogramSize},
		{Binding: BindingState, Type: gpucore.BindingTypeStorageBuffer, MinBindingSize: kernel.StateSize},
		{
			Binding:          BindingView,
			Type:             gpucore.BindingTypeReadOnlyStorageBuffer,
			MinBindingSize:   kernel.ViewUniformSize,
			HasDynamicOffset: true,
		},
	}
}
