// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/autoexposure/gpucore"
)

func convertBufferUsage(u gpucore.BufferUsage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u&gpucore.BufferUsageMapRead != 0 {
		out |= gputypes.BufferUsageMapRead
	}
	if u&gpucore.BufferUsageMapWrite != 0 {
		out |= gputypes.BufferUsageMapWrite
	}
	if u&gpucore.BufferUsageCopySrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	if u&gpucore.BufferUsageCopyDst != 0 {
		out |= gputypes.BufferUsageCopyDst
	}
	if u&gpucore.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if u&gpucore.BufferUsageStorage != 0 {
		out |= gputypes.BufferUsageStorage
	}
	return out
}

func convertTextureUsage(u gpucore.TextureUsage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&gpucore.TextureUsageCopySrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if u&gpucore.TextureUsageCopyDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	if u&gpucore.TextureUsageTextureBinding != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&gpucore.TextureUsageRenderAttachment != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	return out
}

func convertTextureFormat(f gpucore.TextureFormat) (gputypes.TextureFormat, error) {
	switch f {
	case gpucore.TextureFormatR8Unorm:
		return gputypes.TextureFormatR8Unorm, nil
	case gpucore.TextureFormatR32Float:
		return gputypes.TextureFormatR32Float, nil
	case gpucore.TextureFormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float, nil
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float, nil
	}
	return 0, fmt.Errorf("gpu: unsupported texture format %d", f)
}

func convertDimension(d gpucore.TextureDimension) (gputypes.TextureDimension, gputypes.TextureViewDimension) {
	if d == gpucore.TextureDimension1D {
		return gputypes.TextureDimension1D, gputypes.TextureViewDimension1D
	}
	return gputypes.TextureDimension2D, gputypes.TextureViewDimension2D
}

func convertSampleType(t gpucore.TextureSampleType) gputypes.TextureSampleType {
	if t == gpucore.TextureSampleTypeUnfilterableFloat {
		return gputypes.TextureSampleTypeUnfilterableFloat
	}
	return gputypes.TextureSampleTypeFloat
}

func convertLayoutEntry(e gpucore.BindGroupLayoutEntry) (gputypes.BindGroupLayoutEntry, error) {
	out := gputypes.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: gputypes.ShaderStageCompute,
	}
	buffer := func(t gputypes.BufferBindingType) *gputypes.BufferBindingLayout {
		return &gputypes.BufferBindingLayout{
			Type:             t,
			HasDynamicOffset: e.HasDynamicOffset,
			MinBindingSize:   e.MinBindingSize,
		}
	}
	switch e.Type {
	case gpucore.BindingTypeUniformBuffer:
		out.Buffer = buffer(gputypes.BufferBindingTypeUniform)
	case gpucore.BindingTypeStorageBuffer:
		out.Buffer = buffer(gputypes.BufferBindingTypeStorage)
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		out.Buffer = buffer(gputypes.BufferBindingTypeReadOnlyStorage)
	case gpucore.BindingTypeSampledTexture:
		_, view := convertDimension(e.ViewDimension)
		out.Texture = &gputypes.TextureBindingLayout{
			SampleType:    convertSampleType(e.SampleType),
			ViewDimension: view,
		}
	default:
		return out, fmt.Errorf("gpu: binding %d has unknown type %d", e.Binding, e.Type)
	}
	return out, nil
}
