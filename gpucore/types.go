// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

// Resource IDs
//
// These opaque IDs represent GPU resources. Each adapter implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be mapped for reading.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageMapWrite indicates the buffer can be mapped for writing.
	BufferUsageMapWrite BufferUsage = 1 << 1

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatR8Unorm is 8-bit red channel only, normalized unsigned integer.
	TextureFormatR8Unorm TextureFormat = iota + 1

	// TextureFormatR32Float is 32-bit red channel only, floating point.
	TextureFormatR32Float

	// TextureFormatRGBA16Float is 16-bit RGBA, floating point.
	TextureFormatRGBA16Float

	// TextureFormatRGBA32Float is 32-bit RGBA, floating point.
	TextureFormatRGBA32Float
)

// BytesPerTexel returns the size of one texel of the format in bytes,
// or 0 for an unknown format.
func (f TextureFormat) BytesPerTexel() int {
	switch f {
	case TextureFormatR8Unorm:
		return 1
	case TextureFormatR32Float:
		return 4
	case TextureFormatRGBA16Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// Channels returns the number of color channels stored per texel.
func (f TextureFormat) Channels() int {
	switch f {
	case TextureFormatR8Unorm, TextureFormatR32Float:
		return 1
	case TextureFormatRGBA16Float, TextureFormatRGBA32Float:
		return 4
	default:
		return 0
	}
}

// TextureDimension is the dimensionality of a texture or texture view.
type TextureDimension uint32

// Texture dimensions.
const (
	// TextureDimension2D is a two-dimensional texture. It is the zero value.
	TextureDimension2D TextureDimension = iota

	// TextureDimension1D is a one-dimensional texture (height 1).
	TextureDimension1D
)

// String returns the WGSL-style name of the dimension.
func (d TextureDimension) String() string {
	switch d {
	case TextureDimension1D:
		return "1d"
	case TextureDimension2D:
		return "2d"
	default:
		return "unknown"
	}
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageTextureBinding indicates the texture can be bound as a sampled texture.
	TextureUsageTextureBinding TextureUsage = 1 << 2

	// TextureUsageRenderAttachment indicates the texture can be used as a render target.
	TextureUsageRenderAttachment TextureUsage = 1 << 4
)

// TextureDesc describes a texture.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture size in texels. Height must be 1
	// for one-dimensional textures.
	Width  uint32
	Height uint32

	// Dimension is the texture dimensionality.
	Dimension TextureDimension

	// Format is the texel format.
	Format TextureFormat

	// Usage is the texture usage bitmask.
	Usage TextureUsage
}

// ShaderModuleDesc describes a shader module. Source is WGSL; adapters
// that need another representation compile it themselves.
type ShaderModuleDesc struct {
	// Label is an optional debug label.
	Label string

	// WGSL is the shader source text.
	WGSL string
}

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer

	// BindingTypeSampledTexture is a sampled texture binding.
	BindingTypeSampledTexture
)

// String returns a short name for the binding type.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "uniform"
	case BindingTypeStorageBuffer:
		return "storage"
	case BindingTypeReadOnlyStorageBuffer:
		return "read-only-storage"
	case BindingTypeSampledTexture:
		return "texture"
	default:
		return "unknown"
	}
}

// IsBuffer reports whether the binding type binds a buffer.
func (t BindingType) IsBuffer() bool {
	return t == BindingTypeUniformBuffer || t == BindingTypeStorageBuffer || t == BindingTypeReadOnlyStorageBuffer
}

// TextureSampleType is the component type a texture binding exposes to shaders.
type TextureSampleType uint32

// Texture sample types.
const (
	// TextureSampleTypeFloat is a filterable float texture.
	TextureSampleTypeFloat TextureSampleType = iota

	// TextureSampleTypeUnfilterableFloat is a float texture that can only be loaded.
	TextureSampleTypeUnfilterableFloat
)

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// ShaderModule contains the compute shader.
	ShaderModule ShaderModuleID

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Type is the type of resource bound at this index.
	Type BindingType

	// MinBindingSize is the minimum buffer size for buffer bindings.
	// Set to 0 for non-buffer bindings.
	MinBindingSize uint64

	// HasDynamicOffset marks a buffer binding whose offset is supplied
	// at SetBindGroup time.
	HasDynamicOffset bool

	// SampleType and ViewDimension describe texture bindings.
	SampleType    TextureSampleType
	ViewDimension TextureDimension
}

// BindGroupEntry describes a single binding in a bind group.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind (for buffer bindings).
	Buffer BufferID

	// Offset is the offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer from offset.
	Size uint64

	// Texture is the texture to bind (for texture bindings).
	Texture TextureID
}
