// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/autoexposure"
	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/kernel"
)

func TestCompileExposureShader(t *testing.T) {
	words, err := CompileWGSL(autoexposure.ShaderSource())
	if err != nil {
		t.Fatalf("CompileWGSL: %v", err)
	}
	if len(words) < 5 {
		t.Fatalf("SPIR-V too short: %d words", len(words))
	}
	if words[0] != SPIRVMagic {
		t.Errorf("magic = %#08x, want %#08x", words[0], SPIRVMagic)
	}

	got := spirvEntryPoints(words)
	for _, p := range autoexposure.Passes {
		if model, ok := got[p.EntryPoint()]; !ok {
			t.Errorf("SPIR-V lacks OpEntryPoint %s (have %v)", p.EntryPoint(), got)
		} else if model != spirvExecutionModelGLCompute {
			t.Errorf("%s execution model = %d, want GLCompute", p.EntryPoint(), model)
		}
	}
}

func TestExposureShaderEntryPoints(t *testing.T) {
	src := autoexposure.ShaderSource()
	ast, err := naga.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		t.Fatalf("LowerWithSource: %v", err)
	}

	want := map[string][3]uint32{
		autoexposure.PassHistogram.EntryPoint(): {kernel.HistogramWorkgroupSize, kernel.HistogramWorkgroupSize, 1},
		autoexposure.PassAverage.EntryPoint():   {kernel.AverageWorkgroupSize, 1, 1},
	}
	for _, ep := range module.EntryPoints {
		size, ok := want[ep.Name]
		if !ok {
			continue
		}
		delete(want, ep.Name)
		if ep.Stage != ir.StageCompute {
			t.Errorf("%s stage = %v, want compute", ep.Name, ep.Stage)
		}
		if ep.Workgroup != size {
			t.Errorf("%s workgroup = %v, want %v", ep.Name, ep.Workgroup, size)
		}
	}
	for name := range want {
		t.Errorf("entry point %s missing from lowered module", name)
	}
}

// A vector relational reduction in a bounds check is the shape the
// histogram kernel must avoid; the scalar form has to keep compiling.
func TestCompileScalarBoundsCheck(t *testing.T) {
	src := `
@group(0) @binding(0) var tex: texture_2d<f32>;
@group(0) @binding(1) var<storage, read_write> out: array<f32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let size = vec2<u32>(4u, 4u);
    let dims = textureDimensions(tex);
    if gid.x < size.x && gid.y < size.y && gid.x < dims.x && gid.y < dims.y {
        out[gid.y * 4u + gid.x] = textureLoad(tex, gid.xy, 0).r;
    }
}
`
	if _, err := CompileWGSL(src); err != nil {
		t.Fatalf("CompileWGSL: %v", err)
	}
}

const (
	spirvOpEntryPoint            = 15
	spirvExecutionModelGLCompute = 5
)

// spirvEntryPoints maps each OpEntryPoint name to its execution model.
func spirvEntryPoints(words []uint32) map[string]uint32 {
	out := make(map[string]uint32)
	for i := 5; i < len(words); {
		count := int(words[i] >> 16)
		if count == 0 || i+count > len(words) {
			break
		}
		if words[i]&0xffff == spirvOpEntryPoint && count > 3 {
			var name []byte
		scan:
			for _, w := range words[i+3 : i+count] {
				for shift := 0; shift < 32; shift += 8 {
					c := byte(w >> shift)
					if c == 0 {
						break scan
					}
					name = append(name, c)
				}
			}
			out[string(name)] = words[i+1]
		}
		i += count
	}
	return out
}

func TestCompileWGSLRejectsGarbage(t *testing.T) {
	if _, err := CompileWGSL("fn ("); err == nil {
		t.Error("CompileWGSL accepted invalid source")
	}
}

func TestConvertLayoutEntries(t *testing.T) {
	for _, e := range autoexposure.LayoutEntries() {
		out, err := convertLayoutEntry(e)
		if err != nil {
			t.Fatalf("binding %d: %v", e.Binding, err)
		}
		if out.Binding != e.Binding || out.Visibility != gputypes.ShaderStageCompute {
			t.Errorf("binding %d converted to %+v", e.Binding, out)
		}
		if e.Type.IsBuffer() {
			if out.Buffer == nil || out.Texture != nil {
				t.Fatalf("binding %d: buffer layout missing", e.Binding)
			}
			if out.Buffer.MinBindingSize != e.MinBindingSize || out.Buffer.HasDynamicOffset != e.HasDynamicOffset {
				t.Errorf("binding %d buffer = %+v", e.Binding, out.Buffer)
			}
			continue
		}
		if out.Texture == nil || out.Buffer != nil {
			t.Fatalf("binding %d: texture layout missing", e.Binding)
		}
		if out.Texture.SampleType != gputypes.TextureSampleTypeUnfilterableFloat {
			t.Errorf("binding %d sample type = %v", e.Binding, out.Texture.SampleType)
		}
	}

	curve, _ := convertLayoutEntry(autoexposure.LayoutEntries()[autoexposure.BindingCurveLUT])
	if curve.Texture.ViewDimension != gputypes.TextureViewDimension1D {
		t.Errorf("curve LUT view dimension = %v, want 1D", curve.Texture.ViewDimension)
	}
	view, _ := convertLayoutEntry(autoexposure.LayoutEntries()[autoexposure.BindingView])
	if view.Buffer.Type != gputypes.BufferBindingTypeReadOnlyStorage {
		t.Errorf("view binding type = %v, want read-only storage", view.Buffer.Type)
	}

	if _, err := convertLayoutEntry(gpucore.BindGroupLayoutEntry{Binding: 9}); err == nil {
		t.Error("unknown binding type accepted")
	}
}

func TestConvertTextureFormat(t *testing.T) {
	tests := []struct {
		in   gpucore.TextureFormat
		want gputypes.TextureFormat
	}{
		{gpucore.TextureFormatR8Unorm, gputypes.TextureFormatR8Unorm},
		{gpucore.TextureFormatR32Float, gputypes.TextureFormatR32Float},
		{gpucore.TextureFormatRGBA16Float, gputypes.TextureFormatRGBA16Float},
		{gpucore.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Float},
	}
	for _, tt := range tests {
		got, err := convertTextureFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("convertTextureFormat(%d) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := convertTextureFormat(0); err == nil {
		t.Error("format 0 accepted")
	}
}

func TestConvertUsage(t *testing.T) {
	got := convertBufferUsage(gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst | gpucore.BufferUsageCopySrc)
	want := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	if got != want {
		t.Errorf("convertBufferUsage = %v, want %v", got, want)
	}
	upload := convertBufferUsage(gpucore.BufferUsageMapWrite | gpucore.BufferUsageCopySrc)
	if upload != gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc {
		t.Errorf("convertBufferUsage(upload) = %v", upload)
	}
	tex := convertTextureUsage(gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst)
	if tex != gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst {
		t.Errorf("convertTextureUsage = %v", tex)
	}
}

// plainProvider is a DeviceProvider without HAL accessors.
type plainProvider struct{}

func (plainProvider) Device() gpucontext.Device             { return nil }
func (plainProvider) Queue() gpucontext.Queue               { return nil }
func (plainProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (plainProvider) Adapter() gpucontext.Adapter           { return nil }
func (plainProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }

// nilHALProvider exposes HAL accessors that return nothing usable.
type nilHALProvider struct{ plainProvider }

func (nilHALProvider) HalDevice() any { return nil }
func (nilHALProvider) HalQueue() any  { return nil }

func TestNewFromProviderRejects(t *testing.T) {
	for name, p := range map[string]gpucontext.DeviceProvider{
		"nil":     nil,
		"no hal":  plainProvider{},
		"nil hal": nilHALProvider{},
	} {
		if _, err := NewFromProvider(p); !errors.Is(err, ErrProviderNotHAL) {
			t.Errorf("%s: err = %v, want ErrProviderNotHAL", name, err)
		}
	}
	if _, err := NewAdapter(nil, nil, nil); err == nil {
		t.Error("NewAdapter(nil, nil) succeeded")
	}
}
