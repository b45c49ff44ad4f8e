// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/kernel"
)

const testShader = `
fn compute_histogram(gid: vec3<u32>) {}
fn compute_average(i: u32) {}
`

func testLayout() []gpucore.BindGroupLayoutEntry {
	tex := func(b uint32, dim gpucore.TextureDimension) gpucore.BindGroupLayoutEntry {
		return gpucore.BindGroupLayoutEntry{
			Binding: b, Type: gpucore.BindingTypeSampledTexture,
			SampleType: gpucore.TextureSampleTypeUnfilterableFloat, ViewDimension: dim,
		}
	}
	return []gpucore.BindGroupLayoutEntry{
		{Binding: 0, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.ParamsSize},
		tex(1, gpucore.TextureDimension2D),
		tex(2, gpucore.TextureDimension2D),
		tex(3, gpucore.TextureDimension1D),
		{Binding: 4, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: kernel.CurveUniformSize},
		{Binding: 5, Type: gpucore.BindingTypeStorageBuffer, MinBindingSize: kernel.HistogramSize},
		{Binding: 6, Type: gpucore.BindingTypeStorageBuffer, MinBindingSize: kernel.StateSize},
		{Binding: 7, Type: gpucore.BindingTypeReadOnlyStorageBuffer, MinBindingSize: kernel.ViewUniformSize, HasDynamicOffset: true},
	}
}

func mustBuffer(t *testing.T, a *Adapter, size int) gpucore.BufferID {
	t.Helper()
	id, err := a.CreateBuffer(size, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	return id
}

func mustTexture(t *testing.T, a *Adapter, w, h uint32, dim gpucore.TextureDimension, f gpucore.TextureFormat, pix []float32) gpucore.TextureID {
	t.Helper()
	id, err := a.CreateTexture(&gpucore.TextureDesc{Width: w, Height: h, Dimension: dim, Format: f})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	b := make([]byte, len(pix)*4)
	for i, v := range pix {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	if err := a.WriteTexture(id, b); err != nil {
		t.Fatalf("WriteTexture: %v", err)
	}
	return id
}

type rig struct {
	a         *Adapter
	layout    gpucore.BindGroupLayoutID
	hist      gpucore.ComputePipelineID
	avg       gpucore.ComputePipelineID
	histogram gpucore.BufferID
	state     gpucore.BufferID
	group     gpucore.BindGroupID
}

// newRig binds a w x h image of constant luminance 1 with a flat curve.
func newRig(t *testing.T, w, h uint32, params kernel.Params, dt float32, opts ...Option) *rig {
	t.Helper()
	a := New(opts...)
	t.Cleanup(a.Close)
	bgl, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{Entries: testLayout()})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout: %v", err)
	}
	pl, err := a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bgl})
	if err != nil {
		t.Fatalf("CreatePipelineLayout: %v", err)
	}
	mod, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{WGSL: testShader})
	if err != nil {
		t.Fatalf("CreateShaderModule: %v", err)
	}
	r := &rig{a: a, layout: bgl}
	for entry, dst := range map[string]*gpucore.ComputePipelineID{
		"compute_histogram": &r.hist,
		"compute_average":   &r.avg,
	} {
		if *dst, err = a.CreateComputePipeline(&gpucore.ComputePipelineDesc{Layout: pl, ShaderModule: mod, EntryPoint: entry}); err != nil {
			t.Fatalf("CreateComputePipeline(%s): %v", entry, err)
		}
	}

	params0 := mustBuffer(t, a, 48)
	a.WriteBuffer(params0, 0, params.Bytes())
	curve := mustBuffer(t, a, kernel.CurveUniformSize)
	a.WriteBuffer(curve, 0, kernel.CurveUniform{
		MinLogLuminance: -1, InvLogLuminanceRange: 0.5, MinCompensation: 1,
	}.Bytes())
	r.histogram = mustBuffer(t, a, kernel.HistogramSize)
	r.state = mustBuffer(t, a, kernel.StateSize)
	a.WriteBuffer(r.state, 0, kernel.StateBytes(0.25))
	views := mustBuffer(t, a, 512)
	a.WriteBuffer(views, 256, kernel.ViewUniform{Viewport: [4]float32{0, 0, float32(w), float32(h)}, DeltaTime: dt}.Bytes())

	color := make([]float32, w*h*4)
	for i := range color {
		color[i] = 1
	}
	entries := []gpucore.BindGroupEntry{
		{Binding: 0, Buffer: params0, Size: kernel.ParamsSize},
		{Binding: 1, Texture: mustTexture(t, a, w, h, gpucore.TextureDimension2D, gpucore.TextureFormatRGBA32Float, color)},
		{Binding: 2, Texture: mustTexture(t, a, 1, 1, gpucore.TextureDimension2D, gpucore.TextureFormatR32Float, []float32{1})},
		{Binding: 3, Texture: mustTexture(t, a, 4, 1, gpucore.TextureDimension1D, gpucore.TextureFormatR32Float, make([]float32, 4))},
		{Binding: 4, Buffer: curve},
		{Binding: 5, Buffer: r.histogram},
		{Binding: 6, Buffer: r.state},
		{Binding: 7, Buffer: views, Size: kernel.ViewUniformSize},
	}
	if r.group, err = a.CreateBindGroup(bgl, entries); err != nil {
		t.Fatalf("CreateBindGroup: %v", err)
	}
	return r
}

func (r *rig) run(t *testing.T, p gpucore.ComputePipelineID, x, y uint32, offsets []uint32) error {
	t.Helper()
	pass := r.a.BeginComputePass("test")
	pass.SetPipeline(p)
	pass.SetBindGroup(0, r.group, offsets)
	pass.Dispatch(x, y, 1)
	pass.End()
	return r.a.Submit()
}

func defaultParams() kernel.Params {
	return kernel.Params{
		MinLogLuminance: -10, InvLogLuminanceRange: 1.0 / 20, LogLuminanceRange: 20,
		LowPercent: 0.1, HighPercent: 0.9, SpeedUp: 3, SpeedDown: 1, ExpUp: 1, ExpDown: 1,
	}
}

func TestHistogramAndAverage(t *testing.T) {
	r := newRig(t, 20, 10, defaultParams(), 1)

	// 20x10 needs 2x1 workgroups.
	if err := r.run(t, r.hist, 2, 1, []uint32{256}); err != nil {
		t.Fatalf("histogram: %v", err)
	}
	raw, _ := r.a.ReadBuffer(r.histogram, 0, kernel.HistogramSize)
	h, _ := kernel.ParseHistogram(raw)
	if h[32] != 200*kernel.WeightScale || h.Total() != h[32] {
		t.Fatalf("histogram bucket 32 = %d total %d, want %d", h[32], h.Total(), 200*kernel.WeightScale)
	}

	if err := r.run(t, r.avg, 1, 1, []uint32{256}); err != nil {
		t.Fatalf("average: %v", err)
	}
	raw, _ = r.a.ReadBuffer(r.state, 0, 4)
	got, _ := kernel.ParseState(raw)
	want := 0.25 + 0.75*(1-math.Exp(-3))
	if math.Abs(float64(got)-want) > 1e-5 {
		t.Errorf("state = %v, want %v", got, want)
	}
	if s := r.a.Stats(); s.Dispatches != 2 || s.Submits != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestParallelHistogram(t *testing.T) {
	// 100x70 needs 7x5 workgroups, the last row and column partial.
	for _, workers := range []int{1, 3, 8} {
		r := newRig(t, 100, 70, defaultParams(), 1, WithWorkers(workers))
		if err := r.run(t, r.hist, 7, 5, []uint32{256}); err != nil {
			t.Fatalf("workers=%d: histogram: %v", workers, err)
		}
		raw, _ := r.a.ReadBuffer(r.histogram, 0, kernel.HistogramSize)
		h, _ := kernel.ParseHistogram(raw)
		if want := uint32(100 * 70 * kernel.WeightScale); h[32] != want || h.Total() != want {
			t.Errorf("workers=%d: bucket 32 = %d total %d, want %d", workers, h[32], h.Total(), want)
		}
	}
}

func TestDynamicOffsetValidation(t *testing.T) {
	r := newRig(t, 4, 4, defaultParams(), 1)
	tests := []struct {
		name    string
		offsets []uint32
	}{
		{"missing", nil},
		{"unaligned", []uint32{100}},
		{"out of range", []uint32{512}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.run(t, r.hist, 1, 1, tt.offsets); err == nil {
				t.Error("Submit succeeded, want error")
			}
		})
	}
}

func TestEntryPointMissing(t *testing.T) {
	a := New()
	bgl, _ := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{Entries: testLayout()})
	pl, _ := a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bgl})
	mod, _ := a.CreateShaderModule(&gpucore.ShaderModuleDesc{WGSL: "fn compute_histogram() {}"})

	_, err := a.CreateComputePipeline(&gpucore.ComputePipelineDesc{Layout: pl, ShaderModule: mod, EntryPoint: "compute_average"})
	if !errors.Is(err, ErrEntryPointMissing) {
		t.Errorf("CreateComputePipeline = %v, want ErrEntryPointMissing", err)
	}
	if s := a.Stats(); s.PipelineFailures != 1 || s.PipelinesCreated != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestLayoutRejection(t *testing.T) {
	reject := errors.New("no 1d textures")
	a := New(WithLayoutRejection(reject))
	if _, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{Entries: testLayout()}); !errors.Is(err, reject) {
		t.Errorf("CreateBindGroupLayout = %v, want %v", err, reject)
	}
}

func TestBindGroupValidation(t *testing.T) {
	a := New()
	bgl, _ := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{Entries: testLayout()[:1]})
	small := mustBuffer(t, a, 16)
	if _, err := a.CreateBindGroup(bgl, []gpucore.BindGroupEntry{{Binding: 0, Buffer: small}}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("undersized binding: %v", err)
	}
	if _, err := a.CreateBindGroup(bgl, nil); err == nil {
		t.Error("missing binding accepted")
	}
}

func TestTextureFormats(t *testing.T) {
	a := New()
	if _, err := a.CreateTexture(&gpucore.TextureDesc{Width: 1, Height: 1, Format: gpucore.TextureFormatRGBA16Float}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("RGBA16Float: %v", err)
	}
	if _, err := a.CreateTexture(&gpucore.TextureDesc{Width: 4, Height: 2, Dimension: gpucore.TextureDimension1D, Format: gpucore.TextureFormatR32Float}); err == nil {
		t.Error("1d texture with height 2 accepted")
	}
	id, err := a.CreateTexture(&gpucore.TextureDesc{Width: 2, Height: 1, Format: gpucore.TextureFormatR8Unorm})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.WriteTexture(id, []byte{0, 255}); err != nil {
		t.Fatal(err)
	}
	p := decodePlane(a.textures[id])
	if p.Pix[0] != 0 || p.Pix[1] != 1 {
		t.Errorf("R8 decode = %v", p.Pix)
	}
	if err := a.WriteTexture(id, []byte{1}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("short write: %v", err)
	}
}

func TestLiveObjects(t *testing.T) {
	a := New()
	b := mustBuffer(t, a, 4)
	mod, _ := a.CreateShaderModule(&gpucore.ShaderModuleDesc{WGSL: testShader})
	if n := a.LiveObjects(); n != 2 {
		t.Fatalf("LiveObjects() = %d, want 2", n)
	}
	a.DestroyBuffer(b)
	a.DestroyShaderModule(mod)
	if n := a.LiveObjects(); n != 0 {
		t.Errorf("LiveObjects() = %d after destroy, want 0", n)
	}
}
