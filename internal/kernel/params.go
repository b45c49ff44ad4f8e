// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel holds the CPU reference of the auto-exposure compute
// kernels and the byte layouts of the data they share with the GPU.
//
// Every function here mirrors a piece of shaders/auto_exposure.wgsl and
// uses float32 arithmetic so the two produce the same buckets and the
// same smoothed luminance for the same inputs.
package kernel

import (
	"encoding/binary"
	"errors"
	"math"
)

// Histogram and buffer geometry shared with the shader.
const (
	// HistogramBins is the number of log-luminance buckets.
	HistogramBins = 64

	// WeightScale converts a fractional per-pixel weight into the integer
	// units the histogram accumulates. A full-weight pixel adds 16.
	WeightScale = 16

	// CurveLUTSize is the texel count of the compensation curve strip.
	CurveLUTSize = 256

	// HistogramWorkgroupSize is the 2D workgroup edge of compute_histogram.
	HistogramWorkgroupSize = 16

	// AverageWorkgroupSize is the 1D workgroup size of compute_average.
	AverageWorkgroupSize = HistogramBins

	// ParamsSize is the byte size of Params.
	ParamsSize = 36

	// CurveUniformSize is the byte size of CurveUniform.
	CurveUniformSize = 16

	// ViewUniformSize is the byte size of ViewUniform.
	ViewUniformSize = 32

	// HistogramSize is the byte size of the histogram buffer.
	HistogramSize = HistogramBins * 4

	// StateSize is the byte size of the per-view luminance state.
	StateSize = 4
)

// ErrShortBuffer is returned when decoding from a too-small byte slice.
var ErrShortBuffer = errors.New("kernel: buffer too short")

// Params is the derived exposure parameter block bound at slot 0.
// Field order is the GPU byte layout: nine little-endian float32 values.
type Params struct {
	MinLogLuminance      float32
	InvLogLuminanceRange float32
	LogLuminanceRange    float32
	LowPercent           float32
	HighPercent          float32
	SpeedUp              float32
	SpeedDown            float32
	ExpUp                float32
	ExpDown              float32
}

// MaxLogLuminance returns the upper end of the log-luminance range.
func (p Params) MaxLogLuminance() float32 {
	return p.MinLogLuminance + p.LogLuminanceRange
}

// Bytes returns the 36-byte GPU representation.
func (p Params) Bytes() []byte {
	return putFloats(make([]byte, ParamsSize),
		p.MinLogLuminance, p.InvLogLuminanceRange, p.LogLuminanceRange,
		p.LowPercent, p.HighPercent,
		p.SpeedUp, p.SpeedDown, p.ExpUp, p.ExpDown)
}

// ParseParams decodes the GPU representation produced by Params.Bytes.
func ParseParams(b []byte) (Params, error) {
	if len(b) < ParamsSize {
		return Params{}, ErrShortBuffer
	}
	f := floats(b, 9)
	return Params{
		MinLogLuminance:      f[0],
		InvLogLuminanceRange: f[1],
		LogLuminanceRange:    f[2],
		LowPercent:           f[3],
		HighPercent:          f[4],
		SpeedUp:              f[5],
		SpeedDown:            f[6],
		ExpUp:                f[7],
		ExpDown:              f[8],
	}, nil
}

// CurveUniform maps log-luminance onto the curve strip and decodes texel
// values back to weights: weight = MinCompensation + texel*CompensationRange.
type CurveUniform struct {
	MinLogLuminance      float32
	InvLogLuminanceRange float32
	MinCompensation      float32
	CompensationRange    float32
}

// Bytes returns the 16-byte GPU representation.
func (c CurveUniform) Bytes() []byte {
	return putFloats(make([]byte, CurveUniformSize),
		c.MinLogLuminance, c.InvLogLuminanceRange, c.MinCompensation, c.CompensationRange)
}

// ParseCurveUniform decodes the GPU representation produced by CurveUniform.Bytes.
func ParseCurveUniform(b []byte) (CurveUniform, error) {
	if len(b) < CurveUniformSize {
		return CurveUniform{}, ErrShortBuffer
	}
	f := floats(b, 4)
	return CurveUniform{f[0], f[1], f[2], f[3]}, nil
}

// ViewUniform is the per-view block bound at slot 7 with a dynamic offset.
// Viewport is x, y, width, height in texels of the scene color target.
type ViewUniform struct {
	Viewport   [4]float32
	DeltaTime  float32
	FrameIndex uint32
}

// Bytes returns the 32-byte GPU representation; the trailing 8 bytes are padding.
func (v ViewUniform) Bytes() []byte {
	b := putFloats(make([]byte, ViewUniformSize),
		v.Viewport[0], v.Viewport[1], v.Viewport[2], v.Viewport[3], v.DeltaTime)
	binary.LittleEndian.PutUint32(b[20:], v.FrameIndex)
	return b
}

// ParseViewUniform decodes the GPU representation produced by ViewUniform.Bytes.
func ParseViewUniform(b []byte) (ViewUniform, error) {
	if len(b) < ViewUniformSize {
		return ViewUniform{}, ErrShortBuffer
	}
	f := floats(b, 5)
	return ViewUniform{
		Viewport:   [4]float32{f[0], f[1], f[2], f[3]},
		DeltaTime:  f[4],
		FrameIndex: binary.LittleEndian.Uint32(b[20:]),
	}, nil
}

// StateBytes encodes a luminance state value.
func StateBytes(lum float32) []byte {
	return putFloats(make([]byte, StateSize), lum)
}

// ParseState decodes a luminance state value.
func ParseState(b []byte) (float32, error) {
	if len(b) < StateSize {
		return 0, ErrShortBuffer
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func putFloats(b []byte, vs ...float32) []byte {
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func floats(b []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
