// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/kernel"
)

// CurveUniform is the 16-byte curve descriptor bound at binding 4.
type CurveUniform = kernel.CurveUniform

// CurveLUTSize is the texel width of the baked curve strip at binding 3.
const CurveLUTSize = kernel.CurveLUTSize

// CurvePoint is one control point of a compensation curve.
type CurvePoint struct {
	// LogLuminance is the scene luminance in EV.
	LogLuminance float32
	// Weight is the relative influence of that luminance on the
	// exposure estimate. Must be >= 0.
	Weight float32
}

// CompensationCurve is a piecewise-linear map from log-luminance to the
// weight a pixel of that luminance gets in the histogram. Outside its
// first and last points the curve is constant.
type CompensationCurve struct {
	points []CurvePoint
}

// NewCompensationCurve builds a curve from points sorted by strictly
// increasing LogLuminance.
func NewCompensationCurve(points ...CurvePoint) (*CompensationCurve, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrInvalidCurve)
	}
	for i, p := range points {
		if !finite(p.LogLuminance) || !finite(p.Weight) {
			return nil, fmt.Errorf("%w: point %d is not finite", ErrInvalidCurve, i)
		}
		if p.Weight < 0 {
			return nil, fmt.Errorf("%w: point %d has negative weight %v", ErrInvalidCurve, i, p.Weight)
		}
		if i > 0 && !(p.LogLuminance > points[i-1].LogLuminance) {
			return nil, fmt.Errorf("%w: point %d not after point %d", ErrInvalidCurve, i, i-1)
		}
	}
	return &CompensationCurve{points: append([]CurvePoint(nil), points...)}, nil
}

// checkCurve rejects nil and zero-value curves, which have no points.
func checkCurve(c *CompensationCurve) error {
	if c == nil {
		return fmt.Errorf("%w: nil curve", ErrInvalidCurve)
	}
	if len(c.points) == 0 {
		return fmt.Errorf("%w: no points; build curves with NewCompensationCurve", ErrInvalidCurve)
	}
	return nil
}

// FlatCurve returns the curve that weights every luminance equally.
func FlatCurve() *CompensationCurve {
	return &CompensationCurve{points: []CurvePoint{{LogLuminance: 0, Weight: 1}}}
}

// Points returns a copy of the control points.
func (c *CompensationCurve) Points() []CurvePoint {
	return append([]CurvePoint(nil), c.points...)
}

// Eval returns the weight at logLum.
func (c *CompensationCurve) Eval(logLum float32) float32 {
	pts := c.points
	if logLum <= pts[0].LogLuminance {
		return pts[0].Weight
	}
	last := pts[len(pts)-1]
	if logLum >= last.LogLuminance {
		return last.Weight
	}
	for i := 1; i < len(pts); i++ {
		b := pts[i]
		if logLum > b.LogLuminance {
			continue
		}
		a := pts[i-1]
		t := (logLum - a.LogLuminance) / (b.LogLuminance - a.LogLuminance)
		return a.Weight + (b.Weight-a.Weight)*t
	}
	return last.Weight
}

// Bake samples the curve into the uniform and the CurveLUTSize-texel
// strip the histogram kernel reads. Texels are normalized to [0, 1].
func (c *CompensationCurve) Bake() (CurveUniform, []float32) {
	lo := c.points[0].LogLuminance
	hi := c.points[len(c.points)-1].LogLuminance
	if len(c.points) == 1 {
		hi = lo + 1
	}

	minW, maxW := float32(math.MaxFloat32), float32(0)
	for _, p := range c.points {
		minW = min(minW, p.Weight)
		maxW = max(maxW, p.Weight)
	}

	lut := make([]float32, CurveLUTSize)
	if span := maxW - minW; span > 0 {
		for i := range lut {
			x := lo + (hi-lo)*float32(i)/float32(CurveLUTSize-1)
			lut[i] = (c.Eval(x) - minW) / span
		}
	}
	return CurveUniform{
		MinLogLuminance:      lo,
		InvLogLuminanceRange: 1 / (hi - lo),
		MinCompensation:      minW,
		CompensationRange:    maxW - minW,
	}, lut
}

// CurveHandle refers to a curve registered with AutoExposure.AddCurve.
// The zero handle selects the built-in flat curve.
type CurveHandle uuid.UUID

// IsZero reports whether h is the zero handle.
func (h CurveHandle) IsZero() bool { return h == CurveHandle{} }

func (h CurveHandle) String() string { return uuid.UUID(h).String() }

// curveResource is the GPU side of a registered curve.
type curveResource struct {
	uniform gpucore.BufferID
	lut     gpucore.TextureID
}

func newCurveResource(a gpucore.GPUAdapter, c *CompensationCurve, label string) (*curveResource, error) {
	uniform, err := a.CreateBuffer(kernel.CurveUniformSize, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
	if err != nil {
		return nil, fmt.Errorf("autoexposure: create curve uniform: %w", err)
	}
	lut, err := a.CreateTexture(&gpucore.TextureDesc{
		Label:     label + "_curve_lut",
		Width:     CurveLUTSize,
		Height:    1,
		Dimension: gpucore.TextureDimension1D,
		Format:    gpucore.TextureFormatR32Float,
		Usage:     gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst,
	})
	if err != nil {
		a.DestroyBuffer(uniform)
		return nil, fmt.Errorf("autoexposure: create curve lut: %w", err)
	}
	r := &curveResource{uniform: uniform, lut: lut}
	if err := r.upload(a, c); err != nil {
		r.destroy(a)
		return nil, err
	}
	return r, nil
}

func (r *curveResource) upload(a gpucore.GPUAdapter, c *CompensationCurve) error {
	u, lut := c.Bake()
	a.WriteBuffer(r.uniform, 0, u.Bytes())
	if err := a.WriteTexture(r.lut, float32Bytes(lut)); err != nil {
		return fmt.Errorf("autoexposure: upload curve lut: %w", err)
	}
	return nil
}

func (r *curveResource) destroy(a gpucore.GPUAdapter) {
	a.DestroyTexture(r.lut)
	a.DestroyBuffer(r.uniform)
}

func float32Bytes(vs []float32) []byte {
	b := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}
