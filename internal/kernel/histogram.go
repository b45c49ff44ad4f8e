// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
)

// Rec. 709 luminance coefficients.
const (
	lumaR float32 = 0.2125
	lumaG float32 = 0.7154
	lumaB float32 = 0.0721
)

// Histogram is the 64-bucket weighted log-luminance histogram.
type Histogram [HistogramBins]uint32

// Total returns the sum of all buckets with u32 wrap-around, as the shader computes it.
func (h *Histogram) Total() uint32 {
	var t uint32
	for _, v := range h {
		t += v
	}
	return t
}

// Bytes returns the 256-byte GPU representation.
func (h *Histogram) Bytes() []byte {
	b := make([]byte, HistogramSize)
	for i, v := range h {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

// ParseHistogram decodes a histogram buffer.
func ParseHistogram(b []byte) (Histogram, error) {
	var h Histogram
	if len(b) < HistogramSize {
		return h, ErrShortBuffer
	}
	for i := range h {
		h[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return h, nil
}

// Plane is a texel grid read the way the shader reads textures with
// textureLoad. Channels is 1 or 4; Pix is row-major.
type Plane struct {
	Width    int
	Height   int
	Channels int
	Pix      []float32
}

// Load returns the texel at (x, y) with coordinates clamped to the edge.
// Single-channel planes return (v, 0, 0, 1). An empty plane loads zero.
func (p Plane) Load(x, y int) [4]float32 {
	if p.Width <= 0 || p.Height <= 0 || len(p.Pix) < p.Width*p.Height*p.Channels {
		return [4]float32{}
	}
	x = clampInt(x, 0, p.Width-1)
	y = clampInt(y, 0, p.Height-1)
	i := (y*p.Width + x) * p.Channels
	if p.Channels == 1 {
		return [4]float32{p.Pix[i], 0, 0, 1}
	}
	return [4]float32{p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3]}
}

// Luminance returns the Rec. 709 relative luminance of a linear color.
func Luminance(r, g, b float32) float32 {
	return r*lumaR + g*lumaG + b*lumaB
}

// BinLuminance maps a linear luminance to its bucket and the clamped
// log-luminance used for the curve lookup. Non-finite and non-positive
// values land in bucket 0 with the range minimum.
func BinLuminance(lum float32, p Params) (bin uint32, logLum float32) {
	if !(lum > 0) || math32.IsInf(lum, 0) {
		return 0, p.MinLogLuminance
	}
	logLum = clampF(math32.Log2(lum), p.MinLogLuminance, p.MaxLogLuminance())
	t := (logLum - p.MinLogLuminance) * p.InvLogLuminanceRange
	bin = uint32(t * HistogramBins)
	if bin > HistogramBins-1 {
		bin = HistogramBins - 1
	}
	return bin, logLum
}

// CurveWeight looks up the compensation weight for a log-luminance in
// the curve strip, nearest texel.
func CurveWeight(logLum float32, c CurveUniform, lut Plane) float32 {
	n := lut.Width
	if n <= 0 {
		return c.MinCompensation
	}
	u := clampF((logLum-c.MinLogLuminance)*c.InvLogLuminanceRange, 0, 1)
	idx := int(u*float32(n-1) + 0.5)
	return c.MinCompensation + lut.Load(idx, 0)[0]*c.CompensationRange
}

// MaskWeight samples the metering mask for the pixel at (x, y) relative
// to a viewport of size (w, h), nearest texel.
func MaskWeight(x, y, w, h uint32, mask Plane) float32 {
	u := (float32(x) + 0.5) / float32(w)
	v := (float32(y) + 0.5) / float32(h)
	mx := int(u * float32(mask.Width))
	my := int(v * float32(mask.Height))
	return mask.Load(mx, my)[0]
}

// QuantizeWeight converts a pixel weight into histogram units.
// Negative and NaN weights count as zero.
func QuantizeWeight(w float32) uint32 {
	if !(w > 0) {
		return 0
	}
	if math32.IsInf(w, 1) {
		return math.MaxUint32
	}
	q := w*WeightScale + 0.5
	if q >= 4294967040 {
		return math.MaxUint32
	}
	return uint32(q)
}

// HistogramInputs are the resources compute_histogram reads.
type HistogramInputs struct {
	Params   Params
	View     ViewUniform
	Color    Plane
	Mask     Plane
	Curve    CurveUniform
	CurveLUT Plane
}

// viewportSize returns the integer viewport extent.
func (in *HistogramInputs) viewportSize() (uint32, uint32) {
	return f32ToU32(in.View.Viewport[2]), f32ToU32(in.View.Viewport[3])
}

// Texel classifies the pixel at viewport-relative (x, y) and returns its
// bucket and quantized contribution. ok is false outside the viewport or
// outside the color target.
func (in *HistogramInputs) Texel(x, y uint32) (bin, contribution uint32, ok bool) {
	w, h := in.viewportSize()
	if x >= w || y >= h {
		return 0, 0, false
	}
	px := int(f32ToU32(in.View.Viewport[0]) + x)
	py := int(f32ToU32(in.View.Viewport[1]) + y)
	if px >= in.Color.Width || py >= in.Color.Height {
		return 0, 0, false
	}
	c := in.Color.Load(px, py)
	bin, logLum := BinLuminance(Luminance(c[0], c[1], c[2]), in.Params)
	weight := MaskWeight(x, y, w, h, in.Mask) * CurveWeight(logLum, in.Curve, in.CurveLUT)
	return bin, QuantizeWeight(weight), true
}

// Accumulate adds every viewport pixel into h. The sums wrap on u32
// overflow like the shader's atomicAdd.
func Accumulate(in *HistogramInputs, h *Histogram) {
	w, hgt := in.viewportSize()
	for y := uint32(0); y < hgt; y++ {
		for x := uint32(0); x < w; x++ {
			if bin, c, ok := in.Texel(x, y); ok {
				h[bin] += c
			}
		}
	}
}

// HistogramWorkgroups returns the dispatch size of compute_histogram for a viewport.
func HistogramWorkgroups(v ViewUniform) (x, y uint32) {
	w, h := f32ToU32(v.Viewport[2]), f32ToU32(v.Viewport[3])
	return (w + HistogramWorkgroupSize - 1) / HistogramWorkgroupSize,
		(h + HistogramWorkgroupSize - 1) / HistogramWorkgroupSize
}

func f32ToU32(f float32) uint32 {
	if !(f > 0) {
		return 0
	}
	if f >= 4294967040 {
		return math.MaxUint32
	}
	return uint32(f)
}

func clampF(v, lo, hi float32) float32 {
	return math32.Min(math32.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
