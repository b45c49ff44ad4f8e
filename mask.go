// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"fmt"
	"image"
	"math"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/autoexposure/gpucore"
)

// MeteringMask weights histogram contributions by screen position. It
// is stretched over the view's viewport; values are in [0, 1].
type MeteringMask struct {
	width  int
	height int
	pix    []float32
}

// NewMeteringMask builds a mask from row-major weights.
func NewMeteringMask(width, height int, pix []float32) (*MeteringMask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidMask, width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("%w: %d weights for %dx%d", ErrInvalidMask, len(pix), width, height)
	}
	for i, v := range pix {
		if !finite(v) || v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: weight %d is %v", ErrInvalidMask, i, v)
		}
	}
	return &MeteringMask{width: width, height: height, pix: append([]float32(nil), pix...)}, nil
}

// UniformMask returns a 1x1 mask that meters the whole view evenly.
func UniformMask() *MeteringMask {
	return &MeteringMask{width: 1, height: 1, pix: []float32{1}}
}

// CenterWeightedMask returns a mask whose weight falls off linearly with
// distance from the center: 1 at the center, 1-falloff at the corners.
// falloff is clamped to [0, 1].
func CenterWeightedMask(width, height int, falloff float32) (*MeteringMask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidMask, width, height)
	}
	falloff = min(max(falloff, 0), 1)
	pix := make([]float32, width*height)
	cx, cy := float64(width)/2, float64(height)/2
	half := math.Hypot(cx, cy)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) / half
			pix[y*width+x] = float32(min(max(1-float64(falloff)*d, 0), 1))
		}
	}
	return &MeteringMask{width: width, height: height, pix: pix}, nil
}

// MaskFromImage resamples the luminance of img into a width x height
// mask. White meters fully, black not at all.
func MaskFromImage(img image.Image, width, height int) (*MeteringMask, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidMask)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidMask, width, height)
	}
	dst := image.NewGray16(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	pix := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pix[y*width+x] = float32(dst.Gray16At(x, y).Y) / 0xffff
		}
	}
	return &MeteringMask{width: width, height: height, pix: pix}, nil
}

// Size returns the mask resolution.
func (m *MeteringMask) Size() (width, height int) { return m.width, m.height }

// At returns the weight at texel (x, y).
func (m *MeteringMask) At(x, y int) float32 { return m.pix[y*m.width+x] }

// MaskHandle refers to a mask registered with AutoExposure.AddMask.
// The zero handle selects the built-in uniform mask.
type MaskHandle uuid.UUID

// IsZero reports whether h is the zero handle.
func (h MaskHandle) IsZero() bool { return h == MaskHandle{} }

func (h MaskHandle) String() string { return uuid.UUID(h).String() }

// maskResource is the GPU side of a registered mask.
type maskResource struct {
	texture gpucore.TextureID
	width   int
	height  int
}

// checkMask rejects nil and zero-value masks.
func checkMask(m *MeteringMask) error {
	if m == nil {
		return fmt.Errorf("%w: nil mask", ErrInvalidMask)
	}
	if len(m.pix) == 0 {
		return fmt.Errorf("%w: empty mask; build masks with NewMeteringMask", ErrInvalidMask)
	}
	return nil
}

func newMaskResource(a gpucore.GPUAdapter, m *MeteringMask, label string) (*maskResource, error) {
	tex, err := a.CreateTexture(&gpucore.TextureDesc{
		Label:     label + "_mask",
		Width:     uint32(m.width),
		Height:    uint32(m.height),
		Dimension: gpucore.TextureDimension2D,
		Format:    gpucore.TextureFormatR32Float,
		Usage:     gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("autoexposure: create mask texture: %w", err)
	}
	r := &maskResource{texture: tex, width: m.width, height: m.height}
	if err := a.WriteTexture(tex, float32Bytes(m.pix)); err != nil {
		a.DestroyTexture(tex)
		return nil, fmt.Errorf("autoexposure: upload mask: %w", err)
	}
	return r, nil
}

func (r *maskResource) destroy(a gpucore.GPUAdapter) {
	a.DestroyTexture(r.texture)
}
