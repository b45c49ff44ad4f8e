// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/autoexposure/gpucore"
)

// lighting is one key of the lighting cycle.
type lighting struct {
	at  float64 // seconds into the cycle
	key float64 // average scene luminance
}

// cycle loops interior, daylight, dusk.
var cycle = []lighting{
	{0, 0.05},
	{2, 0.05},
	{3, 20},
	{6, 20},
	{7, 0.5},
	{9, 0.5},
	{10, 0.05},
}

// scene is an HDR color target redrawn every frame.
type scene struct {
	texture       gpucore.TextureID
	width, height uint32
	pix           []byte
	key           float64
}

func newScene(a gpucore.GPUAdapter, width, height uint32) (*scene, error) {
	tex, err := a.CreateTexture(&gpucore.TextureDesc{
		Label:  "aedemo_scene",
		Width:  width,
		Height: height,
		Format: gpucore.TextureFormatRGBA32Float,
		Usage:  gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("aedemo: scene texture: %w", err)
	}
	return &scene{
		texture: tex,
		width:   width,
		height:  height,
		pix:     make([]byte, int(width*height)*16),
	}, nil
}

// keyAt interpolates the lighting cycle with a smoothstep in log space.
func keyAt(seconds float64) float64 {
	period := cycle[len(cycle)-1].at
	t := math.Mod(seconds, period)
	for i := 1; i < len(cycle); i++ {
		a, b := cycle[i-1], cycle[i]
		if t > b.at {
			continue
		}
		u := (t - a.at) / (b.at - a.at)
		u = u * u * (3 - 2*u)
		return math.Exp2(math.Log2(a.key) + (math.Log2(b.key)-math.Log2(a.key))*u)
	}
	return cycle[0].key
}

// render draws a sky gradient over a darker ground with a sun disc that
// is 64 times brighter than the key, then uploads it.
func (s *scene) render(a gpucore.GPUAdapter, seconds float64) error {
	s.key = keyAt(seconds)
	w, h := float64(s.width), float64(s.height)
	sunX := w * (0.2 + 0.6*math.Mod(seconds/20, 1))
	sunY, sunR := h*0.2, h*0.08

	for y := uint32(0); y < s.height; y++ {
		fy := (float64(y) + 0.5) / h
		for x := uint32(0); x < s.width; x++ {
			var r, g, b float64
			if fy < 0.6 {
				sky := s.key * (1.5 - fy)
				r, g, b = sky*0.7, sky*0.85, sky*1.2
			} else {
				ground := s.key * 0.25
				r, g, b = ground*1.1, ground, ground*0.8
			}
			if math.Hypot(float64(x)+0.5-sunX, float64(y)+0.5-sunY) < sunR {
				r, g, b = s.key*64, s.key*60, s.key*52
			}
			i := int(y*s.width+x) * 16
			for c, v := range [4]float64{r, g, b, 1} {
				binary.LittleEndian.PutUint32(s.pix[i+c*4:], math.Float32bits(float32(v)))
			}
		}
	}
	if err := a.WriteTexture(s.texture, s.pix); err != nil {
		return fmt.Errorf("aedemo: upload scene: %w", err)
	}
	return nil
}
