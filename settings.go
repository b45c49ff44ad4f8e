// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"fmt"
	"math"

	"github.com/gogpu/autoexposure/internal/kernel"
)

// HistogramBinCount is the number of histogram buckets. The shader
// declares the same value as HISTOGRAM_BINS.
const HistogramBinCount = kernel.HistogramBins

// HistogramWeightScale is the number of histogram units a full-weight pixel adds.
const HistogramWeightScale = kernel.WeightScale

// Parameters is the 36-byte uniform block the kernels read at binding 0.
// Build it with Settings.Parameters so the reciprocal range stays exact.
type Parameters = kernel.Params

// Settings configures exposure adaptation for a view.
type Settings struct {
	// MinLogLuminance and MaxLogLuminance bound the metered range in EV
	// (log2 of linear luminance). Values outside are clamped.
	MinLogLuminance float32
	MaxLogLuminance float32

	// LowPercent and HighPercent drop the darkest and brightest fractions
	// of the histogram mass before averaging. 0 <= low <= high <= 1.
	LowPercent  float32
	HighPercent float32

	// SpeedUp and SpeedDown are the adaptation rates, per second, when the
	// scene gets brighter or darker.
	SpeedUp   float32
	SpeedDown float32

	// ExpUp and ExpDown shape the blend factor in each direction.
	ExpUp   float32
	ExpDown float32

	// InitialLuminance seeds the state buffer and is the fixed luminance
	// reported while the view is disabled. Zero selects the midpoint of
	// the metered range.
	InitialLuminance float32
}

// DefaultSettings returns the default exposure settings.
func DefaultSettings() Settings {
	return Settings{
		MinLogLuminance: -8,
		MaxLogLuminance: 8,
		LowPercent:      0.10,
		HighPercent:     0.90,
		SpeedUp:         3,
		SpeedDown:       1,
		ExpUp:           1,
		ExpDown:         1,
	}
}

// Validate reports whether the settings can be turned into parameters.
func (s Settings) Validate() error {
	for _, f := range []struct {
		name string
		v    float32
	}{
		{"min log luminance", s.MinLogLuminance},
		{"max log luminance", s.MaxLogLuminance},
		{"low percent", s.LowPercent},
		{"high percent", s.HighPercent},
		{"speed up", s.SpeedUp},
		{"speed down", s.SpeedDown},
		{"exp up", s.ExpUp},
		{"exp down", s.ExpDown},
		{"initial luminance", s.InitialLuminance},
	} {
		if !finite(f.v) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidSettings, f.name)
		}
	}
	if !(s.MaxLogLuminance > s.MinLogLuminance) {
		return fmt.Errorf("%w: empty log luminance range [%v, %v]",
			ErrInvalidSettings, s.MinLogLuminance, s.MaxLogLuminance)
	}
	if r := s.MaxLogLuminance - s.MinLogLuminance; !finite(r) || !finite(1/r) {
		return fmt.Errorf("%w: log luminance range [%v, %v] is not representable",
			ErrInvalidSettings, s.MinLogLuminance, s.MaxLogLuminance)
	}
	if s.LowPercent < 0 || s.HighPercent > 1 || s.LowPercent > s.HighPercent {
		return fmt.Errorf("%w: percentiles %v..%v outside 0 <= low <= high <= 1",
			ErrInvalidSettings, s.LowPercent, s.HighPercent)
	}
	if s.SpeedUp < 0 || s.SpeedDown < 0 || s.ExpUp < 0 || s.ExpDown < 0 {
		return fmt.Errorf("%w: negative speed or exponent", ErrInvalidSettings)
	}
	if s.InitialLuminance < 0 {
		return fmt.Errorf("%w: negative initial luminance", ErrInvalidSettings)
	}
	return nil
}

// Parameters derives the GPU parameter block. The settings must be valid.
func (s Settings) Parameters() Parameters {
	r := s.MaxLogLuminance - s.MinLogLuminance
	return Parameters{
		MinLogLuminance:      s.MinLogLuminance,
		InvLogLuminanceRange: 1 / r,
		LogLuminanceRange:    r,
		LowPercent:           s.LowPercent,
		HighPercent:          s.HighPercent,
		SpeedUp:              s.SpeedUp,
		SpeedDown:            s.SpeedDown,
		ExpUp:                s.ExpUp,
		ExpDown:              s.ExpDown,
	}
}

// InitialState returns the luminance a fresh or disabled view holds.
func (s Settings) InitialState() float32 {
	if s.InitialLuminance > 0 {
		return s.InitialLuminance
	}
	mid := float64(s.MinLogLuminance+s.MaxLogLuminance) / 2
	return float32(math.Exp2(mid))
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
