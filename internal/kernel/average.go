// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import "github.com/chewxy/math32"

// MeanBin returns the mean bucket index of the histogram mass lying
// between the low and high fractions of the total. When that window
// holds no mass (low == high) the bucket containing the low quantile is
// returned. ok is false for an empty histogram.
func MeanBin(h *Histogram, low, high float32) (mean float32, ok bool) {
	total := h.Total()
	if total == 0 {
		return 0, false
	}
	lo := float32(total) * low
	hi := float32(total) * high

	var cum uint32
	var weighted, retained float32
	for i, v := range h {
		prev := clampF(float32(cum), lo, hi)
		cum += v
		r := clampF(float32(cum), lo, hi) - prev
		weighted += r * float32(i)
		retained += r
	}
	if retained > 0 {
		return weighted / retained, true
	}
	return float32(quantileBin(h, lo)), true
}

// quantileBin returns the first non-empty bucket whose cumulative mass reaches q.
func quantileBin(h *Histogram, q float32) int {
	var cum uint32
	last := 0
	for i, v := range h {
		if v == 0 {
			continue
		}
		cum += v
		last = i
		if float32(cum) >= q {
			return i
		}
	}
	return last
}

// BinLogLuminance maps a (fractional) bucket index back to log-luminance.
func BinLogLuminance(bin float32, p Params) float32 {
	return p.MinLogLuminance + bin/HistogramBins*p.LogLuminanceRange
}

// TargetLuminance returns the percentile-clipped mean luminance of the
// histogram in linear units. ok is false for an empty histogram.
func TargetLuminance(h *Histogram, p Params) (float32, bool) {
	m, ok := MeanBin(h, p.LowPercent, p.HighPercent)
	if !ok {
		return 0, false
	}
	return math32.Exp2(BinLogLuminance(m, p)), true
}

// BlendFactor returns (1 - e^(-dt*speed))^exponent in [0, 1].
// Negative dt counts as zero.
func BlendFactor(dt, speed, exponent float32) float32 {
	if !(dt > 0) || !(speed > 0) {
		return 0
	}
	base := 1 - math32.Exp(-dt*speed)
	if !(base > 0) {
		return 0
	}
	return clampF(math32.Pow(base, exponent), 0, 1)
}

// Smooth moves prev toward target using the up parameters when
// brightening and the down parameters otherwise. A non-finite or
// non-positive prev snaps to target.
func Smooth(prev, target, dt float32, p Params) float32 {
	if !(prev > 0) || math32.IsInf(prev, 0) {
		return target
	}
	speed, exponent := p.SpeedDown, p.ExpDown
	if target > prev {
		speed, exponent = p.SpeedUp, p.ExpUp
	}
	return prev + (target-prev)*BlendFactor(dt, speed, exponent)
}

// Average runs compute_average: it returns the new state value and
// whether the state was updated. An empty histogram leaves prev as is.
func Average(h *Histogram, prev, dt float32, p Params) (float32, bool) {
	target, ok := TargetLuminance(h, p)
	if !ok {
		return prev, false
	}
	return Smooth(prev, target, dt, p), true
}
