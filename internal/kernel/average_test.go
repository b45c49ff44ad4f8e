// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"math"
	"testing"
)

func TestReciprocalRange(t *testing.T) {
	for _, rng := range []float32{0.5, 1, 3, 7, 16, 20, 23.5, 100} {
		p := testParams(-4, rng)
		if got := p.InvLogLuminanceRange * p.LogLuminanceRange; math.Abs(float64(got)-1) > 1e-6 {
			t.Errorf("range %v: inv*range = %v, want 1", rng, got)
		}
	}
}

func TestMeanBinClipping(t *testing.T) {
	var h Histogram
	h[0] = 10
	h[10] = 80
	h[63] = 10

	tests := []struct {
		name      string
		low, high float32
		want      float32
	}{
		// lo = 10, hi = 90: both tails fall off entirely.
		{"clipped", 0.1, 0.9, 10},
		// (0*10 + 10*80 + 63*10) / 100
		{"unclipped", 0, 1, 14.3},
		// lo = 5: half of bucket 0 retained.
		{"partial low", 0.05, 0.9, (0*5 + 10*80) / 85.0},
		// hi = 95: half of bucket 63 retained.
		{"partial high", 0.1, 0.95, (10*80 + 63*5) / 85.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MeanBin(&h, tt.low, tt.high)
			if !ok {
				t.Fatal("MeanBin reported empty histogram")
			}
			if math.Abs(float64(got-tt.want)) > 1e-4 {
				t.Errorf("MeanBin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMeanBinUnclippedMatchesWeightedAverage(t *testing.T) {
	var h Histogram
	var sum, mass float64
	for i := range h {
		h[i] = uint32((i*37)%13) * 3
		sum += float64(i) * float64(h[i])
		mass += float64(h[i])
	}
	got, ok := MeanBin(&h, 0, 1)
	if !ok {
		t.Fatal("empty")
	}
	if want := sum / mass; math.Abs(float64(got)-want) > 1e-3 {
		t.Errorf("MeanBin(0, 1) = %v, want %v", got, want)
	}
}

func TestMeanBinDegenerateWindow(t *testing.T) {
	var h Histogram
	h[5] = 50
	h[40] = 50
	// low == high: no retained mass; use the bucket holding the quantile.
	tests := []struct {
		q    float32
		want float32
	}{
		{0, 5},
		{0.25, 5},
		{0.5, 5},
		{0.75, 40},
		{1, 40},
	}
	for _, tt := range tests {
		got, ok := MeanBin(&h, tt.q, tt.q)
		if !ok || got != tt.want {
			t.Errorf("MeanBin(%v, %v) = %v, %v; want %v", tt.q, tt.q, got, ok, tt.want)
		}
	}
}

func TestMeanBinEmpty(t *testing.T) {
	var h Histogram
	if _, ok := MeanBin(&h, 0.1, 0.9); ok {
		t.Error("MeanBin on empty histogram reported ok")
	}
}

func TestSmoothingMonotonicUp(t *testing.T) {
	p := testParams(-10, 20)
	const dt = 1.0 / 60
	prev, target := float32(0.01), float32(1)
	for i := 0; i < 120; i++ {
		next := Smooth(prev, target, dt, p)
		if !(next > prev) {
			t.Fatalf("step %d: %v -> %v not strictly increasing", i, prev, next)
		}
		if next > target {
			t.Fatalf("step %d: %v overshoots target %v", i, next, target)
		}
		prev = next
	}
	if target-prev > 0.01 {
		t.Errorf("after 120 steps prev = %v, not converging to %v", prev, target)
	}
}

func TestSmoothingMonotonicDown(t *testing.T) {
	p := testParams(-10, 20)
	const dt = 1.0 / 30
	prev, target := float32(4), float32(0.5)
	for i := 0; i < 150; i++ {
		next := Smooth(prev, target, dt, p)
		if !(next < prev) {
			t.Fatalf("step %d: %v -> %v not strictly decreasing", i, prev, next)
		}
		if next < target {
			t.Fatalf("step %d: %v undershoots target %v", i, next, target)
		}
		prev = next
	}
	if prev-target > 0.05 {
		t.Errorf("after 150 steps prev = %v, not converging to %v", prev, target)
	}
}

func TestSmoothingUsesDirectionalSpeed(t *testing.T) {
	p := testParams(-10, 20)
	p.SpeedUp, p.SpeedDown = 3, 1
	up := Smooth(1, 2, 0.1, p) - 1
	down := 2 - Smooth(2, 1, 0.1, p)
	wantUp := 1 - math.Exp(-0.3)
	wantDown := 1 - math.Exp(-0.1)
	if math.Abs(float64(up)-wantUp) > 1e-5 {
		t.Errorf("up step = %v, want %v", up, wantUp)
	}
	if math.Abs(float64(down)-wantDown) > 1e-5 {
		t.Errorf("down step = %v, want %v", down, wantDown)
	}
}

func TestSmoothingExponent(t *testing.T) {
	p := testParams(-10, 20)
	p.ExpUp = 2
	f := BlendFactor(0.5, p.SpeedUp, p.ExpUp)
	base := 1 - math.Exp(-1.5)
	if math.Abs(float64(f)-base*base) > 1e-5 {
		t.Errorf("BlendFactor = %v, want %v", f, base*base)
	}
}

func TestSmoothingEdgeCases(t *testing.T) {
	p := testParams(-10, 20)
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		name             string
		prev, target, dt float32
		want             float32
	}{
		{"zero dt holds", 0.5, 2, 0, 0.5},
		{"negative dt holds", 0.5, 2, -1, 0.5},
		{"nan prev snaps", nan, 2, 0.016, 2},
		{"inf prev snaps", inf, 2, 0.016, 2},
		{"zero prev snaps", 0, 2, 0.016, 2},
		{"negative prev snaps", -3, 2, 0.016, 2},
		{"equal holds", 1, 1, 0.016, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Smooth(tt.prev, tt.target, tt.dt, p); got != tt.want {
				t.Errorf("Smooth(%v, %v, %v) = %v, want %v", tt.prev, tt.target, tt.dt, got, tt.want)
			}
		})
	}
}

func TestAverageZeroMassIdempotent(t *testing.T) {
	p := testParams(-10, 20)
	var h Histogram
	for _, prev := range []float32{0.25, 1, 37, float32(math.NaN())} {
		got, updated := Average(&h, prev, 1, p)
		if updated {
			t.Errorf("Average(empty, %v) reported update", prev)
		}
		if got != prev && !(math.IsNaN(float64(got)) && math.IsNaN(float64(prev))) {
			t.Errorf("Average(empty, %v) = %v, want unchanged", prev, got)
		}
	}
}

func TestAverageScenario(t *testing.T) {
	p := testParams(-10, 20)
	var h Histogram
	h[32] = 1000

	target, ok := TargetLuminance(&h, p)
	if !ok {
		t.Fatal("TargetLuminance: empty")
	}
	if target != 1 {
		t.Fatalf("target = %v, want exp2(0) = 1", target)
	}

	const prev = float32(1.0 / 1024)
	got, updated := Average(&h, prev, 1, p)
	if !updated {
		t.Fatal("Average did not update")
	}
	wantUp := float64(prev) + (1-float64(prev))*(1-math.Exp(-3))
	wantDown := float64(prev) + (1-float64(prev))*(1-math.Exp(-1))
	if math.Abs(float64(got)-wantUp) > 1e-5 {
		t.Errorf("Average = %v, want %v (speed_up)", got, wantUp)
	}
	if math.Abs(float64(got)-wantDown) < 1e-3 {
		t.Errorf("Average = %v matches speed_down response", got)
	}
}
