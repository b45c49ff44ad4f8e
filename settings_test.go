// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"errors"
	"math"
	"testing"
)

func TestSettingsValidate(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name   string
		modify func(*Settings)
		ok     bool
	}{
		{"defaults", func(*Settings) {}, true},
		{"no clipping", func(s *Settings) { s.LowPercent, s.HighPercent = 0, 1 }, true},
		{"degenerate window", func(s *Settings) { s.LowPercent, s.HighPercent = 0.5, 0.5 }, true},
		{"frozen", func(s *Settings) { s.SpeedUp, s.SpeedDown = 0, 0 }, true},
		{"empty range", func(s *Settings) { s.MaxLogLuminance = s.MinLogLuminance }, false},
		{"inverted range", func(s *Settings) { s.MinLogLuminance, s.MaxLogLuminance = 4, -4 }, false},
		{"low above high", func(s *Settings) { s.LowPercent, s.HighPercent = 0.9, 0.1 }, false},
		{"negative low", func(s *Settings) { s.LowPercent = -0.1 }, false},
		{"high above one", func(s *Settings) { s.HighPercent = 1.5 }, false},
		{"negative speed", func(s *Settings) { s.SpeedDown = -1 }, false},
		{"negative exponent", func(s *Settings) { s.ExpUp = -1 }, false},
		{"nan min", func(s *Settings) { s.MinLogLuminance = nan }, false},
		{"inf speed", func(s *Settings) { s.SpeedUp = float32(math.Inf(1)) }, false},
		{"negative initial", func(s *Settings) { s.InitialLuminance = -1 }, false},
		{"range overflows", func(s *Settings) { s.MinLogLuminance, s.MaxLogLuminance = -3e38, 3e38 }, false},
		{"range underflows", func(s *Settings) { s.MinLogLuminance, s.MaxLogLuminance = 0, 1e-45 }, false},
		{"wide range", func(s *Settings) { s.MinLogLuminance, s.MaxLogLuminance = -1e37, 1e37 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.modify(&s)
			err := s.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("Validate() = %v, want ErrInvalidSettings", err)
			}
		})
	}
}

func TestSettingsParameters(t *testing.T) {
	s := DefaultSettings()
	s.MinLogLuminance, s.MaxLogLuminance = -6, 10
	p := s.Parameters()
	if p.LogLuminanceRange != 16 || p.InvLogLuminanceRange != 1.0/16 {
		t.Errorf("range = %v, inv = %v", p.LogLuminanceRange, p.InvLogLuminanceRange)
	}
	if p.MaxLogLuminance() != 10 {
		t.Errorf("MaxLogLuminance() = %v, want 10", p.MaxLogLuminance())
	}
	if p.LowPercent != s.LowPercent || p.SpeedDown != s.SpeedDown || p.ExpUp != s.ExpUp {
		t.Errorf("Parameters() = %+v does not mirror %+v", p, s)
	}
}

func TestSettingsInitialState(t *testing.T) {
	tests := []struct {
		min, max, initial float32
		want              float32
	}{
		{-8, 8, 0, 1},
		{-4, 8, 0, 4},
		{-8, 8, 0.5, 0.5},
	}
	for _, tt := range tests {
		s := DefaultSettings()
		s.MinLogLuminance, s.MaxLogLuminance, s.InitialLuminance = tt.min, tt.max, tt.initial
		if got := s.InitialState(); got != tt.want {
			t.Errorf("InitialState(%v..%v, %v) = %v, want %v", tt.min, tt.max, tt.initial, got, tt.want)
		}
	}
}
