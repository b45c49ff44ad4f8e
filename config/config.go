// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads auto-exposure settings, compensation curves and
// metering masks from TOML files.
//
// A file looks like:
//
//	shader = "auto_exposure.wgsl"
//
//	[exposure]
//	min_log_luminance = -10.0
//	max_log_luminance = 10.0
//	low_percent = 0.1
//	high_percent = 0.9
//	speed_up = 3.0
//	speed_down = 1.0
//
//	[metering]
//	mode = "center"
//	falloff = 0.8
//
//	[[curve]]
//	log_luminance = -4.0
//	weight = 0.5
//
// Omitted keys keep their defaults. Relative paths are resolved against
// the directory of the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/autoexposure"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid configuration")

// Metering modes.
const (
	MeteringUniform = "uniform"
	MeteringCenter  = "center"
)

const defaultMaskSize = 32

// Config is the contents of a configuration file.
type Config struct {
	// Shader is an optional WGSL file replacing the embedded shader.
	Shader   string   `toml:"shader,omitempty"`
	Exposure Exposure `toml:"exposure"`
	Metering Metering `toml:"metering"`
	// Curve lists compensation curve points. Empty means flat.
	Curve []Point `toml:"curve,omitempty"`
}

// Exposure mirrors autoexposure.Settings.
type Exposure struct {
	MinLogLuminance  float32 `toml:"min_log_luminance"`
	MaxLogLuminance  float32 `toml:"max_log_luminance"`
	LowPercent       float32 `toml:"low_percent"`
	HighPercent      float32 `toml:"high_percent"`
	SpeedUp          float32 `toml:"speed_up"`
	SpeedDown        float32 `toml:"speed_down"`
	ExpUp            float32 `toml:"exp_up"`
	ExpDown          float32 `toml:"exp_down"`
	InitialLuminance float32 `toml:"initial_luminance"`
}

// Metering selects the metering mask.
type Metering struct {
	Mode    string  `toml:"mode"`
	Falloff float32 `toml:"falloff,omitempty"`
	Width   int     `toml:"width,omitempty"`
	Height  int     `toml:"height,omitempty"`
}

// Point is one compensation curve point.
type Point struct {
	LogLuminance float32 `toml:"log_luminance"`
	Weight       float32 `toml:"weight"`
}

// Default returns the configuration used for omitted keys.
func Default() Config {
	s := autoexposure.DefaultSettings()
	return Config{
		Exposure: Exposure{
			MinLogLuminance:  s.MinLogLuminance,
			MaxLogLuminance:  s.MaxLogLuminance,
			LowPercent:       s.LowPercent,
			HighPercent:      s.HighPercent,
			SpeedUp:          s.SpeedUp,
			SpeedDown:        s.SpeedDown,
			ExpUp:            s.ExpUp,
			ExpDown:          s.ExpDown,
			InitialLuminance: s.InitialLuminance,
		},
		Metering: Metering{Mode: MeteringUniform},
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates TOML. Unknown keys are an error.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("config: line %d column %d: %w", row, col, err)
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Marshal encodes c as TOML.
func (c Config) Marshal() ([]byte, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return b, nil
}

// Validate checks everything that can be checked without reading files.
func (c Config) Validate() error {
	if err := c.Settings().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.CompensationCurve(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	m := c.Metering
	switch m.Mode {
	case MeteringUniform:
	case MeteringCenter:
		if m.Falloff < 0 || m.Falloff > 1 {
			return fmt.Errorf("%w: metering falloff %v outside [0, 1]", ErrInvalid, m.Falloff)
		}
	default:
		return fmt.Errorf("%w: unknown metering mode %q", ErrInvalid, m.Mode)
	}
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("%w: negative mask size %dx%d", ErrInvalid, m.Width, m.Height)
	}
	return nil
}

// Settings converts the exposure section.
func (c Config) Settings() autoexposure.Settings {
	e := c.Exposure
	return autoexposure.Settings{
		MinLogLuminance:  e.MinLogLuminance,
		MaxLogLuminance:  e.MaxLogLuminance,
		LowPercent:       e.LowPercent,
		HighPercent:      e.HighPercent,
		SpeedUp:          e.SpeedUp,
		SpeedDown:        e.SpeedDown,
		ExpUp:            e.ExpUp,
		ExpDown:          e.ExpDown,
		InitialLuminance: e.InitialLuminance,
	}
}

// CompensationCurve builds the curve. No points gives the flat curve.
func (c Config) CompensationCurve() (*autoexposure.CompensationCurve, error) {
	if len(c.Curve) == 0 {
		return autoexposure.FlatCurve(), nil
	}
	pts := make([]autoexposure.CurvePoint, len(c.Curve))
	for i, p := range c.Curve {
		pts[i] = autoexposure.CurvePoint{LogLuminance: p.LogLuminance, Weight: p.Weight}
	}
	return autoexposure.NewCompensationCurve(pts...)
}

// MeteringMask builds the mask.
func (c Config) MeteringMask() (*autoexposure.MeteringMask, error) {
	m := c.Metering
	w, h := m.Width, m.Height
	if w == 0 {
		w = defaultMaskSize
	}
	if h == 0 {
		h = defaultMaskSize
	}
	switch m.Mode {
	case MeteringCenter:
		return autoexposure.CenterWeightedMask(w, h, m.Falloff)
	default:
		return autoexposure.UniformMask(), nil
	}
}

// ShaderPath returns the absolute shader path, or "" for the embedded shader.
func (c Config) ShaderPath(baseDir string) string {
	if c.Shader == "" {
		return ""
	}
	return resolve(baseDir, c.Shader)
}

// ShaderSource returns the configured WGSL, or the embedded shader.
func (c Config) ShaderSource(baseDir string) (string, error) {
	p := c.ShaderPath(baseDir)
	if p == "" {
		return autoexposure.ShaderSource(), nil
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("config: shader: %w", err)
	}
	return string(b), nil
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
