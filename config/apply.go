// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"errors"
	"fmt"

	"github.com/gogpu/autoexposure"
)

// Binding holds the resources a configuration has been applied to, so
// that applying a new version updates them in place.
type Binding struct {
	Curve autoexposure.CurveHandle
	Mask  autoexposure.MaskHandle

	shader string
}

// Apply pushes c into ae: the curve and mask behind b are created or
// replaced, every view gets the settings and assets, and the shader is
// reloaded when its source changed. Updating the curve, mask or shader
// is a reload event, so pipelines that failed to build are retried.
//
// Resource errors stop the update. Pipeline build errors are collected
// and returned after the remaining steps run.
func (c Config) Apply(ae *autoexposure.AutoExposure, b *Binding, baseDir string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	curve, err := c.CompensationCurve()
	if err != nil {
		return err
	}
	mask, err := c.MeteringMask()
	if err != nil {
		return err
	}
	src, err := c.ShaderSource(baseDir)
	if err != nil {
		return err
	}

	var errs []error
	keep := func(err error) error {
		var pbe *autoexposure.PipelineBuildError
		if errors.As(err, &pbe) {
			errs = append(errs, err)
			return nil
		}
		return err
	}

	if b.Curve.IsZero() {
		if b.Curve, err = ae.AddCurve(curve); err != nil {
			return err
		}
	} else if err := keep(ae.SetCurve(b.Curve, curve)); err != nil {
		return err
	}
	if b.Mask.IsZero() {
		if b.Mask, err = ae.AddMask(mask); err != nil {
			return err
		}
	} else if err := keep(ae.SetMask(b.Mask, mask)); err != nil {
		return err
	}

	s := c.Settings()
	for _, v := range ae.Views() {
		if err := ae.SetViewSettings(v.ID(), s); err != nil {
			return fmt.Errorf("config: view %s: %w", v.ID(), err)
		}
		if err := ae.SetViewAssets(v.ID(), b.Curve, b.Mask); err != nil {
			return fmt.Errorf("config: view %s: %w", v.ID(), err)
		}
	}

	if b.shader == "" {
		b.shader = autoexposure.ShaderSource()
	}
	if src != b.shader {
		if err := keep(ae.ReloadShader(src)); err != nil {
			return err
		}
		b.shader = src
	}
	return errors.Join(errs...)
}
