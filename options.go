// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

// Option configures an AutoExposure during creation.
//
// Example:
//
//	ae, err := autoexposure.New(adapter,
//	    autoexposure.WithSettings(settings),
//	    autoexposure.WithInitialViewCapacity(8))
type Option func(*options)

// options holds optional configuration for New.
type options struct {
	shaderSource string
	settings     Settings
	viewCapacity int
	label        string
}

func defaultOptions() options {
	return options{
		shaderSource: shaderSource,
		settings:     DefaultSettings(),
		viewCapacity: 4,
		label:        "auto_exposure",
	}
}

// WithShaderSource replaces the embedded WGSL module. The source must
// expose compute_histogram and compute_average over the layout returned
// by LayoutEntries.
func WithShaderSource(src string) Option {
	return func(o *options) {
		o.shaderSource = src
	}
}

// WithSettings sets the settings views get when AddView is called
// without explicit settings.
func WithSettings(s Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithInitialViewCapacity sizes the shared view-uniform buffer. It grows
// on demand; values below 1 are ignored.
func WithInitialViewCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.viewCapacity = n
		}
	}
}

// WithLabel sets the debug label prefix of every GPU object created.
func WithLabel(label string) Option {
	return func(o *options) {
		if label != "" {
			o.label = label
		}
	}
}
