// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

// Pass selects one of the two compute kernels of the shader module.
type Pass uint8

const (
	// PassHistogram builds the per-view luminance histogram.
	PassHistogram Pass = iota

	// PassAverage reduces the histogram and updates the view's state.
	PassAverage

	passCount
)

// Passes lists every pass in dispatch order.
var Passes = [passCount]Pass{PassHistogram, PassAverage}

// String returns a human-readable pass name.
func (p Pass) String() string {
	switch p {
	case PassHistogram:
		return "histogram"
	case PassAverage:
		return "average"
	default:
		return "unknown"
	}
}

// EntryPoint returns the shader entry point the pass runs.
func (p Pass) EntryPoint() string {
	switch p {
	case PassHistogram:
		return "compute_histogram"
	case PassAverage:
		return "compute_average"
	default:
		return ""
	}
}
