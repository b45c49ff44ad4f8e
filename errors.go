// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by AutoExposure.
var (
	// ErrLayoutRejected is returned by New when the adapter refuses the
	// binding layout. It is a configuration error and not recoverable.
	ErrLayoutRejected = errors.New("autoexposure: binding layout rejected by device")

	// ErrNilAdapter is returned by New when no adapter is given.
	ErrNilAdapter = errors.New("autoexposure: nil adapter")

	// ErrNoCompute is returned by New when the adapter has no compute support.
	ErrNoCompute = errors.New("autoexposure: adapter does not support compute")

	// ErrInvalidSettings is returned for settings that fail validation.
	ErrInvalidSettings = errors.New("autoexposure: invalid settings")

	// ErrInvalidCurve is returned for malformed compensation curves.
	ErrInvalidCurve = errors.New("autoexposure: invalid compensation curve")

	// ErrInvalidMask is returned for malformed metering masks.
	ErrInvalidMask = errors.New("autoexposure: invalid metering mask")

	// ErrViewNotFound is returned when a view ID is unknown.
	ErrViewNotFound = errors.New("autoexposure: view not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("autoexposure: closed")
)

// PipelineBuildError reports that the pipeline for one pass could not
// be built. Views needing it stay disabled until a reload rebuilds it.
type PipelineBuildError struct {
	Pass Pass
	Err  error
}

func (e *PipelineBuildError) Error() string {
	return fmt.Sprintf("autoexposure: build %s pipeline: %v", e.Pass, e.Err)
}

func (e *PipelineBuildError) Unwrap() error { return e.Err }
