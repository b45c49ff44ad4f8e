// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build nogpu

package main

import (
	"errors"

	"github.com/gogpu/autoexposure/gpucore"
)

func openGPU() (gpucore.GPUAdapter, func(), error) {
	return nil, nil, errors.New("aedemo: built with nogpu")
}
