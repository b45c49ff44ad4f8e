// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package main

import (
	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/gpu"
)

func openGPU() (gpucore.GPUAdapter, func(), error) {
	a, err := gpu.NewDevice()
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}
