// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import _ "embed"

//go:embed shaders/auto_exposure.wgsl
var shaderSource string

// ShaderSource returns the embedded WGSL module with both entry points.
func ShaderSource() string { return shaderSource }
