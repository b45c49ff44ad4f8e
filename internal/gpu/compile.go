// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// ErrBadSPIRV is returned when the compiler output is not a SPIR-V module.
var ErrBadSPIRV = errors.New("gpu: invalid SPIR-V output")

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile wgsl: %w", err)
	}
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadSPIRV, len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if words[0] != SPIRVMagic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrBadSPIRV, words[0])
	}
	return words, nil
}
