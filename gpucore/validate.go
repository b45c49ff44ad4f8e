// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"errors"
	"fmt"
)

// ErrInvalidLayout is returned when a bind group layout is malformed.
var ErrInvalidLayout = errors.New("gpucore: invalid bind group layout")

// ValidateLayout checks the structural rules of a bind group layout.
func ValidateLayout(desc *BindGroupLayoutDesc) error {
	if desc == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalidLayout)
	}
	seen := make(map[uint32]struct{}, len(desc.Entries))
	for i, e := range desc.Entries {
		if _, dup := seen[e.Binding]; dup {
			return fmt.Errorf("%w: entry %d: duplicate binding %d", ErrInvalidLayout, i, e.Binding)
		}
		seen[e.Binding] = struct{}{}

		switch {
		case e.Type.IsBuffer():
			if e.MinBindingSize%4 != 0 {
				return fmt.Errorf("%w: binding %d: min size %d not a multiple of 4",
					ErrInvalidLayout, e.Binding, e.MinBindingSize)
			}
		case e.Type == BindingTypeSampledTexture:
			if e.HasDynamicOffset {
				return fmt.Errorf("%w: binding %d: dynamic offset on a texture", ErrInvalidLayout, e.Binding)
			}
			if e.MinBindingSize != 0 {
				return fmt.Errorf("%w: binding %d: min size on a texture", ErrInvalidLayout, e.Binding)
			}
		default:
			return fmt.Errorf("%w: binding %d: unknown type %d", ErrInvalidLayout, e.Binding, e.Type)
		}
	}
	return nil
}

// DynamicBindings returns the binding numbers with dynamic offsets in
// ascending order, which is the order SetBindGroup expects offsets in.
func DynamicBindings(entries []BindGroupLayoutEntry) []uint32 {
	var out []uint32
	for _, e := range entries {
		if !e.HasDynamicOffset {
			continue
		}
		i := len(out)
		out = append(out, e.Binding)
		for i > 0 && out[i-1] > out[i] {
			out[i-1], out[i] = out[i], out[i-1]
			i--
		}
	}
	return out
}
