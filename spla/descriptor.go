// Copyright 2026 spla authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package spla

// DescOption is one of the recognised descriptor hints.
type DescOption int

const (
	MaskComplement DescOption = iota
	AccumResult
	ValuesSorted
	NoDuplicates
	ProfileTime
	DeviceID
	DeviceFixedStrategy
	DenseFactor
	EarlyExit
	Replace
)

// Descriptor is a bag of enumerated hints controlling per-expression or
// per-node behaviour. The zero value is an empty descriptor with no
// options set.
type Descriptor struct {
	flags  map[DescOption]bool
	values map[DescOption]int
}

// NewDescriptor returns an empty, ready-to-use descriptor.
func NewDescriptor() *Descriptor {
	return &Descriptor{flags: make(map[DescOption]bool), values: make(map[DescOption]int)}
}

// SetParam sets a flag option, or a valued option (DeviceID, DenseFactor)
// together with its integer value.
func (d *Descriptor) SetParam(opt DescOption, value ...int) {
	d.flags[opt] = true
	if len(value) > 0 {
		d.values[opt] = value[0]
	}
}

// Unset clears a previously set option.
func (d *Descriptor) Unset(opt DescOption) {
	delete(d.flags, opt)
	delete(d.values, opt)
}

// IsParamSet reports whether opt has been set on this descriptor alone (no
// fallback to a parent — see effectiveDescriptor for layering).
func (d *Descriptor) IsParamSet(opt DescOption) bool {
	if d == nil {
		return false
	}
	return d.flags[opt]
}

// GetParamInt returns the integer value associated with opt (DeviceID,
// DenseFactor), and whether it was set.
func (d *Descriptor) GetParamInt(opt DescOption) (int, bool) {
	if d == nil {
		return 0, false
	}
	v, ok := d.values[opt]
	return v, ok
}

// effectiveDescriptor layers node over expr over defaults: a node's own
// descriptor overrides the expression's, which overrides library defaults.
type effectiveDescriptor struct {
	node, expr, defaults *Descriptor
}

func (e effectiveDescriptor) IsParamSet(opt DescOption) bool {
	if e.node.IsParamSet(opt) {
		return true
	}
	if e.expr.IsParamSet(opt) {
		return true
	}
	return e.defaults.IsParamSet(opt)
}

func (e effectiveDescriptor) GetParamInt(opt DescOption) (int, bool) {
	if v, ok := e.node.GetParamInt(opt); ok {
		return v, true
	}
	if v, ok := e.expr.GetParamInt(opt); ok {
		return v, true
	}
	return e.defaults.GetParamInt(opt)
}

// validate checks one internal-consistency rule: MaskComplement set without
// a mask present is InvalidState.
func (e effectiveDescriptor) validate(hasMask bool) error {
	if e.IsParamSet(MaskComplement) && !hasMask {
		return errf(ErrKindInvalidState, "Descriptor.validate", "MaskComplement set with no mask supplied")
	}
	return nil
}

func (e effectiveDescriptor) deviceHint() deviceHint {
	h := deviceHint{fixedPolicy: e.IsParamSet(DeviceFixedStrategy)}
	if id, ok := e.GetParamInt(DeviceID); ok {
		h.pinned = true
		h.pinnedID = id
	}
	return h
}
