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

import (
	"sync"

	"github.com/sparsekit/spla/spla/kernel"
)

// OpKind distinguishes the three operator shapes: binary, unary, and select.
type OpKind int

const (
	OpBinary OpKind = iota
	OpUnary
	OpSelect
)

// Type is an element-type record: a name, a byte size (void is the sole
// zero-byte type, meaning "indices only"), whether it is one of the
// predefined built-ins, and an opaque source fragment the accelerator
// compiler may inline. Types are immutable once returned by Catalogue.
type Type struct {
	RefCounted
	Name    string
	Size    int // bytes; 0 only for Void
	Builtin bool
	Source  string // opaque to the core
}

// Built-in type names, seeded into every Catalogue at construction.
const (
	TypeBool = "bool"
	TypeI8   = "i8"
	TypeI16  = "i16"
	TypeI32  = "i32"
	TypeI64  = "i64"
	TypeU8   = "u8"
	TypeU16  = "u16"
	TypeU32  = "u32"
	TypeU64  = "u64"
	TypeF32  = "f32"
	TypeF64  = "f64"
	TypeVoid = "void"
)

var builtinSizes = map[string]int{
	TypeBool: 1,
	TypeI8:   1, TypeI16: 2, TypeI32: 4, TypeI64: 8,
	TypeU8: 1, TypeU16: 2, TypeU32: 4, TypeU64: 8,
	TypeF32: 4, TypeF64: 8,
	TypeVoid: 0,
}

// Operator is either binary (A,B)->C, unary A->B, or select A->bool. Its
// Source is an opaque fragment combined by the algorithm layer with a kernel
// template; known built-in names are mapped to native callables in the
// kernel package, anything else declines with NotImplemented at dispatch
// time (see DESIGN.md).
type Operator struct {
	RefCounted
	Kind        OpKind
	Name        string
	In1, In2    *Type // In2 unused for unary/select
	Out         *Type
	Source      string
	commutative bool

	// Identity is the monoid identity of a built-in binary operator over its
	// output type (the type's maximum for min, 1 for product, true for land),
	// the value reductions fold from. Nil for user-registered operators,
	// whose identity the core cannot know.
	Identity kernel.Value

	// Stub is a diagnostic-only rendering of how Source resolves against
	// the kernel dispatch table (see kernel.GeneratedDispatchStub), filled
	// in for user-registered operators; built-ins leave it empty since
	// there is nothing a caller couldn't already infer from Source itself.
	Stub string
}

// Catalogue is the process-instance-owned, lock-protected registry of types
// and operators. One Catalogue lives inside each Library; there is no
// package-level global.
type Catalogue struct {
	mu    sync.RWMutex
	types map[string]*Type
	ops   map[string][]*Operator // keyed by op name, may hold several signatures
}

func newCatalogue() *Catalogue {
	c := &Catalogue{
		types: make(map[string]*Type),
		ops:   make(map[string][]*Operator),
	}
	for name, size := range builtinSizes {
		t := &Type{Name: name, Size: size, Builtin: true}
		t.initRef()
		c.types[name] = t
	}
	c.seedBuiltinOperators()
	return c
}

// seedBuiltinOperators registers sum/product/min/max/land/lor over the
// integer and floating types, eq0/neq0 select operators, and an identity
// unary per type, matching the "on library construction" contract.
func (c *Catalogue) seedBuiltinOperators() {
	numeric := []string{TypeI8, TypeI16, TypeI32, TypeI64, TypeU8, TypeU16, TypeU32, TypeU64, TypeF32, TypeF64}
	logical := []string{TypeBool}

	for _, tn := range numeric {
		t := c.types[tn]
		c.registerBuiltinBinary(kernel.OpPlus, t, t, t, true)
		c.registerBuiltinBinary(kernel.OpTimes, t, t, t, true)
		c.registerBuiltinBinary(kernel.OpMin, t, t, t, true)
		c.registerBuiltinBinary(kernel.OpMax, t, t, t, true)
		c.registerBuiltinSelect(kernel.OpEqZero, t)
		c.registerBuiltinSelect(kernel.OpNeqZero, t)
		c.registerBuiltinUnary(kernel.OpIdentity, t, t)
	}
	for _, tn := range logical {
		t := c.types[tn]
		c.registerBuiltinBinary(kernel.OpLand, t, t, t, true)
		c.registerBuiltinBinary(kernel.OpLor, t, t, t, true)
		c.registerBuiltinUnary(kernel.OpIdentity, t, t)
	}
}

func (c *Catalogue) registerBuiltinBinary(name string, a, b, out *Type, commutative bool) {
	op := &Operator{Kind: OpBinary, Name: name, In1: a, In2: b, Out: out, Source: name, commutative: commutative}
	if id, ok := kernel.MonoidIdentity(name, out.Name); ok {
		op.Identity = id
	}
	op.initRef()
	c.ops[name] = append(c.ops[name], op)
}

func (c *Catalogue) registerBuiltinUnary(name string, a, out *Type) {
	op := &Operator{Kind: OpUnary, Name: name, In1: a, Out: out, Source: name}
	op.initRef()
	c.ops[name] = append(c.ops[name], op)
}

func (c *Catalogue) registerBuiltinSelect(name string, a *Type) {
	op := &Operator{Kind: OpSelect, Name: name, In1: a, Out: c.types[TypeBool], Source: name}
	op.initRef()
	c.ops[name] = append(c.ops[name], op)
}

// FindType returns the shared type handle for name, or an InvalidArgument
// failure for an unknown type name (there is no separate UnknownType
// failure kind).
func (c *Catalogue) FindType(name string) (*Type, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	if !ok {
		return nil, errf(ErrKindInvalidArgument, "FindType", "unknown type %q", name)
	}
	return t, nil
}

// MakeType registers a user type carrying byteSize and an opaque kernel
// source fragment, validated via the kernel package before acceptance.
func (c *Catalogue) MakeType(name string, byteSize int, source string) (*Type, error) {
	if byteSize <= 0 {
		return nil, errf(ErrKindInvalidArgument, "MakeType", "byte size must be positive, got %d", byteSize)
	}
	if source != "" {
		if err := kernel.ValidateSource(source); err != nil {
			return nil, errf(ErrKindTypeMismatch, "MakeType", "invalid source fragment for %q: %w", name, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.types[name]; exists {
		return nil, errf(ErrKindInvalidArgument, "MakeType", "type %q already registered", name)
	}
	t := &Type{Name: name, Size: byteSize, Builtin: false, Source: source}
	t.initRef()
	c.types[name] = t
	return t, nil
}

// FindBinary returns the registered (a,b)->c operator named name whose In1
// matches typeName — built-in or user-registered — or InvalidArgument if
// none matches. Built-ins are seeded with In1==In2==Out==typeName, so this
// covers the common "give me + over i32" lookup without exposing the
// multi-signature list directly.
func (c *Catalogue) FindBinary(name, typeName string) (*Operator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, op := range c.ops[name] {
		if op.Kind == OpBinary && op.In1 != nil && op.In1.Name == typeName {
			return op, nil
		}
	}
	return nil, errf(ErrKindInvalidArgument, "FindBinary", "no binary operator %q over %s", name, typeName)
}

// FindUnary returns the registered a->b operator named name over typeName.
func (c *Catalogue) FindUnary(name, typeName string) (*Operator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, op := range c.ops[name] {
		if op.Kind == OpUnary && op.In1 != nil && op.In1.Name == typeName {
			return op, nil
		}
	}
	return nil, errf(ErrKindInvalidArgument, "FindUnary", "no unary operator %q over %s", name, typeName)
}

// FindSelect returns the registered a->bool operator named name over typeName.
func (c *Catalogue) FindSelect(name, typeName string) (*Operator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, op := range c.ops[name] {
		if op.Kind == OpSelect && op.In1 != nil && op.In1.Name == typeName {
			return op, nil
		}
	}
	return nil, errf(ErrKindInvalidArgument, "FindSelect", "no select operator %q over %s", name, typeName)
}

// MakeBinary registers (a,b)->c. Registration fails with TypeMismatch when a
// signature type is nil or when source does not parse as a C expression; the
// types themselves are not compared with each other. A parsable source that
// is not one of the known built-in fragments is accepted here and declined
// with NotImplemented at dispatch time.
func (c *Catalogue) MakeBinary(name string, a, b, out *Type, source string) (*Operator, error) {
	if a == nil || b == nil || out == nil {
		return nil, errf(ErrKindTypeMismatch, "MakeBinary", "nil type in signature for %q", name)
	}
	if err := kernel.ValidateSource(source); err != nil {
		return nil, errf(ErrKindTypeMismatch, "MakeBinary", "operator %q: %w", name, err)
	}
	stub, _ := kernel.GeneratedDispatchStub(name, "binary", source)
	op := &Operator{Kind: OpBinary, Name: name, In1: a, In2: b, Out: out, Source: source, Stub: stub}
	op.initRef()
	c.mu.Lock()
	c.ops[name] = append(c.ops[name], op)
	c.mu.Unlock()
	return op, nil
}

// MakeUnary registers a->b.
func (c *Catalogue) MakeUnary(name string, a, out *Type, source string) (*Operator, error) {
	if a == nil || out == nil {
		return nil, errf(ErrKindTypeMismatch, "MakeUnary", "nil type in signature for %q", name)
	}
	if err := kernel.ValidateSource(source); err != nil {
		return nil, errf(ErrKindTypeMismatch, "MakeUnary", "operator %q: %w", name, err)
	}
	stub, _ := kernel.GeneratedDispatchStub(name, "unary", source)
	op := &Operator{Kind: OpUnary, Name: name, In1: a, Out: out, Source: source, Stub: stub}
	op.initRef()
	c.mu.Lock()
	c.ops[name] = append(c.ops[name], op)
	c.mu.Unlock()
	return op, nil
}

// MakeSelect registers a->bool.
func (c *Catalogue) MakeSelect(name string, a *Type, source string) (*Operator, error) {
	if a == nil {
		return nil, errf(ErrKindTypeMismatch, "MakeSelect", "nil input type for %q", name)
	}
	if err := kernel.ValidateSource(source); err != nil {
		return nil, errf(ErrKindTypeMismatch, "MakeSelect", "operator %q: %w", name, err)
	}
	boolT, _ := c.FindType(TypeBool)
	stub, _ := kernel.GeneratedDispatchStub(name, "select", source)
	op := &Operator{Kind: OpSelect, Name: name, In1: a, Out: boolT, Source: source, Stub: stub}
	op.initRef()
	c.mu.Lock()
	c.ops[name] = append(c.ops[name], op)
	c.mu.Unlock()
	return op, nil
}
