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

// Package kernel stubs the accelerator compiler that opaque operator source
// strings are normally handed to. It maps the known built-in fragment names
// ("+", "*", "min", "max", "land", "lor", "== 0", "!= 0", "id") to native Go
// callables over a runtime-typed Value, and declines anything else with
// ErrNotImplemented — the appropriate behavior for a hosted
// (non-accelerator) build with no real kernel compiler behind it.
package kernel

import (
	"errors"
	"fmt"
	"math"
)

// Value is a single element, boxed as whichever Go native type its element
// Type names (bool, int8 … uint64, float32, float64). Numeric kernels widen
// to float64 internally and narrow back to the destination type on return;
// this is the "hosted" stand-in for per-type templated kernels and is
// documented as a simplification in DESIGN.md.
type Value any

// ErrNotImplemented is returned by Lookup when a source fragment names no
// known built-in; the algorithm layer maps this straight onto the core's
// ErrKindNotImplemented.
var ErrNotImplemented = errors.New("kernel: operator source not implemented")

// Known built-in operator source fragments.
const (
	OpPlus    = "+"
	OpTimes   = "*"
	OpMin     = "min"
	OpMax     = "max"
	OpLand    = "land"
	OpLor     = "lor"
	OpEqZero  = "== 0"
	OpNeqZero = "!= 0"
	OpIdentity = "id"
)

// BinaryFunc combines two Values into one.
type BinaryFunc func(a, b Value) (Value, error)

// UnaryFunc maps one Value to another.
type UnaryFunc func(a Value) (Value, error)

// SelectFunc maps one Value to a bool.
type SelectFunc func(a Value) (bool, error)

var binaryTable = map[string]func(a, b float64) float64{
	OpPlus:  func(a, b float64) float64 { return a + b },
	OpTimes: func(a, b float64) float64 { return a * b },
	OpMin:   math.Min,
	OpMax:   math.Max,
}

var logicalTable = map[string]func(a, b bool) bool{
	OpLand: func(a, b bool) bool { return a && b },
	OpLor:  func(a, b bool) bool { return a || b },
}

var selectTable = map[string]func(a float64) bool{
	OpEqZero:  func(a float64) bool { return a == 0 },
	OpNeqZero: func(a float64) bool { return a != 0 },
}

// LookupBinary returns the native callable for source over elements of
// typeName, or ErrNotImplemented if source names nothing known.
func LookupBinary(source, typeName string) (BinaryFunc, error) {
	if typeName == "bool" {
		if f, ok := logicalTable[source]; ok {
			return func(a, b Value) (Value, error) {
				ab, bb, err := asBools(a, b)
				if err != nil {
					return nil, err
				}
				return f(ab, bb), nil
			}, nil
		}
		return nil, fmt.Errorf("%w: %q over bool", ErrNotImplemented, source)
	}
	if f, ok := binaryTable[source]; ok {
		return func(a, b Value) (Value, error) {
			af, err := ToFloat64(a)
			if err != nil {
				return nil, err
			}
			bf, err := ToFloat64(b)
			if err != nil {
				return nil, err
			}
			return FromFloat64(f(af, bf), typeName), nil
		}, nil
	}
	return nil, fmt.Errorf("%w: %q over %s", ErrNotImplemented, source, typeName)
}

// LookupUnary returns the native callable for a unary source fragment.
func LookupUnary(source, typeName string) (UnaryFunc, error) {
	if source == OpIdentity {
		return func(a Value) (Value, error) { return a, nil }, nil
	}
	return nil, fmt.Errorf("%w: %q over %s", ErrNotImplemented, source, typeName)
}

// LookupSelect returns the native callable for a select source fragment.
func LookupSelect(source, typeName string) (SelectFunc, error) {
	if f, ok := selectTable[source]; ok {
		return func(a Value) (bool, error) {
			af, err := ToFloat64(a)
			if err != nil {
				return false, err
			}
			return f(af), nil
		}, nil
	}
	return nil, fmt.Errorf("%w: %q over %s", ErrNotImplemented, source, typeName)
}

// ToFloat64 widens any supported numeric Value.
func ToFloat64(v Value) (float64, error) {
	switch x := v.(type) {
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("kernel: value %v (%T) is not numeric", v, v)
	}
}

// FromFloat64 narrows f back to the native Go type typeName names.
func FromFloat64(f float64, typeName string) Value {
	switch typeName {
	case "i8":
		return int8(f)
	case "i16":
		return int16(f)
	case "i32":
		return int32(f)
	case "i64":
		return int64(f)
	case "u8":
		return uint8(f)
	case "u16":
		return uint16(f)
	case "u32":
		return uint32(f)
	case "u64":
		return uint64(f)
	case "f32":
		return float32(f)
	default:
		return f
	}
}

// Coerce converts v to the native Go representation of typeName, so every
// value stored inside a tensor's blocks carries the tensor's own element
// type regardless of how the caller boxed it (a float64 literal fed into an
// i32 tensor comes out int32). Unknown (user) type names pass v through
// untouched, since the core never interprets user-typed values.
func Coerce(v Value, typeName string) (Value, error) {
	if v == nil {
		return nil, nil
	}
	switch typeName {
	case "void":
		return nil, nil
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("kernel: value %v (%T) is not bool", v, v)
		}
		return b, nil
	case "i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64", "f32", "f64":
		f, err := ToFloat64(v)
		if err != nil {
			return nil, err
		}
		return FromFloat64(f, typeName), nil
	default:
		return v, nil
	}
}

func asBools(a, b Value) (bool, bool, error) {
	ab, ok := a.(bool)
	if !ok {
		return false, false, fmt.Errorf("kernel: value %v (%T) is not bool", a, a)
	}
	bb, ok := b.(bool)
	if !ok {
		return false, false, fmt.Errorf("kernel: value %v (%T) is not bool", b, b)
	}
	return ab, bb, nil
}

// Zero returns the additive-identity Value for typeName, used by algorithms
// as the default init for reductions with no explicit initial scalar.
func Zero(typeName string) Value {
	if typeName == "bool" {
		return false
	}
	return FromFloat64(0, typeName)
}

// MonoidIdentity returns the identity element of the monoid a built-in
// binary source fragment forms over typeName elements: 0 for "+", 1 for "*",
// the type's maximum for "min", its minimum for "max", true for "land",
// false for "lor". Reductions must fold from this value, not from a
// universal zero — min over positives seeded with 0 would answer 0. Unknown
// sources and unknown (user) type names report no identity.
func MonoidIdentity(source, typeName string) (Value, bool) {
	switch source {
	case OpPlus:
		if _, ok := maxOf(typeName); !ok {
			return nil, false
		}
		return Zero(typeName), true
	case OpTimes:
		if _, ok := maxOf(typeName); !ok {
			return nil, false
		}
		return FromFloat64(1, typeName), true
	case OpMin:
		return maxOf(typeName)
	case OpMax:
		return minOf(typeName)
	case OpLand:
		return true, true
	case OpLor:
		return false, true
	}
	return nil, false
}

// maxOf returns the largest representable value of a built-in numeric type,
// the identity for min.
func maxOf(typeName string) (Value, bool) {
	switch typeName {
	case "i8":
		return int8(math.MaxInt8), true
	case "i16":
		return int16(math.MaxInt16), true
	case "i32":
		return int32(math.MaxInt32), true
	case "i64":
		return int64(math.MaxInt64), true
	case "u8":
		return uint8(math.MaxUint8), true
	case "u16":
		return uint16(math.MaxUint16), true
	case "u32":
		return uint32(math.MaxUint32), true
	case "u64":
		return uint64(math.MaxUint64), true
	case "f32":
		return float32(math.Inf(1)), true
	case "f64":
		return math.Inf(1), true
	}
	return nil, false
}

// minOf returns the smallest representable value of a built-in numeric type,
// the identity for max.
func minOf(typeName string) (Value, bool) {
	switch typeName {
	case "i8":
		return int8(math.MinInt8), true
	case "i16":
		return int16(math.MinInt16), true
	case "i32":
		return int32(math.MinInt32), true
	case "i64":
		return int64(math.MinInt64), true
	case "u8":
		return uint8(0), true
	case "u16":
		return uint16(0), true
	case "u32":
		return uint32(0), true
	case "u64":
		return uint64(0), true
	case "f32":
		return float32(math.Inf(-1)), true
	case "f64":
		return math.Inf(-1), true
	}
	return nil, false
}
