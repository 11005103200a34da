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

import "fmt"

// ErrorKind is the closed taxonomy of failures the core can raise. It never
// grows at runtime; new failure modes get a new constant here, not a bare
// string.
type ErrorKind int

const (
	// ErrKindNone is the zero value; never attached to a returned *Error.
	ErrKindNone ErrorKind = iota

	// ErrKindDeviceNotPresent means no accelerator device matched the
	// requested constraints.
	ErrKindDeviceNotPresent

	// ErrKindDeviceError means the accelerator reported a fault during
	// context creation or kernel build.
	ErrKindDeviceError

	// ErrKindMemOpFailed means allocation or copy to/from the accelerator
	// failed.
	ErrKindMemOpFailed

	// ErrKindInvalidArgument means a user-supplied value is out of its
	// documented range.
	ErrKindInvalidArgument

	// ErrKindInvalidState means a combination of flags/arguments is
	// internally inconsistent.
	ErrKindInvalidState

	// ErrKindTypeMismatch means an operator signature disagrees with the
	// tensor/scalar element types it was applied to.
	ErrKindTypeMismatch

	// ErrKindNoAlgorithm means the registry holds no entry able to process
	// a given params instance.
	ErrKindNoAlgorithm

	// ErrKindNotImplemented means the operation is recognised but this
	// build lacks an implementation for the requested format combination.
	ErrKindNotImplemented

	// ErrKindError is the catch-all, preserved for diagnostic propagation.
	ErrKindError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindDeviceNotPresent:
		return "DeviceNotPresent"
	case ErrKindDeviceError:
		return "DeviceError"
	case ErrKindMemOpFailed:
		return "MemOpFailed"
	case ErrKindInvalidArgument:
		return "InvalidArgument"
	case ErrKindInvalidState:
		return "InvalidState"
	case ErrKindTypeMismatch:
		return "TypeMismatch"
	case ErrKindNoAlgorithm:
		return "NoAlgorithm"
	case ErrKindNotImplemented:
		return "NotImplemented"
	case ErrKindError:
		return "Error"
	default:
		return "None"
	}
}

// Error is the concrete error type returned across every API boundary: Op
// names the failing call or processing stage, Kind classifies it into the
// closed ErrorKind taxonomy, and Err, when non-nil, is the underlying cause
// (wrapped, not swallowed).
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spla: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("spla: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, spla.ErrNoAlgorithm) against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != ErrKindNone && t.Kind == e.Kind
}

// newErr builds an *Error, wrapping cause the same way errf does below.
func newErr(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func errf(kind ErrorKind, op, format string, args ...any) *Error {
	return newErr(kind, op, fmt.Errorf(format, args...))
}

// Sentinel values usable with errors.Is(err, spla.ErrX); only Kind is
// compared (see (*Error).Is), so these never need an Op or Err filled in.
var (
	ErrDeviceNotPresent = &Error{Kind: ErrKindDeviceNotPresent}
	ErrDeviceError      = &Error{Kind: ErrKindDeviceError}
	ErrMemOpFailed      = &Error{Kind: ErrKindMemOpFailed}
	ErrInvalidArgument  = &Error{Kind: ErrKindInvalidArgument}
	ErrInvalidState     = &Error{Kind: ErrKindInvalidState}
	ErrTypeMismatch     = &Error{Kind: ErrKindTypeMismatch}
	ErrNoAlgorithm      = &Error{Kind: ErrKindNoAlgorithm}
	ErrNotImplemented   = &Error{Kind: ErrKindNotImplemented}
)

// ExitCode maps an error's Kind onto a one-to-one exit-code scheme for
// integrating CLIs: 0 only for a nil error, otherwise 1+ErrorKind so every
// taxonomy entry gets a distinct stable non-zero code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if ok := asError(err, &e); ok {
		return 1 + int(e.Kind)
	}
	return 1 + int(ErrKindError)
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
