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

import "sync"

// Tensor is the user-visible, reference-counted handle over a block storage
// — a Vector when Cols == 1 and IsVector, a Matrix otherwise. One storage
// type models both shapes; the split into Vector/Matrix constructors below
// is purely for a friendlier public API.
type Tensor struct {
	RefCounted
	lib      *Library
	storage  *BlockStorage
	Rows     int
	Cols     int
	IsVector bool
	TypeName string
}

func newTensor(lib *Library, rows, cols int, typeName string, isVector bool) *Tensor {
	rb := numBlocks(rows, lib.blockSize)
	cb := 1
	if !isVector {
		cb = numBlocks(cols, lib.blockSize)
	}
	t := &Tensor{
		lib:      lib,
		storage:  newBlockStorage(rb, cb, lib.blockSize, typeName, isVector),
		Rows:     rows,
		Cols:     cols,
		IsVector: isVector,
		TypeName: typeName,
	}
	t.initRef()
	return t
}

// Vector is a 1-D tensor of logical length Rows (Cols is always 1).
type Vector struct{ *Tensor }

// MakeVector allocates a new, empty vector of length nrows over typeName.
func MakeVector(lib *Library, nrows int, typeName string) (*Vector, error) {
	if nrows <= 0 {
		return nil, errf(ErrKindInvalidArgument, "Vector.make", "nrows must be positive, got %d", nrows)
	}
	if _, err := lib.catalogue.FindType(typeName); err != nil {
		return nil, err
	}
	return &Vector{newTensor(lib, nrows, 1, typeName, true)}, nil
}

// Matrix is a 2-D tensor of shape Rows x Cols.
type Matrix struct{ *Tensor }

// MakeMatrix allocates a new, empty matrix of shape nrows x ncols over
// typeName. Shape is checked before the type lookup's result is consulted,
// so a negative dimension is reported even when typeName is also unknown.
func MakeMatrix(lib *Library, nrows, ncols int, typeName string) (*Matrix, error) {
	if nrows <= 0 || ncols <= 0 {
		return nil, errf(ErrKindInvalidArgument, "Matrix.make", "shape must be positive, got %dx%d", nrows, ncols)
	}
	if _, err := lib.catalogue.FindType(typeName); err != nil {
		return nil, err
	}
	return &Matrix{newTensor(lib, nrows, ncols, typeName, false)}, nil
}

// Nvals returns the tensor's cached aggregate value count.
func (t *Tensor) Nvals() int { return t.storage.Nvals() }

// Scalar is a typed value holder, optionally empty; semantically a 1x1
// tensor but kept as its own shape class for a simpler public API.
type Scalar struct {
	RefCounted
	mu       sync.Mutex
	TypeName string
	value    any
	has      bool
}

// MakeScalar allocates an empty scalar of the given type.
func MakeScalar(lib *Library, typeName string) (*Scalar, error) {
	if _, err := lib.catalogue.FindType(typeName); err != nil {
		return nil, err
	}
	s := &Scalar{TypeName: typeName}
	s.initRef()
	return s, nil
}

// SetValue stores v, marking the scalar non-empty.
func (s *Scalar) SetValue(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.has = v, true
}

// Value returns the stored value and whether one is present.
func (s *Scalar) Value() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.has
}

// Clear empties the scalar.
func (s *Scalar) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.has = nil, false
}
