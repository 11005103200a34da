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

// hostData is the zero-copy host buffer DataWrite/DataRead nodes carry,
// backing both DataMatrix (Cols populated) and DataVector (Cols nil).
// Rows/Cols/Values are owned by the caller for the lifetime of the
// handle; Release is invoked exactly once, when the handle's reference
// count drops to zero, a release-callback-on-drop idiom for buffers owned
// outside the library.
type hostData struct {
	RefCounted
	IsVector bool
	Rows     []int
	Cols     []int // nil for a vector buffer
	Values   []any
	Nvals    int
	Release  func()
}

func (d *hostData) unref() {
	if d.Unref() == 0 && d.Release != nil {
		d.Release()
	}
}

// HostBuffer is satisfied by *DataMatrix and *DataVector, letting
// Expression.MakeDataWrite/MakeDataRead accept either public wrapper without
// exposing hostData itself outside the package.
type HostBuffer interface {
	hostBuffer() *hostData
}

// DataMatrix is a host-owned (rows, cols, values) triple describing up to
// nvals matrix entries, to be consumed by a DataWrite node or filled by a
// DataRead node.
type DataMatrix struct{ *hostData }

// MakeDataMatrix wraps caller-owned slices as a DataMatrix handle. release,
// if non-nil, runs once the last reference is dropped.
func MakeDataMatrix(rows, cols []int, values []any, nvals int, release func()) (*DataMatrix, error) {
	if nvals < 0 || nvals > len(rows) || nvals > len(cols) || nvals > len(values) {
		return nil, errf(ErrKindInvalidArgument, "DataMatrix.make", "nvals %d exceeds buffer length", nvals)
	}
	d := &hostData{Rows: rows, Cols: cols, Values: values, Nvals: nvals, Release: release}
	d.initRef()
	return &DataMatrix{d}, nil
}

func (d *DataMatrix) hostBuffer() *hostData { return d.hostData }

// DataVector is a host-owned (rows, values) pair for a vector's entries.
type DataVector struct{ *hostData }

// MakeDataVector wraps caller-owned slices as a DataVector handle.
func MakeDataVector(rows []int, values []any, nvals int, release func()) (*DataVector, error) {
	if nvals < 0 || nvals > len(rows) || nvals > len(values) {
		return nil, errf(ErrKindInvalidArgument, "DataVector.make", "nvals %d exceeds buffer length", nvals)
	}
	d := &hostData{IsVector: true, Rows: rows, Values: values, Nvals: nvals, Release: release}
	d.initRef()
	return &DataVector{d}, nil
}

func (d *DataVector) hostBuffer() *hostData { return d.hostData }

// Entries returns the (row, value) pairs currently held by the buffer: the
// ones the caller supplied to a DataWrite node, or the ones a DataRead node
// just filled in.
func (d *DataVector) Entries() (rows []int, values []any) {
	return d.Rows, d.Values
}

// Entries returns the (row, col, value) triples currently held by the
// buffer, per DataVector.Entries's contract.
func (d *DataMatrix) Entries() (rows, cols []int, values []any) {
	return d.Rows, d.Cols, d.Values
}
