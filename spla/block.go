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

import "github.com/sparsekit/spla/spla/kernel"

// Format is a block's physical layout tag: COO+Dense for vectors,
// COO+CSR+LIL for matrices. LIL is the incremental-build staging format
// accumulating ingress merges through; CSR is the resident matrix form.
type Format int

const (
	FormatCOO Format = iota
	FormatCSR
	FormatDense
	FormatLIL
)

func (f Format) String() string {
	switch f {
	case FormatCOO:
		return "coo"
	case FormatCSR:
		return "csr"
	case FormatDense:
		return "dense"
	case FormatLIL:
		return "lil"
	default:
		return "unknown"
	}
}

// BlockCoord is a block's position on its tensor's block grid. Col is
// unused (always 0) for vector blocks.
type BlockCoord struct {
	Row, Col int
}

// entry is one (row,col,value) triple with block-relative indices — always
// less than the block's Rows/Cols per the Invariants.
type entry struct {
	Row, Col int
	Val      kernel.Value
}

// Block owns the storage for a non-empty subset of entries of its region. A
// slot with no entries is represented as a nil *Block, never as a Block with
// Nvals == 0.
type Block struct {
	Format   Format
	Rows     int // logical height of this block's region
	Cols     int // logical width; 1 for a vector block (col index always 0)
	Nvals    int
	TypeName string

	// COO / LIL backing storage, used depending on Format.
	coo []entry
	lil [][]entry // per-row adjacency lists, len == Rows

	// CSR backing storage.
	csrPtr []int // len Rows+1
	csrCol []int
	csrVal []kernel.Value

	// Dense backing storage, row-major, len == Rows*Cols (Cols==1 for vectors).
	dense []kernel.Value
	// denseSet tracks which dense slots are "present" for a vector/matrix
	// materialised via ToDense, since a dense slot of the zero value is
	// still a stored entry once inserted.
	denseSet []bool
}

// NewCOOBlock builds a coordinate-format block from unsorted, possibly
// duplicated (row, col, val) triples. Callers needing sorted/deduplicated
// semantics should run sortDedup first (see primitives.go).
func NewCOOBlock(rows, cols int, typeName string, entries []struct {
	Row, Col int
	Val      kernel.Value
}) *Block {
	if len(entries) == 0 {
		return nil
	}
	b := &Block{Format: FormatCOO, Rows: rows, Cols: cols, TypeName: typeName}
	b.coo = make([]entry, len(entries))
	for i, e := range entries {
		b.coo[i] = entry{Row: e.Row, Col: e.Col, Val: e.Val}
	}
	b.Nvals = len(b.coo)
	return b
}

// Entries returns every (row, col, value) triple in this block regardless
// of its backing Format, materialising CSR/LIL/Dense into the flat view COO
// algorithms expect. Block-relative coordinates only.
func (b *Block) Entries() []entry {
	if b == nil {
		return nil
	}
	switch b.Format {
	case FormatCOO:
		return b.coo
	case FormatCSR:
		out := make([]entry, 0, b.Nvals)
		for r := 0; r < b.Rows; r++ {
			for i := b.csrPtr[r]; i < b.csrPtr[r+1]; i++ {
				out = append(out, entry{Row: r, Col: b.csrCol[i], Val: b.csrVal[i]})
			}
		}
		return out
	case FormatLIL:
		out := make([]entry, 0, b.Nvals)
		for r, row := range b.lil {
			for _, e := range row {
				out = append(out, entry{Row: r, Col: e.Col, Val: e.Val})
			}
		}
		return out
	case FormatDense:
		out := make([]entry, 0, b.Nvals)
		for i, present := range b.denseSet {
			if !present {
				continue
			}
			r, c := i/b.Cols, i%b.Cols
			out = append(out, entry{Row: r, Col: c, Val: b.dense[i]})
		}
		return out
	default:
		return nil
	}
}

// ToDense converts b (of any format) into a newly allocated FormatDense
// block spanning the same region; absent entries default to the type's zero
// value but are marked unset so Nvals still reflects only stored entries.
func (b *Block) ToDense(rows, cols int, typeName string) *Block {
	out := &Block{Format: FormatDense, Rows: rows, Cols: cols, TypeName: typeName}
	out.dense = make([]kernel.Value, rows*cols)
	out.denseSet = make([]bool, rows*cols)
	for i := range out.dense {
		out.dense[i] = kernel.Zero(typeName)
	}
	for _, e := range b.Entries() {
		idx := e.Row*cols + e.Col
		if !out.denseSet[idx] {
			out.Nvals++
		}
		out.dense[idx] = e.Val
		out.denseSet[idx] = true
	}
	return out
}

// ToCSR converts b into a newly allocated FormatCSR block; entries are
// sorted by (row, col) as a side effect, matching the compressed-row
// invariant that column indices within a row are ascending.
func (b *Block) ToCSR(rows, cols int, typeName string) *Block {
	entries := sortedByRowCol(b.Entries())
	out := &Block{Format: FormatCSR, Rows: rows, Cols: cols, TypeName: typeName}
	out.csrPtr = make([]int, rows+1)
	out.csrCol = make([]int, len(entries))
	out.csrVal = make([]kernel.Value, len(entries))
	for i, e := range entries {
		out.csrPtr[e.Row+1]++
		out.csrCol[i] = e.Col
		out.csrVal[i] = e.Val
	}
	for r := 0; r < rows; r++ {
		out.csrPtr[r+1] += out.csrPtr[r]
	}
	out.Nvals = len(entries)
	return out
}

// ToLIL converts b into a newly allocated FormatLIL block.
func (b *Block) ToLIL(rows, cols int, typeName string) *Block {
	out := &Block{Format: FormatLIL, Rows: rows, Cols: cols, TypeName: typeName, lil: make([][]entry, rows)}
	for _, e := range b.Entries() {
		out.lil[e.Row] = append(out.lil[e.Row], e)
	}
	out.Nvals = b.Nvals
	return out
}
