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
	"sort"

	"github.com/samber/lo"
	"github.com/sparsekit/spla/spla/kernel"
)

// sortedByRowCol returns a copy of entries sorted ascending by (Row, Col),
// the block-level primitive backing ToCSR and the non-ValuesSorted ingress
// path.
func sortedByRowCol(entries []entry) []entry {
	out := make([]entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

// dedupReduce collapses runs of equal (Row, Col) using op, or keeps the
// first entry in the run when op is nil. entries must already be sorted by
// (Row, Col).
func dedupReduce(entries []entry, combine func(a, b kernel.Value) (kernel.Value, error)) ([]entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make([]entry, 0, len(entries))
	cur := entries[0]
	for _, e := range entries[1:] {
		if e.Row == cur.Row && e.Col == cur.Col {
			if combine == nil {
				continue // keep first
			}
			v, err := combine(cur.Val, e.Val)
			if err != nil {
				return nil, err
			}
			cur.Val = v
			continue
		}
		out = append(out, cur)
		cur = e
	}
	out = append(out, cur)
	return out, nil
}

// sortDedup is the full ingress normalisation pipeline: sort unless
// ValuesSorted is set, then reduce duplicates unless NoDuplicates is set.
func sortDedup(entries []entry, sorted, noDup bool, combine func(a, b kernel.Value) (kernel.Value, error)) ([]entry, error) {
	if !sorted {
		entries = sortedByRowCol(entries)
	}
	if noDup {
		return entries, nil
	}
	return dedupReduce(entries, combine)
}

// prefixSum returns cumulative offsets: out[i] = sum(counts[:i]); out has
// len(counts)+1 entries with out[len(counts)] == total. DataRead feeds it
// per-row-of-blocks nnz counts to get the offset each row of blocks starts
// scattering its entries at.
func prefixSum(counts []int) []int {
	out := make([]int, len(counts)+1)
	for i, c := range counts {
		out[i+1] = out[i] + c
	}
	return out
}

// gather copies src[indices[i]] into out[i] for each i, pulling values from
// a source slice through a coordinate list.
func gather[T any](src []T, indices []int) []T {
	return lo.Map(indices, func(idx int, _ int) T { return src[idx] })
}

// scatter writes values[i] into dst[indices[i]] for each i.
func scatter[T any](dst []T, indices []int, values []T) {
	for i, idx := range indices {
		dst[idx] = values[i]
	}
}

// applyMask filters entries to those whose (Row, Col) is present in the
// mask block, or absent from it when complement is true. A nil mask block
// is "fully unmasked" under complement and "produces nothing" under a
// regular mask, per the per-task absence policy.
func applyMask(entries []entry, mask *Block, complement bool) []entry {
	if mask == nil {
		if complement {
			return entries
		}
		return nil
	}
	present := make(map[[2]int]bool, mask.Nvals)
	for _, e := range mask.Entries() {
		present[[2]int{e.Row, e.Col}] = true
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		ok := present[[2]int{e.Row, e.Col}]
		if ok != complement {
			out = append(out, e)
		}
	}
	return out
}
