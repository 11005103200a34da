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

// registerBuiltins seeds the registry with one format-generic candidate per
// OpType plus, where it pays for itself, a faster dense/dense candidate
// registered first so it is tried before the generic fallback — entries are
// tried in registration order and the first Select to accept wins.
func (r *Registry) registerBuiltins() {
	r.Register(AlgoMMAdd, denseFastAdd())
	r.Register(AlgoMMAdd, genericEWiseAdd())

	r.Register(AlgoMMMul, genericMatMul())
	r.Register(AlgoMVMul, genericMatVec())
	r.Register(AlgoVMMul, genericVecMat())

	r.Register(AlgoVectorReduce, genericReduce())
	r.Register(AlgoMatrixReduceScalar, genericReduceScalar())

	r.Register(AlgoVectorAssign, genericAssign())
	r.Register(AlgoTranspose, genericTranspose())
	r.Register(AlgoTril, genericTriangular(true))
	r.Register(AlgoTriu, genericTriangular(false))
	r.Register(AlgoToDense, genericToDense())
}

func binaryOf(p *AlgoParams) (kernel.BinaryFunc, error) {
	return kernel.LookupBinary(p.BinaryOp.Source, p.TypeName)
}

// denseFastAdd handles the common case of two dense blocks directly, array
// to array, without building an intermediate map — a format-keyed fast
// path ahead of the generic candidate.
func denseFastAdd() *Algorithm {
	return &Algorithm{
		Name: "mmadd/dense+dense",
		Select: func(p *AlgoParams) bool {
			return p.A != nil && p.B != nil && p.A.Format == FormatDense && p.B.Format == FormatDense
		},
		Process: func(p *AlgoParams) error {
			op, err := binaryOf(p)
			if err != nil {
				return err
			}
			out := &Block{Format: FormatDense, Rows: p.A.Rows, Cols: p.A.Cols, TypeName: p.TypeName}
			out.dense = make([]kernel.Value, len(p.A.dense))
			out.denseSet = make([]bool, len(p.A.dense))
			for i := range out.dense {
				av, bv := p.A.dense[i], p.B.dense[i]
				aSet, bSet := p.A.denseSet[i], p.B.denseSet[i]
				switch {
				case aSet && bSet:
					v, err := op(av, bv)
					if err != nil {
						return err
					}
					out.dense[i], out.denseSet[i] = v, true
				case aSet:
					out.dense[i], out.denseSet[i] = av, true
				case bSet:
					out.dense[i], out.denseSet[i] = bv, true
				}
				if out.denseSet[i] {
					out.Nvals++
				}
			}
			p.OutBlock = applyMaskToBlock(out, p.Mask, p.Desc)
			return nil
		},
	}
}

// genericEWiseAdd merges two blocks of any format by entry list, the
// fallback candidate tried when the dense fast path declines.
func genericEWiseAdd() *Algorithm {
	return &Algorithm{
		Name:   "mmadd/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			op, err := binaryOf(p)
			if err != nil {
				return err
			}
			merged := map[[2]int]kernel.Value{}
			if p.A != nil {
				for _, e := range p.A.Entries() {
					merged[[2]int{e.Row, e.Col}] = e.Val
				}
			}
			if p.B != nil {
				for _, e := range p.B.Entries() {
					k := [2]int{e.Row, e.Col}
					if existing, ok := merged[k]; ok {
						v, err := op(existing, e.Val)
						if err != nil {
							return err
						}
						merged[k] = v
					} else {
						merged[k] = e.Val
					}
				}
			}
			rows, cols := 0, 0
			if p.A != nil {
				rows, cols = p.A.Rows, p.A.Cols
			} else if p.B != nil {
				rows, cols = p.B.Rows, p.B.Cols
			}
			out := mapToCOOBlock(merged, rows, cols, p.TypeName)
			out = applyMaskToBlock(out, p.Mask, p.Desc)
			p.OutBlock = densifyIfAbove(out, p.Desc, p.TypeName)
			return nil
		},
	}
}

// densifyIfAbove converts b to the dense format once its fill ratio crosses
// the DenseFactor descriptor threshold (an integer percentage); below the
// threshold, or with no threshold set, b is returned unchanged. This is the
// sparse-to-dense transition point inside algorithms, and what makes the
// dense/dense fast paths reachable on subsequent operations.
func densifyIfAbove(b *Block, desc effectiveDescriptor, typeName string) *Block {
	if b == nil || b.Format == FormatDense {
		return b
	}
	factor, ok := desc.GetParamInt(DenseFactor)
	if !ok {
		return b
	}
	if b.Nvals*100 >= factor*b.Rows*b.Cols {
		return b.ToDense(b.Rows, b.Cols, typeName)
	}
	return b
}

// genericMatMul computes one output block of A*B for the masked, typed
// semiring (mulOp, addOp); since blocks are small and bounded by blockSize,
// a dense-accumulator inner product is acceptable work per block.
func genericMatMul() *Algorithm {
	return &Algorithm{
		Name:   "mmmul/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			mul, err := kernel.LookupBinary(p.BinaryOp.Source, p.TypeName)
			if err != nil {
				return err
			}
			add, err := kernel.LookupBinary(p.AddOp.Source, p.TypeName)
			if err != nil {
				return err
			}
			acc := map[[2]int]kernel.Value{}
			if p.A != nil && p.B != nil {
				bByRow := map[int][]entry{}
				for _, e := range p.B.Entries() {
					bByRow[e.Row] = append(bByRow[e.Row], e)
				}
				for _, ea := range p.A.Entries() {
					for _, eb := range bByRow[ea.Col] {
						v, err := mul(ea.Val, eb.Val)
						if err != nil {
							return err
						}
						k := [2]int{ea.Row, eb.Col}
						if cur, ok := acc[k]; ok {
							v, err = add(cur, v)
							if err != nil {
								return err
							}
						}
						acc[k] = v
					}
				}
			}
			out := mapToCOOBlock(acc, p.ARows, p.BCols, p.TypeName)
			p.OutBlock = applyMaskToBlock(out, p.Mask, p.Desc)
			return nil
		},
	}
}

// genericMatVec computes one block of M*v with select-masked accumulation.
func genericMatVec() *Algorithm {
	return &Algorithm{
		Name:   "mvmul/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			mul, err := kernel.LookupBinary(p.BinaryOp.Source, p.TypeName)
			if err != nil {
				return err
			}
			add, err := kernel.LookupBinary(p.AddOp.Source, p.TypeName)
			if err != nil {
				return err
			}
			vByRow := map[int]kernel.Value{}
			if p.B != nil {
				for _, e := range p.B.Entries() {
					vByRow[e.Row] = e.Val
				}
			}
			acc := map[[2]int]kernel.Value{}
			if p.A != nil {
				for _, e := range p.A.Entries() {
					vv, ok := vByRow[e.Col]
					if !ok {
						continue
					}
					v, err := mul(e.Val, vv)
					if err != nil {
						return err
					}
					k := [2]int{e.Row, 0}
					if cur, ok := acc[k]; ok {
						v, err = add(cur, v)
						if err != nil {
							return err
						}
					}
					acc[k] = v
				}
			}
			out := mapToCOOBlock(acc, p.ARows, 1, p.TypeName)
			p.OutBlock = applyMaskToBlock(out, p.Mask, p.Desc)
			return nil
		},
	}
}

// genericVecMat computes one block of v*M, the row-vector dual of MVMul.
func genericVecMat() *Algorithm {
	return &Algorithm{
		Name:   "vmmul/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			mul, err := kernel.LookupBinary(p.BinaryOp.Source, p.TypeName)
			if err != nil {
				return err
			}
			add, err := kernel.LookupBinary(p.AddOp.Source, p.TypeName)
			if err != nil {
				return err
			}
			vByCol := map[int]kernel.Value{}
			if p.A != nil {
				for _, e := range p.A.Entries() {
					vByCol[e.Row] = e.Val
				}
			}
			acc := map[[2]int]kernel.Value{}
			if p.B != nil {
				for _, e := range p.B.Entries() {
					vv, ok := vByCol[e.Row]
					if !ok {
						continue
					}
					v, err := mul(vv, e.Val)
					if err != nil {
						return err
					}
					k := [2]int{e.Col, 0}
					if cur, ok := acc[k]; ok {
						v, err = add(cur, v)
						if err != nil {
							return err
						}
					}
					acc[k] = v
				}
			}
			out := mapToCOOBlock(acc, p.BCols, 1, p.TypeName)
			p.OutBlock = applyMaskToBlock(out, p.Mask, p.Desc)
			return nil
		},
	}
}

// genericReduce folds every entry of a vector block into the running scalar
// carried in p.Init, honoring EarlyExit by stopping once the accumulator
// stops changing (a simplified stabilisation check appropriate for the
// idempotent reducers min/max/land/lor).
func genericReduce() *Algorithm {
	return &Algorithm{
		Name:   "reduce/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			op, err := binaryOf(p)
			if err != nil {
				return err
			}
			acc := p.Init
			folded := false
			earlyExit := p.Desc.IsParamSet(EarlyExit)
			if p.A != nil {
				for _, e := range p.A.Entries() {
					next, err := op(acc, e.Val)
					if err != nil {
						return err
					}
					folded = true
					if earlyExit && next == acc {
						break
					}
					acc = next
				}
			}
			// An empty block contributes no partial at all, rather than the
			// fold seed: the seed may be an extreme like the type's maximum,
			// which must not pass through the final combine's numeric
			// widening.
			p.OutScalar, p.OutHasScalar = acc, folded
			return nil
		},
	}
}

// genericReduceScalar is MatrixReduceScalar's mask-aware cousin of
// genericReduce, folding only entries the mask allows.
func genericReduceScalar() *Algorithm {
	return &Algorithm{
		Name:   "reducescalar/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			op, err := binaryOf(p)
			if err != nil {
				return err
			}
			acc := p.Init
			entries := []entry{}
			if p.A != nil {
				entries = p.A.Entries()
			}
			if p.Mask != nil {
				entries = applyMask(entries, p.Mask, p.Desc.IsParamSet(MaskComplement))
			}
			for _, e := range entries {
				next, err := op(acc, e.Val)
				if err != nil {
					return err
				}
				acc = next
			}
			// As in genericReduce: a block whose masked entry set is empty
			// contributes no partial.
			p.OutScalar, p.OutHasScalar = acc, len(entries) > 0
			return nil
		},
	}
}

// genericAssign broadcasts a scalar into every masked position of a block's
// region.
func genericAssign() *Algorithm {
	return &Algorithm{
		Name:   "assign/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			complement := p.Desc.IsParamSet(MaskComplement)
			merged := map[[2]int]kernel.Value{}
			if p.A != nil {
				for _, e := range p.A.Entries() {
					merged[[2]int{e.Row, e.Col}] = e.Val
				}
			}
			var positions [][2]int
			if p.Mask != nil {
				present := map[[2]int]bool{}
				for _, e := range p.Mask.Entries() {
					present[[2]int{e.Row, e.Col}] = true
					if !complement {
						positions = append(positions, [2]int{e.Row, e.Col})
					}
				}
				if complement {
					for r := 0; r < p.ARows; r++ {
						if !present[[2]int{r, 0}] {
							positions = append(positions, [2]int{r, 0})
						}
					}
				}
			} else {
				for r := 0; r < p.ARows; r++ {
					positions = append(positions, [2]int{r, 0})
				}
			}
			for _, pos := range positions {
				if existing, ok := merged[pos]; ok && p.AddOp != nil {
					v, err := mustBinary(p.AddOp, p.TypeName, existing, p.Init)
					if err != nil {
						return err
					}
					merged[pos] = v
					continue
				}
				merged[pos] = p.Init
			}
			out := mapToCOOBlock(merged, p.ARows, p.ACols, p.TypeName)
			p.OutBlock = out
			return nil
		},
	}
}

// genericTranspose swaps (row,col) for every entry; the node processor
// already picked the (j,i) source block before invoking this, so Process
// here only needs to flip coordinates within the block.
func genericTranspose() *Algorithm {
	return &Algorithm{
		Name:   "transpose/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			merged := map[[2]int]kernel.Value{}
			if p.A != nil {
				for _, e := range p.A.Entries() {
					merged[[2]int{e.Col, e.Row}] = e.Val
				}
			}
			out := mapToCOOBlock(merged, p.ACols, p.ARows, p.TypeName)
			p.OutBlock = applyMaskToBlock(out, p.Mask, p.Desc)
			return nil
		},
	}
}

// genericTriangular zeroes the strict upper (lower=true) or strict lower
// (lower=false) triangle; the caller passes the global row/col offset of the
// block's origin (block index times block size) in ARows/ACols.
func genericTriangular(lower bool) *Algorithm {
	return &Algorithm{
		Name:   "triangular/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			var kept []entry
			if p.A != nil {
				for _, e := range p.A.Entries() {
					globalRow := e.Row + p.ARows
					globalCol := e.Col + p.ACols
					if lower && globalRow >= globalCol {
						kept = append(kept, e)
					}
					if !lower && globalRow <= globalCol {
						kept = append(kept, e)
					}
				}
			}
			rows, cols := 0, 0
			if p.A != nil {
				rows, cols = p.A.Rows, p.A.Cols
			}
			out := entriesToCOOBlock(kept, rows, cols, p.TypeName)
			p.OutBlock = out
			return nil
		},
	}
}

// genericToDense materialises a block in FormatDense regardless of its
// current format.
func genericToDense() *Algorithm {
	return &Algorithm{
		Name:   "todense/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			rows, cols := p.ARows, p.ACols
			if p.A == nil {
				p.OutBlock = nil
				return nil
			}
			p.OutBlock = p.A.ToDense(rows, cols, p.TypeName)
			return nil
		},
	}
}

func mustBinary(op *Operator, typeName string, a, b kernel.Value) (kernel.Value, error) {
	f, err := kernel.LookupBinary(op.Source, typeName)
	if err != nil {
		return nil, err
	}
	return f(a, b)
}

func mapToCOOBlock(m map[[2]int]kernel.Value, rows, cols int, typeName string) *Block {
	if len(m) == 0 {
		return nil
	}
	b := &Block{Format: FormatCOO, Rows: rows, Cols: cols, TypeName: typeName}
	for k, v := range m {
		b.coo = append(b.coo, entry{Row: k[0], Col: k[1], Val: v})
	}
	b.Nvals = len(b.coo)
	return b
}

// ingressBlock picks the resident format for freshly ingested entries:
// coordinate lists for vector blocks, compressed rows for matrix blocks
// (ingress entries arrive sorted by (row, col) out of sortDedup, which is
// exactly the CSR layout invariant).
func ingressBlock(entries []entry, rows, cols int, typeName string, isVector bool) *Block {
	coo := entriesToCOOBlock(entries, rows, cols, typeName)
	if coo == nil || isVector {
		return coo
	}
	return coo.ToCSR(rows, cols, typeName)
}

func entriesToCOOBlock(entries []entry, rows, cols int, typeName string) *Block {
	if len(entries) == 0 {
		return nil
	}
	b := &Block{Format: FormatCOO, Rows: rows, Cols: cols, TypeName: typeName, coo: entries}
	b.Nvals = len(entries)
	return b
}

// applyMaskToBlock filters a freshly computed block's entries by mask,
// honoring MaskComplement; a nil mask leaves the block unchanged. Replace is
// not read here (existingForAccum applies it to the destination block).
func applyMaskToBlock(b *Block, mask *Block, desc effectiveDescriptor) *Block {
	if mask == nil || b == nil {
		return b
	}
	complement := desc.IsParamSet(MaskComplement)
	kept := applyMask(b.Entries(), mask, complement)
	return entriesToCOOBlock(kept, b.Rows, b.Cols, b.TypeName)
}

// defaultRightBiased is the accumulator synthesised when AccumResult is
// requested with no explicit operator: the newly written value wins.
func defaultRightBiased(_, b kernel.Value) (kernel.Value, error) { return b, nil }

// genericDataWrite groups host triples by destination block coordinate,
// runs the ingress pipeline (sort unless ValuesSorted, dedup unless
// NoDuplicates) per group, and either overwrites or merges into any
// existing block depending on AccumResult.
func genericDataWrite() *Algorithm {
	return &Algorithm{
		Name:   "datawrite/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			if p.Host == nil || p.Storage == nil {
				return nil
			}
			accum := p.Desc.IsParamSet(AccumResult)
			if !accum {
				p.Storage.Clear()
			}
			sorted := p.Desc.IsParamSet(ValuesSorted)
			noDup := p.Desc.IsParamSet(NoDuplicates)
			// A nil dedup combiner means "keep first" inside one batch of
			// host triples; merging into an existing block under accum falls
			// back to the right-biased default instead.
			var dedupCombine kernel.BinaryFunc
			accumCombine := kernel.BinaryFunc(defaultRightBiased)
			if p.AddOp != nil {
				f, err := kernel.LookupBinary(p.AddOp.Source, p.TypeName)
				if err != nil {
					return err
				}
				dedupCombine, accumCombine = f, f
			}
			blockSize := p.Storage.BlockSize()
			isVector := p.Host.IsVector
			groups := map[BlockCoord][]entry{}
			for i := 0; i < p.Host.Nvals; i++ {
				row := p.Host.Rows[i]
				col := 0
				if !isVector {
					col = p.Host.Cols[i]
				}
				rb, ro := row/blockSize, row%blockSize
				cb, co := 0, 0
				if !isVector {
					cb, co = col/blockSize, col%blockSize
				}
				val, err := kernel.Coerce(p.Host.Values[i], p.TypeName)
				if err != nil {
					return err
				}
				coord := BlockCoord{Row: rb, Col: cb}
				groups[coord] = append(groups[coord], entry{Row: ro, Col: co, Val: val})
			}
			for coord, es := range groups {
				reduced, err := sortDedup(es, sorted, noDup, dedupCombine)
				if err != nil {
					return err
				}
				rows, cols := blockRegion(coord, p.ARows, p.ACols, blockSize, isVector)
				if !accum {
					p.Storage.SetBlock(coord, ingressBlock(reduced, rows, cols, p.TypeName, isVector))
					continue
				}
				existing := p.Storage.GetBlock(coord)
				if existing == nil {
					p.Storage.SetBlock(coord, ingressBlock(reduced, rows, cols, p.TypeName, isVector))
					continue
				}
				merged := map[[2]int]kernel.Value{}
				for _, e := range existing.Entries() {
					merged[[2]int{e.Row, e.Col}] = e.Val
				}
				for _, e := range reduced {
					k := [2]int{e.Row, e.Col}
					if cur, ok := merged[k]; ok {
						v, err := accumCombine(cur, e.Val)
						if err != nil {
							return err
						}
						merged[k] = v
					} else {
						merged[k] = e.Val
					}
				}
				out := mapToCOOBlock(merged, rows, cols, p.TypeName)
				if out != nil && !isVector {
					// Accumulating matrix ingress stages the merge in the
					// list-of-lists format, the cheap random-insert layout
					// for a block that keeps growing across writes.
					out = out.ToLIL(rows, cols, p.TypeName)
				}
				p.Storage.SetBlock(coord, out)
			}
			return nil
		},
	}
}

// genericDataRead completes the read path spec.md's Design Notes flag as
// unfinished: it gathers each row-of-blocks' nnz, runs prefixSum to get the
// offset each row-of-blocks starts writing at, then scatters every block's
// entries into the host buffer at baseOffset+localCursor.
func genericDataRead() *Algorithm {
	return &Algorithm{
		Name:   "dataread/generic",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			if p.Host == nil || p.Storage == nil {
				return nil
			}
			rowBlocks, colBlocks := p.Storage.Grid()
			if colBlocks == 0 {
				colBlocks = 1
			}
			blockSize := p.Storage.BlockSize()
			type blockEntries struct {
				coord   BlockCoord
				entries []entry
			}
			perRow := make([][]blockEntries, rowBlocks)
			counts := make([]int, rowBlocks)
			for rb := 0; rb < rowBlocks; rb++ {
				for cb := 0; cb < colBlocks; cb++ {
					coord := BlockCoord{Row: rb, Col: cb}
					blk := p.Storage.GetBlock(coord)
					if blk == nil {
						continue
					}
					es := sortedByRowCol(blk.Entries())
					perRow[rb] = append(perRow[rb], blockEntries{coord: coord, entries: es})
					counts[rb] += len(es)
				}
			}
			offsets := prefixSum(counts)
			total := offsets[len(offsets)-1]
			rows := make([]int, total)
			var cols []int
			if !p.Host.IsVector {
				cols = make([]int, total)
			}
			values := make([]any, total)
			cursor := append([]int(nil), offsets[:len(offsets)-1]...)
			for rb, group := range perRow {
				for _, be := range group {
					baseRow := be.coord.Row * blockSize
					baseCol := be.coord.Col * blockSize
					for _, e := range be.entries {
						idx := cursor[rb]
						rows[idx] = baseRow + e.Row
						if cols != nil {
							cols[idx] = baseCol + e.Col
						}
						values[idx] = e.Val
						cursor[rb]++
					}
				}
			}
			p.Host.Rows = rows
			if cols != nil {
				p.Host.Cols = cols
			}
			p.Host.Values = values
			p.Host.Nvals = total
			return nil
		},
	}
}
