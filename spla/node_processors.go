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
	"fmt"
	"sync"

	"github.com/sparsekit/spla/spla/kernel"
)

// fetchDevice resolves a device id for one task via the library's device
// manager, honoring the node's effective descriptor device hints.
func fetchDevice(lib *Library, eff effectiveDescriptor) (int, error) {
	return lib.devices.FetchDevice(eff.deviceHint())
}

// maskBlockFor implements the per-task mask-absence policy: with a
// regular mask, an absent mask block means the task produces nothing
// (proceed=false); with a complement mask, an absent mask block means
// "fully unmasked" (proceed=true, nil block passed through as no filter).
func maskBlockFor(mask *Tensor, coord BlockCoord, complement bool) (*Block, bool) {
	if mask == nil {
		return nil, true
	}
	b := mask.storage.GetBlock(coord)
	if b == nil {
		return nil, complement
	}
	return b, true
}

// combineEntryMaps folds every entry of b into dst, combining with op (or
// the default right-biased accumulator when op is nil) wherever a position
// already has a value.
func combineEntryMaps(dst map[[2]int]kernel.Value, b *Block, op *Operator, typeName string) error {
	if b == nil {
		return nil
	}
	combine := kernel.BinaryFunc(defaultRightBiased)
	if op != nil {
		f, err := kernel.LookupBinary(op.Source, typeName)
		if err != nil {
			return err
		}
		combine = f
	}
	for _, e := range b.Entries() {
		k := [2]int{e.Row, e.Col}
		if cur, ok := dst[k]; ok {
			v, err := combine(cur, e.Val)
			if err != nil {
				return err
			}
			dst[k] = v
		} else {
			dst[k] = e.Val
		}
	}
	return nil
}

// accumulateBlock merges fresh into existing using op (or the synthesised
// default right-biased accumulator), the "combine the operation's output
// with the existing destination" half of AccumResult.
func accumulateBlock(existing, fresh *Block, op *Operator, typeName string, rows, cols int) (*Block, error) {
	if fresh == nil {
		return existing, nil
	}
	if existing == nil {
		return fresh, nil
	}
	merged := map[[2]int]kernel.Value{}
	for _, e := range existing.Entries() {
		merged[[2]int{e.Row, e.Col}] = e.Val
	}
	if err := combineEntryMaps(merged, fresh, op, typeName); err != nil {
		return nil, err
	}
	return mapToCOOBlock(merged, rows, cols, typeName), nil
}

// filterBySelect drops entries of b whose value fails selOp's predicate,
// backing MatrixVectorMul/VectorMatrixMul's optional select operator.
func filterBySelect(b *Block, selOp *Operator, typeName string) (*Block, error) {
	if b == nil || selOp == nil {
		return b, nil
	}
	sel, err := kernel.LookupSelect(selOp.Source, typeName)
	if err != nil {
		return nil, err
	}
	var kept []entry
	for _, e := range b.Entries() {
		ok, err := sel(e.Val)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, e)
		}
	}
	return entriesToCOOBlock(kept, b.Rows, b.Cols, b.TypeName), nil
}

// sourceWrittenElsewhere reports whether any other node of the same
// expression writes t's storage. Decorations are consulted and populated at
// graph-build time, so a sibling writer would make a replayed or cached
// snapshot stale; processors skip the decoration path entirely in that case.
func (n *Node) sourceWrittenElsewhere(t *Tensor) bool {
	for _, other := range n.expr.nodes {
		if other == n {
			continue
		}
		if w, ok := other.storageIntents()[t.storage]; ok && w {
			return true
		}
	}
	return false
}

// reduceSeed returns the value a reduction folds from: the operator's own
// monoid identity when it carries one, else the type's zero value (the
// documented default for user-registered operators, which carry no
// identity).
func reduceSeed(op *Operator, typeName string) kernel.Value {
	if op != nil && op.Identity != nil {
		return op.Identity
	}
	return kernel.Zero(typeName)
}

// existingForAccum fetches the destination block an accumulating task merges
// into. With Replace set and a mask in play, destination entries outside the
// mask are dropped before the merge rather than carried over.
func existingForAccum(w *Tensor, coord BlockCoord, maskBlk *Block, eff effectiveDescriptor) *Block {
	existing := w.storage.GetBlock(coord)
	if maskBlk != nil && eff.IsParamSet(Replace) {
		existing = applyMaskToBlock(existing, maskBlk, eff)
	}
	return existing
}

// clearTask builds the extra task needed when AccumResult is not requested:
// the destination storage is cleared before any compute task runs,
// expressed as a task that precedes all of them.
func (n *Node) clearTask(w *Tensor, pred *task) *task {
	return newTask(fmt.Sprintf("node%d/clear", n.ID), func() error {
		w.storage.Clear()
		return nil
	}, pred)
}

// buildTasks dispatches to the per-Op task builder; this is the node
// processor's execute() phase: one task per destination block (sometimes a
// clearing or finalize task chained before or after them via task preds),
// each wired to start after "after" and to finish before the node's end
// bookend.
func (n *Node) buildTasks(lib *Library, expr *Expression, after *task) ([]*task, error) {
	switch n.Op {
	case OpDataWrite:
		return n.buildDataWrite(lib, expr, after)
	case OpDataRead:
		return n.buildDataRead(lib, expr, after)
	case OpMatrixMatrixAdd:
		return n.buildMatrixMatrixAdd(lib, expr, after)
	case OpMatrixMatrixMul:
		return n.buildMatrixMatrixMul(lib, expr, after)
	case OpMatrixVectorMul:
		return n.buildMatrixVectorMul(lib, expr, after)
	case OpVectorMatrixMul:
		return n.buildVectorMatrixMul(lib, expr, after)
	case OpVectorReduce:
		return n.buildVectorReduce(lib, expr, after)
	case OpMatrixReduceScalar:
		return n.buildMatrixReduceScalar(lib, expr, after)
	case OpVectorAssign:
		return n.buildVectorAssign(lib, expr, after)
	case OpTranspose:
		return n.buildTranspose(lib, expr, after)
	case OpTril:
		return n.buildTriangular(lib, expr, after, true)
	case OpTriu:
		return n.buildTriangular(lib, expr, after, false)
	case OpToDense:
		return n.buildToDense(lib, expr, after)
	default:
		return nil, errf(ErrKindInvalidState, "buildTasks", "unhandled node op %s", n.Op)
	}
}

func (n *Node) buildDataWrite(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	t := newTask(fmt.Sprintf("node%d/datawrite", n.ID), func() error {
		dev, err := fetchDevice(lib, eff)
		if err != nil {
			return err
		}
		params := &AlgoParams{
			Desc: eff, DeviceID: dev, TypeName: n.W.TypeName,
			AddOp: n.AddOp, Storage: n.W.storage, Host: n.Data,
			ARows: n.W.Rows, ACols: n.W.Cols, cancelled: expr.isCancelled,
		}
		return lib.registry.Dispatch(AlgoDataWrite, params)
	}, after)
	return []*task{t}, nil
}

func (n *Node) buildDataRead(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	t := newTask(fmt.Sprintf("node%d/dataread", n.ID), func() error {
		dev, err := fetchDevice(lib, eff)
		if err != nil {
			return err
		}
		params := &AlgoParams{
			Desc: eff, DeviceID: dev, TypeName: n.W.TypeName,
			Storage: n.W.storage, Host: n.Data,
			ARows: n.W.Rows, ACols: n.W.Cols, cancelled: expr.isCancelled,
		}
		return lib.registry.Dispatch(AlgoDataRead, params)
	}, after)
	return []*task{t}, nil
}

func (n *Node) buildMatrixMatrixAdd(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	rowBlocks, colBlocks := n.A.storage.Grid()
	var tasks []*task
	start := after
	if !eff.IsParamSet(AccumResult) {
		c := n.clearTask(n.W, after)
		tasks = append(tasks, c)
		start = c
	}
	complement := eff.IsParamSet(MaskComplement)
	devs, err := lib.devices.FetchDevices(rowBlocks*colBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for i := 0; i < rowBlocks; i++ {
		for j := 0; j < colBlocks; j++ {
			coord := BlockCoord{Row: i, Col: j}
			dev := devs[i*colBlocks+j]
			t := newTask(fmt.Sprintf("node%d/mmadd/%d,%d", n.ID, i, j), func() error {
				maskBlk, proceed := maskBlockFor(n.Mask, coord, complement)
				if !proceed {
					return nil
				}
				rows, cols := blockRegion(coord, n.A.Rows, n.A.Cols, lib.blockSize, false)
				params := &AlgoParams{
					Desc: eff, DeviceID: dev, TypeName: n.A.TypeName, BinaryOp: n.AddOp,
					A: n.A.storage.GetBlock(coord), B: n.B.storage.GetBlock(coord), Mask: maskBlk,
					ARows: rows, ACols: cols, cancelled: expr.isCancelled,
				}
				if err := lib.registry.Dispatch(AlgoMMAdd, params); err != nil {
					return err
				}
				out := params.OutBlock
				if eff.IsParamSet(AccumResult) {
					merged, err := accumulateBlock(existingForAccum(n.W, coord, maskBlk, eff), out, n.AddOp, n.A.TypeName, rows, cols)
					if err != nil {
						return err
					}
					out = merged
				}
				n.W.storage.SetBlock(coord, out)
				return nil
			}, start)
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (n *Node) buildMatrixMatrixMul(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	outRowBlocks, kBlocks := n.A.storage.Grid()
	var tasks []*task
	start := after
	if !eff.IsParamSet(AccumResult) {
		c := n.clearTask(n.W, after)
		tasks = append(tasks, c)
		start = c
	}
	_, outColBlocks := n.B.storage.Grid()
	complement := eff.IsParamSet(MaskComplement)
	devs, err := lib.devices.FetchDevices(outRowBlocks*outColBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for i := 0; i < outRowBlocks; i++ {
		for j := 0; j < outColBlocks; j++ {
			i, j := i, j
			coord := BlockCoord{Row: i, Col: j}
			dev := devs[i*outColBlocks+j]
			t := newTask(fmt.Sprintf("node%d/mmmul/%d,%d", n.ID, i, j), func() error {
				maskBlk, proceed := maskBlockFor(n.Mask, coord, complement)
				if !proceed {
					return nil
				}
				rows, cols := blockRegion(coord, n.A.Rows, n.B.Cols, lib.blockSize, false)
				total := map[[2]int]kernel.Value{}
				for k := 0; k < kBlocks; k++ {
					aBlk := n.A.storage.GetBlock(BlockCoord{Row: i, Col: k})
					bBlk := n.B.storage.GetBlock(BlockCoord{Row: k, Col: j})
					if aBlk == nil && bBlk == nil {
						continue
					}
					params := &AlgoParams{
						Desc: eff, DeviceID: dev, TypeName: n.W.TypeName,
						BinaryOp: n.MulOp, AddOp: n.AddOp, Init: n.Init,
						A: aBlk, B: bBlk, ARows: rows, BCols: cols, cancelled: expr.isCancelled,
					}
					if err := lib.registry.Dispatch(AlgoMMMul, params); err != nil {
						return err
					}
					if err := combineEntryMaps(total, params.OutBlock, n.AddOp, n.W.TypeName); err != nil {
						return err
					}
				}
				out := mapToCOOBlock(total, rows, cols, n.W.TypeName)
				out = applyMaskToBlock(out, maskBlk, eff)
				if eff.IsParamSet(AccumResult) {
					merged, err := accumulateBlock(existingForAccum(n.W, coord, maskBlk, eff), out, n.AddOp, n.W.TypeName, rows, cols)
					if err != nil {
						return err
					}
					out = merged
				}
				n.W.storage.SetBlock(coord, out)
				return nil
			}, start)
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (n *Node) buildMatrixVectorMul(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	outRowBlocks, kBlocks := n.A.storage.Grid()
	var tasks []*task
	start := after
	if !eff.IsParamSet(AccumResult) {
		c := n.clearTask(n.W, after)
		tasks = append(tasks, c)
		start = c
	}
	complement := eff.IsParamSet(MaskComplement)
	devs, err := lib.devices.FetchDevices(outRowBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for i := 0; i < outRowBlocks; i++ {
		i := i
		coord := BlockCoord{Row: i}
		dev := devs[i]
		t := newTask(fmt.Sprintf("node%d/mvmul/%d", n.ID, i), func() error {
			maskBlk, proceed := maskBlockFor(n.Mask, coord, complement)
			if !proceed {
				return nil
			}
			rows, _ := blockRegion(coord, n.W.Rows, 0, lib.blockSize, true)
			total := map[[2]int]kernel.Value{}
			for k := 0; k < kBlocks; k++ {
				mBlk := n.A.storage.GetBlock(BlockCoord{Row: i, Col: k})
				vBlk := n.B.storage.GetBlock(BlockCoord{Row: k})
				vBlk, err := filterBySelect(vBlk, n.SelectOp, n.B.TypeName)
				if err != nil {
					return err
				}
				if mBlk == nil && vBlk == nil {
					continue
				}
				mRows, _ := blockRegion(BlockCoord{Row: i, Col: k}, n.A.Rows, n.A.Cols, lib.blockSize, false)
				params := &AlgoParams{
					Desc: eff, DeviceID: dev, TypeName: n.W.TypeName,
					BinaryOp: n.MulOp, AddOp: n.AddOp, Init: n.Init,
					A: mBlk, B: vBlk, ARows: mRows, cancelled: expr.isCancelled,
				}
				if err := lib.registry.Dispatch(AlgoMVMul, params); err != nil {
					return err
				}
				if err := combineEntryMaps(total, params.OutBlock, n.AddOp, n.W.TypeName); err != nil {
					return err
				}
			}
			out := mapToCOOBlock(total, rows, 1, n.W.TypeName)
			out = applyMaskToBlock(out, maskBlk, eff)
			if eff.IsParamSet(AccumResult) {
				merged, err := accumulateBlock(existingForAccum(n.W, coord, maskBlk, eff), out, n.AddOp, n.W.TypeName, rows, 1)
				if err != nil {
					return err
				}
				out = merged
			}
			n.W.storage.SetBlock(coord, out)
			return nil
		}, start)
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (n *Node) buildVectorMatrixMul(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	kBlocks, outColBlocks := n.B.storage.Grid()
	var tasks []*task
	start := after
	if !eff.IsParamSet(AccumResult) {
		c := n.clearTask(n.W, after)
		tasks = append(tasks, c)
		start = c
	}
	complement := eff.IsParamSet(MaskComplement)
	devs, err := lib.devices.FetchDevices(outColBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for j := 0; j < outColBlocks; j++ {
		j := j
		coord := BlockCoord{Row: j}
		dev := devs[j]
		t := newTask(fmt.Sprintf("node%d/vmmul/%d", n.ID, j), func() error {
			maskBlk, proceed := maskBlockFor(n.Mask, coord, complement)
			if !proceed {
				return nil
			}
			_, cols := blockRegion(BlockCoord{Row: 0, Col: j}, n.B.Rows, n.B.Cols, lib.blockSize, false)
			total := map[[2]int]kernel.Value{}
			for k := 0; k < kBlocks; k++ {
				vBlk := n.A.storage.GetBlock(BlockCoord{Row: k})
				vBlk, err := filterBySelect(vBlk, n.SelectOp, n.A.TypeName)
				if err != nil {
					return err
				}
				mBlk := n.B.storage.GetBlock(BlockCoord{Row: k, Col: j})
				if mBlk == nil && vBlk == nil {
					continue
				}
				params := &AlgoParams{
					Desc: eff, DeviceID: dev, TypeName: n.W.TypeName,
					BinaryOp: n.MulOp, AddOp: n.AddOp, Init: n.Init,
					A: vBlk, B: mBlk, BCols: cols, cancelled: expr.isCancelled,
				}
				if err := lib.registry.Dispatch(AlgoVMMul, params); err != nil {
					return err
				}
				if err := combineEntryMaps(total, params.OutBlock, n.AddOp, n.W.TypeName); err != nil {
					return err
				}
			}
			out := mapToCOOBlock(total, cols, 1, n.W.TypeName)
			out = applyMaskToBlock(out, maskBlk, eff)
			if eff.IsParamSet(AccumResult) {
				merged, err := accumulateBlock(existingForAccum(n.W, coord, maskBlk, eff), out, n.AddOp, n.W.TypeName, cols, 1)
				if err != nil {
					return err
				}
				out = merged
			}
			n.W.storage.SetBlock(coord, out)
			return nil
		}, start)
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (n *Node) buildVectorReduce(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	rowBlocks, _ := n.A.storage.Grid()
	partials := make([]kernel.Value, rowBlocks)
	has := make([]bool, rowBlocks)
	var mu sync.Mutex
	var tasks []*task
	devs, err := lib.devices.FetchDevices(rowBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for i := 0; i < rowBlocks; i++ {
		coord, idx, dev := BlockCoord{Row: i}, i, devs[i]
		t := newTask(fmt.Sprintf("node%d/reduce/%d", n.ID, i), func() error {
			params := &AlgoParams{
				Desc: eff, DeviceID: dev, TypeName: n.A.TypeName, BinaryOp: n.AddOp,
				A: n.A.storage.GetBlock(coord), Init: reduceSeed(n.AddOp, n.A.TypeName), cancelled: expr.isCancelled,
			}
			if err := lib.registry.Dispatch(AlgoVectorReduce, params); err != nil {
				return err
			}
			if params.OutHasScalar {
				mu.Lock()
				partials[idx], has[idx] = params.OutScalar, true
				mu.Unlock()
			}
			return nil
		}, after)
		tasks = append(tasks, t)
	}
	final := newTask(fmt.Sprintf("node%d/reduce-final", n.ID), func() error {
		combine, err := kernel.LookupBinary(n.AddOp.Source, n.A.TypeName)
		if err != nil {
			return err
		}
		acc := reduceSeed(n.AddOp, n.A.TypeName)
		for i, ok := range has {
			if !ok {
				continue
			}
			if acc, err = combine(acc, partials[i]); err != nil {
				return err
			}
		}
		n.Scalar.SetValue(acc)
		return nil
	}, tasks...)
	tasks = append(tasks, final)
	return tasks, nil
}

func (n *Node) buildMatrixReduceScalar(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	rowBlocks, colBlocks := n.A.storage.Grid()
	complement := eff.IsParamSet(MaskComplement)
	partials := make([]kernel.Value, rowBlocks*colBlocks)
	has := make([]bool, rowBlocks*colBlocks)
	var mu sync.Mutex
	var tasks []*task
	devs, err := lib.devices.FetchDevices(rowBlocks*colBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for i := 0; i < rowBlocks; i++ {
		for j := 0; j < colBlocks; j++ {
			coord, idx, dev := BlockCoord{Row: i, Col: j}, i*colBlocks+j, devs[i*colBlocks+j]
			t := newTask(fmt.Sprintf("node%d/reducescalar/%d,%d", n.ID, i, j), func() error {
				maskBlk, proceed := maskBlockFor(n.Mask, coord, complement)
				if !proceed {
					return nil
				}
				params := &AlgoParams{
					Desc: eff, DeviceID: dev, TypeName: n.A.TypeName, BinaryOp: n.AddOp,
					A: n.A.storage.GetBlock(coord), Mask: maskBlk, Init: reduceSeed(n.AddOp, n.A.TypeName),
					cancelled: expr.isCancelled,
				}
				if err := lib.registry.Dispatch(AlgoMatrixReduceScalar, params); err != nil {
					return err
				}
				if params.OutHasScalar {
					mu.Lock()
					partials[idx], has[idx] = params.OutScalar, true
					mu.Unlock()
				}
				return nil
			}, after)
			tasks = append(tasks, t)
		}
	}
	final := newTask(fmt.Sprintf("node%d/reducescalar-final", n.ID), func() error {
		combine, err := kernel.LookupBinary(n.AddOp.Source, n.A.TypeName)
		if err != nil {
			return err
		}
		acc := reduceSeed(n.AddOp, n.A.TypeName)
		for i, ok := range has {
			if !ok {
				continue
			}
			if acc, err = combine(acc, partials[i]); err != nil {
				return err
			}
		}
		n.Scalar.SetValue(acc)
		return nil
	}, tasks...)
	tasks = append(tasks, final)
	return tasks, nil
}

func (n *Node) buildVectorAssign(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	rowBlocks, _ := n.W.storage.Grid()
	var tasks []*task
	start := after
	if !eff.IsParamSet(AccumResult) {
		c := n.clearTask(n.W, after)
		tasks = append(tasks, c)
		start = c
	}
	complement := eff.IsParamSet(MaskComplement)
	scalarVal, _ := n.Scalar.Value()
	devs, err := lib.devices.FetchDevices(rowBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for i := 0; i < rowBlocks; i++ {
		coord := BlockCoord{Row: i}
		dev := devs[i]
		t := newTask(fmt.Sprintf("node%d/assign/%d", n.ID, i), func() error {
			maskBlk, proceed := maskBlockFor(n.Mask, coord, complement)
			if !proceed {
				return nil
			}
			rows, _ := blockRegion(coord, n.W.Rows, 0, lib.blockSize, true)
			params := &AlgoParams{
				Desc: eff, DeviceID: dev, TypeName: n.W.TypeName, AddOp: n.AddOp,
				A: n.W.storage.GetBlock(coord), Mask: maskBlk, Init: scalarVal,
				ARows: rows, ACols: 1, cancelled: expr.isCancelled,
			}
			if err := lib.registry.Dispatch(AlgoVectorAssign, params); err != nil {
				return err
			}
			n.W.storage.SetBlock(coord, params.OutBlock)
			return nil
		}, start)
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (n *Node) buildTranspose(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	srcRowBlocks, srcColBlocks := n.A.storage.Grid()
	decorable := n.Mask == nil && !eff.IsParamSet(AccumResult) &&
		n.W.storage != n.A.storage && !n.sourceWrittenElsewhere(n.A)

	// An unmasked, non-accumulating transpose can replay the source's cached
	// transposed decoration wholesale. The read lock held on the source for
	// this expression guarantees the snapshot cannot go stale mid-replay.
	if snap := n.A.storage.transposedDecoration(); snap != nil && decorable {
		c := n.clearTask(n.W, after)
		replay := newTask(fmt.Sprintf("node%d/transpose-replay", n.ID), func() error {
			for _, bc := range snap {
				n.W.storage.SetBlock(bc.Coord, bc.Block)
			}
			return nil
		}, c)
		return []*task{c, replay}, nil
	}

	var tasks []*task
	start := after
	if !eff.IsParamSet(AccumResult) {
		c := n.clearTask(n.W, after)
		tasks = append(tasks, c)
		start = c
	}
	complement := eff.IsParamSet(MaskComplement)
	devs, err := lib.devices.FetchDevices(srcColBlocks*srcRowBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for i := 0; i < srcColBlocks; i++ {
		for j := 0; j < srcRowBlocks; j++ {
			coord := BlockCoord{Row: i, Col: j}   // destination (w) coordinate
			srcCoord := BlockCoord{Row: j, Col: i} // source block for destination (i,j) is (j,i)
			dev := devs[i*srcRowBlocks+j]
			t := newTask(fmt.Sprintf("node%d/transpose/%d,%d", n.ID, i, j), func() error {
				maskBlk, proceed := maskBlockFor(n.Mask, coord, complement)
				if !proceed {
					return nil
				}
				srcRows, srcCols := blockRegion(srcCoord, n.A.Rows, n.A.Cols, lib.blockSize, false)
				params := &AlgoParams{
					Desc: eff, DeviceID: dev, TypeName: n.A.TypeName,
					A: n.A.storage.GetBlock(srcCoord), Mask: maskBlk,
					ARows: srcRows, ACols: srcCols, cancelled: expr.isCancelled,
				}
				if err := lib.registry.Dispatch(AlgoTranspose, params); err != nil {
					return err
				}
				out := params.OutBlock
				if eff.IsParamSet(AccumResult) {
					dstRows, dstCols := blockRegion(coord, n.W.Rows, n.W.Cols, lib.blockSize, false)
					merged, err := accumulateBlock(existingForAccum(n.W, coord, maskBlk, eff), out, n.AddOp, n.A.TypeName, dstRows, dstCols)
					if err != nil {
						return err
					}
					out = merged
				}
				n.W.storage.SetBlock(coord, out)
				return nil
			}, start)
			tasks = append(tasks, t)
		}
	}

	// Populate the source's transposed decoration from the finished result,
	// so the next unmasked transpose of an unchanged source replays it. An
	// in-place transpose is excluded: its own SetBlocks change the source,
	// so the snapshot would describe the post-write contents.
	if decorable {
		cache := newTask(fmt.Sprintf("node%d/transpose-cache", n.ID), func() error {
			n.A.storage.setTransposedDecoration(n.W.storage.Blocks())
			return nil
		}, tasks...)
		tasks = append(tasks, cache)
	}
	return tasks, nil
}

func (n *Node) buildTriangular(lib *Library, expr *Expression, after *task, lower bool) ([]*task, error) {
	eff := n.effectiveDescriptor()
	rowBlocks, colBlocks := n.A.storage.Grid()
	algo := AlgoTril
	if !lower {
		algo = AlgoTriu
	}
	c := n.clearTask(n.W, after)
	tasks := []*task{c}
	devs, err := lib.devices.FetchDevices(rowBlocks*colBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for i := 0; i < rowBlocks; i++ {
		for j := 0; j < colBlocks; j++ {
			i, j := i, j
			coord := BlockCoord{Row: i, Col: j}
			dev := devs[i*colBlocks+j]
			t := newTask(fmt.Sprintf("node%d/triangular/%d,%d", n.ID, i, j), func() error {
				params := &AlgoParams{
					Desc: eff, DeviceID: dev, TypeName: n.A.TypeName,
					A: n.A.storage.GetBlock(coord), ARows: i * lib.blockSize, ACols: j * lib.blockSize,
					cancelled: expr.isCancelled,
				}
				if err := lib.registry.Dispatch(algo, params); err != nil {
					return err
				}
				n.W.storage.SetBlock(coord, params.OutBlock)
				return nil
			}, c)
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (n *Node) buildToDense(lib *Library, expr *Expression, after *task) ([]*task, error) {
	eff := n.effectiveDescriptor()
	rowBlocks, _ := n.A.storage.Grid()

	decorable := n.W.storage != n.A.storage && !n.sourceWrittenElsewhere(n.A)

	// A previous ToDense of an unchanged source left its result cached as
	// the source's alternative-format decoration; replay it instead of
	// re-materialising every block.
	if snap := n.A.storage.altFormatDecoration(FormatDense); snap != nil && decorable {
		c := n.clearTask(n.W, after)
		replay := newTask(fmt.Sprintf("node%d/todense-replay", n.ID), func() error {
			for _, bc := range snap {
				n.W.storage.SetBlock(bc.Coord, bc.Block)
			}
			return nil
		}, c)
		return []*task{c, replay}, nil
	}

	c := n.clearTask(n.W, after)
	tasks := []*task{c}
	devs, err := lib.devices.FetchDevices(rowBlocks, eff.deviceHint())
	if err != nil {
		return nil, err
	}
	for i := 0; i < rowBlocks; i++ {
		coord := BlockCoord{Row: i}
		dev := devs[i]
		t := newTask(fmt.Sprintf("node%d/todense/%d", n.ID, i), func() error {
			rows, _ := blockRegion(coord, n.A.Rows, 0, lib.blockSize, true)
			params := &AlgoParams{
				Desc: eff, DeviceID: dev, TypeName: n.A.TypeName,
				A: n.A.storage.GetBlock(coord), ARows: rows, ACols: 1, cancelled: expr.isCancelled,
			}
			if err := lib.registry.Dispatch(AlgoToDense, params); err != nil {
				return err
			}
			n.W.storage.SetBlock(coord, params.OutBlock)
			return nil
		}, c)
		tasks = append(tasks, t)
	}
	if decorable {
		cache := newTask(fmt.Sprintf("node%d/todense-cache", n.ID), func() error {
			n.A.storage.setAltFormatDecoration(n.W.storage.Blocks(), FormatDense)
			return nil
		}, tasks...)
		tasks = append(tasks, cache)
	}
	return tasks, nil
}
