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

// Package algo composes spla expressions into graph algorithms; it is an
// external collaborator of the core, built entirely on the public
// Library/Tensor/Expression surface like any other user of the library.
package algo

import (
	"fmt"

	"github.com/sparsekit/spla/spla"
)

// BFS returns the level vector for a traversal from source over adjacency,
// the graph's boolean adjacency matrix, plus the traversal depth. Levels are
// counted from 1 at the source (a vertex at level k is k-1 edges from
// source); an unreached vertex stays at 0. Grounded on spla_bfs.cpp's loop:
// seed a frontier at source, repeatedly step it across the adjacency matrix
// with a VectorMatrixMul masked against "already visited", and stop once a
// step produces an empty frontier.
func BFS(lib *spla.Library, adjacency *spla.Matrix, source int) ([]int32, int32, error) {
	n := adjacency.Rows
	if adjacency.Cols != n {
		return nil, 0, fmt.Errorf("algo: BFS requires a square adjacency matrix, got %dx%d", adjacency.Rows, adjacency.Cols)
	}
	if source < 0 || source >= n {
		return nil, 0, fmt.Errorf("algo: BFS source %d out of range [0,%d)", source, n)
	}

	cat := lib.Catalogue()
	land, err := cat.FindBinary("land", spla.TypeBool)
	if err != nil {
		return nil, 0, err
	}
	lor, err := cat.FindBinary("lor", spla.TypeBool)
	if err != nil {
		return nil, 0, err
	}

	frontier, err := spla.MakeVector(lib, n, spla.TypeBool)
	if err != nil {
		return nil, 0, err
	}
	visited, err := spla.MakeVector(lib, n, spla.TypeBool)
	if err != nil {
		return nil, 0, err
	}
	levels, err := spla.MakeVector(lib, n, spla.TypeI32)
	if err != nil {
		return nil, 0, err
	}

	seed, err := spla.MakeDataVector([]int{source}, []any{true}, 1, nil)
	if err != nil {
		return nil, 0, err
	}
	if err := run(lib, func(e *spla.Expression) {
		e.MakeDataWrite(frontier.Tensor, seed)
	}); err != nil {
		return nil, 0, err
	}

	out := make([]int32, n)
	depth := int32(0)

	for level := int32(1); ; level++ {
		levelScalar, err := spla.MakeScalar(lib, spla.TypeI32)
		if err != nil {
			return nil, 0, err
		}
		levelScalar.SetValue(level)

		if err := run(lib, func(e *spla.Expression) {
			// Accumulate so earlier levels survive; the frontier mask never
			// revisits a vertex, so no earlier level is ever overwritten.
			assign := e.MakeVectorAssign(levels.Tensor, frontier.Tensor, levelScalar, nil)
			assign.Descriptor().SetParam(spla.AccumResult)
			union := e.MakeMatrixMatrixAdd(visited.Tensor, nil, visited.Tensor, frontier.Tensor, lor)
			union.Descriptor().SetParam(spla.AccumResult)
		}); err != nil {
			return nil, 0, err
		}

		nvals, err := readFrontier(lib, frontier, out, level)
		if err != nil {
			return nil, 0, err
		}
		if nvals == 0 {
			break
		}
		depth = level

		next, err := spla.MakeVector(lib, n, spla.TypeBool)
		if err != nil {
			return nil, 0, err
		}
		step := spla.NewExpression(lib)
		node := step.MakeVectorMatrixMul(next.Tensor, visited.Tensor, frontier.Tensor, adjacency.Tensor, land, lor, nil, false)
		node.Descriptor().SetParam(spla.MaskComplement)
		if err := submitAndWait(step); err != nil {
			return nil, 0, err
		}
		if next.Nvals() == 0 {
			break
		}
		frontier = next
	}
	return out, depth, nil
}

// readFrontier reads back frontier's current entries and stamps out[row] =
// level for each one not stamped at an earlier level, returning the
// frontier's size.
func readFrontier(lib *spla.Library, frontier *spla.Vector, out []int32, level int32) (int, error) {
	buf, err := spla.MakeDataVector(make([]int, frontier.Nvals()), make([]any, frontier.Nvals()), 0, nil)
	if err != nil {
		return 0, err
	}
	if err := run(lib, func(e *spla.Expression) {
		e.MakeDataRead(frontier.Tensor, buf)
	}); err != nil {
		return 0, err
	}
	rows, _ := buf.Entries()
	for _, r := range rows {
		if out[r] == 0 {
			out[r] = level
		}
	}
	return len(rows), nil
}

// run submits a freshly built expression to lib, runs build against it, and
// waits for completion, returning any execution error.
func run(lib *spla.Library, build func(*spla.Expression)) error {
	e := spla.NewExpression(lib)
	build(e)
	return submitAndWait(e)
}

func submitAndWait(e *spla.Expression) error {
	lib := e.Lib()
	if err := lib.Submit(e); err != nil {
		return err
	}
	e.Wait()
	if e.State() == spla.StateAborted {
		return e.Error()
	}
	return nil
}
