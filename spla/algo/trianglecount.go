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

package algo

import (
	"fmt"

	"github.com/sparsekit/spla/spla"
	"github.com/sparsekit/spla/spla/kernel"
)

// TriangleCount returns the number of triangles in the undirected graph
// described by adjacency, a square i32 matrix holding 1 at (i,j) and (j,i)
// for every edge. It follows the classic mask-matmul formulation: restrict
// to the lower triangle L, square it under the plus-times semiring, mask
// the result back down to L's own support, and sum what survives. Every
// triangle is counted once at its lowest-indexed vertex pair, so the raw
// sum already is the triangle count — no further division is needed.
func TriangleCount(lib *spla.Library, adjacency *spla.Matrix) (int64, error) {
	n := adjacency.Rows
	if adjacency.Cols != n {
		return 0, fmt.Errorf("algo: TriangleCount requires a square adjacency matrix, got %dx%d", adjacency.Rows, adjacency.Cols)
	}
	if adjacency.TypeName != spla.TypeI32 {
		return 0, fmt.Errorf("algo: TriangleCount requires an %s adjacency matrix, got %s", spla.TypeI32, adjacency.TypeName)
	}

	cat := lib.Catalogue()
	plus, err := cat.FindBinary(kernel.OpPlus, spla.TypeI32)
	if err != nil {
		return 0, err
	}
	times, err := cat.FindBinary(kernel.OpTimes, spla.TypeI32)
	if err != nil {
		return 0, err
	}

	lower, err := spla.MakeMatrix(lib, n, n, spla.TypeI32)
	if err != nil {
		return 0, err
	}
	if err := run(lib, func(e *spla.Expression) {
		e.MakeTril(lower.Tensor, adjacency.Tensor)
	}); err != nil {
		return 0, err
	}

	wedges, err := spla.MakeMatrix(lib, n, n, spla.TypeI32)
	if err != nil {
		return 0, err
	}
	if err := run(lib, func(e *spla.Expression) {
		e.MakeMatrixMatrixMul(wedges.Tensor, lower.Tensor, lower.Tensor, lower.Tensor, times, plus, int32(0))
	}); err != nil {
		return 0, err
	}

	total, err := spla.MakeScalar(lib, spla.TypeI32)
	if err != nil {
		return 0, err
	}
	if err := run(lib, func(e *spla.Expression) {
		e.MakeMatrixReduceScalar(total, plus, wedges.Tensor, nil)
	}); err != nil {
		return 0, err
	}

	v, has := total.Value()
	if !has {
		return 0, nil
	}
	count, err := asInt64(v)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("algo: TriangleCount: unexpected reduce result type %T", v)
	}
}
