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
	"sync"
	"sync/atomic"
)

// ExprState is the monotonic lifecycle of a submitted-or-building
// expression.
type ExprState int

const (
	StateDefault ExprState = iota
	StateSubmitted
	StateEvaluated
	StateAborted
)

func (s ExprState) String() string {
	switch s {
	case StateDefault:
		return "Default"
	case StateSubmitted:
		return "Submitted"
	case StateEvaluated:
		return "Evaluated"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Expression is a mutable builder until Submit freezes it. Nodes are
// appended via Make<Op>; nodes are ordered only by the precedence edges
// added by calling Node.Precede directly (sharing a tensor adds no edge).
type Expression struct {
	RefCounted
	lib   *Library
	desc  *Descriptor
	nodes []*Node

	mu        sync.Mutex
	state     atomic.Int32
	err       error
	cancelled atomic.Bool
	done      chan struct{}
}

// NewExpression starts a new, empty expression builder bound to lib.
func NewExpression(lib *Library) *Expression {
	e := &Expression{lib: lib, desc: NewDescriptor(), done: make(chan struct{})}
	e.initRef()
	return e
}

// Descriptor returns this expression's own descriptor (overridden per-node,
// overriding library defaults — see effectiveDescriptor).
func (e *Expression) Descriptor() *Descriptor { return e.desc }

// Lib returns the Library this expression is bound to, letting collaborator
// packages (algo, mtx) Submit an expression without threading the library
// through separately.
func (e *Expression) Lib() *Library { return e.lib }

// State returns the expression's current lifecycle state.
func (e *Expression) State() ExprState { return ExprState(e.state.Load()) }

// Error returns the first error recorded during validation or execution, if
// the expression is Aborted.
func (e *Expression) Error() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Expression) setErr(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
}

func (e *Expression) newNode(op NodeOp) *Node {
	n := &Node{ID: len(e.nodes), Op: op, expr: e}
	e.nodes = append(e.nodes, n)
	return n
}

func (e *Expression) isCancelled() bool { return e.cancelled.Load() }

// Wait blocks until the expression reaches Evaluated or Aborted.
func (e *Expression) Wait() {
	<-e.done
}

// --- node constructors, one per supported operation ---

// MakeDataWrite ingests host data into w, applying accum if the descriptor
// requests AccumResult. The node takes its own reference on the host buffer,
// released once the expression settles, so the buffer's release callback
// cannot fire while a task still reads it.
func (e *Expression) MakeDataWrite(w *Tensor, data HostBuffer) *Node {
	n := e.newNode(OpDataWrite)
	n.W, n.Data = w, data.hostBuffer()
	n.Data.Ref()
	return n
}

// MakeDataRead reads w's entries into data, holding a buffer reference the
// same way MakeDataWrite does.
func (e *Expression) MakeDataRead(w *Tensor, data HostBuffer) *Node {
	n := e.newNode(OpDataRead)
	n.W, n.Data = w, data.hostBuffer()
	n.Data.Ref()
	return n
}

// MakeMatrixMatrixAdd computes w = a `op` b (element-wise), masked.
func (e *Expression) MakeMatrixMatrixAdd(w, mask, a, b *Tensor, op *Operator) *Node {
	n := e.newNode(OpMatrixMatrixAdd)
	n.W, n.Mask, n.A, n.B, n.AddOp = w, mask, a, b, op
	return n
}

// MakeMatrixMatrixMul computes w = a (mulOp,addOp) b over the semiring,
// masked. init is stored on the node and passed to the algorithm; the
// built-in algorithm does not use it, so a cell with no products stays
// absent.
func (e *Expression) MakeMatrixMatrixMul(w, mask, a, b *Tensor, mulOp, addOp *Operator, init any) *Node {
	n := e.newNode(OpMatrixMatrixMul)
	n.W, n.Mask, n.A, n.B, n.MulOp, n.AddOp, n.Init = w, mask, a, b, mulOp, addOp, init
	return n
}

// MakeMatrixVectorMul computes w = m (mulOp,addOp) v, masked and
// select-filtered.
func (e *Expression) MakeMatrixVectorMul(w, mask, m, v *Tensor, mulOp, addOp, selectOp *Operator, init any) *Node {
	n := e.newNode(OpMatrixVectorMul)
	n.W, n.Mask, n.A, n.B, n.MulOp, n.AddOp, n.SelectOp, n.Init = w, mask, m, v, mulOp, addOp, selectOp, init
	return n
}

// MakeVectorMatrixMul computes w = v (mulOp,addOp) m, the row-vector dual
// of MakeMatrixVectorMul.
func (e *Expression) MakeVectorMatrixMul(w, mask, v, m *Tensor, mulOp, addOp, selectOp *Operator, init any) *Node {
	n := e.newNode(OpVectorMatrixMul)
	n.W, n.Mask, n.A, n.B, n.MulOp, n.AddOp, n.SelectOp, n.Init = w, mask, v, m, mulOp, addOp, selectOp, init
	return n
}

// MakeVectorReduce folds v into scalar s using op.
func (e *Expression) MakeVectorReduce(s *Scalar, op *Operator, v *Tensor) *Node {
	n := e.newNode(OpVectorReduce)
	n.A, n.AddOp, n.Scalar = v, op, s
	return n
}

// MakeMatrixReduceScalar folds the masked entries of M into scalar s.
func (e *Expression) MakeMatrixReduceScalar(s *Scalar, op *Operator, m, mask *Tensor) *Node {
	n := e.newNode(OpMatrixReduceScalar)
	n.A, n.Mask, n.AddOp, n.Scalar = m, mask, op, s
	return n
}

// MakeVectorAssign broadcasts s into w at every masked position.
func (e *Expression) MakeVectorAssign(w, mask *Tensor, s *Scalar, accum *Operator) *Node {
	n := e.newNode(OpVectorAssign)
	n.W, n.Mask, n.Scalar, n.AddOp = w, mask, s, accum
	return n
}

// MakeTranspose computes w = transpose(a), masked.
func (e *Expression) MakeTranspose(w, mask, a *Tensor, accum *Operator) *Node {
	n := e.newNode(OpTranspose)
	n.W, n.Mask, n.A, n.AddOp = w, mask, a, accum
	return n
}

// MakeTril zeroes the strict upper triangle of a into w.
func (e *Expression) MakeTril(w, a *Tensor) *Node {
	n := e.newNode(OpTril)
	n.W, n.A = w, a
	return n
}

// MakeTriu zeroes the strict lower triangle of a into w.
func (e *Expression) MakeTriu(w, a *Tensor) *Node {
	n := e.newNode(OpTriu)
	n.W, n.A = w, a
	return n
}

// MakeToDense materialises vector v into w using the dense format.
func (e *Expression) MakeToDense(w, v *Tensor) *Node {
	n := e.newNode(OpToDense)
	n.W, n.A = w, v
	return n
}
