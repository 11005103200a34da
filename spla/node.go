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

// NodeOp names one of the operations an Expression can submit.
type NodeOp int

const (
	OpDataWrite NodeOp = iota
	OpDataRead
	OpMatrixMatrixAdd
	OpMatrixMatrixMul
	OpMatrixVectorMul
	OpVectorMatrixMul
	OpVectorReduce
	OpMatrixReduceScalar
	OpVectorAssign
	OpTranspose
	OpTril
	OpTriu
	OpToDense
)

func (op NodeOp) String() string {
	switch op {
	case OpDataWrite:
		return "DataWrite"
	case OpDataRead:
		return "DataRead"
	case OpMatrixMatrixAdd:
		return "MatrixMatrixAdd"
	case OpMatrixMatrixMul:
		return "MatrixMatrixMul"
	case OpMatrixVectorMul:
		return "MatrixVectorMul"
	case OpVectorMatrixMul:
		return "VectorMatrixMul"
	case OpVectorReduce:
		return "VectorReduce"
	case OpMatrixReduceScalar:
		return "MatrixReduceScalar"
	case OpVectorAssign:
		return "VectorAssign"
	case OpTranspose:
		return "Transpose"
	case OpTril:
		return "Tril"
	case OpTriu:
		return "Triu"
	case OpToDense:
		return "ToDense"
	default:
		return "Unknown"
	}
}

// NodeState is a node's own lifecycle flag, mirrored from the expression's
// state at the point the node's tasks finished (or were skipped).
type NodeState int

const (
	NodeDefault NodeState = iota
	NodeRunning
	NodeDone
	NodeFailed
)

// Node is one vertex of a submitted-or-building expression's DAG. Its
// argument slots are interpreted according to Op; unused slots are nil.
// Nodes are built via Expression.Make<Op> and never constructed directly by
// callers outside this package.
type Node struct {
	ID   int
	Op   NodeOp
	expr *Expression // non-owning back reference, avoids a retain cycle with Expression

	// Argument slots, interpreted per Op; any may be nil if unused by Op.
	W, A, B, Mask *Tensor
	Scalar        *Scalar
	Data          *hostData
	MulOp, AddOp  *Operator
	SelectOp      *Operator
	Init          any

	desc *Descriptor

	preds, succs []*Node

	state NodeState
	err   error
}

// Descriptor returns this node's own descriptor, creating one lazily so
// callers can always call SetParam without a prior nil check.
func (n *Node) Descriptor() *Descriptor {
	if n.desc == nil {
		n.desc = NewDescriptor()
	}
	return n.desc
}

// Precede records that n must complete before other starts, in both
// directions, per the "both predecessors and successors recorded".
func (n *Node) Precede(other *Node) {
	n.succs = append(n.succs, other)
	other.preds = append(other.preds, n)
}

func (n *Node) effectiveDescriptor() effectiveDescriptor {
	return effectiveDescriptor{node: n.desc, expr: n.expr.desc, defaults: n.expr.lib.defaults}
}

// hasMask reports whether this node's Mask slot is populated, used by
// descriptor validation.
func (n *Node) hasMask() bool {
	return n.Mask != nil
}
