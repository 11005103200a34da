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

// validate checks the submission rules for one node: arity (the right
// slots are populated for Op), shape compatibility, and operator/tensor type
// agreement. Predecessor/successor same-expression membership is checked by
// the caller (schedule) since it needs the node index set.
func (n *Node) validate() error {
	switch n.Op {
	case OpDataWrite:
		if n.W == nil || n.Data == nil {
			return errf(ErrKindInvalidArgument, "validate", "DataWrite requires a destination tensor and host data")
		}
	case OpDataRead:
		if n.W == nil || n.Data == nil {
			return errf(ErrKindInvalidArgument, "validate", "DataRead requires a source tensor and host data")
		}
	case OpMatrixMatrixAdd:
		if n.W == nil || n.A == nil || n.B == nil || n.AddOp == nil {
			return errf(ErrKindInvalidArgument, "validate", "MatrixMatrixAdd requires w, a, b and an operator")
		}
		if n.A.Rows != n.B.Rows || n.A.Cols != n.B.Cols {
			return errf(ErrKindInvalidArgument, "validate", "MatrixMatrixAdd shape mismatch: %dx%d vs %dx%d", n.A.Rows, n.A.Cols, n.B.Rows, n.B.Cols)
		}
		if err := checkOperandType(n.AddOp, n.A.TypeName); err != nil {
			return err
		}
	case OpMatrixMatrixMul:
		if n.W == nil || n.A == nil || n.B == nil || n.MulOp == nil || n.AddOp == nil {
			return errf(ErrKindInvalidArgument, "validate", "MatrixMatrixMul requires w, a, b, mulOp and addOp")
		}
		if n.A.Cols != n.B.Rows {
			return errf(ErrKindInvalidArgument, "validate", "MatrixMatrixMul inner dimension mismatch: a.ncols=%d b.nrows=%d", n.A.Cols, n.B.Rows)
		}
	case OpMatrixVectorMul:
		if n.W == nil || n.A == nil || n.B == nil || n.MulOp == nil || n.AddOp == nil {
			return errf(ErrKindInvalidArgument, "validate", "MatrixVectorMul requires w, m, v, mulOp and addOp")
		}
		if n.A.Cols != n.B.Rows {
			return errf(ErrKindInvalidArgument, "validate", "mxv requires M.ncols == v.nrows, got %d != %d", n.A.Cols, n.B.Rows)
		}
		if n.W.Rows != n.A.Rows {
			return errf(ErrKindInvalidArgument, "validate", "mxv writes into a vector of length M.nrows, got %d != %d", n.W.Rows, n.A.Rows)
		}
	case OpVectorMatrixMul:
		if n.W == nil || n.A == nil || n.B == nil || n.MulOp == nil || n.AddOp == nil {
			return errf(ErrKindInvalidArgument, "validate", "VectorMatrixMul requires w, v, m, mulOp and addOp")
		}
		if n.A.Rows != n.B.Rows {
			return errf(ErrKindInvalidArgument, "validate", "vxm requires v.nrows == M.nrows, got %d != %d", n.A.Rows, n.B.Rows)
		}
		if n.W.Rows != n.B.Cols {
			return errf(ErrKindInvalidArgument, "validate", "vxm writes into a vector of length M.ncols, got %d != %d", n.W.Rows, n.B.Cols)
		}
	case OpVectorReduce:
		if n.A == nil || n.AddOp == nil || n.Scalar == nil {
			return errf(ErrKindInvalidArgument, "validate", "VectorReduce requires v, op and a destination scalar")
		}
	case OpMatrixReduceScalar:
		if n.A == nil || n.AddOp == nil || n.Scalar == nil {
			return errf(ErrKindInvalidArgument, "validate", "MatrixReduceScalar requires M, op and a destination scalar")
		}
	case OpVectorAssign:
		if n.W == nil || n.Scalar == nil {
			return errf(ErrKindInvalidArgument, "validate", "VectorAssign requires w and a scalar")
		}
	case OpTranspose:
		if n.W == nil || n.A == nil {
			return errf(ErrKindInvalidArgument, "validate", "Transpose requires w and a")
		}
		if n.W.Rows != n.A.Cols || n.W.Cols != n.A.Rows {
			return errf(ErrKindInvalidArgument, "validate", "Transpose shape mismatch: w is %dx%d, a is %dx%d", n.W.Rows, n.W.Cols, n.A.Rows, n.A.Cols)
		}
	case OpTril, OpTriu:
		if n.W == nil || n.A == nil {
			return errf(ErrKindInvalidArgument, "validate", "%s requires w and a", n.Op)
		}
		if n.W.Rows != n.A.Rows || n.W.Cols != n.A.Cols {
			return errf(ErrKindInvalidArgument, "validate", "%s shape mismatch: w is %dx%d, a is %dx%d", n.Op, n.W.Rows, n.W.Cols, n.A.Rows, n.A.Cols)
		}
	case OpToDense:
		if n.W == nil || n.A == nil {
			return errf(ErrKindInvalidArgument, "validate", "ToDense requires w and v")
		}
	default:
		return errf(ErrKindInvalidArgument, "validate", "unrecognised node op %d", n.Op)
	}
	return n.effectiveDescriptor().validate(n.hasMask())
}

// checkOperandType reports TypeMismatch when op's input signature disagrees
// with typeName.
func checkOperandType(op *Operator, typeName string) error {
	if op == nil {
		return nil
	}
	if op.In1 != nil && op.In1.Name != typeName {
		return errf(ErrKindTypeMismatch, "validate", "operator %q expects %s, tensor is %s", op.Name, op.In1.Name, typeName)
	}
	return nil
}

// storageIntents returns, per storage this node touches, whether the node
// needs a write lock (true) or only a read lock (false). A storage appearing
// under Mask/A/B only ever needs read; W always needs write (the scheduler
// merges per-node intents across the whole expression, so a storage that
// shows up as both read in one node and write in another ends up write).
func (n *Node) storageIntents() map[*BlockStorage]bool {
	intents := map[*BlockStorage]bool{}
	read := func(t *Tensor) {
		if t != nil {
			if _, ok := intents[t.storage]; !ok {
				intents[t.storage] = false
			}
		}
	}
	write := func(t *Tensor) {
		if t != nil {
			intents[t.storage] = true
		}
	}
	switch n.Op {
	case OpDataWrite:
		write(n.W)
	case OpDataRead:
		read(n.W)
	case OpMatrixMatrixAdd, OpMatrixMatrixMul, OpMatrixVectorMul, OpVectorMatrixMul:
		write(n.W)
		read(n.Mask)
		read(n.A)
		read(n.B)
	case OpVectorReduce:
		read(n.A)
	case OpMatrixReduceScalar:
		read(n.A)
		read(n.Mask)
	case OpVectorAssign:
		write(n.W)
		read(n.Mask)
	case OpTranspose:
		write(n.W)
		read(n.Mask)
		read(n.A)
	case OpTril, OpTriu, OpToDense:
		write(n.W)
		read(n.A)
	}
	return intents
}
