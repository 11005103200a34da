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
	"sort"
)

// storageIntent is one entry of the merged per-storage lock plan built from
// every node's storageIntents(): write wins over read when a storage shows
// up under both across the expression.
type storageIntent struct {
	storage *BlockStorage
	write   bool
}

// mergeIntents folds every node's storageIntents() into one plan, sorted by
// BlockStorage.ID so every expression acquires shared storages in the same
// order.
func mergeIntents(nodes []*Node) []storageIntent {
	write := map[*BlockStorage]bool{}
	seen := map[*BlockStorage]bool{}
	for _, n := range nodes {
		for s, w := range n.storageIntents() {
			seen[s] = true
			if w {
				write[s] = true
			}
		}
	}
	out := make([]storageIntent, 0, len(seen))
	for s := range seen {
		out = append(out, storageIntent{storage: s, write: write[s]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].storage.ID < out[j].storage.ID })
	return out
}

func acquireLocks(intents []storageIntent) {
	for _, it := range intents {
		if it.write {
			it.storage.LockWrite()
		} else {
			it.storage.LockRead()
		}
	}
}

// releaseLocks releases in reverse acquisition order, the conventional lock
// discipline; since every task graph acquires the same sorted plan, release
// order does not itself need to matter for correctness, but reversing costs
// nothing and reads naturally as "undo what acquireLocks did".
func releaseLocks(intents []storageIntent) {
	for i := len(intents) - 1; i >= 0; i-- {
		it := intents[i]
		if it.write {
			it.storage.UnlockWrite()
		} else {
			it.storage.UnlockRead()
		}
	}
}

// topoSort orders nodes so every Node.Precede edge points forward, using
// Kahn's algorithm over the explicit preds/succs lists: only explicit
// edges are ordered here — two nodes sharing a tensor but with no Precede
// between them may run concurrently; the storage locks acquired above order
// whole expressions, not nodes within one.
func topoSort(nodes []*Node) ([]*Node, error) {
	indeg := make([]int, len(nodes))
	for _, n := range nodes {
		indeg[n.ID] = len(n.preds)
	}
	queue := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			queue = append(queue, n)
		}
	}
	order := make([]*Node, 0, len(nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, s := range n.succs {
			indeg[s.ID]--
			if indeg[s.ID] == 0 {
				queue = append(queue, s)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, errf(ErrKindInvalidState, "schedule", "node graph contains a cycle")
	}
	return order, nil
}

// schedule is the pipeline: validate every node and every Precede edge,
// topologically order them, acquire the merged storage lock plan, build the
// composite task graph (node_start/node_end bookends around each node
// processor's emitted tasks, wired by Precede), launch it on the pool, and
// bridge the synthetic sink task's completion back to Expression state.
func (lib *Library) schedule(expr *Expression) error {
	if !expr.state.CompareAndSwap(int32(StateDefault), int32(StateSubmitted)) {
		return errf(ErrKindInvalidState, "schedule", "expression already submitted")
	}
	fail := func(err error) error {
		expr.setErr(err)
		for _, n := range expr.nodes {
			if n.Data != nil {
				n.Data.unref()
			}
		}
		expr.state.Store(int32(StateAborted))
		close(expr.done)
		return err
	}

	for _, n := range expr.nodes {
		for _, p := range n.preds {
			if p.expr != expr {
				return fail(errf(ErrKindInvalidArgument, "schedule", "node %d precedes across expressions", p.ID))
			}
		}
	}
	order, err := topoSort(expr.nodes)
	if err != nil {
		return fail(err)
	}
	for _, n := range order {
		if err := n.validate(); err != nil {
			return fail(err)
		}
	}

	intents := mergeIntents(expr.nodes)
	acquireLocks(intents)

	nodeStart := make([]*task, len(expr.nodes))
	nodeEnd := make([]*task, len(expr.nodes))
	var allTasks []*task
	for _, n := range order {
		preds := make([]*task, 0, len(n.preds))
		for _, p := range n.preds {
			preds = append(preds, nodeEnd[p.ID])
		}
		start := newTask(fmt.Sprintf("node%d/start", n.ID), nil, preds...)
		nodeStart[n.ID] = start

		inner, err := n.buildTasks(lib, expr, start)
		if err != nil {
			releaseLocks(intents)
			return fail(err)
		}
		end := newTask(fmt.Sprintf("node%d/end", n.ID), nil, inner...)
		nodeEnd[n.ID] = end

		allTasks = append(allTasks, start)
		allTasks = append(allTasks, inner...)
		allTasks = append(allTasks, end)
	}
	sink := newTask("sink", nil, nodeEnd...)
	allTasks = append(allTasks, sink)

	for _, t := range allTasks {
		t.launch(lib.pool, expr)
	}

	go func() {
		<-sink.done
		releaseLocks(intents)
		final := StateEvaluated
		nodeState := NodeDone
		if expr.isCancelled() {
			final, nodeState = StateAborted, NodeFailed
			if err := expr.Error(); err != nil {
				var se *Error
				if asError(err, &se) && (se.Kind == ErrKindDeviceError || se.Kind == ErrKindMemOpFailed) {
					lib.log.raiseSeverity("schedule", err)
				}
			}
		}
		for _, n := range expr.nodes {
			n.state = nodeState
			n.err = expr.Error()
			if n.Data != nil {
				n.Data.unref()
			}
		}
		expr.state.Store(int32(final))
		close(expr.done)
	}()
	return nil
}
