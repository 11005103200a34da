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

// task is one vertex of the composite task graph a node expands into: a
// node_start or node_end bookend, or one of the per-block units a node
// processor's execute() emits between them. fn is nil for a pure fence
// (node_start is always a fence: no work happens in it).
type task struct {
	name  string
	fn    func() error
	preds []*task
	done  chan struct{}
}

func newTask(name string, fn func() error, preds ...*task) *task {
	return &task{name: name, fn: fn, preds: preds, done: make(chan struct{})}
}

// launch starts the goroutine that waits on every predecessor, then (unless
// the expression has been cancelled) hands fn to the pool for execution.
// The wait-then-dispatch goroutine itself is cheap and never occupies a pool
// worker slot; only fn's actual body runs on the bounded, process-wide
// thread pool with N workers.
func (t *task) launch(pool *Pool, expr *Expression) {
	go func() {
		for _, p := range t.preds {
			<-p.done
		}
		if t.fn == nil {
			close(t.done)
			return
		}
		if expr.isCancelled() {
			close(t.done)
			return
		}
		pool.Go(func() {
			defer close(t.done)
			if err := t.fn(); err != nil {
				expr.setErr(err)
				expr.cancelled.Store(true)
			}
		})
	}()
}
