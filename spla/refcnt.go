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

import "sync/atomic"

// RefCounted is embedded by every long-lived shared handle (Tensor, Type,
// Operator, Expression). Go's garbage collector already owns the object's
// real lifetime; this struct models an intrusive atomic refcount for
// diagnostics and for the one contract actually required of the core:
// callers must take a Ref before they let go of any lock or mutex that was
// the only thing keeping a raw pointer alive, so a concurrent Release
// elsewhere can never observe a mid-destruction object. A zero transition
// here is advisory only — it never frees anything; the one place that acts
// on it is a host buffer's internal unref, which runs the buffer's release
// callback when its count reaches zero.
type RefCounted struct {
	count atomic.Int64
}

// initRef seeds the count at 1, representing the reference the constructor
// itself returns to the caller.
func (r *RefCounted) initRef() {
	r.count.Store(1)
}

// Ref increments the count with acquire-release ordering and returns the new
// value. Use before stashing a handle somewhere that will outlive the
// current lock scope.
func (r *RefCounted) Ref() int64 {
	return r.count.Add(1)
}

// Unref decrements the count and returns the new value. A return of 0 means
// this was the last known holder.
func (r *RefCounted) Unref() int64 {
	return r.count.Add(-1)
}

// RefCount returns the current count with a relaxed read, for diagnostics
// only — never branch production logic on its exact value beyond "> 0".
func (r *RefCounted) RefCount() int64 {
	return r.count.Load()
}
