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
	"strings"
	"time"

	"github.com/sparsekit/spla/spla/kernel"
)

// OpType identifies a kind of block-level algorithm the registry dispatches
// over; each corresponds to one user-visible expression NodeOp (Tril and
// Triu each have their own key).
type OpType int

const (
	AlgoMMAdd OpType = iota
	AlgoMMMul
	AlgoMVMul
	AlgoVMMul
	AlgoVectorReduce
	AlgoMatrixReduceScalar
	AlgoVectorAssign
	AlgoTranspose
	AlgoTril
	AlgoTriu
	AlgoToDense
	AlgoDataWrite
	AlgoDataRead
)

// AlgoParams is the operation-specific struct every candidate's Select/Process
// receives: the effective descriptor, the chosen device id, the element
// type name, the operators involved, input blocks, and an out-slot for the
// produced block (and/or scalar).
type AlgoParams struct {
	Desc       effectiveDescriptor
	DeviceID   int
	TypeName   string
	BinaryOp   *Operator
	AddOp      *Operator
	SelectOp   *Operator
	A, B, Mask *Block
	ARows, ACols int
	BRows, BCols int
	Init       any
	cancelled  func() bool

	// Storage and Host back the whole-tensor DataWrite/DataRead algorithms,
	// which scatter/gather across every block of a tensor rather than
	// producing a single output block.
	Storage *BlockStorage
	Host    *hostData

	OutBlock *Block
	OutScalar any
	OutHasScalar bool
}

// Algorithm is one registry entry for a given OpType: Select decides whether
// this candidate can handle params (usually by inspecting block formats),
// Process does the work.
type Algorithm struct {
	Name    string
	Select  func(p *AlgoParams) bool
	Process func(p *AlgoParams) error
}

// Registry is the read-only-during-execution lookup table of
// (OpType, entry name) -> Algorithm. Entries for the same OpType are tried
// in registration order; the first whose Select accepts is invoked.
type Registry struct {
	entries map[OpType][]*Algorithm
	log     *logger
}

func newRegistry(lg *logger) *Registry {
	r := &Registry{entries: make(map[OpType][]*Algorithm), log: lg}
	r.registerBuiltins()
	r.Register(AlgoDataWrite, genericDataWrite())
	r.Register(AlgoDataRead, genericDataRead())
	return r
}

// Register adds algo as a new candidate for kind, appended after any
// previously registered candidates (registration order is the try order).
func (r *Registry) Register(kind OpType, algo *Algorithm) {
	r.entries[kind] = append(r.entries[kind], algo)
}

// Dispatch tries each candidate for kind in order and invokes the first
// whose Select accepts; NoAlgorithm if none do.
func (r *Registry) Dispatch(kind OpType, p *AlgoParams) error {
	for _, algo := range r.entries[kind] {
		if algo.Select(p) {
			if p.cancelled != nil && p.cancelled() {
				return errf(ErrKindInvalidState, "Dispatch", "task cancelled before %s", algo.Name)
			}
			start := time.Now()
			if err := algo.Process(p); err != nil {
				return fmt.Errorf("algorithm %s: %w", algo.Name, err)
			}
			if p.Desc.IsParamSet(ProfileTime) {
				r.profile(algo.Name, p.DeviceID, time.Since(start))
			}
			return nil
		}
	}
	return errf(ErrKindNoAlgorithm, "Dispatch", "no algorithm accepts op=%d type=%s", kind, p.TypeName)
}

// profile emits one ProfileTime trace record for a completed Process call.
// Algorithm names carry '/' and '+' as format separators, which TraceLine's
// symbol position does not accept, so they are flattened first.
func (r *Registry) profile(name string, device int, elapsed time.Duration) {
	symbol := strings.NewReplacer("/", "_", "+", "_").Replace(name)
	line, err := kernel.TraceLine(symbol, device, elapsed.Nanoseconds())
	if err != nil {
		r.log.log(logWarn, "profile %s: %v", name, err)
		return
	}
	r.log.log(logInfo, "profile %s:\n%s", name, line)
}
