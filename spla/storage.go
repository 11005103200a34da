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

	"github.com/samber/lo"
)

// storageIDCounter hands out process-unique BlockStorage IDs, which the
// scheduler uses to sort lock acquisition deterministically.
var storageIDCounter struct {
	mu   sync.Mutex
	next int64
}

func nextStorageID() int64 {
	storageIDCounter.mu.Lock()
	defer storageIDCounter.mu.Unlock()
	storageIDCounter.next++
	return storageIDCounter.next
}

// decoration caches a derived view of a tensor's contents as a snapshot of
// coord/block pairs (blocks are never mutated in place once published, so
// snapshot sharing is safe). A decoration is invalidated on every write to
// its owning tensor rather than refusing concurrent writes to both views —
// see DESIGN.md for the rationale.
type decoration struct {
	transposed []blockAndCoord
	altFormat  []blockAndCoord
	altTag     Format
}

// BlockStorage is the map-from-coordinate-to-block object backing a tensor: a
// vector storage uses only Row of each BlockCoord (Col always 0), a matrix
// storage uses both. It is the long-lived, reference-counted object exposed
// to users as Vector/Matrix storage; blocks inside it are swapped out as
// operations produce results.
//
// The per-call mutex here protects only the in-map operations; it is
// orthogonal to the scheduler's logical read/write lock (the logical field,
// taken through LockRead/LockWrite), which the scheduler acquires once per
// expression submission from its merged storageIntent plan.
type BlockStorage struct {
	RefCounted
	ID int64

	mu         sync.Mutex
	blocks     map[BlockCoord]*Block
	nvals      int
	blockSize  int
	rowBlocks  int
	colBlocks  int
	isVector   bool
	typeName   string
	decoration decoration

	// logical is the per-storage read/write lock used for cross-expression
	// precedence: acquired once by the scheduler for the duration of an expression's use
	// of this storage, orthogonal to mu above which only protects the
	// in-map operations of a single call.
	logical sync.RWMutex
}

// LockRead acquires the shared logical read lock. While held, no task in any
// expression may hold the logical write lock on this storage.
func (s *BlockStorage) LockRead() { s.logical.RLock() }

// UnlockRead releases the shared logical read lock.
func (s *BlockStorage) UnlockRead() { s.logical.RUnlock() }

// LockWrite acquires the exclusive logical write lock; at most one write
// lock exists on a storage at any moment, and it excludes every read lock.
func (s *BlockStorage) LockWrite() { s.logical.Lock() }

// UnlockWrite releases the exclusive logical write lock.
func (s *BlockStorage) UnlockWrite() { s.logical.Unlock() }

func newBlockStorage(rowBlocks, colBlocks, blockSize int, typeName string, isVector bool) *BlockStorage {
	s := &BlockStorage{
		ID:        nextStorageID(),
		blocks:    make(map[BlockCoord]*Block),
		blockSize: blockSize,
		rowBlocks: rowBlocks,
		colBlocks: colBlocks,
		isVector:  isVector,
		typeName:  typeName,
	}
	s.initRef()
	return s
}

// Clear drops all blocks; nnz resets to 0 and decorations are invalidated.
func (s *BlockStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = make(map[BlockCoord]*Block)
	s.nvals = 0
	s.invalidateDecorationsLocked()
}

// SetBlock replaces the slot at coord atomically (from the caller's view):
// it updates cached nnz by new.Nvals - old.Nvals and invalidates matching
// decorations. Passing a nil block removes the slot rather than storing a
// sentinel.
func (s *BlockStorage) SetBlock(coord BlockCoord, b *Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.blocks[coord]
	oldN := 0
	if old != nil {
		oldN = old.Nvals
	}
	newN := 0
	if b != nil {
		newN = b.Nvals
	}
	s.nvals += newN - oldN
	if b == nil {
		delete(s.blocks, coord)
	} else {
		s.blocks[coord] = b
	}
	s.invalidateDecorationsLocked()
}

// RemoveBlock is equivalent to SetBlock(coord, nil).
func (s *BlockStorage) RemoveBlock(coord BlockCoord) {
	s.SetBlock(coord, nil)
}

// GetBlock clones the shared handle under the storage's internal lock. The
// core never mutates a Block in place once another task may read it; the
// returned pointer is safe to read concurrently with any other GetBlock.
func (s *BlockStorage) GetBlock(coord BlockCoord) *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[coord]
}

// blockAndCoord pairs a coordinate with its block for Blocks()'s snapshot.
type blockAndCoord struct {
	Coord BlockCoord
	Block *Block
}

// Blocks returns a snapshot for iteration: a copy of the coord->block map
// taken under the lock, safe to range over without further synchronization.
func (s *BlockStorage) Blocks() []blockAndCoord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.MapToSlice(s.blocks, func(c BlockCoord, b *Block) blockAndCoord {
		return blockAndCoord{Coord: c, Block: b}
	})
}

// Grid returns the (row-block, col-block) grid dimensions.
func (s *BlockStorage) Grid() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowBlocks, s.colBlocks
}

// BlockSize returns the fixed block edge length shared by every tensor in
// this storage's owning Library instance.
func (s *BlockStorage) BlockSize() int {
	return s.blockSize
}

// Nvals returns the cached aggregate nnz across every block.
func (s *BlockStorage) Nvals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nvals
}

func (s *BlockStorage) invalidateDecorationsLocked() {
	s.decoration = decoration{}
}

// setTransposedDecoration caches the transposed view of this storage's
// current contents. Callers must hold at least the logical read lock, so a
// concurrent writer (which would invalidate) is excluded for the duration.
func (s *BlockStorage) setTransposedDecoration(blocks []blockAndCoord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoration.transposed = blocks
}

// transposedDecoration returns the cached transposed view, or nil when no
// decoration is present (absent or invalidated by a write).
func (s *BlockStorage) transposedDecoration() []blockAndCoord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoration.transposed
}

// setAltFormatDecoration caches this storage's contents re-materialised in
// tag's format, the second decoration kind a tensor may carry.
func (s *BlockStorage) setAltFormatDecoration(blocks []blockAndCoord, tag Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoration.altFormat = blocks
	s.decoration.altTag = tag
}

// altFormatDecoration returns the cached alternative-format view when one is
// present in tag's format.
func (s *BlockStorage) altFormatDecoration(tag Format) []blockAndCoord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decoration.altFormat == nil || s.decoration.altTag != tag {
		return nil
	}
	return s.decoration.altFormat
}

// blockRegion returns the logical (rows, cols) a block at coord spans,
// honoring the edge-case policy that the final row/col block's logical size
// is n-(k-1)*B, never B, when n is not a multiple of B.
func blockRegion(coord BlockCoord, logicalRows, logicalCols, blockSize int, isVector bool) (rows, cols int) {
	rows = regionExtent(coord.Row, logicalRows, blockSize)
	if isVector {
		return rows, 1
	}
	cols = regionExtent(coord.Col, logicalCols, blockSize)
	return rows, cols
}

func regionExtent(blockIdx, logicalN, blockSize int) int {
	start := blockIdx * blockSize
	remaining := logicalN - start
	if remaining > blockSize {
		return blockSize
	}
	return remaining
}

// numBlocks returns ceil(n / blockSize).
func numBlocks(n, blockSize int) int {
	if n <= 0 {
		return 0
	}
	return (n + blockSize - 1) / blockSize
}
