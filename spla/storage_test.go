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

import "testing"

func TestBlockRegionLastBlockIsShort(t *testing.T) {
	// n=10, blockSize=4 -> blocks of size 4, 4, 2: the last block must be
	// n-(k-1)*B = 10-2*4 = 2, never B.
	rows, _ := blockRegion(BlockCoord{Row: 2}, 10, 0, 4, true)
	if rows != 2 {
		t.Errorf("last row-block size = %d, want 2", rows)
	}
	rows, _ = blockRegion(BlockCoord{Row: 0}, 10, 0, 4, true)
	if rows != 4 {
		t.Errorf("first row-block size = %d, want 4", rows)
	}
}

func TestBlockStorageSetBlockNilRemovesSlot(t *testing.T) {
	s := newBlockStorage(1, 1, 4, TypeI32, true)
	blk := entriesToCOOBlock([]entry{{Row: 0, Col: 0, Val: int32(5)}}, 4, 1, TypeI32)
	s.SetBlock(BlockCoord{Row: 0}, blk)
	if s.Nvals() != 1 {
		t.Fatalf("Nvals() = %d, want 1", s.Nvals())
	}
	s.SetBlock(BlockCoord{Row: 0}, nil)
	if s.Nvals() != 0 {
		t.Errorf("Nvals() = %d, want 0 after setting an absent block", s.Nvals())
	}
	if got := s.GetBlock(BlockCoord{Row: 0}); got != nil {
		t.Errorf("GetBlock() = %v, want nil: absent slot must not leave a sentinel", got)
	}
	if got := len(s.Blocks()); got != 0 {
		t.Errorf("Blocks() has %d entries, want 0", got)
	}
}

func TestBlockStorageClearResetsNvals(t *testing.T) {
	s := newBlockStorage(2, 1, 4, TypeI32, true)
	s.SetBlock(BlockCoord{Row: 0}, entriesToCOOBlock([]entry{{Row: 0, Col: 0, Val: int32(1)}}, 4, 1, TypeI32))
	s.SetBlock(BlockCoord{Row: 1}, entriesToCOOBlock([]entry{{Row: 0, Col: 0, Val: int32(2)}}, 2, 1, TypeI32))
	if s.Nvals() != 2 {
		t.Fatalf("Nvals() = %d, want 2", s.Nvals())
	}
	s.Clear()
	if s.Nvals() != 0 {
		t.Errorf("Nvals() = %d, want 0 after Clear", s.Nvals())
	}
	if len(s.Blocks()) != 0 {
		t.Errorf("Blocks() not empty after Clear")
	}
}

func TestBlockStorageSetBlockUpdatesNvalsDelta(t *testing.T) {
	s := newBlockStorage(1, 1, 4, TypeI32, true)
	s.SetBlock(BlockCoord{Row: 0}, entriesToCOOBlock([]entry{{Row: 0, Col: 0, Val: int32(1)}}, 4, 1, TypeI32))
	s.SetBlock(BlockCoord{Row: 0}, entriesToCOOBlock([]entry{
		{Row: 0, Col: 0, Val: int32(1)},
		{Row: 1, Col: 0, Val: int32(2)},
		{Row: 2, Col: 0, Val: int32(3)},
	}, 4, 1, TypeI32))
	if s.Nvals() != 3 {
		t.Errorf("Nvals() = %d, want 3 after replacing with a 3-entry block", s.Nvals())
	}
}
