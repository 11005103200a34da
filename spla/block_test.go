package spla

import "testing"

func testMatrixBlock() *Block {
	return entriesToCOOBlock([]entry{
		{Row: 1, Col: 2, Val: int32(5)},
		{Row: 0, Col: 1, Val: int32(3)},
		{Row: 1, Col: 0, Val: int32(4)},
	}, 3, 3, TypeI32)
}

func entryMap(b *Block) map[[2]int]any {
	out := map[[2]int]any{}
	for _, e := range b.Entries() {
		out[[2]int{e.Row, e.Col}] = e.Val
	}
	return out
}

func TestBlockToCSRSortsRows(t *testing.T) {
	csr := testMatrixBlock().ToCSR(3, 3, TypeI32)
	if csr.Format != FormatCSR || csr.Nvals != 3 {
		t.Fatalf("ToCSR gave format=%v nvals=%d, want csr/3", csr.Format, csr.Nvals)
	}
	// Row pointers must partition the entries: row 0 holds one entry, row 1
	// holds two, row 2 none.
	wantPtr := []int{0, 1, 3, 3}
	for i, w := range wantPtr {
		if csr.csrPtr[i] != w {
			t.Fatalf("csrPtr = %v, want %v", csr.csrPtr, wantPtr)
		}
	}
	// Columns within row 1 must ascend.
	if csr.csrCol[1] != 0 || csr.csrCol[2] != 2 {
		t.Errorf("row 1 columns = %v, want ascending [0 2]", csr.csrCol[1:3])
	}
	got := entryMap(csr)
	if got[[2]int{1, 2}] != int32(5) || got[[2]int{0, 1}] != int32(3) || got[[2]int{1, 0}] != int32(4) {
		t.Errorf("CSR entries = %v, lost or corrupted values", got)
	}
}

func TestBlockToLILGroupsByRow(t *testing.T) {
	lil := testMatrixBlock().ToLIL(3, 3, TypeI32)
	if lil.Format != FormatLIL || lil.Nvals != 3 {
		t.Fatalf("ToLIL gave format=%v nvals=%d, want lil/3", lil.Format, lil.Nvals)
	}
	if len(lil.lil[1]) != 2 || len(lil.lil[0]) != 1 || len(lil.lil[2]) != 0 {
		t.Errorf("row lists sized %d/%d/%d, want 1/2/0", len(lil.lil[0]), len(lil.lil[1]), len(lil.lil[2]))
	}
	got := entryMap(lil)
	if got[[2]int{1, 0}] != int32(4) {
		t.Errorf("LIL entries = %v, missing (1,0):4", got)
	}
}

func TestBlockToDenseMarksOnlyStoredSlots(t *testing.T) {
	d := testMatrixBlock().ToDense(3, 3, TypeI32)
	if d.Format != FormatDense {
		t.Fatalf("ToDense gave format %v", d.Format)
	}
	if d.Nvals != 3 {
		t.Errorf("dense Nvals = %d, want 3: absent slots must stay unset", d.Nvals)
	}
	if !d.denseSet[0*3+1] || d.denseSet[2*3+2] {
		t.Error("denseSet does not match the stored entry positions")
	}
	if d.dense[2*3+2] != int32(0) {
		t.Errorf("absent dense slot = %v, want the type's zero value", d.dense[2*3+2])
	}
}

func TestBlockEntriesAcrossFormats(t *testing.T) {
	base := testMatrixBlock()
	want := entryMap(base)
	for _, b := range []*Block{
		base.ToCSR(3, 3, TypeI32),
		base.ToLIL(3, 3, TypeI32),
		base.ToDense(3, 3, TypeI32),
	} {
		got := entryMap(b)
		if len(got) != len(want) {
			t.Fatalf("%v block lost entries: %v, want %v", b.Format, got, want)
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("%v block entry %v = %v, want %v", b.Format, k, got[k], v)
			}
		}
	}
}

func TestNilBlockEntriesIsEmpty(t *testing.T) {
	var b *Block
	if got := b.Entries(); got != nil {
		t.Errorf("nil block Entries() = %v, want nil", got)
	}
}
