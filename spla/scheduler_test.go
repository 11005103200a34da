package spla

import (
	"sync"
	"testing"
)

func newTestLibrary(t *testing.T, blockSize int) *Library {
	t.Helper()
	lib, err := New(Config{
		DeviceType:   DeviceCPU,
		DeviceAmount: DeviceAmountOne,
		BlockSize:    blockSize,
		WorkersCount: 2,
	})
	if err != nil {
		t.Fatalf("New(...) = %v", err)
	}
	t.Cleanup(lib.Close)
	return lib
}

func submit(t *testing.T, lib *Library, build func(*Expression)) *Expression {
	t.Helper()
	e := NewExpression(lib)
	build(e)
	if err := lib.Submit(e); err != nil {
		t.Fatalf("Submit(...) = %v", err)
	}
	e.Wait()
	if e.State() == StateAborted {
		t.Fatalf("expression aborted: %v", e.Error())
	}
	return e
}

func vectorFromPairs(t *testing.T, lib *Library, n int, typeName string, rows []int, vals []any) *Vector {
	t.Helper()
	v, err := MakeVector(lib, n, typeName)
	if err != nil {
		t.Fatalf("MakeVector(...) = %v", err)
	}
	dv, err := MakeDataVector(rows, vals, len(rows), nil)
	if err != nil {
		t.Fatalf("MakeDataVector(...) = %v", err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(v.Tensor, dv) })
	return v
}

func TestSchedulerVectorReduceSum(t *testing.T) {
	lib := newTestLibrary(t, 4)
	v := vectorFromPairs(t, lib, 10, TypeI32,
		[]int{0, 3, 7, 9},
		[]any{float64(1), float64(2), float64(3), float64(4)})

	plus, err := lib.Catalogue().FindBinary("+", TypeI32)
	if err != nil {
		t.Fatalf("FindBinary(+, i32) = %v", err)
	}
	s, err := MakeScalar(lib, TypeI32)
	if err != nil {
		t.Fatalf("MakeScalar(...) = %v", err)
	}
	submit(t, lib, func(e *Expression) { e.MakeVectorReduce(s, plus, v.Tensor) })

	got, has := s.Value()
	if !has {
		t.Fatal("scalar has no value after VectorReduce")
	}
	if got != int32(10) {
		t.Errorf("VectorReduce sum = %v (%T), want int32(10)", got, got)
	}
}

// TestSchedulerVectorReduceMin folds with min, whose identity is the type's
// maximum — a reduce seeded with a plain zero would answer 0 here.
func TestSchedulerVectorReduceMin(t *testing.T) {
	lib := newTestLibrary(t, 4)
	v := vectorFromPairs(t, lib, 10, TypeI32,
		[]int{0, 4, 9},
		[]any{int32(5), int32(3), int32(9)})

	min, err := lib.Catalogue().FindBinary("min", TypeI32)
	if err != nil {
		t.Fatalf("FindBinary(min, i32) = %v", err)
	}
	s, err := MakeScalar(lib, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeVectorReduce(s, min, v.Tensor) })

	got, has := s.Value()
	if !has {
		t.Fatal("scalar has no value after VectorReduce")
	}
	if got != int32(3) {
		t.Errorf("VectorReduce min = %v (%T), want int32(3)", got, got)
	}
}

// TestSchedulerMatrixReduceScalarMax folds a matrix over max across negative
// entries, which only works when the fold starts from the type's minimum.
func TestSchedulerMatrixReduceScalarMax(t *testing.T) {
	lib := newTestLibrary(t, 4)

	m, err := MakeMatrix(lib, 6, 6, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	dm, err := MakeDataMatrix([]int{0, 5}, []int{1, 4}, []any{int32(-7), int32(-2)}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(m.Tensor, dm) })

	max, err := lib.Catalogue().FindBinary("max", TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	s, err := MakeScalar(lib, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeMatrixReduceScalar(s, max, m.Tensor, nil) })

	got, has := s.Value()
	if !has {
		t.Fatal("scalar has no value after MatrixReduceScalar")
	}
	if got != int32(-2) {
		t.Errorf("MatrixReduceScalar max = %v (%T), want int32(-2)", got, got)
	}
}

// TestSchedulerDataWriteAccumStagesLIL merges a second batch of host triples
// into an existing matrix block under AccumResult: values combine through
// the supplied operator and the merged block stages in list-of-lists form.
func TestSchedulerDataWriteAccumStagesLIL(t *testing.T) {
	lib := newTestLibrary(t, 4)

	m, err := MakeMatrix(lib, 4, 4, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	plus, err := lib.Catalogue().FindBinary("+", TypeI32)
	if err != nil {
		t.Fatal(err)
	}

	first, err := MakeDataMatrix([]int{0, 2}, []int{1, 3}, []any{int32(1), int32(2)}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(m.Tensor, first) })

	second, err := MakeDataMatrix([]int{0, 1}, []int{1, 1}, []any{int32(10), int32(5)}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) {
		node := e.MakeDataWrite(m.Tensor, second)
		node.AddOp = plus
		node.Descriptor().SetParam(AccumResult)
	})

	if m.Nvals() != 3 {
		t.Fatalf("m.Nvals() = %d, want 3 after the accumulating write", m.Nvals())
	}
	for _, bc := range m.storage.Blocks() {
		if bc.Block.Format != FormatLIL {
			t.Errorf("block %v format = %v, want lil staging after an accumulating write", bc.Coord, bc.Block.Format)
		}
	}

	buf, err := MakeDataMatrix(make([]int, 3), make([]int, 3), make([]any, 3), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataRead(m.Tensor, buf) })
	rows, cols, vals := buf.Entries()
	got := map[[2]int]int32{}
	for i := range rows {
		got[[2]int{rows[i], cols[i]}] = vals[i].(int32)
	}
	want := map[[2]int]int32{{0, 1}: 11, {1, 1}: 5, {2, 3}: 2}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("accumulated entries = %v, want %v", got, want)
			break
		}
	}
}

func TestSchedulerMatrixMatrixAddAccumPreservesDestination(t *testing.T) {
	lib := newTestLibrary(t, 4)

	w, err := MakeVector(lib, 6, TypeBool)
	if err != nil {
		t.Fatalf("MakeVector(w) = %v", err)
	}
	a, err := MakeVector(lib, 6, TypeBool)
	if err != nil {
		t.Fatalf("MakeVector(a) = %v", err)
	}
	b, err := MakeVector(lib, 6, TypeBool)
	if err != nil {
		t.Fatalf("MakeVector(b) = %v", err)
	}

	lor, err := lib.Catalogue().FindBinary("lor", TypeBool)
	if err != nil {
		t.Fatalf("FindBinary(lor, bool) = %v", err)
	}

	seedA, err := MakeDataVector([]int{0}, []any{true}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(a.Tensor, seedA) })
	submit(t, lib, func(e *Expression) {
		e.MakeMatrixMatrixAdd(w.Tensor, nil, w.Tensor, a.Tensor, lor)
	})

	seedB, err := MakeDataVector([]int{3}, []any{true}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(b.Tensor, seedB) })
	submit(t, lib, func(e *Expression) {
		node := e.MakeMatrixMatrixAdd(w.Tensor, nil, w.Tensor, b.Tensor, lor)
		node.Descriptor().SetParam(AccumResult)
	})

	if w.Nvals() != 2 {
		t.Fatalf("w.Nvals() = %d, want 2 (AccumResult must preserve the earlier union)", w.Nvals())
	}

	buf, err := MakeDataVector(make([]int, 2), make([]any, 2), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataRead(w.Tensor, buf) })
	rows, _ := buf.Entries()
	seen := map[int]bool{}
	for _, r := range rows {
		seen[r] = true
	}
	if !seen[0] || !seen[3] {
		t.Errorf("w entries = %v, want rows {0,3}", rows)
	}
}

func TestSchedulerMatrixMatrixAddWithoutAccumClearsDestination(t *testing.T) {
	lib := newTestLibrary(t, 4)

	w, err := MakeVector(lib, 6, TypeBool)
	if err != nil {
		t.Fatal(err)
	}
	a, err := MakeVector(lib, 6, TypeBool)
	if err != nil {
		t.Fatal(err)
	}
	lor, err := lib.Catalogue().FindBinary("lor", TypeBool)
	if err != nil {
		t.Fatal(err)
	}

	seed, err := MakeDataVector([]int{0}, []any{true}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(w.Tensor, seed) })
	submit(t, lib, func(e *Expression) {
		e.MakeMatrixMatrixAdd(w.Tensor, nil, w.Tensor, a.Tensor, lor)
	})

	if w.Nvals() != 0 {
		t.Errorf("w.Nvals() = %d, want 0: without AccumResult the destination must be cleared before compute", w.Nvals())
	}
}

func TestSchedulerTranspose(t *testing.T) {
	lib := newTestLibrary(t, 4)

	m, err := MakeMatrix(lib, 5, 3, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	dm, err := MakeDataMatrix([]int{0, 4}, []int{2, 1}, []any{float64(7), float64(9)}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(m.Tensor, dm) })

	tp, err := MakeMatrix(lib, 3, 5, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeTranspose(tp.Tensor, nil, m.Tensor, nil) })

	buf, err := MakeDataMatrix(make([]int, 2), make([]int, 2), make([]any, 2), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataRead(tp.Tensor, buf) })
	rows, cols, vals := buf.Entries()
	got := map[[2]int]int32{}
	for i := range rows {
		got[[2]int{rows[i], cols[i]}] = vals[i].(int32)
	}
	if got[[2]int{2, 0}] != 7 || got[[2]int{1, 4}] != 9 {
		t.Errorf("transpose entries = %v, want {(2,0):7, (1,4):9}", got)
	}
}

// TestSchedulerMaskedAssignment exercises spec.md §8 scenario S2: a length-4
// vector, empty at start, assigned scalar 7 under a mask present at {1,3}.
func TestSchedulerMaskedAssignment(t *testing.T) {
	lib := newTestLibrary(t, 4)

	w, err := MakeVector(lib, 4, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	mask, err := MakeVector(lib, 4, TypeBool)
	if err != nil {
		t.Fatal(err)
	}
	maskData, err := MakeDataVector([]int{1, 3}, []any{true, true}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(mask.Tensor, maskData) })

	s, err := MakeScalar(lib, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	s.SetValue(int32(7))

	submit(t, lib, func(e *Expression) { e.MakeVectorAssign(w.Tensor, mask.Tensor, s, nil) })

	if w.Nvals() != 2 {
		t.Fatalf("w.Nvals() = %d, want 2", w.Nvals())
	}
	buf, err := MakeDataVector(make([]int, 2), make([]any, 2), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataRead(w.Tensor, buf) })
	rows, vals := buf.Entries()
	got := map[int]int32{}
	for i := range rows {
		got[rows[i]] = vals[i].(int32)
	}
	if got[1] != 7 || got[3] != 7 {
		t.Errorf("w entries = %v, want {1:7, 3:7}", got)
	}
}

// TestSchedulerTrilExtractsLowerTriangle exercises spec.md §8 scenario S3.
func TestSchedulerTrilExtractsLowerTriangle(t *testing.T) {
	lib := newTestLibrary(t, 4)

	m, err := MakeMatrix(lib, 2, 2, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	dm, err := MakeDataMatrix(
		[]int{0, 0, 1, 1},
		[]int{0, 1, 0, 1},
		[]any{float64(1), float64(2), float64(3), float64(4)}, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(m.Tensor, dm) })

	w, err := MakeMatrix(lib, 2, 2, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeTril(w.Tensor, m.Tensor) })

	buf, err := MakeDataMatrix(make([]int, 3), make([]int, 3), make([]any, 3), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataRead(w.Tensor, buf) })
	rows, cols, vals := buf.Entries()
	got := map[[2]int]int32{}
	for i := range rows {
		got[[2]int{rows[i], cols[i]}] = vals[i].(int32)
	}
	want := map[[2]int]int32{{0, 0}: 1, {1, 0}: 3, {1, 1}: 4}
	if len(got) != len(want) {
		t.Fatalf("tril entries = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("tril entries = %v, want %v", got, want)
		}
	}
}

// TestSchedulerDataRoundTripUnsortedDuplicates exercises spec.md §8 property 2
// and scenario S5: unsorted input with a duplicate reduces via the default
// "keep first" rule and reads back equal to the sorted/deduped form.
func TestSchedulerDataRoundTripUnsortedDuplicates(t *testing.T) {
	lib := newTestLibrary(t, 8)

	m, err := MakeMatrix(lib, 100, 100, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	// Unsorted rows, including a duplicate at (5,5): first occurrence (value 1)
	// must win under the default "keep first" dedup rule.
	dm, err := MakeDataMatrix(
		[]int{5, 2, 5, 0},
		[]int{5, 3, 5, 0},
		[]any{float64(1), float64(2), float64(99), float64(4)}, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(m.Tensor, dm) })

	if m.Nvals() != 3 {
		t.Fatalf("m.Nvals() = %d, want 3 (duplicate at (5,5) must collapse)", m.Nvals())
	}
	buf, err := MakeDataMatrix(make([]int, 3), make([]int, 3), make([]any, 3), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataRead(m.Tensor, buf) })
	rows, cols, vals := buf.Entries()
	got := map[[2]int]int32{}
	for i := range rows {
		got[[2]int{rows[i], cols[i]}] = vals[i].(int32)
	}
	want := map[[2]int]int32{{5, 5}: 1, {2, 3}: 2, {0, 0}: 4}
	if len(got) != len(want) {
		t.Fatalf("round-trip entries = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("round-trip entries = %v, want %v", got, want)
		}
	}
}

// TestSchedulerDeviceFixedStrategyWiring confirms the DeviceFixedStrategy
// descriptor hint (§4.4 policy tier 2) actually reaches per-block device
// selection through the node processor, not just DeviceManager.FetchDevices
// in isolation. It primes the manager's round-robin counter first, so a
// regression that drops back to plain round-robin (ignoring fixedPolicy)
// would yield a different device histogram than i mod deviceCount.
func TestSchedulerDeviceFixedStrategyWiring(t *testing.T) {
	lib, err := New(Config{
		DeviceType:   DeviceCPU,
		DeviceAmount: DeviceAmountOne,
		DeviceNames:  []string{"d0", "d1", "d2"},
		BlockSize:    1,
		WorkersCount: 2,
	})
	if err != nil {
		t.Fatalf("New(...) = %v", err)
	}
	t.Cleanup(lib.Close)

	// Advance the shared round-robin counter so that a buggy implementation
	// falling back to round-robin would start from a nonzero offset.
	if _, err := lib.devices.FetchDevice(deviceHint{}); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	seen := map[int]int{}
	lib.registry.entries[AlgoVectorAssign] = []*Algorithm{{
		Name:   "spy/vectorassign",
		Select: func(p *AlgoParams) bool { return true },
		Process: func(p *AlgoParams) error {
			mu.Lock()
			seen[p.DeviceID]++
			mu.Unlock()
			return nil
		},
	}}

	// 7 row-blocks (blockSize=1, length 7) over 3 devices: fixed-strategy
	// assigns i mod 3 -> device0 3x, device1 2x, device2 2x, independent of
	// the primed round-robin counter. A round-robin fallback starting from
	// the primed counter (1) would instead give device0 2x, device1 3x,
	// device2 2x.
	w, err := MakeVector(lib, 7, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	s, err := MakeScalar(lib, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	s.SetValue(int32(1))

	e := NewExpression(lib)
	node := e.MakeVectorAssign(w.Tensor, nil, s, nil)
	node.Descriptor().SetParam(DeviceFixedStrategy)
	if err := lib.Submit(e); err != nil {
		t.Fatalf("Submit(...) = %v", err)
	}
	e.Wait()
	if e.State() == StateAborted {
		t.Fatalf("expression aborted: %v", e.Error())
	}

	want := map[int]int{0: 3, 1: 2, 2: 2}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("device histogram = %v, want %v", seen, want)
	}
	for id, count := range want {
		if seen[id] != count {
			t.Errorf("device histogram = %v, want %v", seen, want)
		}
	}
}

// TestSchedulerMaskComplementEquivalence exercises spec.md §8 property 4:
// assigning under mask M equals assigning under complement(M) with
// MaskComplement set.
func TestSchedulerMaskComplementEquivalence(t *testing.T) {
	lib := newTestLibrary(t, 4)

	const n = 6
	maskRows := []int{1, 3, 4}
	complementRows := []int{0, 2, 5}

	readRows := func(w *Vector) map[int]int32 {
		t.Helper()
		buf, err := MakeDataVector(make([]int, n), make([]any, n), 0, nil)
		if err != nil {
			t.Fatal(err)
		}
		submit(t, lib, func(e *Expression) { e.MakeDataRead(w.Tensor, buf) })
		rows, vals := buf.Entries()
		got := map[int]int32{}
		for i := range rows {
			got[rows[i]] = vals[i].(int32)
		}
		return got
	}

	assign := func(maskEntries []int, complement bool) map[int]int32 {
		t.Helper()
		w, err := MakeVector(lib, n, TypeI32)
		if err != nil {
			t.Fatal(err)
		}
		mask, err := MakeVector(lib, n, TypeBool)
		if err != nil {
			t.Fatal(err)
		}
		vals := make([]any, len(maskEntries))
		for i := range vals {
			vals[i] = true
		}
		md, err := MakeDataVector(maskEntries, vals, len(maskEntries), nil)
		if err != nil {
			t.Fatal(err)
		}
		submit(t, lib, func(e *Expression) { e.MakeDataWrite(mask.Tensor, md) })

		s, err := MakeScalar(lib, TypeI32)
		if err != nil {
			t.Fatal(err)
		}
		s.SetValue(int32(9))
		submit(t, lib, func(e *Expression) {
			node := e.MakeVectorAssign(w.Tensor, mask.Tensor, s, nil)
			if complement {
				node.Descriptor().SetParam(MaskComplement)
			}
		})
		return readRows(w)
	}

	regular := assign(maskRows, false)
	complemented := assign(complementRows, true)
	if len(regular) != len(complemented) {
		t.Fatalf("regular mask gave %v, complemented mask gave %v", regular, complemented)
	}
	for k, v := range regular {
		if complemented[k] != v {
			t.Errorf("regular mask gave %v, complemented mask gave %v", regular, complemented)
			break
		}
	}
}

// TestSchedulerMaskComplementWithoutMaskAborts exercises the InvalidState
// fast-fail for MaskComplement with no mask supplied.
func TestSchedulerMaskComplementWithoutMaskAborts(t *testing.T) {
	lib := newTestLibrary(t, 4)
	w, err := MakeVector(lib, 4, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	s, err := MakeScalar(lib, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	s.SetValue(int32(1))

	e := NewExpression(lib)
	node := e.MakeVectorAssign(w.Tensor, nil, s, nil)
	node.Descriptor().SetParam(MaskComplement)
	if err := lib.Submit(e); err == nil {
		t.Fatal("expected Submit to reject MaskComplement with no mask")
	}
	if e.State() != StateAborted {
		t.Errorf("State() = %v, want Aborted", e.State())
	}
}

// TestSchedulerTransposeDecorationReplay runs the same unmasked transpose
// twice: the second run must replay the cached decoration and still produce
// the same entries, and a write to the source in between must invalidate it.
func TestSchedulerTransposeDecorationReplay(t *testing.T) {
	lib := newTestLibrary(t, 4)

	m, err := MakeMatrix(lib, 3, 2, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	dm, err := MakeDataMatrix([]int{0, 2}, []int{1, 0}, []any{int32(5), int32(6)}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(m.Tensor, dm) })

	read := func(w *Matrix) map[[2]int]int32 {
		t.Helper()
		buf, err := MakeDataMatrix(make([]int, 2), make([]int, 2), make([]any, 2), 0, nil)
		if err != nil {
			t.Fatal(err)
		}
		submit(t, lib, func(e *Expression) { e.MakeDataRead(w.Tensor, buf) })
		rows, cols, vals := buf.Entries()
		got := map[[2]int]int32{}
		for i := range rows {
			got[[2]int{rows[i], cols[i]}] = vals[i].(int32)
		}
		return got
	}

	w1, err := MakeMatrix(lib, 2, 3, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeTranspose(w1.Tensor, nil, m.Tensor, nil) })
	if m.storage.transposedDecoration() == nil {
		t.Fatal("transpose did not populate the source's decoration")
	}

	w2, err := MakeMatrix(lib, 2, 3, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeTranspose(w2.Tensor, nil, m.Tensor, nil) })

	want := map[[2]int]int32{{1, 0}: 5, {0, 2}: 6}
	for _, got := range []map[[2]int]int32{read(w1), read(w2)} {
		if len(got) != len(want) {
			t.Fatalf("transpose entries = %v, want %v", got, want)
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("transpose entries = %v, want %v", got, want)
			}
		}
	}

	// A write to the source must invalidate the cached view.
	dm2, err := MakeDataMatrix([]int{1}, []int{1}, []any{int32(8)}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataWrite(m.Tensor, dm2) })
	if m.storage.transposedDecoration() != nil {
		t.Error("write to the source did not invalidate the transposed decoration")
	}
}

func TestSchedulerToDenseMaterialisesVector(t *testing.T) {
	lib := newTestLibrary(t, 4)

	v := vectorFromPairs(t, lib, 6, TypeI32, []int{0, 5}, []any{float64(3), float64(8)})
	w, err := MakeVector(lib, 6, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeToDense(w.Tensor, v.Tensor) })

	if w.Nvals() != 2 {
		t.Fatalf("w.Nvals() = %d, want 2", w.Nvals())
	}
	for _, bc := range w.storage.Blocks() {
		if bc.Block.Format != FormatDense {
			t.Errorf("block %v format = %v, want dense", bc.Coord, bc.Block.Format)
		}
	}
	buf, err := MakeDataVector(make([]int, 2), make([]any, 2), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeDataRead(w.Tensor, buf) })
	rows, vals := buf.Entries()
	got := map[int]int32{}
	for i := range rows {
		got[rows[i]] = vals[i].(int32)
	}
	if got[0] != 3 || got[5] != 8 {
		t.Errorf("dense read-back = %v, want {0:3, 5:8}", got)
	}

	// The source now carries a dense alternative-format decoration; a second
	// ToDense into a fresh destination replays it.
	if v.storage.altFormatDecoration(FormatDense) == nil {
		t.Fatal("ToDense did not populate the source's alternative-format decoration")
	}
	w2, err := MakeVector(lib, 6, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	submit(t, lib, func(e *Expression) { e.MakeToDense(w2.Tensor, v.Tensor) })
	if w2.Nvals() != 2 {
		t.Errorf("replayed ToDense w2.Nvals() = %d, want 2", w2.Nvals())
	}
}

func TestSchedulerCycleRejected(t *testing.T) {
	lib := newTestLibrary(t, 4)
	v, err := MakeVector(lib, 4, TypeI32)
	if err != nil {
		t.Fatal(err)
	}
	e := NewExpression(lib)
	n1 := e.MakeTranspose(v.Tensor, nil, v.Tensor, nil)
	n2 := e.MakeTranspose(v.Tensor, nil, v.Tensor, nil)
	n1.Precede(n2)
	n2.Precede(n1)
	if err := lib.Submit(e); err == nil {
		t.Error("expected Submit to reject a cyclic node graph")
	}
}
