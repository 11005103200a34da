package algo

import (
	"testing"

	"github.com/sparsekit/spla/spla"
)

func newTestLibrary(t *testing.T) *spla.Library {
	t.Helper()
	lib, err := spla.New(spla.Config{
		DeviceType:   spla.DeviceCPU,
		DeviceAmount: spla.DeviceAmountOne,
		BlockSize:    4,
		WorkersCount: 2,
	})
	if err != nil {
		t.Fatalf("spla.New(...) = %v", err)
	}
	t.Cleanup(lib.Close)
	return lib
}

// buildAdjacency writes a square boolean adjacency matrix from an edge list,
// adding both directions for each pair.
func buildAdjacency(t *testing.T, lib *spla.Library, n int, edges [][2]int) *spla.Matrix {
	t.Helper()
	m, err := spla.MakeMatrix(lib, n, n, spla.TypeBool)
	if err != nil {
		t.Fatalf("MakeMatrix(...) = %v", err)
	}
	rows := make([]int, 0, len(edges)*2)
	cols := make([]int, 0, len(edges)*2)
	vals := make([]any, 0, len(edges)*2)
	for _, e := range edges {
		rows = append(rows, e[0], e[1])
		cols = append(cols, e[1], e[0])
		vals = append(vals, true, true)
	}
	dm, err := spla.MakeDataMatrix(rows, cols, vals, len(rows), nil)
	if err != nil {
		t.Fatalf("MakeDataMatrix(...) = %v", err)
	}
	expr := spla.NewExpression(lib)
	expr.MakeDataWrite(m.Tensor, dm)
	if err := lib.Submit(expr); err != nil {
		t.Fatalf("Submit(...) = %v", err)
	}
	expr.Wait()
	if expr.State() == spla.StateAborted {
		t.Fatalf("data write aborted: %v", expr.Error())
	}
	return m
}

func TestBFSChain(t *testing.T) {
	lib := newTestLibrary(t)
	// 0 - 1 - 2 - 3, a simple chain: the source sits at level 1 and each
	// hop adds one, so the traversal depth equals 4.
	adj := buildAdjacency(t, lib, 4, [][2]int{{0, 1}, {1, 2}, {2, 3}})

	levels, depth, err := BFS(lib, adj, 0)
	if err != nil {
		t.Fatalf("BFS(...) = %v", err)
	}
	want := []int32{1, 2, 3, 4}
	for i, w := range want {
		if levels[i] != w {
			t.Errorf("levels[%d] = %d, want %d", i, levels[i], w)
		}
	}
	if depth != 4 {
		t.Errorf("depth = %d, want 4", depth)
	}
}

func TestBFSDisconnectedVertexStaysUnreached(t *testing.T) {
	lib := newTestLibrary(t)
	adj := buildAdjacency(t, lib, 3, [][2]int{{0, 1}})

	levels, depth, err := BFS(lib, adj, 0)
	if err != nil {
		t.Fatalf("BFS(...) = %v", err)
	}
	if levels[2] != 0 {
		t.Errorf("levels[2] = %d, want 0 for an unreachable vertex", levels[2])
	}
	if depth != 2 {
		t.Errorf("depth = %d, want 2", depth)
	}
}

func TestBFSRejectsNonSquareAdjacency(t *testing.T) {
	lib := newTestLibrary(t)
	m, err := spla.MakeMatrix(lib, 3, 4, spla.TypeBool)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := BFS(lib, m, 0); err == nil {
		t.Error("expected an error for a non-square adjacency matrix")
	}
}

func TestBFSRejectsOutOfRangeSource(t *testing.T) {
	lib := newTestLibrary(t)
	adj := buildAdjacency(t, lib, 3, nil)
	if _, _, err := BFS(lib, adj, 5); err == nil {
		t.Error("expected an error for an out-of-range source vertex")
	}
}
