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

// Package mtx loads the NIST Matrix Market coordinate format into spla host
// buffers. It is an external collaborator package: it never touches spla's
// internal block storage, only the public DataMatrix/DataVector handles.
package mtx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sparsekit/spla/spla"
)

// Matrix holds a parsed Matrix Market coordinate file: its declared shape
// and a DataMatrix ready to feed an Expression's DataWrite node.
type Matrix struct {
	Rows, Cols int
	Data       *spla.DataMatrix
}

// chunkSize is the number of coordinate lines handed to one parsing
// goroutine at a time. Large enough that per-goroutine overhead is
// negligible next to strconv parsing cost, small enough that a file with a
// handful of entries still sees more than one chunk when it has enough
// lines to bother splitting.
const chunkSize = 4096

// Read parses a Matrix Market coordinate-format stream into a Matrix. Only
// the "coordinate" object type is supported; "array" (dense) files are
// rejected since the rest of the package only ever wants entry lists.
// Pattern matrices (no value column) are filled with symbolicValue for
// every entry. The banner and size line are read sequentially since they
// gate how the remaining lines are even split into chunks; the coordinate
// lines themselves are parsed concurrently, one goroutine per chunk, via
// errgroup so the first malformed line anywhere in the file aborts the
// whole read.
func Read(r io.Reader, symbolicValue any) (*Matrix, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	symmetric, pattern, err := readBanner(sc)
	if err != nil {
		return nil, err
	}
	rows, cols, nnz, err := readSize(sc)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, nnz)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mtx: reading coordinate lines: %w", err)
	}

	entries, err := parseLines(lines, pattern, symbolicValue)
	if err != nil {
		return nil, err
	}
	if symmetric {
		entries = mirror(entries)
	}

	rowIdx := make([]int, len(entries))
	colIdx := make([]int, len(entries))
	vals := make([]any, len(entries))
	for i, e := range entries {
		rowIdx[i], colIdx[i], vals[i] = e.row, e.col, e.val
	}
	dm, err := spla.MakeDataMatrix(rowIdx, colIdx, vals, len(entries), nil)
	if err != nil {
		return nil, err
	}
	return &Matrix{Rows: rows, Cols: cols, Data: dm}, nil
}

type entry struct {
	row, col int
	val      any
}

// parseLines fans coordinate lines out across a bounded worker pool via
// errgroup, one goroutine per chunkSize-line slice, and reassembles results
// in input order so downstream block assignment stays deterministic.
func parseLines(lines []string, pattern bool, symbolicValue any) ([]entry, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	nChunks := (len(lines) + chunkSize - 1) / chunkSize
	results := make([][]entry, nChunks)

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c := 0; c < nChunks; c++ {
		c := c
		start := c * chunkSize
		end := start + chunkSize
		if end > len(lines) {
			end = len(lines)
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out := make([]entry, 0, end-start)
			for i := start; i < end; i++ {
				e, err := parseLine(lines[i], pattern, symbolicValue)
				if err != nil {
					return fmt.Errorf("mtx: line %d: %w", i+1, err)
				}
				out = append(out, e)
			}
			results[c] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, chunk := range results {
		total += len(chunk)
	}
	merged := make([]entry, 0, total)
	for _, chunk := range results {
		merged = append(merged, chunk...)
	}
	return merged, nil
}

func parseLine(line string, pattern bool, symbolicValue any) (entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return entry{}, fmt.Errorf("expected at least 2 fields, got %d", len(fields))
	}
	row, err := strconv.Atoi(fields[0])
	if err != nil {
		return entry{}, fmt.Errorf("row index: %w", err)
	}
	col, err := strconv.Atoi(fields[1])
	if err != nil {
		return entry{}, fmt.Errorf("col index: %w", err)
	}
	e := entry{row: row - 1, col: col - 1}
	if pattern {
		e.val = symbolicValue
		return e, nil
	}
	if len(fields) < 3 {
		return entry{}, fmt.Errorf("expected a value field, got none")
	}
	v, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return entry{}, fmt.Errorf("value: %w", err)
	}
	e.val = v
	return e, nil
}

// mirror duplicates every off-diagonal entry to its transpose position, per
// the Matrix Market "symmetric" qualifier: only the lower (or upper)
// triangle is stored on disk.
func mirror(entries []entry) []entry {
	out := make([]entry, 0, len(entries)*2)
	for _, e := range entries {
		out = append(out, e)
		if e.row != e.col {
			out = append(out, entry{row: e.col, col: e.row, val: e.val})
		}
	}
	return out
}

func readBanner(sc *bufio.Scanner) (symmetric, pattern bool, err error) {
	if !sc.Scan() {
		return false, false, fmt.Errorf("mtx: empty file, missing %%%%MatrixMarket banner")
	}
	banner := strings.ToLower(strings.TrimSpace(sc.Text()))
	if !strings.HasPrefix(banner, "%%matrixmarket") {
		return false, false, fmt.Errorf("mtx: missing %%%%MatrixMarket banner, got %q", sc.Text())
	}
	fields := strings.Fields(banner)
	if len(fields) < 5 {
		return false, false, fmt.Errorf("mtx: malformed banner %q", banner)
	}
	if fields[2] != "coordinate" {
		return false, false, fmt.Errorf("mtx: unsupported object %q, only coordinate is supported", fields[2])
	}
	pattern = fields[3] == "pattern"
	symmetric = fields[4] == "symmetric" || fields[4] == "hermitian"
	return symmetric, pattern, nil
}

func readSize(sc *bufio.Scanner) (rows, cols, nnz int, err error) {
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return 0, 0, 0, fmt.Errorf("mtx: malformed size line %q, want 3 fields", line)
		}
		rows, err = strconv.Atoi(fields[0])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("mtx: size line rows: %w", err)
		}
		cols, err = strconv.Atoi(fields[1])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("mtx: size line cols: %w", err)
		}
		nnz, err = strconv.Atoi(fields[2])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("mtx: size line nnz: %w", err)
		}
		return rows, cols, nnz, nil
	}
	if err := sc.Err(); err != nil {
		return 0, 0, 0, fmt.Errorf("mtx: reading size line: %w", err)
	}
	return 0, 0, 0, fmt.Errorf("mtx: missing size line")
}
