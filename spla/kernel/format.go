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

package kernel

import (
	"bytes"
	"fmt"

	"github.com/klauspost/asmfmt"
	"golang.org/x/tools/imports"
)

// TraceLine renders a single ProfileTime trace record for a dispatched task
// as a tiny Plan9-assembly-shaped snippet and runs it through asmfmt to
// normalize it the way a generated assembly wrapper would be normalized.
// The accelerator kernel itself stays opaque; this only formats the *log
// line* describing which kernel ran, on which device, for how long — useful
// when a profiling tool wants to diff two runs' traces textually.
func TraceLine(op string, device int, nanos int64) (string, error) {
	raw := fmt.Sprintf("TEXT ·%s(SB), NOSPLIT, $0-0\n\tMOVQ $%d, device\n\tMOVQ $%d, nanos\n\tRET\n", op, device, nanos)
	out, err := asmfmt.Format(bytes.NewReader([]byte(raw)))
	if err != nil {
		return "", fmt.Errorf("kernel: format trace line: %w", err)
	}
	return string(out), nil
}

// GeneratedDispatchStub renders a tiny, import-clean Go source snippet
// documenting how a user-registered operator's opaque source fragment maps
// onto the dispatch table (a known built-in name, or "declines with
// NotImplemented"). The catalogue attaches this to a custom Operator at
// MakeBinary/MakeUnary/MakeSelect time purely as a diagnostic the library
// logger can print; it is never compiled or executed. Routed through
// golang.org/x/tools/imports for go/packages-aware import fixing, narrowed
// here to one throwaway function body with no imports to fix.
func GeneratedDispatchStub(opName, kind, source string) (string, error) {
	resolved := "declines with ErrNotImplemented"
	if isBuiltinSource(source) {
		resolved = fmt.Sprintf("native Go callable %q", source)
	}
	raw := fmt.Sprintf(
		"package dispatchstub\n\n// %s is a %s operator over source %q: %s.\nfunc %s() {}\n",
		opName, kind, source, resolved, stubFuncName(opName),
	)
	out, err := imports.Process("dispatch_stub.go", []byte(raw), nil)
	if err != nil {
		return "", fmt.Errorf("kernel: format dispatch stub for %q: %w", opName, err)
	}
	return string(out), nil
}

func isBuiltinSource(source string) bool {
	switch source {
	case OpPlus, OpTimes, OpMin, OpMax, OpLand, OpLor, OpEqZero, OpNeqZero, OpIdentity:
		return true
	default:
		return false
	}
}

// stubFuncName turns an arbitrary operator name into a valid Go identifier
// for GeneratedDispatchStub's throwaway function, since names like "== 0" or
// "!= 0" are valid opaque source fragments but not valid Go identifiers.
func stubFuncName(name string) string {
	out := make([]rune, 0, len(name)+1)
	out = append(out, 'O', 'p')
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
