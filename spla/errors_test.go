package spla

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := errf(ErrKindNoAlgorithm, "Dispatch", "no candidate")
	if !errors.Is(err, ErrNoAlgorithm) {
		t.Error("errors.Is must match the NoAlgorithm sentinel")
	}
	if errors.Is(err, ErrTypeMismatch) {
		t.Error("errors.Is must not match a different kind")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, ErrNoAlgorithm) {
		t.Error("errors.Is must match through fmt.Errorf wrapping")
	}
}

func TestErrorUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := newErr(ErrKindMemOpFailed, "copy", cause)
	if !errors.Is(err, cause) {
		t.Error("the wrapped cause must stay reachable via errors.Is")
	}
}

func TestExitCodes(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	a := ExitCode(errf(ErrKindDeviceNotPresent, "New", "none"))
	b := ExitCode(errf(ErrKindInvalidArgument, "New", "bad"))
	if a == 0 || b == 0 || a == b {
		t.Errorf("exit codes %d and %d must be distinct and non-zero", a, b)
	}
	// A non-taxonomy error maps onto the catch-all, still non-zero.
	if got := ExitCode(errors.New("plain")); got != 1+int(ErrKindError) {
		t.Errorf("ExitCode(plain error) = %d, want the catch-all code", got)
	}
}
