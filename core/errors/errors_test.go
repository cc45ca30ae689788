package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestSentinelMatchesKind(t *testing.T) {
	errLoanClosed := New(ErrInvalidState, "loan manager: loan not open")
	wrapped := fmt.Errorf("repay loan 7: %w", errLoanClosed)

	if !stderrors.Is(wrapped, errLoanClosed) {
		t.Fatalf("expected sentinel match")
	}
	if !stderrors.Is(wrapped, ErrInvalidState) {
		t.Fatalf("expected kind match")
	}
	if stderrors.Is(wrapped, ErrPermissionDenied) {
		t.Fatalf("unexpected kind match")
	}
	if Kind(wrapped) != ErrInvalidState {
		t.Fatalf("unexpected kind: %v", Kind(wrapped))
	}
	if Kind(stderrors.New("plain")) != nil {
		t.Fatalf("plain errors carry no kind")
	}
}
