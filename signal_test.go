package rabbitmq

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifySignal_TopLevel(t *testing.T) {
	kind, ok := classifySignal(NewRetrySignal(errors.New("boom")))
	if !ok || kind != RetrySignalKind {
		t.Fatalf("expected RetrySignalKind, got kind=%v ok=%v", kind, ok)
	}
}

func TestClassifySignal_ImmediateCause(t *testing.T) {
	wrapped := fmt.Errorf("handler failed: %w", NewDiscardSignal(errors.New("bad input")))
	kind, ok := classifySignal(wrapped)
	if !ok || kind != DiscardSignalKind {
		t.Fatalf("expected DiscardSignalKind from immediate cause, got kind=%v ok=%v", kind, ok)
	}
}

func TestClassifySignal_TwoLevelsDeepNotSeen(t *testing.T) {
	// Only the top-level error and its immediate cause are inspected — a
	// signal buried two levels down must not be found.
	inner := NewRequeueSignal(errors.New("root cause"))
	middle := fmt.Errorf("middle: %w", inner)
	outer := fmt.Errorf("outer: %w", middle)

	_, ok := classifySignal(outer)
	if ok {
		t.Fatal("expected classifySignal to miss a signal two unwraps deep")
	}
}

func TestClassifySignal_NoSignal(t *testing.T) {
	_, ok := classifySignal(errors.New("plain error"))
	if ok {
		t.Fatal("expected no classification for a plain error")
	}
	_, ok = classifySignal(nil)
	if ok {
		t.Fatal("expected no classification for nil")
	}
}
