package rabbitmq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type numMsg struct {
	N int `json:"n"`
}

func newTestFeedback() (*FeedbackSender, *fakeAcknowledger) {
	ack := &fakeAcknowledger{}
	return NewFeedbackSender(ack, 1, "nums", "/"), ack
}

type recordingRejection struct {
	calls []rejectionCall
}

type rejectionCall struct {
	body   []byte
	reason RejectionReason
}

func (r *recordingRejection) OnMessageRejection(_ context.Context, body []byte, reason RejectionReason, _, _ string) {
	r.calls = append(r.calls, rejectionCall{body: append([]byte(nil), body...), reason: reason})
}

// S1 — happy path: callback succeeds, expect one ack and no nacks.
func TestProcessingWorker_HappyPath(t *testing.T) {
	var invocations atomic.Int32
	w := NewAdvancedProcessingWorker(
		func(ctx context.Context, m numMsg) error {
			invocations.Add(1)
			return nil
		},
		WorkerConfig{DefaultStrategy: StrategyRequeue, InvokeRetryCount: 1},
		WorkerDeps{QueueName: "nums"},
	)

	fb, ack := newTestFeedback()
	w.OnMessage(context.Background(), []byte(`{"n":1}`), fb)

	if invocations.Load() != 1 {
		t.Fatalf("expected 1 invocation, got %d", invocations.Load())
	}
	if len(ack.acks) != 1 || len(ack.nacks) != 0 {
		t.Fatalf("expected 1 ack / 0 nacks, got acks=%v nacks=%v", ack.acks, ack.nacks)
	}
}

// S2 — retry then succeed: RetrySignal on first call, success on second.
func TestProcessingWorker_RetryThenSucceed(t *testing.T) {
	var invocations atomic.Int32
	w := NewAdvancedProcessingWorker(
		func(ctx context.Context, m numMsg) error {
			n := invocations.Add(1)
			if n == 1 {
				return NewRetrySignal(errors.New("transient"))
			}
			return nil
		},
		WorkerConfig{DefaultStrategy: StrategyRequeue, InvokeRetryCount: 3, InvokeRetryWait: 10 * time.Millisecond},
		WorkerDeps{QueueName: "nums"},
	)

	fb, ack := newTestFeedback()
	start := time.Now()
	w.OnMessage(context.Background(), []byte(`{"n":2}`), fb)
	elapsed := time.Since(start)

	if invocations.Load() != 2 {
		t.Fatalf("expected exactly 2 invocations, got %d", invocations.Load())
	}
	if len(ack.acks) != 1 {
		t.Fatalf("expected 1 ack, got %v", ack.acks)
	}
	if elapsed < 10*time.Millisecond {
		t.Fatalf("expected elapsed >= 10ms, got %s", elapsed)
	}
}

// S3 — retry exhausted, falls through to requeue under the default strategy.
func TestProcessingWorker_RetryExhaustedRequeues(t *testing.T) {
	var invocations atomic.Int32
	w := NewAdvancedProcessingWorker(
		func(ctx context.Context, m numMsg) error {
			invocations.Add(1)
			return errors.New("always fails")
		},
		WorkerConfig{DefaultStrategy: StrategyRequeue, InvokeRetryCount: 2},
		WorkerDeps{QueueName: "nums"},
	)

	fb, ack := newTestFeedback()
	w.OnMessage(context.Background(), []byte(`{"n":3}`), fb)

	if invocations.Load() != 2 {
		t.Fatalf("expected exactly 2 invocations, got %d", invocations.Load())
	}
	if len(ack.nacks) != 1 || !ack.nacks[0].requeue {
		t.Fatalf("expected 1 requeuing nack, got %v", ack.nacks)
	}
	if len(ack.acks) != 0 {
		t.Fatalf("expected 0 acks, got %v", ack.acks)
	}
}

// S4 — DiscardSignal short-circuits retry even with a generous retry budget.
func TestProcessingWorker_DiscardSignalShortCircuits(t *testing.T) {
	var invocations atomic.Int32
	rej := &recordingRejection{}
	w := NewAdvancedProcessingWorker(
		func(ctx context.Context, m numMsg) error {
			invocations.Add(1)
			return NewDiscardSignal(errors.New("poison message"))
		},
		WorkerConfig{DefaultStrategy: StrategyRetry, InvokeRetryCount: 5},
		WorkerDeps{QueueName: "nums", Rejection: rej},
	)

	fb, ack := newTestFeedback()
	body := []byte(`{"n":4}`)
	w.OnMessage(context.Background(), body, fb)

	if invocations.Load() != 1 {
		t.Fatalf("expected exactly 1 invocation, got %d", invocations.Load())
	}
	if len(ack.nacks) != 1 || ack.nacks[0].requeue {
		t.Fatalf("expected 1 non-requeuing nack, got %v", ack.nacks)
	}
	if len(rej.calls) != 1 || rej.calls[0].reason != ReasonCallbackDiscarded {
		t.Fatalf("expected 1 rejection call with ReasonCallbackDiscarded, got %v", rej.calls)
	}
}

// S5 — deserialization failure never invokes the callback.
func TestProcessingWorker_DeserializationFailure(t *testing.T) {
	var invocations atomic.Int32
	rej := &recordingRejection{}
	w := NewAdvancedProcessingWorker(
		func(ctx context.Context, m struct {
			A int `json:"a"`
		}) error {
			invocations.Add(1)
			return nil
		},
		DefaultWorkerConfig(),
		WorkerDeps{QueueName: "nums", Rejection: rej},
	)

	fb, ack := newTestFeedback()
	body := []byte(`not json`)
	w.OnMessage(context.Background(), body, fb)

	if invocations.Load() != 0 {
		t.Fatalf("expected 0 invocations, got %d", invocations.Load())
	}
	if len(ack.nacks) != 1 || ack.nacks[0].requeue {
		t.Fatalf("expected 1 non-requeuing nack, got %v", ack.nacks)
	}
	if len(rej.calls) != 1 || rej.calls[0].reason != ReasonDeserializationFailed {
		t.Fatalf("expected 1 rejection call with ReasonDeserializationFailed, got %v", rej.calls)
	}
}

// Cancellation mid-sleep aborts the loop and requeues without a further
// invocation.
func TestProcessingWorker_CancellationDuringSleepRequeues(t *testing.T) {
	var invocations atomic.Int32
	w := NewAdvancedProcessingWorker(
		func(ctx context.Context, m numMsg) error {
			invocations.Add(1)
			return errors.New("fail")
		},
		WorkerConfig{DefaultStrategy: StrategyRetry, InvokeRetryCount: 5, InvokeRetryWait: 50 * time.Millisecond},
		WorkerDeps{QueueName: "nums"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	fb, ack := newTestFeedback()

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	w.OnMessage(ctx, []byte(`{"n":5}`), fb)

	if invocations.Load() != 1 {
		t.Fatalf("expected exactly 1 invocation before cancellation, got %d", invocations.Load())
	}
	if len(ack.nacks) != 1 || !ack.nacks[0].requeue {
		t.Fatalf("expected 1 requeuing nack from cancellation, got %v", ack.nacks)
	}
}

// RequeueSignal takes precedence over a discard default strategy.
func TestProcessingWorker_RequeueSignalOverridesDiscardDefault(t *testing.T) {
	w := NewAdvancedProcessingWorker(
		func(ctx context.Context, m numMsg) error {
			return NewRequeueSignal(errors.New("needs requeue"))
		},
		WorkerConfig{DefaultStrategy: StrategyDiscard, InvokeRetryCount: 3},
		WorkerDeps{QueueName: "nums"},
	)

	fb, ack := newTestFeedback()
	w.OnMessage(context.Background(), []byte(`{"n":6}`), fb)

	if len(ack.nacks) != 1 || !ack.nacks[0].requeue {
		t.Fatalf("expected requeue despite discard default strategy, got %v", ack.nacks)
	}
}

func TestNewSimpleProcessingWorker_NoRetry(t *testing.T) {
	var invocations atomic.Int32
	w := NewSimpleProcessingWorker(
		func(ctx context.Context, m numMsg) error {
			invocations.Add(1)
			return NewRetrySignal(errors.New("would normally retry"))
		},
		StrategyRequeue,
		WorkerDeps{QueueName: "nums"},
	)

	fb, ack := newTestFeedback()
	w.OnMessage(context.Background(), []byte(`{"n":7}`), fb)

	if invocations.Load() != 1 {
		t.Fatalf("simple worker must invoke exactly once, got %d", invocations.Load())
	}
	if len(ack.nacks) != 1 || !ack.nacks[0].requeue {
		t.Fatalf("expected requeue per default strategy, got %v", ack.nacks)
	}
}
