package rabbitmq

import (
	"context"
	"time"
)

// Callback is the user-supplied processing function for message type T. It
// returns an error to signal failure; the error may be, or wrap at its
// immediate cause, a RetrySignal, RequeueSignal, or DiscardSignal to
// override the worker's default ExceptionHandlingStrategy for this one
// delivery.
type Callback[T any] func(ctx context.Context, message T) error

// WorkerConfig tunes a ProcessingWorker's retry policy. It is the explicit
// configuration record called for by Design Note "default parameter
// bundles" — there is no constructor overload sprawl, just documented
// defaults.
type WorkerConfig struct {
	// DefaultStrategy governs retry/requeue decisions for callback errors
	// that carry no structured QueuingSignalKind.
	DefaultStrategy ExceptionHandlingStrategy
	// InvokeRetryCount is the maximum number of callback invocations for one
	// delivery. Must be >= 1.
	InvokeRetryCount int
	// InvokeRetryWait is slept between invocations after the first. Honored
	// as a cancellable sleep.
	InvokeRetryWait time.Duration
}

// DefaultWorkerConfig returns a conservative default: requeue on
// unclassified failure, up to 3 attempts, 500ms between them.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		DefaultStrategy:  StrategyRequeue,
		InvokeRetryCount: 3,
		InvokeRetryWait:  500 * time.Millisecond,
	}
}

// ProcessingWorker is the per-message state machine from spec §4.G:
// deserialize, invoke the callback with retry, then resolve feedback.
//
// Two variants are exposed through constructors: NewSimpleProcessingWorker
// (one invocation, no retry — the default strategy still governs requeue)
// and NewAdvancedProcessingWorker (the full retry policy). Both share this
// same public contract.
type ProcessingWorker[T any] struct {
	serializer  Serializer
	callback    Callback[T]
	config      WorkerConfig
	rejection   RejectionHandler
	logger      Logger
	metrics     Metrics
	queueName   string
	virtualHost string
}

// WorkerDeps bundles a ProcessingWorker's collaborators so construction
// reads as one record instead of a long positional parameter list.
type WorkerDeps struct {
	Serializer  Serializer
	Rejection   RejectionHandler
	Logger      Logger
	Metrics     Metrics
	QueueName   string
	VirtualHost string
}

func (d WorkerDeps) normalize() WorkerDeps {
	if d.Serializer == nil {
		d.Serializer = NewJSONSerializer()
	}
	if d.Logger == nil {
		d.Logger = NopLogger{}
	}
	if d.Metrics == nil {
		d.Metrics = NopMetrics{}
	}
	return d
}

// NewAdvancedProcessingWorker builds a ProcessingWorker applying the full
// retry/requeue/discard policy of spec §4.G.
func NewAdvancedProcessingWorker[T any](callback Callback[T], config WorkerConfig, deps WorkerDeps) *ProcessingWorker[T] {
	deps = deps.normalize()
	if config.InvokeRetryCount < 1 {
		config.InvokeRetryCount = 1
	}
	return &ProcessingWorker[T]{
		serializer:  deps.Serializer,
		callback:    callback,
		config:      config,
		rejection:   deps.Rejection,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		queueName:   deps.QueueName,
		virtualHost: deps.VirtualHost,
	}
}

// NewSimpleProcessingWorker builds a ProcessingWorker that invokes the
// callback exactly once — no retry — while still honoring defaultStrategy
// for the requeue decision on failure.
func NewSimpleProcessingWorker[T any](callback Callback[T], defaultStrategy ExceptionHandlingStrategy, deps WorkerDeps) *ProcessingWorker[T] {
	return NewAdvancedProcessingWorker(callback, WorkerConfig{
		DefaultStrategy:  defaultStrategy,
		InvokeRetryCount: 1,
	}, deps)
}

// OnMessage implements the algorithm from spec §4.G. feedback must not have
// been resolved yet; OnMessage resolves it exactly once before returning,
// except when ctx is cancelled during the inter-attempt sleep, in which case
// it still resolves feedback (Nack requeue=true) per the documented edge
// case — "cancellation during the sleep gap aborts the loop and the worker
// nacks(requeue=true)".
func (w *ProcessingWorker[T]) OnMessage(ctx context.Context, rawBody []byte, feedback *FeedbackSender) {
	var message T
	if err := w.serializer.Deserialize(rawBody, &message); err != nil {
		w.metrics.IncDeserializationFailures(w.queueName)
		if w.rejection != nil {
			w.rejection.OnMessageRejection(ctx, rawBody, ReasonDeserializationFailed, w.queueName, w.virtualHost)
		}
		if err := feedback.Nack(false); err != nil {
			w.logger.Error("worker: nack after deserialization failure", F("error", err))
		}
		w.metrics.IncNacks(w.queueName, false)
		return
	}

	rawErrs, cancelled := w.invokeWithRetry(ctx, message)
	success := len(rawErrs) == 0

	if cancelled {
		if err := feedback.Nack(true); err != nil {
			w.logger.Error("worker: nack after cancellation", F("error", err))
		}
		w.metrics.IncNacks(w.queueName, true)
		return
	}

	if success {
		if err := feedback.Ack(); err != nil {
			w.logger.Error("worker: ack failed", F("error", err))
		}
		w.metrics.IncAcks(w.queueName)
		return
	}

	last := rawErrs[len(rawErrs)-1]
	if w.shouldRequeue(last) {
		if err := feedback.Nack(true); err != nil {
			w.logger.Error("worker: requeue nack failed", F("error", err))
		}
		w.metrics.IncNacks(w.queueName, true)
		return
	}

	if err := feedback.Nack(false); err != nil {
		w.logger.Error("worker: discard nack failed", F("error", err))
	}
	w.metrics.IncNacks(w.queueName, false)
	if w.rejection != nil {
		w.rejection.OnMessageRejection(ctx, rawBody, ReasonCallbackDiscarded, w.queueName, w.virtualHost)
	}
}

// invokeWithRetry runs the callback loop of spec §4.G step 2. It returns the
// accumulated errors (empty on success) and whether the loop was aborted by
// context cancellation during the inter-attempt sleep.
func (w *ProcessingWorker[T]) invokeWithRetry(ctx context.Context, message T) (errs []error, cancelled bool) {
	tryCount := 0

	for {
		if tryCount > 0 && w.config.InvokeRetryWait > 0 {
			select {
			case <-ctx.Done():
				return errs, true
			case <-time.After(w.config.InvokeRetryWait):
			}
		}

		tryCount++
		if tryCount > 1 {
			w.metrics.IncRetries(w.queueName)
		}
		start := time.Now()
		err := w.callback(ctx, message)
		w.metrics.ObserveCallbackDuration(w.queueName, time.Since(start).Seconds())

		if err == nil {
			return nil, false
		}

		errs = append(errs, err)
		w.logger.Debug("worker: callback attempt failed",
			F("queue", w.queueName),
			F("attempt", tryCount),
			F("error", (&CallbackError{Attempt: tryCount, Cause: err}).Error()),
		)

		if !w.shouldRetry(tryCount, err) {
			return errs, false
		}
	}
}

// shouldRetry implements spec §4.G's should_retry, classifying the raw error
// the callback returned (not any wrapper OnMessage itself adds).
//
// DefaultStrategy governs only the post-exhaustion resolution (see
// shouldRequeue) — it never shortens the retry budget. An unclassified
// error always retries up to InvokeRetryCount; only an explicit
// RequeueSignal or DiscardSignal cuts the loop short.
func (w *ProcessingWorker[T]) shouldRetry(tryCount int, last error) bool {
	if tryCount >= w.config.InvokeRetryCount {
		return false
	}

	kind, ok := classifySignal(last)
	if !ok {
		return true
	}

	switch kind {
	case RetrySignalKind:
		return true
	case DiscardSignalKind, RequeueSignalKind:
		return false
	default:
		return true
	}
}

// shouldRequeue implements spec §4.G's should_requeue.
func (w *ProcessingWorker[T]) shouldRequeue(last error) bool {
	kind, ok := classifySignal(last)
	if !ok {
		return w.config.DefaultStrategy == StrategyRequeue
	}

	switch kind {
	case RequeueSignalKind:
		return true
	case DiscardSignalKind:
		return false
	default:
		return w.config.DefaultStrategy == StrategyRequeue
	}
}
