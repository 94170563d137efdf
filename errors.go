package rabbitmq

import (
	"errors"
	"fmt"
)

// ErrPoolDisposed is returned by a ConnectionPool once Dispose has been
// called; every further call is terminal.
var ErrPoolDisposed = errors.New("rabbitmq: connection pool disposed")

// ErrBrokerUnreachable is returned when the connection pool could not obtain
// a healthy connection after bounded exponential backoff.
var ErrBrokerUnreachable = errors.New("rabbitmq: broker unreachable")

// ErrFeedbackAlreadySent is a programmer error: a FeedbackSender resolved a
// second time. It is never recovered from silently.
var ErrFeedbackAlreadySent = errors.New("rabbitmq: feedback already sent for this delivery")

// ErrConsumerNotRunning is returned by operations that require a running
// QueueConsumer.
var ErrConsumerNotRunning = errors.New("rabbitmq: consumer is not running")

// DeserializationError wraps the underlying codec failure together with the
// raw body and target type name, so a RejectionHandler has enough context to
// log or persist a useful record.
type DeserializationError struct {
	TargetType string
	Body       []byte
	Cause      error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("rabbitmq: deserialize into %s: %v", e.TargetType, e.Cause)
}

func (e *DeserializationError) Unwrap() error {
	return e.Cause
}

// CallbackError wraps an error returned by the user-supplied processing
// callback, tagging which attempt produced it. It is never propagated past
// the ProcessingWorker — it only ever surfaces through logging.
type CallbackError struct {
	Attempt int
	Cause   error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("rabbitmq: callback attempt %d failed: %v", e.Attempt, e.Cause)
}

func (e *CallbackError) Unwrap() error {
	return e.Cause
}
