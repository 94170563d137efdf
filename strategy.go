package rabbitmq

// ExceptionHandlingStrategy is the default policy for a ProcessingWorker: how
// to resolve a delivery whose callback error carries no structured signal
// (see QueuingSignalKind).
type ExceptionHandlingStrategy int

const (
	// StrategyRetry retries the callback up to the configured retry count
	// before giving up and nacking without requeue.
	StrategyRetry ExceptionHandlingStrategy = iota
	// StrategyRequeue retries the callback up to the configured retry count,
	// then nacks with requeue=true.
	StrategyRequeue
	// StrategyDiscard retries the callback up to the configured retry count,
	// then nacks with requeue=false, routing the payload to the
	// RejectionHandler.
	StrategyDiscard
	// StrategyNone leaves retry/requeue decisions entirely to structured
	// QueuingSignalKind errors; an unsignalled error is treated like
	// StrategyDiscard.
	StrategyNone
)

func (s ExceptionHandlingStrategy) String() string {
	switch s {
	case StrategyRetry:
		return "retry"
	case StrategyRequeue:
		return "requeue"
	case StrategyDiscard:
		return "discard"
	case StrategyNone:
		return "none"
	default:
		return "unknown"
	}
}
