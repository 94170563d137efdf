package rabbitmq

import "context"

// RejectionReason classifies why a RejectionHandler was invoked.
type RejectionReason int

const (
	// ReasonDeserializationFailed means the body could not be decoded into
	// the worker's target type.
	ReasonDeserializationFailed RejectionReason = iota
	// ReasonCallbackDiscarded means the processing worker's retry/requeue
	// policy concluded the message must be permanently discarded.
	ReasonCallbackDiscarded
)

func (r RejectionReason) String() string {
	switch r {
	case ReasonDeserializationFailed:
		return "deserialization_failed"
	case ReasonCallbackDiscarded:
		return "callback_discarded"
	default:
		return "unknown"
	}
}

// RejectionHandler is the terminal sink for payloads the core will never
// redeliver: undeserializable bodies and messages a ProcessingWorker
// concluded must be permanently discarded. For a callback discard it is
// called after the FeedbackSender has been resolved with Nack(false); for a
// deserialization failure it is called just before that Nack(false). Either
// way the delivery is nacked without requeue — a RejectionHandler failure
// never changes the broker-side outcome.
type RejectionHandler interface {
	OnMessageRejection(ctx context.Context, rawBody []byte, reason RejectionReason, queueName, virtualHost string)
}

// publisher is the narrow surface ExchangeRejectionHandler needs from a
// QueueClient-owned Publisher, so it can be constructed independently of the
// concrete broker connection in tests.
type publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// ExchangeRejectionHandler is the default RejectionHandler: it republishes
// the raw body to a per-queue rejection exchange derived from the original
// queue name (queueName + ".rejected"). If that publish fails it logs and
// swallows the error — the delivery is nacked without requeue regardless of
// whether this publish succeeds.
type ExchangeRejectionHandler struct {
	pub    publisher
	logger Logger
}

// NewExchangeRejectionHandler builds the default RejectionHandler, publishing
// through pub. A nil logger uses NopLogger.
func NewExchangeRejectionHandler(pub publisher, logger Logger) *ExchangeRejectionHandler {
	if logger == nil {
		logger = NopLogger{}
	}
	return &ExchangeRejectionHandler{pub: pub, logger: logger}
}

// RejectionExchangeName derives the rejection exchange name for queueName.
func RejectionExchangeName(queueName string) string {
	return queueName + ".rejected"
}

// OnMessageRejection implements RejectionHandler.
func (h *ExchangeRejectionHandler) OnMessageRejection(ctx context.Context, rawBody []byte, reason RejectionReason, queueName, virtualHost string) {
	exchange := RejectionExchangeName(queueName)
	if err := h.pub.Publish(ctx, exchange, queueName, rawBody); err != nil {
		h.logger.Warn("rejection handler: failed to republish rejected message",
			F("queue", queueName),
			F("virtual_host", virtualHost),
			F("reason", reason.String()),
			F("error", err),
		)
		return
	}
	h.logger.Info("rejected message routed to rejection exchange",
		F("queue", queueName),
		F("exchange", exchange),
		F("reason", reason.String()),
	)
}

var _ RejectionHandler = (*ExchangeRejectionHandler)(nil)

// MultiRejectionHandler fans a rejection out to every handler in order. It is
// used to compose the default ExchangeRejectionHandler with a durable sink
// such as pgaudit.PostgresRejectionHandler.
type MultiRejectionHandler struct {
	Handlers []RejectionHandler
}

// NewMultiRejectionHandler builds a MultiRejectionHandler over handlers.
func NewMultiRejectionHandler(handlers ...RejectionHandler) *MultiRejectionHandler {
	return &MultiRejectionHandler{Handlers: handlers}
}

// OnMessageRejection implements RejectionHandler, calling every handler in
// order regardless of earlier failures.
func (m *MultiRejectionHandler) OnMessageRejection(ctx context.Context, rawBody []byte, reason RejectionReason, queueName, virtualHost string) {
	for _, h := range m.Handlers {
		h.OnMessageRejection(ctx, rawBody, reason, queueName, virtualHost)
	}
}

var _ RejectionHandler = (*MultiRejectionHandler)(nil)
