// Package pgaudit implements a rabbitmq.RejectionHandler that writes a
// durable audit record to Postgres for every rejected delivery, independent
// of the default rejection-exchange republish.
package pgaudit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dbolly/rabbitmq-abstraction"
)

// PostgresRejectionHandler records rejected deliveries into a
// rabbitmq_rejections table. The delivery is nacked without requeue whether
// or not the insert succeeds, so a write failure here only loses an audit
// record, never the broker-side outcome.
type PostgresRejectionHandler struct {
	pool   *pgxpool.Pool
	logger rabbitmq.Logger
}

// New builds a PostgresRejectionHandler against pool. A nil logger uses
// rabbitmq.NopLogger.
func New(pool *pgxpool.Pool, logger rabbitmq.Logger) *PostgresRejectionHandler {
	if logger == nil {
		logger = rabbitmq.NopLogger{}
	}
	return &PostgresRejectionHandler{pool: pool, logger: logger}
}

// Schema is the DDL PostgresRejectionHandler expects to already exist. It is
// exposed so callers can fold it into their own migrations rather than have
// this package run DDL implicitly.
const Schema = `
CREATE TABLE IF NOT EXISTS rabbitmq_rejections (
	id BIGSERIAL PRIMARY KEY,
	queue_name TEXT NOT NULL,
	virtual_host TEXT NOT NULL,
	reason TEXT NOT NULL,
	body BYTEA NOT NULL,
	rejected_at TIMESTAMPTZ NOT NULL
)`

// OnMessageRejection implements rabbitmq.RejectionHandler.
func (h *PostgresRejectionHandler) OnMessageRejection(ctx context.Context, rawBody []byte, reason rabbitmq.RejectionReason, queueName, virtualHost string) {
	const query = `
		INSERT INTO rabbitmq_rejections (queue_name, virtual_host, reason, body, rejected_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := h.pool.Exec(ctx, query, queueName, virtualHost, reason.String(), rawBody, time.Now().UTC())
	if err != nil {
		h.logger.Warn("pgaudit: failed to record rejection",
			rabbitmq.F("queue", queueName),
			rabbitmq.F("virtual_host", virtualHost),
			rabbitmq.F("reason", reason.String()),
			rabbitmq.F("error", err),
		)
		return
	}
	h.logger.Debug("pgaudit: recorded rejection",
		rabbitmq.F("queue", queueName),
		rabbitmq.F("reason", reason.String()),
	)
}

var _ rabbitmq.RejectionHandler = (*PostgresRejectionHandler)(nil)
