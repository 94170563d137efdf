package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeKind names the AMQP exchange types topology declarations accept.
type ExchangeKind string

const (
	ExchangeTopic   ExchangeKind = "topic"
	ExchangeDirect  ExchangeKind = "direct"
	ExchangeFanout  ExchangeKind = "fanout"
	ExchangeHeaders ExchangeKind = "headers"
)

// TopologyConfig describes the exchange, queue and binding a QueueClient
// should ensure exist before consuming or publishing. The zero value for
// RoutingKey binds with the empty key, appropriate for fanout exchanges.
type TopologyConfig struct {
	ExchangeName string
	ExchangeKind ExchangeKind
	QueueName    string
	RoutingKey   string

	// Durable governs both the exchange and the queue. The library default
	// is true — messages survive a broker restart.
	Durable bool
	// QueueArgs is passed verbatim to QueueDeclare, e.g. for
	// x-dead-letter-exchange or x-message-ttl.
	QueueArgs amqp.Table
}

// DefaultTopologyConfig returns a durable topic exchange bound to queueName
// with queueName itself as the routing key — the common one-exchange,
// one-queue, topic-routed setup.
func DefaultTopologyConfig(exchangeName, queueName string) TopologyConfig {
	return TopologyConfig{
		ExchangeName: exchangeName,
		ExchangeKind: ExchangeTopic,
		QueueName:    queueName,
		RoutingKey:   queueName,
		Durable:      true,
	}
}

// DeclareTopology declares cfg's exchange and queue and binds them. It is
// idempotent: redeclaring identical topology is a no-op on the broker side.
func DeclareTopology(ch Channel, cfg TopologyConfig) error {
	kind := string(cfg.ExchangeKind)
	if kind == "" {
		kind = string(ExchangeTopic)
	}

	if err := ch.ExchangeDeclare(cfg.ExchangeName, kind, cfg.Durable, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare exchange %q: %w", cfg.ExchangeName, err)
	}

	if _, err := ch.QueueDeclare(cfg.QueueName, cfg.Durable, false, false, false, cfg.QueueArgs); err != nil {
		return fmt.Errorf("rabbitmq: declare queue %q: %w", cfg.QueueName, err)
	}

	if err := ch.QueueBind(cfg.QueueName, cfg.RoutingKey, cfg.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind queue %q to exchange %q: %w", cfg.QueueName, cfg.ExchangeName, err)
	}

	return nil
}

// PurgeQueue removes all ready messages from a queue and reports how many
// were purged.
func PurgeQueue(ch Channel, queueName string) (int, error) {
	n, err := ch.QueuePurge(queueName, false)
	if err != nil {
		return 0, fmt.Errorf("rabbitmq: purge queue %q: %w", queueName, err)
	}
	return n, nil
}

// DeleteQueue removes a queue outright. ifUnused and ifEmpty guard against
// accidentally deleting a queue still in active use.
func DeleteQueue(ch Channel, queueName string, ifUnused, ifEmpty bool) (int, error) {
	n, err := ch.QueueDelete(queueName, ifUnused, ifEmpty, false)
	if err != nil {
		return 0, fmt.Errorf("rabbitmq: delete queue %q: %w", queueName, err)
	}
	return n, nil
}

// QueueDepth returns the broker-reported ready message count for queueName
// via a passive declare — the same probe QueueConsumer's scaling loop uses.
func QueueDepth(ctx context.Context, pool *ConnectionPool, queueName string) (int, error) {
	handle, err := pool.GetConnection(ctx)
	if err != nil {
		return 0, err
	}
	defer handle.Release()

	ch, err := handle.CreateChannel()
	if err != nil {
		return 0, fmt.Errorf("rabbitmq: queue depth: open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(queueName, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("rabbitmq: queue depth: passive declare %q: %w", queueName, err)
	}
	return q.Messages, nil
}
