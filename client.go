package rabbitmq

import (
	"context"
	"time"
)

// poolPublisher adapts the package-level Publish helper to the narrow
// publisher interface ExchangeRejectionHandler depends on.
type poolPublisher struct {
	pool *ConnectionPool
}

func (p poolPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return Publish(ctx, p.pool, OutgoingMessage{
		Exchange:    exchange,
		RoutingKey:  routingKey,
		Body:        body,
		ContentType: "application/octet-stream",
	})
}

var _ publisher = poolPublisher{}

// ClientConfig bundles everything QueueClient needs to declare topology and
// build a QueueConsumer for one queue.
type ClientConfig struct {
	Pool PoolConfig

	Topology TopologyConfig

	Consumer ConsumerConfig

	// CountManager decides target scale. Defaults to DefaultConsumerCountManager
	// with DefaultConsumerCountManagerConfig if nil.
	CountManager ConsumerCountManager

	// Rejection is not read by QueueClient: neither Consumer nor any other
	// method passes it to the worker, and no default is filled in. The
	// handler a ProcessingWorker uses is the one set in its WorkerDeps (see
	// DefaultRejectionHandler).
	Rejection RejectionHandler

	Logger  Logger
	Metrics Metrics
}

// QueueClient is the Queue Client facade from spec §4.H: the single entry
// point an application wires up to declare topology, own a connection pool,
// and run a QueueConsumer against a caller-supplied Worker.
type QueueClient struct {
	pool       *ConnectionPool
	serializer Serializer
	logger     Logger
	metrics    Metrics
	cfg        ClientConfig

	consumer *QueueConsumer
}

// NewQueueClient builds a QueueClient and its underlying ConnectionPool.
// Construction is infallible and does no broker I/O: topology is declared
// by DeclareTopology (or Start), and the consumer is built lazily by
// Consumer.
func NewQueueClient(cfg ClientConfig, logger Logger, metrics Metrics) *QueueClient {
	if logger == nil {
		logger = NopLogger{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	pool := NewConnectionPool(cfg.Pool, logger)
	return &QueueClient{
		pool:       pool,
		serializer: NewJSONSerializer(),
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// Pool exposes the underlying ConnectionPool, e.g. for Publish/PublishBatch
// calls against exchanges this client's topology declared.
func (c *QueueClient) Pool() *ConnectionPool { return c.pool }

// Serializer returns the client's body codec, used by ProcessingWorker
// construction.
func (c *QueueClient) Serializer() Serializer { return c.serializer }

// DeclareTopology ensures the configured exchange, queue and binding exist.
// It is safe to call more than once; the broker treats matching redeclares
// as a no-op.
func (c *QueueClient) DeclareTopology(ctx context.Context) error {
	handle, err := c.pool.GetConnection(ctx)
	if err != nil {
		return err
	}
	defer handle.Release()

	ch, err := handle.CreateChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return DeclareTopology(ch, c.cfg.Topology)
}

// Consumer builds (on first call) the QueueConsumer bound to worker, applying
// the client's configured ConsumerCountManager, logger and metrics. It does
// not apply a rejection handler; worker carries its own. Subsequent calls
// return the same instance.
func (c *QueueClient) Consumer(worker Worker) *QueueConsumer {
	if c.consumer != nil {
		return c.consumer
	}

	countManager := c.cfg.CountManager
	if countManager == nil {
		countManager = NewDefaultConsumerCountManager(DefaultConsumerCountManagerConfig())
	}

	consumerCfg := c.cfg.Consumer
	if consumerCfg.QueueName == "" {
		consumerCfg.QueueName = c.cfg.Topology.QueueName
	}

	c.consumer = NewQueueConsumer(c.pool, worker, countManager, consumerCfg, c.logger, c.metrics)
	return c.consumer
}

// DefaultRejectionHandler builds the default ExchangeRejectionHandler bound
// to this client's pool, for callers constructing a ProcessingWorker's
// WorkerDeps directly instead of going through Consumer.
func (c *QueueClient) DefaultRejectionHandler() *ExchangeRejectionHandler {
	return NewExchangeRejectionHandler(poolPublisher{pool: c.pool}, c.logger)
}

// Start declares topology, then starts the bound consumer. Consumer must
// have been called at least once beforehand.
func (c *QueueClient) Start(ctx context.Context) error {
	if err := c.DeclareTopology(ctx); err != nil {
		return err
	}
	if c.consumer == nil {
		return ErrConsumerNotRunning
	}
	return c.consumer.Start(ctx)
}

// Stop stops the bound consumer (if any) and disposes the connection pool.
func (c *QueueClient) Stop(grace time.Duration) error {
	var stopErr error
	if c.consumer != nil && c.consumer.IsRunning() {
		stopErr = c.consumer.Stop(grace)
	}
	if disposeErr := c.pool.Dispose(); disposeErr != nil && stopErr == nil {
		stopErr = disposeErr
	}
	return stopErr
}
