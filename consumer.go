package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Worker is the narrow interface QueueConsumer needs from a processing
// worker. *ProcessingWorker[T] satisfies it for any T.
type Worker interface {
	OnMessage(ctx context.Context, rawBody []byte, feedback *FeedbackSender)
}

// subscriptionState is the state machine from spec §4.F:
// Starting -> Running -> Draining -> Closed.
type subscriptionState int32

const (
	subStarting subscriptionState = iota
	subRunning
	subDraining
	subClosed
)

const subscriptionPrefetch = 1

type subscription struct {
	id      uint64
	tag     string
	channel Channel
	state   atomic.Int32
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *subscription) getState() subscriptionState {
	return subscriptionState(s.state.Load())
}

func (s *subscription) setState(v subscriptionState) {
	s.state.Store(int32(v))
}

// ConsumerConfig configures a QueueConsumer.
type ConsumerConfig struct {
	QueueName       string
	VirtualHost     string
	ScalingInterval time.Duration
}

// QueueConsumer is the per-queue scaling loop from spec §4.F: it spawns and
// retires subscription workers against a target scale decided by a
// ConsumerCountManager, and owns one channel per active subscription.
type QueueConsumer struct {
	pool         *ConnectionPool
	worker       Worker
	countManager ConsumerCountManager
	logger       Logger
	metrics      Metrics

	queueName       string
	virtualHost     string
	scalingInterval time.Duration

	mu      sync.Mutex
	subs    map[uint64]*subscription
	nextID  uint64
	running bool
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
}

// NewQueueConsumer builds a QueueConsumer. Construction is total and
// infallible — no broker I/O happens until Start is called.
func NewQueueConsumer(pool *ConnectionPool, worker Worker, countManager ConsumerCountManager, cfg ConsumerConfig, logger Logger, metrics Metrics) *QueueConsumer {
	if logger == nil {
		logger = NopLogger{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if cfg.ScalingInterval <= 0 {
		cfg.ScalingInterval = 15 * time.Second
	}
	return &QueueConsumer{
		pool:            pool,
		worker:          worker,
		countManager:    countManager,
		logger:          logger,
		metrics:         metrics,
		queueName:       cfg.QueueName,
		virtualHost:     cfg.VirtualHost,
		scalingInterval: cfg.ScalingInterval,
		subs:            make(map[uint64]*subscription),
	}
}

// QueueName returns the queue this consumer pulls from.
func (c *QueueConsumer) QueueName() string { return c.queueName }

// ScalingInterval returns how often the scaling loop re-evaluates target
// scale.
func (c *QueueConsumer) ScalingInterval() time.Duration { return c.scalingInterval }

// IsRunning reports whether Start has been called and Stop has not yet
// completed.
func (c *QueueConsumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ActiveSubscriptions returns the current number of subscriptions that are
// Starting or Running (i.e. counted toward capacity; Draining/Closed
// subscriptions are being retired and do not count).
func (c *QueueConsumer) ActiveSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCountLocked()
}

func (c *QueueConsumer) activeCountLocked() int {
	n := 0
	for _, s := range c.subs {
		switch s.getState() {
		case subStarting, subRunning:
			n++
		}
	}
	return n
}

// Start primes one connection and one reconcile pass synchronously — a
// broker that cannot be reached at all surfaces ErrBrokerUnreachable to this
// call, per spec §7. Once that first pass succeeds, Start launches the
// background scaling loop and returns; further broker trouble is absorbed
// there and logged, never returned.
func (c *QueueConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("rabbitmq: consumer for queue %q already running", c.queueName)
	}
	c.mu.Unlock()

	// loopCtx is the parent of every subscription's context, so that
	// cancelling it (in Stop) reaches subscriptions spawned by this priming
	// reconcile too, not just ones spawned later from the scaling loop.
	loopCtx, cancel := context.WithCancel(ctx)

	if err := c.reconcile(loopCtx); err != nil {
		cancel()
		return err
	}

	c.mu.Lock()
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.loopWG.Add(1)
	go c.scalingLoop(loopCtx)

	return nil
}

func (c *QueueConsumer) scalingLoop(ctx context.Context) {
	defer c.loopWG.Done()

	ticker := time.NewTicker(c.scalingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.reconcile(ctx); err != nil {
				c.logger.Warn("queue consumer: reconcile failed, will retry next tick",
					F("queue", c.queueName),
					F("error", err),
				)
			}
		}
	}
}

// reconcile queries broker-reported queue depth via a passive declare, asks
// the ConsumerCountManager for a target scale, and starts/retires
// subscriptions to match.
func (c *QueueConsumer) reconcile(ctx context.Context) error {
	handle, err := c.pool.GetConnection(ctx)
	if err != nil {
		return err
	}

	ch, err := handle.CreateChannel()
	if err != nil {
		handle.Release()
		return fmt.Errorf("rabbitmq: reconcile: open probe channel: %w", err)
	}

	queue, err := ch.QueueDeclarePassive(c.queueName, true, false, false, false, nil)
	_ = ch.Close()
	handle.Release()
	if err != nil {
		return fmt.Errorf("rabbitmq: reconcile: passive declare %q: %w", c.queueName, err)
	}

	c.mu.Lock()
	active := c.activeCountLocked()
	c.mu.Unlock()

	// TargetScale must never block on I/O (per ConsumerCountManager's
	// contract), but it is called without holding c.mu regardless — a
	// misbehaving implementation must not be able to stall
	// ActiveSubscriptions, IsRunning, or runSubscription's cleanup.
	target := c.countManager.TargetScale(queue.Messages, active)
	c.metrics.SetTargetScale(c.queueName, int(target))

	c.mu.Lock()
	toStart, toDrain := reconcileDelta(active, int(target))
	draining := c.pickForDrain(toDrain)
	c.mu.Unlock()

	for _, s := range draining {
		c.drainSubscription(s)
	}

	for i := 0; i < toStart; i++ {
		if err := c.startSubscription(ctx); err != nil {
			c.logger.Warn("queue consumer: failed to start subscription",
				F("queue", c.queueName),
				F("error", err),
			)
			break
		}
	}

	c.metrics.SetActiveSubscriptions(c.queueName, c.ActiveSubscriptions())
	return nil
}

// reconcileDelta is the pure reconciliation math: how many subscriptions to
// start and how many to mark for drain, given the current active count and
// the decided target.
func reconcileDelta(active, target int) (toStart, toDrain int) {
	if active < target {
		return target - active, 0
	}
	if active > target {
		return 0, active - target
	}
	return 0, 0
}

func (c *QueueConsumer) pickForDrain(n int) []*subscription {
	if n <= 0 {
		return nil
	}
	picked := make([]*subscription, 0, n)
	for _, s := range c.subs {
		if len(picked) >= n {
			break
		}
		if s.getState() == subRunning {
			picked = append(picked, s)
		}
	}
	return picked
}

func (c *QueueConsumer) startSubscription(ctx context.Context) error {
	handle, err := c.pool.GetConnection(ctx)
	if err != nil {
		return err
	}

	ch, err := handle.CreateChannel()
	handle.Release()
	if err != nil {
		return fmt.Errorf("rabbitmq: open subscription channel: %w", err)
	}

	if err := ch.Qos(subscriptionPrefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("rabbitmq: set qos: %w", err)
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.mu.Unlock()

	tag := fmt.Sprintf("%s-%d", c.queueName, id)

	deliveries, err := ch.Consume(c.queueName, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("rabbitmq: consume %q: %w", c.queueName, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		id:      id,
		tag:     tag,
		channel: ch,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	sub.setState(subStarting)

	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()

	sub.setState(subRunning)

	go c.runSubscription(subCtx, sub, deliveries)

	c.logger.Info("queue consumer: subscription started",
		F("queue", c.queueName),
		F("subscription_id", id),
	)
	return nil
}

// runSubscription is the per-subscription loop: it processes at most one
// delivery at a time (prefetch=1 makes this automatic), and forwards each
// one with a fresh FeedbackSender to the Worker.
func (c *QueueConsumer) runSubscription(ctx context.Context, sub *subscription, deliveries <-chan amqp.Delivery) {
	defer func() {
		sub.setState(subClosed)
		_ = sub.channel.Close()
		close(sub.done)
		c.mu.Lock()
		delete(c.subs, sub.id)
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("queue consumer: delivery channel closed, retiring subscription",
					F("queue", c.queueName),
					F("subscription_id", sub.id),
				)
				return
			}
			fb := NewFeedbackSender(sub.channel, d.DeliveryTag, c.queueName, c.virtualHost)
			c.worker.OnMessage(ctx, d.Body, fb)
			// A well-behaved Worker always resolves fb itself; Abandon is the
			// safety net for one that returns without doing so (e.g. panics
			// were recovered upstream, or a buggy implementation forgot),
			// so the delivery is requeued instead of leaked unacked.
			if !fb.Resolved() {
				c.logger.Warn("queue consumer: worker returned without resolving feedback, abandoning",
					F("queue", c.queueName),
					F("subscription_id", sub.id),
				)
				fb.Abandon()
			}
		}
	}
}

// drainSubscription moves sub into the Draining state: it stops the
// broker-side consumer so no new deliveries arrive, then cancels the
// subscription's own context so its loop exits as soon as the in-flight
// delivery (if any) has been resolved.
func (c *QueueConsumer) drainSubscription(sub *subscription) {
	sub.setState(subDraining)
	if err := sub.channel.Cancel(sub.tag, false); err != nil {
		c.logger.Warn("queue consumer: cancel on drain failed",
			F("queue", c.queueName),
			F("subscription_id", sub.id),
			F("error", err),
		)
	}
	sub.cancel()
}

// Stop flips the consumer out of Running: it cancels the root cancellation
// token, waits up to grace for in-flight deliveries to resolve, then closes
// any channels still open. Messages not resolved within grace are left
// un-acked; the broker will redeliver them.
func (c *QueueConsumer) Stop(grace time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrConsumerNotRunning
	}
	cancel := c.cancel
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	cancel()
	c.loopWG.Wait()

	deadline := time.After(grace)
	for _, s := range subs {
		select {
		case <-s.done:
		case <-deadline:
			c.logger.Warn("queue consumer: grace period elapsed with subscription still in flight",
				F("queue", c.queueName),
				F("subscription_id", s.id),
			)
		}
	}

	// Force-close anything still open past grace; this leaves any in-flight
	// delivery un-acked so the broker redelivers it.
	for _, s := range subs {
		if s.getState() != subClosed {
			_ = s.channel.Close()
		}
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	return nil
}
