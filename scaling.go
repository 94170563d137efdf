package rabbitmq

import (
	"fmt"
	"math"
	"time"
)

// ConsumerCountManagerConfig bounds and tunes the scaling decision of the
// default ConsumerCountManager.
type ConsumerCountManagerConfig struct {
	// MinConcurrentConsumers is the floor on active subscriptions, enforced
	// whenever the pool is healthy.
	MinConcurrentConsumers uint
	// MaxConcurrentConsumers is the ceiling on active subscriptions.
	MaxConcurrentConsumers uint
	// MessagesPerConsumerRatio is how many queued messages justify one more
	// subscription.
	MessagesPerConsumerRatio uint
	// AutoScaleInterval is checked by Validate. QueueConsumer does not read
	// it; its re-evaluation period comes from ConsumerConfig.ScalingInterval.
	AutoScaleInterval time.Duration
}

// Validate checks the invariants documented in spec §3: 0 ≤ min ≤ max; ratio
// ≥ 1; interval > 0.
func (c ConsumerCountManagerConfig) Validate() error {
	if c.MinConcurrentConsumers > c.MaxConcurrentConsumers {
		return fmt.Errorf("rabbitmq: min_concurrent_consumers (%d) > max_concurrent_consumers (%d)", c.MinConcurrentConsumers, c.MaxConcurrentConsumers)
	}
	if c.MessagesPerConsumerRatio < 1 {
		return fmt.Errorf("rabbitmq: messages_per_consumer_ratio must be >= 1, got %d", c.MessagesPerConsumerRatio)
	}
	if c.AutoScaleInterval <= 0 {
		return fmt.Errorf("rabbitmq: auto_scale_interval must be > 0, got %s", c.AutoScaleInterval)
	}
	return nil
}

// DefaultConsumerCountManagerConfig returns sane defaults: a single
// consumer, scaling up to 10, one subscription per 10 queued messages,
// re-evaluated every 15 seconds.
func DefaultConsumerCountManagerConfig() ConsumerCountManagerConfig {
	return ConsumerCountManagerConfig{
		MinConcurrentConsumers:   1,
		MaxConcurrentConsumers:   10,
		MessagesPerConsumerRatio: 10,
		AutoScaleInterval:        15 * time.Second,
	}
}

// ConsumerCountManager is a pure policy object: given the broker-reported
// queue depth and the currently active subscription count, it decides the
// target scale. It must never block on I/O — the QueueConsumer supplies the
// queue depth it already fetched via a passive declare.
type ConsumerCountManager interface {
	TargetScale(currentQueueDepth int, currentActive int) uint
}

// DefaultConsumerCountManager implements the clamp formula from spec §4.E:
//
//	target = clamp(ceil(depth / ratio), min, max)
type DefaultConsumerCountManager struct {
	Config ConsumerCountManagerConfig
}

// NewDefaultConsumerCountManager builds a DefaultConsumerCountManager from
// cfg. It panics if cfg fails Validate, since an invalid bundle is a
// construction-time programming error, not a runtime condition.
func NewDefaultConsumerCountManager(cfg ConsumerCountManagerConfig) *DefaultConsumerCountManager {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return &DefaultConsumerCountManager{Config: cfg}
}

// TargetScale implements ConsumerCountManager.
func (m *DefaultConsumerCountManager) TargetScale(currentQueueDepth int, _ int) uint {
	return clampScale(currentQueueDepth, m.Config.MessagesPerConsumerRatio, m.Config.MinConcurrentConsumers, m.Config.MaxConcurrentConsumers)
}

func clampScale(depth int, ratio, min, max uint) uint {
	if depth < 0 {
		depth = 0
	}
	raw := uint(math.Ceil(float64(depth) / float64(ratio)))
	if raw < min {
		return min
	}
	if raw > max {
		return max
	}
	return raw
}

var _ ConsumerCountManager = (*DefaultConsumerCountManager)(nil)

// FixedConsumerCountManager is the degenerate variant noted in spec §4.E: it
// always returns the same target, for callers who want exactly N
// subscriptions (set min == max and use DefaultConsumerCountManager instead
// if the target should still respond to queue depth within that one value).
type FixedConsumerCountManager struct {
	Target uint
}

// NewFixedConsumerCountManager builds a ConsumerCountManager that always
// returns target.
func NewFixedConsumerCountManager(target uint) *FixedConsumerCountManager {
	return &FixedConsumerCountManager{Target: target}
}

// TargetScale implements ConsumerCountManager.
func (m *FixedConsumerCountManager) TargetScale(int, int) uint {
	return m.Target
}

var _ ConsumerCountManager = (*FixedConsumerCountManager)(nil)
