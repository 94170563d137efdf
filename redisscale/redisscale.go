// Package redisscale implements a rabbitmq.ConsumerCountManager backed by a
// Redis sorted set: it tracks a sliding window of recent queue-depth
// samples so scaling decisions smooth over short bursts instead of
// reacting to every single reconcile tick's raw depth.
package redisscale

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dbolly/rabbitmq-abstraction"
)

const keyPrefix = "rabbitmq:scale:window:"

// WindowConfig bounds WindowedConsumerCountManager's decision.
type WindowConfig struct {
	MinConsumers      uint
	MaxConsumers      uint
	MessagesPerWorker uint
	// Window is how far back sampled depths are considered.
	Window time.Duration
}

// WindowedConsumerCountManager is a rabbitmq.ConsumerCountManager that
// records each observed queue depth into a Redis sorted set scored by
// sample time, prunes samples older than Window, and targets scale off the
// window's average rather than the latest single sample.
//
// TargetScale itself never touches Redis: it hands the latest depth to a
// background goroutine over a buffered channel and returns a scale
// computed from that goroutine's most recently cached window average,
// satisfying ConsumerCountManager's no-I/O contract even though the window
// itself lives in Redis. Call Close when retiring a manager to stop the
// background goroutine.
type WindowedConsumerCountManager struct {
	client    *goredis.Client
	queueName string
	cfg       WindowConfig
	logger    rabbitmq.Logger

	samples    chan int
	cachedBits atomic.Uint64
	haveAvg    atomic.Bool
	stop       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// New builds a WindowedConsumerCountManager for one queue and starts its
// background sampling goroutine. Each queue needs its own instance since
// the Redis key is scoped by queueName.
func New(client *goredis.Client, queueName string, cfg WindowConfig, logger rabbitmq.Logger) *WindowedConsumerCountManager {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.MessagesPerWorker < 1 {
		cfg.MessagesPerWorker = 1
	}
	if logger == nil {
		logger = rabbitmq.NopLogger{}
	}
	w := &WindowedConsumerCountManager{
		client:    client,
		queueName: queueName,
		cfg:       cfg,
		logger:    logger,
		samples:   make(chan int, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.sampleLoop()
	return w
}

// Close stops the background sampling goroutine and waits for it to exit.
func (w *WindowedConsumerCountManager) Close() {
	w.closeOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *WindowedConsumerCountManager) key() string {
	return keyPrefix + w.queueName
}

// sampleLoop is the only goroutine that ever talks to Redis. It drains
// depths handed to it by TargetScale, records each into the sorted set,
// and refreshes the cached window average TargetScale reads.
func (w *WindowedConsumerCountManager) sampleLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case depth := <-w.samples:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			avg, err := w.recordAndAverage(ctx, depth)
			cancel()
			if err != nil {
				w.logger.Warn("redisscale: background sample failed, keeping previous window average",
					rabbitmq.F("queue", w.queueName),
					rabbitmq.F("error", err),
				)
				continue
			}
			w.cachedBits.Store(math.Float64bits(avg))
			w.haveAvg.Store(true)
		}
	}
}

func (w *WindowedConsumerCountManager) recordAndAverage(ctx context.Context, depth int) (float64, error) {
	if err := w.record(ctx, depth); err != nil {
		return 0, err
	}
	return w.windowAverage(ctx)
}

// record samples depth into the sliding window.
func (w *WindowedConsumerCountManager) record(ctx context.Context, depth int) error {
	now := time.Now()
	member := fmt.Sprintf("%d:%d", now.UnixNano(), depth)

	pipe := w.client.TxPipeline()
	pipe.ZAdd(ctx, w.key(), goredis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.ZRemRangeByScore(ctx, w.key(), "-inf", fmt.Sprintf("%d", now.Add(-w.cfg.Window).UnixNano()))
	pipe.Expire(ctx, w.key(), w.cfg.Window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisscale: record sample: %w", err)
	}
	return nil
}

// windowAverage reads back the current window and averages the depth
// component of every surviving sample.
func (w *WindowedConsumerCountManager) windowAverage(ctx context.Context) (float64, error) {
	results, err := w.client.ZRangeWithScores(ctx, w.key(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redisscale: read window: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}

	var sum float64
	for _, z := range results {
		var nanos, depth int64
		member, _ := z.Member.(string)
		if _, err := fmt.Sscanf(member, "%d:%d", &nanos, &depth); err != nil {
			continue
		}
		sum += float64(depth)
	}
	return sum / float64(len(results)), nil
}

// TargetScale implements rabbitmq.ConsumerCountManager and never blocks on
// I/O: it hands currentQueueDepth to the background sampling goroutine
// (dropping it if that goroutine is still busy with a previous sample —
// the next tick will try again) and scales off the most recently cached
// window average, falling back to the raw depth until the first sample
// completes.
func (w *WindowedConsumerCountManager) TargetScale(currentQueueDepth int, currentActive int) uint {
	select {
	case w.samples <- currentQueueDepth:
	default:
	}

	if !w.haveAvg.Load() {
		return clamp(currentQueueDepth, w.cfg.MessagesPerWorker, w.cfg.MinConsumers, w.cfg.MaxConsumers)
	}
	avg := math.Float64frombits(w.cachedBits.Load())
	return clamp(int(math.Round(avg)), w.cfg.MessagesPerWorker, w.cfg.MinConsumers, w.cfg.MaxConsumers)
}

func clamp(depth int, ratio, min, max uint) uint {
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

var _ rabbitmq.ConsumerCountManager = (*WindowedConsumerCountManager)(nil)
