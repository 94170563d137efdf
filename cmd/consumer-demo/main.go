// Command consumer-demo wires the rabbitmq core against a JSON worker,
// Postgres-backed rejection audit, Redis-backed windowed scaling, and
// Prometheus metrics, to demonstrate a complete QueueClient deployment.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dbolly/rabbitmq-abstraction"
	"github.com/dbolly/rabbitmq-abstraction/config"
	"github.com/dbolly/rabbitmq-abstraction/pgaudit"
	"github.com/dbolly/rabbitmq-abstraction/promx"
	"github.com/dbolly/rabbitmq-abstraction/redisscale"
	"github.com/dbolly/rabbitmq-abstraction/zaplog"
)

// OrderPlaced is the demo message type this binary consumes.
type OrderPlaced struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	TotalCents int64  `json:"total_cents"`
	Currency   string `json:"currency"`
}

func handleOrderPlaced(ctx context.Context, msg OrderPlaced) error {
	if msg.OrderID == "" {
		return rabbitmq.NewDiscardSignal(fmt.Errorf("order_placed message missing order_id"))
	}
	// Demo body: a real handler would persist or forward msg here.
	return nil
}

func main() {
	zapLogger, _ := zap.NewProduction()
	defer zapLogger.Sync()
	logger := zaplog.New(zapLogger)

	logger.Info("starting consumer-demo")

	cfg, err := config.Load()
	if err != nil {
		zapLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		zapLogger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		zapLogger.Fatal("failed to ping postgres", zap.Error(err))
	}
	logger.Info("connected to postgres")

	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		zapLogger.Fatal("invalid redis url", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("failed to ping redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to redis")

	metrics := promx.New(cfg.Metrics.Namespace)

	poolCfg := rabbitmq.DefaultPoolConfig(cfg.RabbitMQ.URL)
	poolCfg.Connections = cfg.RabbitMQ.Connections

	countManager := redisscale.New(redisClient, cfg.RabbitMQ.QueueName, redisscale.WindowConfig{
		MinConsumers:      cfg.Consumer.MinConsumers,
		MaxConsumers:      cfg.Consumer.MaxConsumers,
		MessagesPerWorker: cfg.Consumer.MessagesPerWorker,
	}, logger)
	defer countManager.Close()

	client := rabbitmq.NewQueueClient(rabbitmq.ClientConfig{
		Pool:         poolCfg,
		Topology:     rabbitmq.DefaultTopologyConfig(cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName),
		Consumer:     rabbitmq.ConsumerConfig{QueueName: cfg.RabbitMQ.QueueName, ScalingInterval: cfg.Consumer.ScalingInterval},
		CountManager: countManager,
	}, logger, metrics)

	rejection := rabbitmq.NewMultiRejectionHandler(
		client.DefaultRejectionHandler(),
		pgaudit.New(dbPool, logger),
	)

	worker := rabbitmq.NewAdvancedProcessingWorker(
		handleOrderPlaced,
		rabbitmq.DefaultWorkerConfig(),
		rabbitmq.WorkerDeps{
			Serializer: client.Serializer(),
			Rejection:  rejection,
			Logger:     logger,
			Metrics:    metrics,
			QueueName:  cfg.RabbitMQ.QueueName,
		},
	)

	client.Consumer(worker)

	if err := client.Start(ctx); err != nil {
		zapLogger.Fatal("failed to start consumer", zap.Error(err))
	}
	logger.Info("consumer running", rabbitmq.F("queue", cfg.RabbitMQ.QueueName))

	metricsSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Metrics.Port),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, pingCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer pingCancel()
		if err := dbPool.Ping(pingCtx); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv.Handler = mux

	go func() {
		logger.Info("metrics/health server listening", rabbitmq.F("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", rabbitmq.F("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down consumer-demo")

	if err := client.Stop(cfg.Consumer.ShutdownGrace); err != nil {
		logger.Error("error stopping consumer", rabbitmq.F("error", err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", rabbitmq.F("error", err))
	}

	logger.Info("consumer-demo stopped")
}
