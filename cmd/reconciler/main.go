package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/config"
	"github.com/ariefcatur/go-tradein-orders/internal/events"
	kafkax "github.com/ariefcatur/go-tradein-orders/internal/kafka"
	"github.com/ariefcatur/go-tradein-orders/internal/logging"
	"github.com/ariefcatur/go-tradein-orders/internal/metrics"
	"github.com/ariefcatur/go-tradein-orders/internal/postgres"
	"github.com/ariefcatur/go-tradein-orders/internal/reconcile"
	"github.com/ariefcatur/go-tradein-orders/internal/redisx"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

// reconciler consumes payment.completed and finalizes orders. It needs the
// shared postgres store; the in-memory store is not visible across processes.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.ServiceName+"-reconciler", cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}
	if cfg.StoreDriver != "postgres" {
		logger.Fatal("reconciler requires STORE_DRIVER=postgres", zap.String("store_driver", cfg.StoreDriver))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	policy := store.DefaultPolicy()
	policy.MaxAttempts = cfg.TxMaxAttempts
	policy.OnRetry = func(int, error) { met.TxRetries.Inc() }

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	st := postgres.NewStore(db, policy)

	// Producer for order.paid
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start(ctx)

	opts := []reconcile.Option{
		reconcile.WithPublisher(prod),
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(met),
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		opts = append(opts,
			reconcile.WithDeduper(redisx.NewDeduper(rdb, cfg.ServiceName+"-reconciler")),
			reconcile.WithStatusCache(redisx.NewStatusCache(rdb)),
		)
	}
	listener := reconcile.New(st, opts...)

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, events.TopicPaymentCompleted, cfg.ReconcilerWorkers, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("reconciler_started",
			zap.String("group", cfg.ReconcilerGroup),
			zap.String("topic", events.TopicPaymentCompleted),
			zap.Int("workers", cfg.ReconcilerWorkers),
		)
		if err := cons.Start(ctx, listener.HandleMessage); err != nil {
			logger.Error("consumer_exit", zap.Error(err))
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	msrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_listen", zap.Error(err))
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting_down")
	cancel()
	<-done
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = msrv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
}
