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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/checkout"
	"github.com/ariefcatur/go-tradein-orders/internal/config"
	"github.com/ariefcatur/go-tradein-orders/internal/events"
	"github.com/ariefcatur/go-tradein-orders/internal/httpx"
	"github.com/ariefcatur/go-tradein-orders/internal/intake"
	kafkax "github.com/ariefcatur/go-tradein-orders/internal/kafka"
	"github.com/ariefcatur/go-tradein-orders/internal/logging"
	"github.com/ariefcatur/go-tradein-orders/internal/metrics"
	"github.com/ariefcatur/go-tradein-orders/internal/payment"
	"github.com/ariefcatur/go-tradein-orders/internal/postgres"
	"github.com/ariefcatur/go-tradein-orders/internal/reconcile"
	"github.com/ariefcatur/go-tradein-orders/internal/redisx"
	"github.com/ariefcatur/go-tradein-orders/internal/returns"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
	"github.com/ariefcatur/go-tradein-orders/internal/store/memstore"
	"github.com/ariefcatur/go-tradein-orders/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	policy := store.DefaultPolicy()
	policy.MaxAttempts = cfg.TxMaxAttempts
	policy.OnRetry = func(int, error) { met.TxRetries.Inc() }

	// Store
	var st store.Store
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		st = memstore.New(memstore.WithPolicy(policy))
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		st = postgres.NewStore(db, policy)
	}

	// Kafka producer (optional)
	var pub events.Publisher = events.Nop()
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
		prod.Start(ctx)
		pub = prod
	}

	// Redis (optional)
	recOpts := []reconcile.Option{
		reconcile.WithPublisher(pub),
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(met),
		reconcile.WithWebhookSecret(cfg.Payment.WebhookSecret, payment.DefaultTolerance),
	}
	coOpts := []checkout.Option{
		checkout.WithPublisher(pub),
		checkout.WithLogger(logger),
		checkout.WithMetrics(met),
	}
	var cache httpx.StatusCache
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		sc := redisx.NewStatusCache(rdb)
		cache = sc
		coOpts = append(coOpts, checkout.WithStatusCache(sc))
		recOpts = append(recOpts,
			reconcile.WithDeduper(redisx.NewDeduper(rdb, cfg.ServiceName)),
			reconcile.WithStatusCache(sc),
		)
	}

	if cfg.Payment.WebhookSecret == "" {
		logger.Warn("webhook_secret_unset", zap.String("effect", "payment webhooks are rejected"))
	}
	if cfg.Payment.Mode == payment.ModeProcessor {
		coOpts = append(coOpts, checkout.WithProcessor(cfg.Payment, payment.NewClient(cfg.Payment.APIBase, cfg.Payment.APIKey, nil)))
	}
	co := checkout.New(st, cfg.Shipping, coOpts...)
	logger.Info("payment_mode_selected",
		zap.String("payment_mode", string(cfg.Payment.Mode)),
		zap.Bool("stub_fallback", cfg.Payment.StubFallback),
	)

	router := httpx.NewRouter(logger, met, reg)
	h := &httpx.Handler{
		Checkout:  co,
		Reconcile: reconcile.New(st, recOpts...),
		Returns:   returns.New(st, pub, logger, met),
		Intake:    intake.New(st, logger),
		Store:     st,
		Cache:     cache,
	}
	h.Register(router)

	// Reservation sweeper
	if cfg.ReservationTTL > 0 {
		sw := &sweeper.Sweeper{
			Store:    st,
			Releaser: co,
			TTL:      cfg.ReservationTTL,
			Interval: cfg.SweepInterval,
			Reason:   checkout.ReasonExpired,
			Log:      logger,
		}
		go sw.Run(ctx)
		logger.Info("sweeper_started", zap.Duration("ttl", cfg.ReservationTTL), zap.Duration("interval", cfg.SweepInterval))
	}

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("http_listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting_down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close() // close inbox -> flush & close writer
		prod.WaitClosed()
	}
	cancel()
}
