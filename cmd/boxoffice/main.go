package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-boxoffice/internal/admin"
	"ms-boxoffice/internal/api"
	"ms-boxoffice/internal/app"
	"ms-boxoffice/internal/catalog"
	catalogdb "ms-boxoffice/internal/catalog/db"
	"ms-boxoffice/internal/changefeed"
	"ms-boxoffice/internal/checkin"
	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/database"
	"ms-boxoffice/internal/database/migrations"
	"ms-boxoffice/internal/kafka"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/metrics"
	"ms-boxoffice/internal/order"
	orderdb "ms-boxoffice/internal/order/db"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	if err := run(log); err != nil {
		log.Fatal("APP", err.Error())
	}
}

func run(log *logger.Logger) error {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	if cfg.Database.MigrationsRun {
		runner := migrations.NewRunner(bunDB.DB, migrations.MigrateOptions{SeedData: os.Getenv("DB_SEED") == "true"}, log)
		if err := runner.RunMigrations(); err != nil {
			return err
		}
	}

	rdb, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	orders := orderdb.New(bunDB)
	events := catalogdb.New(bunDB)
	feed := changefeed.NewFeed(32)

	g, gctx := errgroup.WithContext(ctx)

	// every committed write goes to the live feed, and to fulfillment either
	// through Kafka or in process
	notifier := changefeed.Fanout{feed}
	health := map[string]api.HealthCheck{
		"postgres": func(ctx context.Context) error { return bunDB.PingContext(ctx) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	trigger, err := app.Trigger(cfg, orders, rdb, log, m)
	if err != nil {
		return err
	}

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.ChangesTopic}, cfg.Fulfillment.DispatchShards, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ChangesTopic, log)
		defer producer.Close()
		notifier = append(notifier, producer)
		log.Info("KAFKA", fmt.Sprintf("Publishing order changes to %s; fulfillment runs in the worker", cfg.Kafka.ChangesTopic))
	} else {
		dispatcher := changefeed.NewDispatcher(cfg.Fulfillment.DispatchShards, cfg.Fulfillment.DispatchBuffer, trigger.Handle, log)
		dispatcher.Start(gctx)
		defer dispatcher.Close()
		notifier = append(notifier, dispatcher)
		log.Info("FULFILLMENT", fmt.Sprintf("In-process fulfillment with %d shards", cfg.Fulfillment.DispatchShards))
	}

	payments, err := app.Payments(cfg.Stripe, log)
	if err != nil {
		return err
	}
	renderer, err := app.Renderer(cfg.QR)
	if err != nil {
		return err
	}
	verifier, err := app.StaffVerifier(ctx, cfg.Auth, rdb, log)
	if err != nil {
		return err
	}

	handler := &api.Handler{
		Orders:   order.NewOrderService(orders, events, orderdb.NewTransactor(bunDB), payments, notifier, log, m, cfg.Stripe.PaymentTimeout),
		Catalog:  catalog.NewService(events, log),
		Ledger:   checkin.NewLedger(orders, app.Signer(cfg.QR), notifier, log, m),
		Admin:    admin.NewService(orders),
		Receipts: renderer,
		Resender: trigger,
		Feed:     feed,
		Logger:   log,
		Health:   health,
	}

	server := &http.Server{
		Addr: cfg.Server.Port,
		Handler: api.NewRouter(handler, api.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Verifier:       verifier,
			Metrics:        m,
			Gatherer:       reg,
		}),
		ReadTimeout: cfg.Server.ReadTimeout,
		// zero so event streams stay open
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("Box office running on %s (%s)", cfg.Server.Port, cfg.Server.PublicBaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("APP", "Box office shutdown complete")
	return nil
}
