package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ms-boxoffice/internal/app"
	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/database"
	"ms-boxoffice/internal/kafka"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/metrics"
	orderdb "ms-boxoffice/internal/order/db"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// The worker consumes order changes from Kafka and runs fulfillment. Each
// change is fulfilled before its offset is committed; changes for one order
// share a partition key, so they are handled in commit order.
func main() {
	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	if err := run(log); err != nil {
		log.Fatal("WORKER", err.Error())
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

	rdb, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	trigger, err := app.Trigger(cfg, orderdb.New(bunDB), rdb, log, m)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ChangesTopic, cfg.Kafka.GroupID, log)
	defer consumer.Close()

	g.Go(func() error {
		log.Info("WORKER", fmt.Sprintf("Consuming %s as %s", cfg.Kafka.ChangesTopic, cfg.Kafka.GroupID))
		return consumer.Start(gctx, trigger.Handle)
	})

	metricsServer := &http.Server{Addr: cfg.Server.Port, Handler: metrics.Handler(reg)}
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
