package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rmacedo/fiscal-audit-service/internal/bootstrap"
	"github.com/rmacedo/fiscal-audit-service/internal/config"
	"github.com/rmacedo/fiscal-audit-service/internal/observability/logging"
)

const serviceName = "fiscal-audit-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, serviceName)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: app.PipelineMetrics.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeBatchSubmitted(ctx, func(handlerCtx context.Context, batchID string) error {
		consumeCtx, cancel := context.WithTimeout(handlerCtx, 15*time.Minute)
		defer cancel()
		return app.Consumer.Consume(consumeCtx, batchID)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
