package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/rmacedo/fiscal-audit-service/internal/adapters/http"
	"github.com/rmacedo/fiscal-audit-service/internal/bootstrap"
	"github.com/rmacedo/fiscal-audit-service/internal/config"
	"github.com/rmacedo/fiscal-audit-service/internal/observability/logging"
	"github.com/rmacedo/fiscal-audit-service/internal/observability/metrics"
)

const serviceName = "fiscal-audit-api"

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

	router := httpadapter.NewRouter(
		app.Pipeline, app.Corrections, app.Documents, app.Batches,
		app.Storage, app.Queue,
		logger, metrics.NewHTTPServerMetrics(serviceName), serviceName,
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
