// Package main provides the standalone scan worker for the payment scanner.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/payment-scanner/internal/app"
	"github.com/payment-scanner/internal/config"
)

func main() {
	fmt.Println("Payment Scanner Worker")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := app.InitLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapters, err := app.BuildAdapters(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create chain adapters")
	}
	if len(adapters) == 0 {
		logger.Fatal("No chain adapters configured, set TRC20_ADDRESS and/or BEP20_ADDRESS")
	}

	infra, err := app.Connect(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ledger store")
	}
	defer infra.Close()

	metrics := app.NewMetrics(cfg)
	var metricsServer *http.Server
	if metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.WithField("addr", metricsServer.Addr).Info("Serving metrics")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	scanWorker, err := app.NewScanWorker(cfg, infra, adapters, metrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create scan worker")
	}
	if err := scanWorker.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start scan worker")
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := app.ShutdownContext(cfg)
	defer cancel()

	if err := scanWorker.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Scan worker did not stop cleanly")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	logger.Info("Worker exited")
}
