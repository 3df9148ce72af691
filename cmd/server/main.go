// Package main provides the API server entry point for the payment scanner.
// The scan worker runs in-process unless -scan=false.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/payment-scanner/internal/api"
	"github.com/payment-scanner/internal/app"
	"github.com/payment-scanner/internal/config"
	"github.com/payment-scanner/internal/service"
	"github.com/payment-scanner/internal/worker"
)

func main() {
	scan := flag.Bool("scan", true, "Run the scan worker in this process")
	flag.Parse()

	fmt.Println("Payment Scanner API Server")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := app.InitLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to backing services...")
	infra, err := app.Connect(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ledger store")
	}
	defer infra.Close()

	metrics := app.NewMetrics(cfg)

	var scanWorker *worker.ScanWorker
	if *scan {
		adapters, err := app.BuildAdapters(cfg)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create chain adapters")
		}
		if len(adapters) == 0 {
			logger.Warn("No chain adapters configured, scanning disabled")
		} else {
			scanWorker, err = app.NewScanWorker(cfg, infra, adapters, metrics)
			if err != nil {
				logger.WithError(err).Fatal("Failed to create scan worker")
			}
			if err := scanWorker.Start(ctx); err != nil {
				logger.WithError(err).Fatal("Failed to start scan worker")
			}
		}
	}

	deps := api.ServerDeps{
		Ledger:  service.NewLedgerService(infra.Store, infra.LedgerCache()),
		Records: service.NewRecordService(infra.Store),
		Store:   infra.Store,
		Metrics: metrics,
	}
	if scanWorker != nil {
		deps.Scanner = scanWorker
	}

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
		RateLimitBurst:  cfg.Server.RateLimitRPS * 2,
		AllowedOrigin:   cfg.Server.AllowedOrigin,
	}, deps)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	failed := false
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.WithError(err).Error("API server failed")
		failed = true
	}

	shutdownCtx, cancel := app.ShutdownContext(cfg)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if scanWorker != nil {
		if err := scanWorker.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Scan worker did not stop cleanly")
		}
	}

	logger.Info("Server exited")
	if failed {
		infra.Close()
		os.Exit(1)
	}
}
