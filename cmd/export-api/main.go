package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmledger/export-api/internal/config"
	"github.com/farmledger/export-api/internal/generator"
	"github.com/farmledger/export-api/internal/platform/sqlite"
	"github.com/farmledger/export-api/internal/provider/demo"
	"github.com/farmledger/export-api/internal/queue"
	"github.com/farmledger/export-api/internal/report"
	reportrepo "github.com/farmledger/export-api/internal/repository/report"
	"github.com/farmledger/export-api/internal/server"
)

func main() {
	cfg := config.Load()

	style, err := config.LoadStyle(cfg.StylePath)
	if err != nil {
		slog.Error("failed to load style", "path", cfg.StylePath, "error", err)
		os.Exit(1)
	}

	// Root context: cancelled on SIGINT/SIGTERM so the in-flight export
	// attempt stops promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		slog.Error("failed to create output dir", "dir", cfg.OutputDir, "error", err)
		os.Exit(1)
	}

	repo := reportrepo.NewRepository(db.DB)

	// Format strategies
	registry := generator.NewRegistry()
	registry.Register(generator.NewPDF(style))
	registry.Register(generator.NewExcel(style))
	registry.Register(generator.NewCSV(style))

	svc := report.NewService(repo)

	// Export queue: drains pending jobs in the background
	q := queue.New(repo, demo.NewProvider(), registry,
		queue.WithOutputDir(cfg.OutputDir),
		queue.WithRetention(time.Duration(cfg.RetentionHours)*time.Hour),
		queue.WithDrainInterval(time.Duration(cfg.DrainIntervalSec)*time.Second),
		queue.WithReapInterval(time.Duration(cfg.ReapIntervalMin)*time.Minute),
	)
	svc.SetNotify(q.Notify)
	q.Start(rootCtx)

	// Re-queue jobs a previous process left mid-attempt, then wake the queue.
	if err := svc.RecoverStaleJobs(rootCtx); err != nil {
		slog.Error("failed to recover stale jobs", "error", err)
	}
	q.Notify()

	// HTTP server — rootCtx is used as BaseContext so every request context
	// inherits from it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Port, svc)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	<-done

	// Cancel root context first so the current export attempt begins winding
	// down immediately.
	rootCancel()

	// Wait for the queue to finish its in-flight attempt and release
	// generator resources before shutting down HTTP.
	q.Cleanup()

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
