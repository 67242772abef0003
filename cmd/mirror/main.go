package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	h "github.com/veranemoloko/index-mirror/internal/api/http"
	cfgpkg "github.com/veranemoloko/index-mirror/internal/config"
	"github.com/veranemoloko/index-mirror/internal/discovery"
	"github.com/veranemoloko/index-mirror/internal/metrics"
	"github.com/veranemoloko/index-mirror/internal/progress"
	repo "github.com/veranemoloko/index-mirror/internal/repository"
	svc "github.com/veranemoloko/index-mirror/internal/service"
	"github.com/veranemoloko/index-mirror/internal/storage"
	"github.com/veranemoloko/index-mirror/internal/worker"
)

const discoveryTimeout = time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cfgpkg.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	logger := cfgpkg.SetupLogger(cfg).With("run_id", uuid.NewString())
	logger.Info("configuration loaded successfully", "collection_url", cfg.CollectionURL, "threads", cfg.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerPath := storage.LedgerPath(cfg.DBDir, cfg.CollectionURL)
	ledger, err := repo.NewLedgerStore(ledgerPath)
	if err != nil {
		logger.Error("failed to open ledger", "path", ledgerPath, "error", err)
		return 1
	}
	logger.Info("ledger opened", "path", ledger.Path())

	output := storage.NewFileStorage(cfg.OutDir)
	if !output.DirExists() {
		logger.Error("output directory does not exist", "path", output.Dir())
		return 1
	}

	scraper := discovery.NewScraper(discoveryTimeout, logger)
	descriptors, err := scraper.Discover(ctx, cfg.CollectionURL, cfg.Skip)
	if err != nil {
		logger.Warn("discovery failed, continuing with the existing ledger", "error", err)
	}

	added, err := svc.NewReconciler(ledger, logger).Reconcile(ctx, descriptors)
	if err != nil {
		logger.Error("failed to reconcile ledger", "error", err)
		return 1
	}
	logger.Info(fmt.Sprintf("Added: %d", added))

	counts, err := ledger.Counts(ctx)
	if err != nil {
		logger.Error("failed to count ledger records", "error", err)
		return 1
	}
	metrics.ObserveCounts(counts)

	tracker := progress.NewTracker(progress.Options{
		Workers:   cfg.Workers,
		Completed: counts.Done,
		Total:     counts.Total,
		Visible:   cfg.ShowProgress,
		Logger:    logger,
	})

	var server *http.Server
	if cfg.StatusAddr != "" {
		server = &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           h.NewRouter(ledger, tracker, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("status server starting", "address", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	downloader := worker.NewDownloadWorker(output, cfg.DownloadTimeout, logger)
	summary, runErr := svc.NewDownloadService(ledger, downloader, tracker, cfg.Workers, logger).Run(ctx)

	tracker.Close()
	logger.Info("run finished",
		"completed", summary.Completed,
		"failed", summary.Failed,
		"bytes", progress.FormatBytes(summary.Bytes),
	)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown failed", "error", err)
		} else {
			logger.Info("status server stopped gracefully")
		}
	}

	if runErr != nil {
		logger.Warn("run interrupted", "error", runErr)
		return 130
	}
	return 0
}
