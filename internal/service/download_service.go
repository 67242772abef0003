package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veranemoloko/index-mirror/internal/domain"
	"github.com/veranemoloko/index-mirror/internal/metrics"
	"github.com/veranemoloko/index-mirror/internal/progress"
	repo "github.com/veranemoloko/index-mirror/internal/repository"
	"github.com/veranemoloko/index-mirror/internal/worker"
)

// Downloader transfers a single claimed record to disk.
type Downloader interface {
	Download(ctx context.Context, rec domain.Record, sink worker.ProgressSink) (worker.Result, error)
}

// Summary reports what a Run did.
type Summary struct {
	Completed int64
	Failed    int64
	Bytes     int64
}

// DownloadService drains the ledger with a fixed pool of symmetric workers.
// The ledger is the work queue: each worker claims, downloads and finalizes
// one record at a time until nothing is left to claim.
type DownloadService struct {
	ledger     repo.LedgerRepo
	downloader Downloader
	tracker    *progress.Tracker
	workers    int
	logger     *slog.Logger

	completed atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64
}

// NewDownloadService creates a DownloadService running workers goroutines.
func NewDownloadService(ledger repo.LedgerRepo, downloader Downloader, tracker *progress.Tracker, workers int, logger *slog.Logger) *DownloadService {
	if workers < 1 {
		workers = 1
	}
	return &DownloadService{
		ledger:     ledger,
		downloader: downloader,
		tracker:    tracker,
		workers:    workers,
		logger:     logger,
	}
}

// Run blocks until every worker has found the ledger exhausted. Per-record
// failures are logged and counted, never returned; the only error is a
// cancelled ctx, which stops further claims.
func (s *DownloadService) Run(ctx context.Context) (Summary, error) {
	var g errgroup.Group

	s.logger.Info("download service started", "workers", s.workers)
	for i := 0; i < s.workers; i++ {
		workerID := i
		g.Go(func() error {
			return s.runWorker(ctx, workerID)
		})
	}

	err := g.Wait()
	summary := Summary{
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Bytes:     s.bytes.Load(),
	}
	if err != nil {
		return summary, fmt.Errorf("download service stopped: %w", err)
	}
	return summary, nil
}

func (s *DownloadService) runWorker(ctx context.Context, workerID int) error {
	s.logger.Debug("worker starting", "worker_id", workerID)
	for {
		rec, err := s.ledger.ClaimNext(ctx)
		if err != nil {
			return err
		}
		if rec == nil {
			s.logger.Debug("worker closing", "worker_id", workerID)
			return nil
		}
		s.processRecord(ctx, workerID, rec)
	}
}

func (s *DownloadService) processRecord(ctx context.Context, workerID int, rec *domain.Record) {
	startTime := time.Now()
	metrics.DownloadsTotal.Inc()

	var sink worker.ProgressSink
	if s.tracker != nil {
		sink = s.tracker.Sink(workerID)
	}

	result, err := s.downloader.Download(ctx, *rec, sink)
	if err != nil {
		// The record stays in progress for the rest of the run and is
		// reset to missing when the next run loads the ledger.
		s.failed.Add(1)
		metrics.DownloadsFailed.Inc()
		s.logger.Error("download failed", "worker_id", workerID, "name", rec.Name, "url", rec.URL, "error", err)
		return
	}

	// A finished file is recorded even if ctx was cancelled mid-way.
	if err := s.ledger.Finalize(context.WithoutCancel(ctx), rec.URL, result.FinalFile); err != nil {
		s.failed.Add(1)
		metrics.FinalizeFailed.Inc()
		s.logger.Error("finalize failed", "worker_id", workerID, "name", rec.Name, "url", rec.URL, "file_path", result.FinalFile, "error", err)
		return
	}

	s.completed.Add(1)
	s.bytes.Add(result.Bytes)
	if s.tracker != nil {
		s.tracker.ItemCompleted()
	}

	metrics.DownloadsSuccess.Inc()
	metrics.DownloadDuration.Observe(time.Since(startTime).Seconds())
	metrics.DownloadBytes.Add(float64(result.Bytes))
	if counts, err := s.ledger.Counts(ctx); err == nil {
		metrics.ObserveCounts(counts)
	}

	s.logger.Info("download completed",
		"worker_id", workerID,
		"name", rec.Name,
		"file_path", result.FinalFile,
		"size", progress.FormatBytes(result.Bytes),
	)
}
