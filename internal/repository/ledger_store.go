package repository

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/veranemoloko/index-mirror/internal/domain"
	errpkg "github.com/veranemoloko/index-mirror/internal/errors"
)

// LedgerStore is the durable, ordered work ledger. A single mutex guards
// every read and write; the slice order is the claim order.
type LedgerStore struct {
	mu      sync.Mutex
	records []domain.Record
	byURL   map[string]int
	// next is the lowest index that may still be Missing. Records never
	// return to Missing during a run and Upsert appends, so it only grows.
	next int
	file string
}

// NewLedgerStore loads the ledger at filePath, creating an empty one with a
// header if the file does not exist. Records found in progress are reset to
// missing.
func NewLedgerStore(filePath string) (*LedgerStore, error) {
	s := &LedgerStore{
		byURL: make(map[string]int),
		file:  filepath.Clean(filePath),
	}

	if err := s.restoreRecords(); err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	slog.Info("Ledger initialized", "file_path", s.file, "records_count", len(s.records))
	return s, nil
}

func (s *LedgerStore) restoreRecords() error {
	data, err := os.ReadFile(s.file)
	if os.IsNotExist(err) {
		slog.Info("Ledger file does not exist, creating empty ledger", "file_path", s.file)
		return s.persistLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger file: %w", err)
	}

	if len(data) == 0 {
		slog.Warn("Ledger file is empty", "file_path", s.file)
		return nil
	}

	records, err := readLedger(bytes.NewReader(data))
	if err != nil {
		return err
	}

	for _, rec := range records {
		if _, dup := s.byURL[rec.URL]; dup {
			slog.Warn("Duplicate ledger record ignored", "url", rec.URL, "name", rec.Name)
			continue
		}
		s.byURL[rec.URL] = len(s.records)
		s.records = append(s.records, rec)
	}

	return nil
}

// persistLocked rewrites the whole ledger through a synced temp file and a
// rename, so a reader never observes a partial ledger. Callers hold mu.
func (s *LedgerStore) persistLocked() error {
	dir := filepath.Dir(s.file)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.file)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeLedger(tmp, s.records); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpName, s.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	syncDir(dir)

	slog.Debug("Ledger saved to file", "records_count", len(s.records), "file_path", s.file)
	return nil
}

// syncDir makes the rename durable where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// Path returns the ledger file location.
func (s *LedgerStore) Path() string {
	return s.file
}

// ClaimNext marks the first missing record as in progress and returns a copy
// of it. It returns nil when there is nothing left to claim.
func (s *LedgerStore) ClaimNext(ctx context.Context) (*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for ; s.next < len(s.records); s.next++ {
		rec := &s.records[s.next]
		if rec.Status != domain.StatusMissing {
			continue
		}
		rec.Status = domain.StatusInProgress
		s.next++

		claimed := *rec
		return &claimed, nil
	}

	return nil, nil
}

// Finalize marks a claimed record as done and persists the ledger before
// returning.
func (s *LedgerStore) Finalize(ctx context.Context, url, finalFile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if finalFile == "" {
		return fmt.Errorf("finalize %s: %w", url, errpkg.ErrEmptyFinalFile)
	}
	if info, err := os.Stat(filepath.Dir(finalFile)); err != nil || !info.IsDir() {
		return fmt.Errorf("finalize %s: %w: %s", url, errpkg.ErrOutputDirMissing, filepath.Dir(finalFile))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byURL[url]
	if !ok {
		return fmt.Errorf("finalize %s: %w", url, errpkg.ErrRecordNotFound)
	}

	rec := &s.records[idx]
	if !rec.Status.CanTransition(domain.StatusDone) {
		return fmt.Errorf("finalize %s (status %s): %w", url, rec.Status, errpkg.ErrNotClaimed)
	}

	prev := *rec
	rec.Status = domain.StatusDone
	rec.FinalFile = finalFile

	if err := s.persistLocked(); err != nil {
		*rec = prev
		return fmt.Errorf("failed to save ledger after finalizing %s: %w", url, err)
	}

	slog.Debug("Record finalized and saved", "url", url, "final_file", finalFile)
	return nil
}

// Upsert appends a missing record for d unless a record with the same URL
// is already tracked. It reports whether a record was inserted.
func (s *LedgerStore) Upsert(ctx context.Context, d domain.Descriptor) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byURL[d.URL]; exists {
		return false, nil
	}

	s.byURL[d.URL] = len(s.records)
	s.records = append(s.records, domain.NewRecord(d))
	return true, nil
}

// Snapshot returns a copy of all records in ledger order.
func (s *LedgerStore) Snapshot(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Counts returns a per-status tally of the ledger.
func (s *LedgerStore) Counts(ctx context.Context) (domain.Counts, error) {
	if err := ctx.Err(); err != nil {
		return domain.Counts{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var c domain.Counts
	for _, rec := range s.records {
		c.Add(rec.Status)
	}
	return c, nil
}

// Save persists the current ledger.
func (s *LedgerStore) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}
