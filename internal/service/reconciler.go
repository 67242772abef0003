package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veranemoloko/index-mirror/internal/domain"
	"github.com/veranemoloko/index-mirror/internal/metrics"
	repo "github.com/veranemoloko/index-mirror/internal/repository"
)

// Reconciler merges freshly discovered descriptors into the ledger without
// touching records it already tracks.
type Reconciler struct {
	ledger repo.LedgerRepo
	logger *slog.Logger
}

// NewReconciler creates a Reconciler for ledger.
func NewReconciler(ledger repo.LedgerRepo, logger *slog.Logger) *Reconciler {
	return &Reconciler{ledger: ledger, logger: logger}
}

// Reconcile inserts a missing record for every descriptor whose URL is new
// and returns how many were added. The ledger is saved afterwards even when
// nothing was added, so load-time crash recovery reaches disk before any
// worker starts.
func (r *Reconciler) Reconcile(ctx context.Context, descriptors []domain.Descriptor) (int, error) {
	added := 0
	for _, d := range descriptors {
		inserted, err := r.ledger.Upsert(ctx, d)
		if err != nil {
			return added, fmt.Errorf("failed to add %s: %w", d.URL, err)
		}
		if inserted {
			added++
		}
	}

	if err := r.ledger.Save(ctx); err != nil {
		return added, fmt.Errorf("failed to save reconciled ledger: %w", err)
	}

	metrics.RecordsDiscovered.Add(float64(added))
	r.logger.Info("ledger reconciled", "discovered", len(descriptors), "added", added)
	return added, nil
}
