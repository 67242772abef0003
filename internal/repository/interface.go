package repository

import (
	"context"

	"github.com/veranemoloko/index-mirror/internal/domain"
)

// LedgerRepo defines the work ledger operations shared by the reconciler,
// the worker pool and the status API.
type LedgerRepo interface {
	ClaimNext(ctx context.Context) (*domain.Record, error)
	Finalize(ctx context.Context, url, finalFile string) error
	Upsert(ctx context.Context, d domain.Descriptor) (bool, error)
	Snapshot(ctx context.Context) ([]domain.Record, error)
	Counts(ctx context.Context) (domain.Counts, error)
	Save(ctx context.Context) error
}
