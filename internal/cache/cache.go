package cache

import (
	"context"
	"time"

	"magistral/backend/internal/domain"
)

// BaixaCache holds the settlement entries of a sale, keyed by sale id and the
// sale version they were read at. An entry stored for an old version is never
// served once the sale moves on. Every write to a sale's ledger must still
// invalidate its key.
type BaixaCache interface {
	Get(ctx context.Context, saleID string, version int64) ([]domain.Baixa, bool, error)
	Set(ctx context.Context, saleID string, version int64, entries []domain.Baixa, ttl time.Duration) error
	Invalidate(ctx context.Context, saleIDs ...string) error
}

type NoopBaixaCache struct{}

func (NoopBaixaCache) Get(_ context.Context, _ string, _ int64) ([]domain.Baixa, bool, error) {
	return nil, false, nil
}

func (NoopBaixaCache) Set(_ context.Context, _ string, _ int64, _ []domain.Baixa, _ time.Duration) error {
	return nil
}

func (NoopBaixaCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
