package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"magistral/backend/internal/lock"
	"magistral/backend/internal/store"
)

type Options struct {
	Locker          lock.Locker
	BulkConcurrency int
	Logger          *zap.Logger
	Now             func() time.Time
}

// Engine bundles the single-sale and bulk settlement operations over one
// repository and one lock space.
type Engine struct {
	*Applier
	*ClosureCoordinator
	*BulkCoordinator
}

func New(repo store.Repository, opts Options) *Engine {
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	applier := NewApplier(repo, opts.Locker, opts.Now)
	closure := NewClosureCoordinator(repo, opts.Locker, opts.Now)
	return &Engine{
		Applier:            applier,
		ClosureCoordinator: closure,
		BulkCoordinator:    NewBulkCoordinator(repo, applier, closure, opts.BulkConcurrency, logger.Named("bulk")),
	}
}

// WithSale runs fn under the same per-sale lock and transaction the
// settlement operations use. Callers changing other sale fields go through it
// so their writes never interleave with a ledger change.
func (e *Engine) WithSale(ctx context.Context, saleID string, fn func(tx store.SaleTx) error) error {
	return withSale(ctx, e.Applier.repo, e.Applier.locker, saleID, fn)
}
