package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/store"
)

const defaultBulkConcurrency = 4

// BulkCoordinator fans a single-sale operation out over many sale ids. Each
// sale is its own transaction; one failure never stops or rolls back another.
type BulkCoordinator struct {
	reader      store.Repository
	applier     *Applier
	closure     *ClosureCoordinator
	concurrency int
	logger      *zap.Logger
}

func NewBulkCoordinator(reader store.Repository, applier *Applier, closure *ClosureCoordinator, concurrency int, logger *zap.Logger) *BulkCoordinator {
	if concurrency <= 0 {
		concurrency = defaultBulkConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkCoordinator{
		reader:      reader,
		applier:     applier,
		closure:     closure,
		concurrency: concurrency,
		logger:      logger,
	}
}

type bulkOp struct {
	name string
	// precheck runs against an unlocked read so obviously ineligible sales
	// are reported without opening a transaction.
	precheck func(sale domain.Venda, settled decimal.Decimal) error
	apply    func(ctx context.Context, saleID string) error
}

type bulkOutcome struct {
	id        string
	protocolo string
	err       error
}

// ApplyMassSettlement settles the remaining balance of every listed sale with
// the same type, date and note.
func (b *BulkCoordinator) ApplyMassSettlement(ctx context.Context, saleIDs []string, tipo domain.TipoBaixa, date time.Time, note string) domain.BulkResult {
	return b.run(ctx, saleIDs, bulkOp{
		name: "mass_settlement",
		precheck: func(sale domain.Venda, settled decimal.Decimal) error {
			if !tipo.Valid() {
				return fmt.Errorf("%w: %q", ErrInvalidType, tipo)
			}
			if err := checkMutable(sale); err != nil {
				return err
			}
			if !Remaining(sale.ValorCliente, settled).IsPositive() {
				return ErrNothingToSettle
			}
			return nil
		},
		apply: func(ctx context.Context, saleID string) error {
			_, err := b.applier.SettleRemaining(ctx, saleID, tipo, date, note)
			return err
		},
	})
}

func (b *BulkCoordinator) CloseMany(ctx context.Context, saleIDs []string, closedAt *time.Time) domain.BulkResult {
	return b.run(ctx, saleIDs, bulkOp{
		name:     "close",
		precheck: CheckClosureEligibility,
		apply: func(ctx context.Context, saleID string) error {
			_, err := b.closure.Close(ctx, saleID, closedAt)
			return err
		},
	})
}

func (b *BulkCoordinator) CancelClosureMany(ctx context.Context, saleIDs []string) domain.BulkResult {
	return b.run(ctx, saleIDs, bulkOp{
		name: "cancel_closure",
		precheck: func(sale domain.Venda, _ decimal.Decimal) error {
			return CheckCancellationEligibility(sale)
		},
		apply: func(ctx context.Context, saleID string) error {
			_, err := b.closure.CancelClosure(ctx, saleID)
			return err
		},
	})
}

func (b *BulkCoordinator) run(ctx context.Context, saleIDs []string, op bulkOp) domain.BulkResult {
	ids := dedupeIDs(saleIDs)
	outcomes := make([]bulkOutcome, len(ids))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = b.processOne(ctx, id, op)
			return nil
		})
	}
	_ = g.Wait()

	result := domain.BulkResult{
		Sucesso: make([]string, 0, len(ids)),
		Falhas:  make([]domain.BulkFailure, 0),
	}
	for _, out := range outcomes {
		if out.err == nil {
			result.Sucesso = append(result.Sucesso, out.id)
			continue
		}
		if !IsDomainError(out.err) {
			b.logger.Error("bulk item failed",
				zap.String("op", op.name),
				zap.String("venda_id", out.id),
				zap.Error(out.err))
		}
		result.Falhas = append(result.Falhas, domain.BulkFailure{
			ID:        out.id,
			Protocolo: out.protocolo,
			Motivo:    FailureReason(out.err),
		})
	}

	b.logger.Info("bulk operation finished",
		zap.String("op", op.name),
		zap.Int("requested", len(ids)),
		zap.Int("succeeded", len(result.Sucesso)),
		zap.Int("failed", len(result.Falhas)))
	return result
}

func (b *BulkCoordinator) processOne(ctx context.Context, saleID string, op bulkOp) (out bulkOutcome) {
	out.id = saleID
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}

	sale, err := b.reader.GetVenda(ctx, saleID)
	if err != nil {
		out.err = err
		return out
	}
	out.protocolo = sale.Protocolo

	if op.precheck != nil {
		settled, err := b.reader.TotalSettled(ctx, saleID)
		if err != nil {
			out.err = err
			return out
		}
		if err := op.precheck(*sale, settled); err != nil {
			out.err = err
			return out
		}
	}

	out.err = op.apply(ctx, saleID)
	return out
}

// dedupeIDs trims ids and drops blanks and repeats, keeping first occurrence
// order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
