package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/lock"
	"magistral/backend/internal/store"
)

type ClosureCoordinator struct {
	repo   store.Repository
	locker lock.Locker
	now    func() time.Time
}

func NewClosureCoordinator(repo store.Repository, locker lock.Locker, now func() time.Time) *ClosureCoordinator {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ClosureCoordinator{repo: repo, locker: locker, now: now}
}

// CheckClosureEligibility requires status PAGO and a ledger that matches the
// due amount to the cent. The status alone is not trusted.
func CheckClosureEligibility(sale domain.Venda, settled decimal.Decimal) error {
	if sale.Status != domain.StatusPago {
		return fmt.Errorf("%w: status is %s", ErrNotEligibleForClosure, sale.Status)
	}
	due := domain.RoundCents(sale.ValorCliente)
	settled = domain.RoundCents(settled)
	if !settled.Equal(due) {
		return fmt.Errorf("%w: settled %s of %s", ErrNotEligibleForClosure, settled.StringFixed(2), due.StringFixed(2))
	}
	return nil
}

func CheckCancellationEligibility(sale domain.Venda) error {
	if sale.Status != domain.StatusFechado {
		return fmt.Errorf("%w: status is %s", ErrNotEligibleForCancellation, sale.Status)
	}
	return nil
}

// Close moves a fully settled sale to FECHADO. A nil closedAt uses today.
// The returned sale is the state written by this call, not a later read.
func (c *ClosureCoordinator) Close(ctx context.Context, saleID string, closedAt *time.Time) (*domain.Venda, error) {
	var closed domain.Venda
	err := withSale(ctx, c.repo, c.locker, saleID, func(tx store.SaleTx) error {
		sale := tx.Sale()
		total, err := tx.TotalSettled(ctx, sale.ID)
		if err != nil {
			return err
		}
		if err := CheckClosureEligibility(sale, total); err != nil {
			return err
		}

		date := domain.DateOnly(c.now())
		if closedAt != nil && !closedAt.IsZero() {
			date = domain.DateOnly(*closedAt)
		}
		sale.Status = domain.StatusFechado
		sale.DataFechamento = &date
		if err := tx.SetSale(ctx, sale); err != nil {
			return err
		}
		closed = committedSale(sale, c.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &closed, nil
}

// CancelClosure reopens a closed sale. It returns to PAGO, the only status a
// sale can be closed from, and its ledger becomes editable again.
func (c *ClosureCoordinator) CancelClosure(ctx context.Context, saleID string) (*domain.Venda, error) {
	var reopened domain.Venda
	err := withSale(ctx, c.repo, c.locker, saleID, func(tx store.SaleTx) error {
		sale := tx.Sale()
		if err := CheckCancellationEligibility(sale); err != nil {
			return err
		}
		sale.Status = domain.StatusPago
		sale.DataFechamento = nil
		if err := tx.SetSale(ctx, sale); err != nil {
			return err
		}
		reopened = committedSale(sale, c.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reopened, nil
}

