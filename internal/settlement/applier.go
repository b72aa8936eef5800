package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/lock"
	"magistral/backend/internal/store"
)

type RecordInput struct {
	SaleID string
	Type   domain.TipoBaixa
	Amount decimal.Decimal
	Date   time.Time
	Note   string
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	EntryID string
	Amount  *decimal.Decimal
	Type    *domain.TipoBaixa
	Date    *time.Time
	Note    *string
}

// EntryChange is a ledger entry together with the sale as written by the same
// transaction.
type EntryChange struct {
	domain.Baixa
	Sale domain.Venda
}

// Applier records, edits and removes settlement entries. Every operation
// validates against the locked sale before writing anything, then leaves the
// sale status in line with its ledger.
type Applier struct {
	repo   store.Repository
	locker lock.Locker
	now    func() time.Time
}

func NewApplier(repo store.Repository, locker lock.Locker, now func() time.Time) *Applier {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Applier{repo: repo, locker: locker, now: now}
}

func (a *Applier) RecordSettlement(ctx context.Context, in RecordInput) (*EntryChange, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, in.Type)
	}
	amount := domain.RoundCents(in.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var change *EntryChange
	err := withSale(ctx, a.repo, a.locker, in.SaleID, func(tx store.SaleTx) error {
		sale := tx.Sale()
		if err := checkMutable(sale); err != nil {
			return err
		}
		total, err := tx.TotalSettled(ctx, sale.ID)
		if err != nil {
			return err
		}
		if remaining := Remaining(sale.ValorCliente, total); amount.GreaterThan(remaining) {
			return fmt.Errorf("%w: remaining balance is %s", ErrOverSettlement, remaining.StringFixed(2))
		}
		status, err := NextStatus(sale.ValorCliente, total.Add(amount), sale.Status)
		if err != nil {
			return err
		}

		created, err := tx.Append(ctx, domain.Baixa{
			VendaID:    sale.ID,
			Tipo:       in.Type,
			Valor:      amount,
			DataBaixa:  a.dateOrToday(in.Date),
			Observacao: strings.TrimSpace(in.Note),
		})
		if err != nil {
			return err
		}
		sale.Status = status
		if err := tx.SetSale(ctx, sale); err != nil {
			return err
		}
		change = &EntryChange{Baixa: *created, Sale: committedSale(sale, a.now())}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// SettleRemaining records one entry covering the sale's whole remaining
// balance. It is the per-sale step of a mass settlement.
func (a *Applier) SettleRemaining(ctx context.Context, saleID string, tipo domain.TipoBaixa, date time.Time, note string) (*EntryChange, error) {
	if !tipo.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, tipo)
	}

	var change *EntryChange
	err := withSale(ctx, a.repo, a.locker, saleID, func(tx store.SaleTx) error {
		sale := tx.Sale()
		if err := checkMutable(sale); err != nil {
			return err
		}
		total, err := tx.TotalSettled(ctx, sale.ID)
		if err != nil {
			return err
		}
		remaining := Remaining(sale.ValorCliente, total)
		if !remaining.IsPositive() {
			return ErrNothingToSettle
		}
		status, err := NextStatus(sale.ValorCliente, total.Add(remaining), sale.Status)
		if err != nil {
			return err
		}

		created, err := tx.Append(ctx, domain.Baixa{
			VendaID:    sale.ID,
			Tipo:       tipo,
			Valor:      remaining,
			DataBaixa:  a.dateOrToday(date),
			Observacao: strings.TrimSpace(note),
		})
		if err != nil {
			return err
		}
		sale.Status = status
		if err := tx.SetSale(ctx, sale); err != nil {
			return err
		}
		change = &EntryChange{Baixa: *created, Sale: committedSale(sale, a.now())}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (a *Applier) UpdateSettlement(ctx context.Context, in UpdateInput) (*EntryChange, error) {
	if in.Type != nil && !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, *in.Type)
	}
	if in.Amount != nil && !domain.RoundCents(*in.Amount).IsPositive() {
		return nil, ErrInvalidAmount
	}

	entry, err := a.repo.FindBaixaByID(ctx, in.EntryID)
	if err != nil {
		return nil, err
	}

	var change *EntryChange
	err = withSale(ctx, a.repo, a.locker, entry.VendaID, func(tx store.SaleTx) error {
		sale := tx.Sale()
		if err := checkMutable(sale); err != nil {
			return err
		}
		current, err := tx.Entry(ctx, in.EntryID)
		if err != nil {
			return err
		}
		total, err := tx.TotalSettled(ctx, sale.ID)
		if err != nil {
			return err
		}

		next := *current
		if in.Amount != nil {
			next.Valor = domain.RoundCents(*in.Amount)
		}
		if in.Type != nil {
			next.Tipo = *in.Type
		}
		if in.Date != nil {
			next.DataBaixa = domain.DateOnly(*in.Date)
		}
		if in.Note != nil {
			next.Observacao = strings.TrimSpace(*in.Note)
		}

		others := total.Sub(domain.RoundCents(current.Valor))
		if remaining := Remaining(sale.ValorCliente, others); next.Valor.GreaterThan(remaining) {
			return fmt.Errorf("%w: remaining balance is %s", ErrOverSettlement, remaining.StringFixed(2))
		}
		status, err := NextStatus(sale.ValorCliente, others.Add(next.Valor), sale.Status)
		if err != nil {
			return err
		}

		updated, err := tx.Replace(ctx, in.EntryID, next)
		if err != nil {
			return err
		}
		sale.Status = status
		if err := tx.SetSale(ctx, sale); err != nil {
			return err
		}
		change = &EntryChange{Baixa: *updated, Sale: committedSale(sale, a.now())}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// RemoveSettlement deletes an entry and returns it as it was before removal.
func (a *Applier) RemoveSettlement(ctx context.Context, entryID string) (*EntryChange, error) {
	entry, err := a.repo.FindBaixaByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	var change *EntryChange
	err = withSale(ctx, a.repo, a.locker, entry.VendaID, func(tx store.SaleTx) error {
		sale := tx.Sale()
		if err := checkMutable(sale); err != nil {
			return err
		}
		current, err := tx.Entry(ctx, entryID)
		if err != nil {
			return err
		}
		total, err := tx.TotalSettled(ctx, sale.ID)
		if err != nil {
			return err
		}
		status, err := NextStatus(sale.ValorCliente, total.Sub(domain.RoundCents(current.Valor)), sale.Status)
		if err != nil {
			return err
		}

		if err := tx.Remove(ctx, entryID); err != nil {
			return err
		}
		sale.Status = status
		if err := tx.SetSale(ctx, sale); err != nil {
			return err
		}
		change = &EntryChange{Baixa: *current, Sale: committedSale(sale, a.now())}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// committedSale reflects the version bump every store applies when a dirty
// sale transaction commits.
func committedSale(sale domain.Venda, now time.Time) domain.Venda {
	sale.Version++
	sale.UpdatedAt = now
	return sale
}

func (a *Applier) dateOrToday(date time.Time) time.Time {
	if date.IsZero() {
		return domain.DateOnly(a.now())
	}
	return domain.DateOnly(date)
}

// withSale serializes work on one sale: the per-sale lock is taken first, then
// the store transaction.
func withSale(ctx context.Context, repo store.Repository, locker lock.Locker, saleID string, fn func(tx store.SaleTx) error) error {
	if strings.TrimSpace(saleID) == "" {
		return ErrNotFound
	}
	release, err := locker.Acquire(ctx, saleID)
	if err != nil {
		return err
	}
	defer release()
	return repo.WithinSale(ctx, saleID, fn)
}
