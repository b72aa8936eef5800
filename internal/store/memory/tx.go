package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/store"
	"magistral/backend/internal/xid"
)

type saleTx struct {
	sale    domain.Venda
	entries []domain.Baixa
	deleted bool
	dirty   bool
	now     func() time.Time
}

func (t *saleTx) Sale() domain.Venda {
	return cloneVenda(t.sale)
}

func (t *saleTx) SetSale(_ context.Context, sale domain.Venda) error {
	if t.deleted {
		return store.ErrNotFound
	}
	sale.ID = t.sale.ID
	t.sale = cloneVenda(sale)
	t.dirty = true
	return nil
}

func (t *saleTx) DeleteSale(_ context.Context) error {
	if t.deleted {
		return store.ErrNotFound
	}
	t.deleted = true
	t.entries = nil
	t.dirty = true
	return nil
}

func (t *saleTx) TotalSettled(_ context.Context, _ string) (decimal.Decimal, error) {
	return domain.SumBaixas(t.entries), nil
}

func (t *saleTx) Entries(_ context.Context, _ string) ([]domain.Baixa, error) {
	out := make([]domain.Baixa, len(t.entries))
	copy(out, t.entries)
	return out, nil
}

func (t *saleTx) Entry(_ context.Context, entryID string) (*domain.Baixa, error) {
	idx := t.indexOf(entryID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	entry := t.entries[idx]
	return &entry, nil
}

func (t *saleTx) Append(_ context.Context, entry domain.Baixa) (*domain.Baixa, error) {
	if t.deleted {
		return nil, store.ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = xid.New("baixa")
	}
	if t.indexOf(entry.ID) >= 0 {
		return nil, store.ErrDuplicate
	}
	now := t.now()
	entry.VendaID = t.sale.ID
	entry.CreatedAt = now
	entry.UpdatedAt = now
	t.entries = append(t.entries, entry)
	sortEntries(t.entries)
	t.dirty = true
	return &entry, nil
}

func (t *saleTx) Replace(_ context.Context, entryID string, entry domain.Baixa) (*domain.Baixa, error) {
	idx := t.indexOf(entryID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	prev := t.entries[idx]
	entry.ID = prev.ID
	entry.VendaID = prev.VendaID
	entry.CreatedAt = prev.CreatedAt
	entry.UpdatedAt = t.now()
	t.entries[idx] = entry
	sortEntries(t.entries)
	t.dirty = true
	return &entry, nil
}

func (t *saleTx) Remove(_ context.Context, entryID string) error {
	idx := t.indexOf(entryID)
	if idx < 0 {
		return store.ErrNotFound
	}
	t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
	t.dirty = true
	return nil
}

func (t *saleTx) indexOf(entryID string) int {
	for i, entry := range t.entries {
		if entry.ID == entryID {
			return i
		}
	}
	return -1
}
