package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/store"
	"magistral/backend/internal/xid"
)

// WithinSale locks the sale row for the life of one database transaction and
// commits only when fn succeeds.
func (s *Store) WithinSale(ctx context.Context, saleID string, fn func(tx store.SaleTx) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	venda, err := scanVenda(pgTx.QueryRowContext(ctx, `
		SELECT `+vendaColumns+`
		FROM vendas
		WHERE id = $1
		FOR UPDATE
	`, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	entries, err := listEntries(ctx, pgTx, saleID)
	if err != nil {
		return err
	}

	tx := &saleTx{tx: pgTx, sale: venda, entries: entries}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.dirty && !tx.deleted {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE vendas
			SET version = version + 1, updated_at = now()
			WHERE id = $1
		`, saleID); err != nil {
			return err
		}
	}
	return pgTx.Commit()
}

type saleTx struct {
	tx      *sql.Tx
	sale    domain.Venda
	entries []domain.Baixa
	deleted bool
	dirty   bool
}

func (t *saleTx) Sale() domain.Venda {
	return t.sale
}

func (t *saleTx) SetSale(ctx context.Context, sale domain.Venda) error {
	if t.deleted {
		return store.ErrNotFound
	}
	sale.ID = t.sale.ID
	_, err := t.tx.ExecContext(ctx, `
		UPDATE vendas
		SET unidade = $2, protocolo = $3, data_venda = $4, valor_cliente = $5, valor_compra = $6,
			valor_pago = $7, status = $8, data_fechamento = $9, data_envio = $10, origem = $11, observacao = $12
		WHERE id = $1
	`, sale.ID, sale.Unidade, sale.Protocolo, domain.DateOnly(sale.DataVenda), domain.RoundCents(sale.ValorCliente),
		nullDecimal(sale.ValorCompra), nullDecimal(sale.ValorPago), string(sale.Status),
		nullDate(sale.DataFechamento), nullDate(sale.DataEnvio), sale.Origem, sale.Observacao)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	t.sale = sale
	t.dirty = true
	return nil
}

func (t *saleTx) DeleteSale(ctx context.Context) error {
	if t.deleted {
		return store.ErrNotFound
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM vendas WHERE id = $1`, t.sale.ID); err != nil {
		return err
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
	return slices.Clone(t.entries), nil
}

func (t *saleTx) Entry(_ context.Context, entryID string) (*domain.Baixa, error) {
	idx := t.indexOf(entryID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	entry := t.entries[idx]
	return &entry, nil
}

func (t *saleTx) Append(ctx context.Context, entry domain.Baixa) (*domain.Baixa, error) {
	if t.deleted {
		return nil, store.ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = xid.New("baixa")
	}
	now := time.Now().UTC()
	entry.VendaID = t.sale.ID
	entry.Valor = domain.RoundCents(entry.Valor)
	entry.DataBaixa = domain.DateOnly(entry.DataBaixa)
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO baixas (`+baixaColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.VendaID, string(entry.Tipo), entry.Valor, entry.DataBaixa, entry.Observacao, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	t.entries = append(t.entries, entry)
	sortEntries(t.entries)
	t.dirty = true
	return &entry, nil
}

func (t *saleTx) Replace(ctx context.Context, entryID string, entry domain.Baixa) (*domain.Baixa, error) {
	idx := t.indexOf(entryID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	prev := t.entries[idx]
	entry.ID = prev.ID
	entry.VendaID = prev.VendaID
	entry.CreatedAt = prev.CreatedAt
	entry.Valor = domain.RoundCents(entry.Valor)
	entry.DataBaixa = domain.DateOnly(entry.DataBaixa)
	entry.UpdatedAt = time.Now().UTC()

	_, err := t.tx.ExecContext(ctx, `
		UPDATE baixas
		SET tipo = $2, valor = $3, data_baixa = $4, observacao = $5, updated_at = $6
		WHERE id = $1
	`, entry.ID, string(entry.Tipo), entry.Valor, entry.DataBaixa, entry.Observacao, entry.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.entries[idx] = entry
	sortEntries(t.entries)
	t.dirty = true
	return &entry, nil
}

func (t *saleTx) Remove(ctx context.Context, entryID string) error {
	idx := t.indexOf(entryID)
	if idx < 0 {
		return store.ErrNotFound
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM baixas WHERE id = $1`, entryID); err != nil {
		return err
	}
	t.entries = slices.Delete(t.entries, idx, idx+1)
	t.dirty = true
	return nil
}

func (t *saleTx) indexOf(entryID string) int {
	return slices.IndexFunc(t.entries, func(e domain.Baixa) bool { return e.ID == entryID })
}

func sortEntries(entries []domain.Baixa) {
	slices.SortStableFunc(entries, func(a, b domain.Baixa) int {
		if c := a.DataBaixa.Compare(b.DataBaixa); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
