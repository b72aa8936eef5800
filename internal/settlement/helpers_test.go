package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/store"
	"magistral/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	repo := memory.New()
	engine := New(repo, Options{
		BulkConcurrency: 3,
		Logger:          zaptest.NewLogger(t),
		Now:             func() time.Time { return fixedNow },
	})
	return engine, repo
}

func createSale(t *testing.T, repo store.Repository, protocolo string, due string) domain.Venda {
	t.Helper()
	venda, err := repo.CreateVenda(context.Background(), domain.Venda{
		Unidade:      "matriz",
		Protocolo:    protocolo,
		DataVenda:    fixedNow,
		ValorCliente: dec(due),
	})
	require.NoError(t, err)
	return *venda
}

// forceSale writes a sale state and ledger directly, bypassing every rule.
// It builds fixtures the engine itself would refuse to produce.
func forceSale(t *testing.T, repo store.Repository, saleID string, status domain.VendaStatus, amounts ...string) {
	t.Helper()
	ctx := context.Background()
	err := repo.WithinSale(ctx, saleID, func(tx store.SaleTx) error {
		for _, amount := range amounts {
			if _, err := tx.Append(ctx, domain.Baixa{Tipo: domain.TipoDinheiro, Valor: dec(amount), DataBaixa: fixedNow}); err != nil {
				return err
			}
		}
		sale := tx.Sale()
		sale.Status = status
		return tx.SetSale(ctx, sale)
	})
	require.NoError(t, err)
}

func record(t *testing.T, e *Engine, saleID string, amount string) (*EntryChange, error) {
	t.Helper()
	return e.RecordSettlement(context.Background(), RecordInput{
		SaleID: saleID,
		Type:   domain.TipoCartaoPix,
		Amount: dec(amount),
		Date:   fixedNow,
	})
}

func requireState(t *testing.T, repo store.Repository, saleID string, status domain.VendaStatus, total string) {
	t.Helper()
	sale, err := repo.GetVenda(context.Background(), saleID)
	require.NoError(t, err)
	require.Equal(t, status, sale.Status)
	settled, err := repo.TotalSettled(context.Background(), saleID)
	require.NoError(t, err)
	require.Equal(t, total, settled.StringFixed(2))
}
