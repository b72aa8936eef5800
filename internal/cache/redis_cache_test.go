package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magistral/backend/internal/domain"
)

func TestRedisBaixaCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("MAGISTRAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MAGISTRAL_TEST_REDIS_ADDR is not set")
	}
	client := NewRedisClient(addr, "", 0)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	c := NewRedisBaixaCache(client)
	saleID := "venda-cache-test"
	t.Cleanup(func() { _ = c.Invalidate(ctx, saleID) })

	_, ok, err := c.Get(ctx, saleID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	entries := []domain.Baixa{{ID: "baixa-1", VendaID: saleID, Tipo: domain.TipoDinheiro, Valor: decimal.RequireFromString("12.34")}}
	require.NoError(t, c.Set(ctx, saleID, 1, entries, time.Minute))

	got, ok, err := c.Get(ctx, saleID, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "12.34", got[0].Valor.StringFixed(2))

	_, ok, err = c.Get(ctx, saleID, 2)
	require.NoError(t, err)
	assert.False(t, ok, "entries stored for version 1 must not serve version 2")

	require.NoError(t, c.Invalidate(ctx, saleID))
	_, ok, err = c.Get(ctx, saleID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopBaixaCacheNeverHits(t *testing.T) {
	var c BaixaCache = NoopBaixaCache{}
	require.NoError(t, c.Set(context.Background(), "v", 1, []domain.Baixa{{ID: "b"}}, time.Minute))
	_, ok, err := c.Get(context.Background(), "v", 1)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Invalidate(context.Background(), "v"))
}
