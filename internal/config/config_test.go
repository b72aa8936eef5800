package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("BULK_CONCURRENCY", "-3")
	t.Setenv("LOCK_TTL_SECONDS", "abc")
	t.Setenv("BAIXA_CACHE_TTL_SECONDS", "15")
	t.Setenv("METRICS_ENABLED", "nope")

	cfg := Load()
	if cfg.BulkConcurrency != 4 {
		t.Fatalf("expected default bulk concurrency 4, got %d", cfg.BulkConcurrency)
	}
	if cfg.LockTTL() != 30*time.Second {
		t.Fatalf("expected default lock ttl, got %s", cfg.LockTTL())
	}
	if cfg.BaixaCacheTTL() != 15*time.Second {
		t.Fatalf("expected 15s cache ttl, got %s", cfg.BaixaCacheTTL())
	}
	if !cfg.MetricsEnabled {
		t.Fatalf("expected metrics enabled on unparsable value")
	}
}

func TestLoadDefaultUnidade(t *testing.T) {
	t.Setenv("DEFAULT_UNIDADE", "")
	if got := Load().DefaultUnidade; got != "matriz" {
		t.Fatalf("expected matriz, got %q", got)
	}
	t.Setenv("DEFAULT_UNIDADE", "filial-2")
	if got := Load().DefaultUnidade; got != "filial-2" {
		t.Fatalf("expected filial-2, got %q", got)
	}
}
