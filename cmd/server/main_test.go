package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"magistral/backend/internal/cache"
	"magistral/backend/internal/config"
	"magistral/backend/internal/lock"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", BulkConcurrency: 4})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", BulkConcurrency: 4})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRejectsZeroConcurrency(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err == nil {
		t.Fatalf("expected zero bulk concurrency to be rejected")
	}
}

func TestSetupRedisFallsBackWithoutAddress(t *testing.T) {
	baixaCache, locker, closer := setupRedis(context.Background(), config.Config{}, zap.NewNop())

	if _, ok := baixaCache.(cache.NoopBaixaCache); !ok {
		t.Fatalf("expected noop cache, got %T", baixaCache)
	}
	if _, ok := locker.(*lock.Local); !ok {
		t.Fatalf("expected local locker, got %T", locker)
	}
	if closer != nil {
		t.Fatalf("expected no closer without redis")
	}
}
