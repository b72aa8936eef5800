package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"magistral/backend/internal/cache"
	"magistral/backend/internal/domain"
	"magistral/backend/internal/metrics"
	"magistral/backend/internal/settlement"
	"magistral/backend/internal/store"
	"magistral/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Cache          cache.BaixaCache
	CacheTTL       time.Duration
	Metrics        metrics.Recorder
	Logger         *zap.Logger
	DefaultUnidade string
	Now            func() time.Time
}

type Service struct {
	repo           store.Repository
	engine         *settlement.Engine
	cache          cache.BaixaCache
	cacheTTL       time.Duration
	metrics        metrics.Recorder
	logger         *zap.Logger
	defaultUnidade string
	now            func() time.Time
}

func New(repo store.Repository, engine *settlement.Engine, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopBaixaCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DefaultUnidade == "" {
		opts.DefaultUnidade = "matriz"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:           repo,
		engine:         engine,
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		defaultUnidade: opts.DefaultUnidade,
		now:            opts.Now,
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, unidade string, entityID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return s.repo.ListAuditLogs(ctx, strings.TrimSpace(unidade), strings.TrimSpace(entityID), limit)
}

func (s *Service) logAudit(ctx context.Context, unidade string, action string, entityType string, entityID string, detail string) {
	if unidade == "" {
		unidade = s.defaultUnidade
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		Unidade:       unidade,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, saleIDs ...string) {
	if len(saleIDs) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, saleIDs...); err != nil {
		s.logger.Warn("invalidate baixa cache", zap.Strings("venda_ids", saleIDs), zap.Error(err))
	}
}

// record counts the outcome of a single settlement operation and passes err
// through.
func (s *Service) record(op string, err error) error {
	s.metrics.Operation(op, outcomeOf(err))
	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case settlement.IsDomainError(err), errors.Is(err, store.ErrInvalidTransaction):
		return "rejected"
	default:
		return "error"
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

func parseDate(field string, raw string) (time.Time, error) {
	parsed, err := domain.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, invalid("%s must use YYYY-MM-DD", field)
	}
	return parsed, nil
}

func parseOptionalDate(field string, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parsed, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func nonNegativeMoney(field string, value *decimal.Decimal) (*decimal.Decimal, error) {
	if value == nil {
		return nil, nil
	}
	rounded := domain.RoundCents(*value)
	if rounded.IsNegative() {
		return nil, invalid("%s must not be negative", field)
	}
	return &rounded, nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
