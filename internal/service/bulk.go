package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"magistral/backend/internal/domain"
)

func (s *Service) ApplyMassSettlement(ctx context.Context, req domain.MassSettlementRequest) (domain.BulkResult, error) {
	if len(req.VendaIDs) == 0 {
		return domain.BulkResult{}, invalid("venda_ids is required")
	}
	if !req.Tipo.Valid() {
		return domain.BulkResult{}, invalid("unknown tipo %q", req.Tipo)
	}
	date, err := parseDate("data_baixa", req.DataBaixa)
	if err != nil {
		return domain.BulkResult{}, err
	}

	result := s.engine.ApplyMassSettlement(ctx, req.VendaIDs, req.Tipo, date, req.Observacao)
	s.afterBulk(ctx, "mass_settlement", result, true,
		fmt.Sprintf("tipo=%s,data_baixa=%s", req.Tipo, date.Format(domain.DateLayout)))
	return result, nil
}

func (s *Service) CloseMany(ctx context.Context, req domain.BulkClosureRequest) (domain.BulkResult, error) {
	if len(req.VendaIDs) == 0 {
		return domain.BulkResult{}, invalid("venda_ids is required")
	}
	closedAt, err := parseOptionalDate("data_fechamento", req.DataFechamento)
	if err != nil {
		return domain.BulkResult{}, err
	}

	result := s.engine.CloseMany(ctx, req.VendaIDs, closedAt)
	s.afterBulk(ctx, "close", result, false, "bulk")
	return result, nil
}

func (s *Service) CancelClosureMany(ctx context.Context, req domain.BulkCancelClosureRequest) (domain.BulkResult, error) {
	if len(req.VendaIDs) == 0 {
		return domain.BulkResult{}, invalid("venda_ids is required")
	}

	result := s.engine.CancelClosureMany(ctx, req.VendaIDs)
	s.afterBulk(ctx, "cancel_closure", result, false, "bulk")
	return result, nil
}

// afterBulk runs the per-sale side effects for every sale the batch changed.
func (s *Service) afterBulk(ctx context.Context, op string, result domain.BulkResult, ledgerChanged bool, detail string) {
	s.metrics.BulkItems(op, len(result.Sucesso), len(result.Falhas))
	if ledgerChanged {
		s.invalidate(ctx, result.Sucesso...)
	}
	for _, id := range result.Sucesso {
		s.logAudit(ctx, s.unidadeOf(ctx, id), "bulk_"+op, "venda", id, detail)
	}
	if len(result.Falhas) > 0 {
		s.logger.Info("bulk operation had failures",
			zap.String("op", op),
			zap.Int("failed", len(result.Falhas)))
	}
}

// unidadeOf returns the sale's unit, or "" (the default unit) when the sale
// cannot be read.
func (s *Service) unidadeOf(ctx context.Context, saleID string) string {
	venda, err := s.repo.GetVenda(ctx, saleID)
	if err != nil {
		s.logger.Warn("resolve unidade for audit", zap.String("venda_id", saleID), zap.Error(err))
		return ""
	}
	return venda.Unidade
}
