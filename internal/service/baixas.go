package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/settlement"
)

func (s *Service) ListBaixas(ctx context.Context, saleID string) (domain.BaixaListResponse, error) {
	venda, err := s.repo.GetVenda(ctx, saleID)
	if err != nil {
		return domain.BaixaListResponse{}, err
	}
	entries, err := s.ledgerEntries(ctx, *venda)
	if err != nil {
		return domain.BaixaListResponse{}, err
	}
	return domain.BaixaListResponse{
		VendaID:      saleID,
		Baixas:       entries,
		TotalBaixado: domain.SumBaixas(entries),
	}, nil
}

// ledgerEntries reads a sale's entries through the cache, keyed by the sale
// version. Cache failures fall back to the store.
func (s *Service) ledgerEntries(ctx context.Context, venda domain.Venda) ([]domain.Baixa, error) {
	cached, ok, err := s.cache.Get(ctx, venda.ID, venda.Version)
	if err != nil {
		s.logger.Warn("read baixa cache", zap.String("venda_id", venda.ID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	entries, err := s.repo.Entries(ctx, venda.ID)
	if err != nil {
		return nil, err
	}

	// Entries only belong to venda.Version if no commit landed in between.
	current, err := s.repo.GetVenda(ctx, venda.ID)
	if err != nil || current.Version != venda.Version {
		return entries, nil
	}
	if err := s.cache.Set(ctx, venda.ID, venda.Version, entries, s.cacheTTL); err != nil {
		s.logger.Warn("write baixa cache", zap.String("venda_id", venda.ID), zap.Error(err))
	}
	return entries, nil
}

func (s *Service) RecordBaixa(ctx context.Context, saleID string, req domain.BaixaCreateRequest) (domain.Baixa, error) {
	date, err := parseDate("data_baixa", req.DataBaixa)
	if err != nil {
		return domain.Baixa{}, err
	}

	created, err := s.engine.RecordSettlement(ctx, settlement.RecordInput{
		SaleID: saleID,
		Type:   req.Tipo,
		Amount: req.Valor,
		Date:   date,
		Note:   req.Observacao,
	})
	if err := s.record("record", err); err != nil {
		return domain.Baixa{}, err
	}

	s.invalidate(ctx, saleID)
	s.logAudit(ctx, created.Sale.Unidade, "baixa_create", "venda", saleID,
		fmt.Sprintf("baixa=%s,tipo=%s,valor=%s", created.ID, created.Tipo, created.Valor.StringFixed(2)))
	return created.Baixa, nil
}

func (s *Service) UpdateBaixa(ctx context.Context, entryID string, req domain.BaixaUpdateRequest) (domain.Baixa, error) {
	in := settlement.UpdateInput{
		EntryID: entryID,
		Amount:  req.Valor,
		Type:    req.Tipo,
		Note:    req.Observacao,
	}
	if req.DataBaixa != nil {
		date, err := parseDate("data_baixa", *req.DataBaixa)
		if err != nil {
			return domain.Baixa{}, err
		}
		in.Date = &date
	}
	if in.Amount == nil && in.Type == nil && in.Date == nil && in.Note == nil {
		return domain.Baixa{}, invalid("no fields to update")
	}

	updated, err := s.engine.UpdateSettlement(ctx, in)
	if err := s.record("update", err); err != nil {
		return domain.Baixa{}, err
	}

	s.invalidate(ctx, updated.VendaID)
	s.logAudit(ctx, updated.Sale.Unidade, "baixa_update", "venda", updated.VendaID,
		fmt.Sprintf("baixa=%s,tipo=%s,valor=%s", updated.ID, updated.Tipo, updated.Valor.StringFixed(2)))
	return updated.Baixa, nil
}

func (s *Service) RemoveBaixa(ctx context.Context, entryID string) error {
	removed, err := s.engine.RemoveSettlement(ctx, entryID)
	if err := s.record("remove", err); err != nil {
		return err
	}

	s.invalidate(ctx, removed.VendaID)
	s.logAudit(ctx, removed.Sale.Unidade, "baixa_delete", "venda", removed.VendaID,
		fmt.Sprintf("baixa=%s,valor=%s", removed.ID, removed.Valor.StringFixed(2)))
	return nil
}

func (s *Service) CloseVenda(ctx context.Context, saleID string, req domain.FechamentoRequest) (domain.Venda, error) {
	closedAt, err := parseOptionalDate("data_fechamento", req.DataFechamento)
	if err != nil {
		return domain.Venda{}, err
	}

	closed, err := s.engine.Close(ctx, saleID, closedAt)
	if err := s.record("close", err); err != nil {
		return domain.Venda{}, err
	}

	s.logAudit(ctx, closed.Unidade, "venda_close", "venda", saleID,
		"data_fechamento="+closed.DataFechamento.Format(domain.DateLayout))
	return *closed, nil
}

func (s *Service) CancelClosure(ctx context.Context, saleID string) (domain.Venda, error) {
	reopened, err := s.engine.CancelClosure(ctx, saleID)
	if err := s.record("cancel_closure", err); err != nil {
		return domain.Venda{}, err
	}

	s.logAudit(ctx, reopened.Unidade, "venda_cancel_closure", "venda", saleID, "status="+string(reopened.Status))
	return *reopened, nil
}
