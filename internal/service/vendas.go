package service

import (
	"context"
	"fmt"
	"strings"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/settlement"
	"magistral/backend/internal/store"
)

func (s *Service) CreateVenda(ctx context.Context, req domain.VendaCreateRequest) (domain.Venda, error) {
	protocolo := strings.TrimSpace(req.Protocolo)
	if protocolo == "" {
		return domain.Venda{}, invalid("protocolo is required")
	}
	due := domain.RoundCents(req.ValorCliente)
	if !due.IsPositive() {
		return domain.Venda{}, invalid("valor_cliente must be greater than zero")
	}
	dataVenda, err := parseDate("data_venda", req.DataVenda)
	if err != nil {
		return domain.Venda{}, err
	}
	dataEnvio, err := parseOptionalDate("data_envio", req.DataEnvio)
	if err != nil {
		return domain.Venda{}, err
	}
	valorCompra, err := nonNegativeMoney("valor_compra", req.ValorCompra)
	if err != nil {
		return domain.Venda{}, err
	}
	valorPago, err := nonNegativeMoney("valor_pago", req.ValorPago)
	if err != nil {
		return domain.Venda{}, err
	}

	created, err := s.repo.CreateVenda(ctx, domain.Venda{
		Unidade:      defaultString(req.Unidade, s.defaultUnidade),
		Protocolo:    protocolo,
		DataVenda:    dataVenda,
		ValorCliente: due,
		ValorCompra:  valorCompra,
		ValorPago:    valorPago,
		Status:       domain.StatusRegistrado,
		DataEnvio:    dataEnvio,
		Origem:       strings.TrimSpace(req.Origem),
		Observacao:   strings.TrimSpace(req.Observacao),
	})
	if err != nil {
		return domain.Venda{}, err
	}

	s.logAudit(ctx, created.Unidade, "venda_create", "venda", created.ID,
		fmt.Sprintf("protocolo=%s,valor_cliente=%s", created.Protocolo, created.ValorCliente.StringFixed(2)))
	return *created, nil
}

func (s *Service) GetVenda(ctx context.Context, id string) (domain.VendaDetail, error) {
	venda, err := s.repo.GetVenda(ctx, id)
	if err != nil {
		return domain.VendaDetail{}, err
	}
	entries, err := s.ledgerEntries(ctx, *venda)
	if err != nil {
		return domain.VendaDetail{}, err
	}
	total := domain.SumBaixas(entries)
	return domain.VendaDetail{
		Venda:        *venda,
		Baixas:       entries,
		TotalBaixado: total,
		Saldo:        settlement.Remaining(venda.ValorCliente, total),
	}, nil
}

func (s *Service) ListVendas(ctx context.Context, filter domain.VendaFilter) (domain.VendaListResponse, error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return domain.VendaListResponse{}, invalid("unknown status %q", status)
		}
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.VendaListResponse{}, invalid("date range is inverted")
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 200
	}
	vendas, err := s.repo.ListVendas(ctx, filter)
	if err != nil {
		return domain.VendaListResponse{}, err
	}
	return domain.VendaListResponse{Vendas: vendas}, nil
}

// UpdateVenda edits non-financial fields. The due amount and status are never
// touched here.
func (s *Service) UpdateVenda(ctx context.Context, id string, req domain.VendaUpdateRequest) (domain.Venda, error) {
	var (
		changed []string
		unidade string
	)
	err := s.engine.WithSale(ctx, id, func(tx store.SaleTx) error {
		sale := tx.Sale()
		changed = changed[:0]

		if req.Unidade != nil {
			value := strings.TrimSpace(*req.Unidade)
			if value == "" {
				return invalid("unidade must not be empty")
			}
			sale.Unidade = value
			changed = append(changed, "unidade")
		}
		if req.Protocolo != nil {
			value := strings.TrimSpace(*req.Protocolo)
			if value == "" {
				return invalid("protocolo must not be empty")
			}
			sale.Protocolo = value
			changed = append(changed, "protocolo")
		}
		if req.DataVenda != nil {
			parsed, err := parseDate("data_venda", *req.DataVenda)
			if err != nil {
				return err
			}
			sale.DataVenda = parsed
			changed = append(changed, "data_venda")
		}
		if req.ValorCompra != nil {
			value, err := nonNegativeMoney("valor_compra", req.ValorCompra)
			if err != nil {
				return err
			}
			sale.ValorCompra = value
			changed = append(changed, "valor_compra")
		}
		if req.ValorPago != nil {
			value, err := nonNegativeMoney("valor_pago", req.ValorPago)
			if err != nil {
				return err
			}
			sale.ValorPago = value
			changed = append(changed, "valor_pago")
		}
		if req.DataEnvio != nil {
			parsed, err := parseOptionalDate("data_envio", *req.DataEnvio)
			if err != nil {
				return err
			}
			sale.DataEnvio = parsed
			changed = append(changed, "data_envio")
		}
		if req.Origem != nil {
			sale.Origem = strings.TrimSpace(*req.Origem)
			changed = append(changed, "origem")
		}
		if req.Observacao != nil {
			sale.Observacao = strings.TrimSpace(*req.Observacao)
			changed = append(changed, "observacao")
		}
		if len(changed) == 0 {
			return invalid("no fields to update")
		}
		unidade = sale.Unidade
		return tx.SetSale(ctx, sale)
	})
	if err != nil {
		return domain.Venda{}, err
	}

	s.logAudit(ctx, unidade, "venda_update", "venda", id, "fields="+strings.Join(changed, ","))
	updated, err := s.repo.GetVenda(ctx, id)
	if err != nil {
		return domain.Venda{}, err
	}
	return *updated, nil
}

// CancelVenda marks a sale CANCELADO. Its ledger is kept but frozen.
func (s *Service) CancelVenda(ctx context.Context, id string, req domain.VendaCancelRequest) (domain.Venda, error) {
	motivo := strings.TrimSpace(req.Motivo)
	if motivo == "" {
		return domain.Venda{}, invalid("motivo is required")
	}

	var unidade string
	err := s.engine.WithSale(ctx, id, func(tx store.SaleTx) error {
		sale := tx.Sale()
		switch sale.Status {
		case domain.StatusFechado:
			return settlement.ErrSaleClosed
		case domain.StatusCancelado:
			return settlement.ErrSaleCancelled
		}
		unidade = sale.Unidade
		sale.Status = domain.StatusCancelado
		return tx.SetSale(ctx, sale)
	})
	if err := s.record("cancel_venda", err); err != nil {
		return domain.Venda{}, err
	}

	s.logAudit(ctx, unidade, "venda_cancel", "venda", id, "motivo="+motivo)
	updated, err := s.repo.GetVenda(ctx, id)
	if err != nil {
		return domain.Venda{}, err
	}
	return *updated, nil
}

// DeleteVenda removes a sale and every settlement entry it owns. Closed sales
// must be reopened first.
func (s *Service) DeleteVenda(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	var (
		unidade   string
		protocolo string
		entries   int
	)
	err := s.engine.WithSale(ctx, id, func(tx store.SaleTx) error {
		sale := tx.Sale()
		if sale.Status == domain.StatusFechado {
			return settlement.ErrSaleClosed
		}
		ledger, err := tx.Entries(ctx, sale.ID)
		if err != nil {
			return err
		}
		unidade, protocolo, entries = sale.Unidade, sale.Protocolo, len(ledger)
		return tx.DeleteSale(ctx)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.logAudit(ctx, unidade, "venda_delete", "venda", id, fmt.Sprintf("protocolo=%s,baixas=%d", protocolo, entries))
	return nil
}
