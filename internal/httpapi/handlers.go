package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"magistral/backend/internal/domain"
)

func (a *API) handleVendas(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := parseVendaFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.ListVendas(r.Context(), filter)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.VendaCreateRequest
		if !a.decodeAndValidate(w, r, &req) {
			return
		}
		venda, err := a.service.CreateVenda(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, venda)
	default:
		writeMethodNotAllowed(w)
	}
}

func parseVendaFilter(r *http.Request) (domain.VendaFilter, error) {
	q := r.URL.Query()
	filter := domain.VendaFilter{
		Unidade:   strings.TrimSpace(q.Get("unidade")),
		Origem:    strings.TrimSpace(q.Get("origem")),
		Protocolo: strings.TrimSpace(q.Get("protocolo")),
		Limit:     parsePositiveLimit(q.Get("limit"), 200, 1000),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				filter.Status = append(filter.Status, domain.VendaStatus(part))
			}
		}
	}
	from, err := parseQueryDate(q.Get("from"), "from")
	if err != nil {
		return domain.VendaFilter{}, err
	}
	to, err := parseQueryDate(q.Get("to"), "to")
	if err != nil {
		return domain.VendaFilter{}, err
	}
	filter.From, filter.To = from, to
	return filter, nil
}

func parseQueryDate(raw string, key string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := domain.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q", key, raw)
	}
	return &parsed, nil
}

func (a *API) handleVendaActions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		detail, err := a.service.GetVenda(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case http.MethodPatch:
		var req domain.VendaUpdateRequest
		if !a.decodeAndValidate(w, r, &req) {
			return
		}
		venda, err := a.service.UpdateVenda(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, venda)
	case http.MethodDelete:
		if err := a.service.DeleteVenda(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCancelVenda(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.VendaCancelRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	venda, err := a.service.CancelVenda(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, venda)
}

func (a *API) handleVendaBaixas(w http.ResponseWriter, r *http.Request) {
	saleID := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		resp, err := a.service.ListBaixas(r.Context(), saleID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.BaixaCreateRequest
		if !a.decodeAndValidate(w, r, &req) {
			return
		}
		baixa, err := a.service.RecordBaixa(r.Context(), saleID, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, baixa)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleBaixaActions(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("id")
	switch r.Method {
	case http.MethodPatch:
		var req domain.BaixaUpdateRequest
		if !a.decodeAndValidate(w, r, &req) {
			return
		}
		baixa, err := a.service.UpdateBaixa(r.Context(), entryID, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, baixa)
	case http.MethodDelete:
		if err := a.service.RemoveBaixa(r.Context(), entryID); err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.FechamentoRequest
	if r.ContentLength != 0 && !a.decodeAndValidate(w, r, &req) {
		return
	}
	venda, err := a.service.CloseVenda(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, venda)
}

func (a *API) handleCancelClosure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	venda, err := a.service.CancelClosure(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, venda)
}

func (a *API) handleMassSettlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.MassSettlementRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	result, err := a.service.ApplyMassSettlement(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleBulkClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.BulkClosureRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	result, err := a.service.CloseMany(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleBulkCancelClosure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.BulkCancelClosureRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	result, err := a.service.CancelClosureMany(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(),
		strings.TrimSpace(q.Get("unidade")),
		strings.TrimSpace(q.Get("entity_id")),
		parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
