package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/service"
	"magistral/backend/internal/settlement"
	"magistral/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWithOptions(t, Options{AllowedOrigin: "*"})
}

func newTestAPIWithOptions(t *testing.T, opts Options) *API {
	t.Helper()

	logger := zaptest.NewLogger(t)
	repo := memory.NewSeeded()
	engine := settlement.New(repo, settlement.Options{BulkConcurrency: 2, Logger: logger})
	svc := service.New(repo, engine, service.Options{Logger: logger, DefaultUnidade: "matriz"})
	auth := NewAuthManager(context.Background(), "test-secret-key-with-enough-length", time.Hour, repo)

	opts.Logger = logger
	return New(svc, auth, opts)
}

// bearerFor signs a token directly so tests do not burn login attempts.
func bearerFor(t *testing.T, api *API, username string, role string) string {
	t.Helper()
	token, err := api.auth.sign(username, role, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type client struct {
	t     *testing.T
	api   *API
	token string
	csrf  string
}

func newClient(t *testing.T, api *API, role string) *client {
	t.Helper()
	username := "admin"
	if role == domain.RoleOperador {
		username = "operador"
	}
	return &client{
		t:     t,
		api:   api,
		token: bearerFor(t, api, username, role),
		csrf:  fetchCSRFToken(t, api),
	}
}

func (c *client) do(method string, path string, payload any) *httptest.ResponseRecorder {
	c.t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-CSRF-Token", c.csrf)
	rec := httptest.NewRecorder()
	c.api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
}

func mustCreateVenda(t *testing.T, c *client, protocolo string, valor string) domain.Venda {
	t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/vendas", map[string]any{
		"protocolo":     protocolo,
		"data_venda":    "2026-03-10",
		"valor_cliente": valor,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create venda: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var venda domain.Venda
	decodeInto(t, rec, &venda)
	return venda
}

func mustRecordBaixa(t *testing.T, c *client, saleID string, valor string) domain.Baixa {
	t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/vendas/"+saleID+"/baixas", map[string]any{
		"tipo":       "CASH",
		"valor":      valor,
		"data_baixa": "2026-03-11",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record baixa: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var baixa domain.Baixa
	decodeInto(t, rec, &baixa)
	return baixa
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeInto(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	actor, err := api.auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if actor.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", actor.Role)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleVendas_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendas", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleVendas_ListsSeededSales(t *testing.T) {
	api := newTestAPI(t)
	c := newClient(t, api, domain.RoleOperador)

	rec := c.do(http.MethodGet, "/api/v1/vendas?unidade=matriz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.VendaListResponse
	decodeInto(t, rec, &resp)
	if len(resp.Vendas) != 3 {
		t.Fatalf("expected 3 seeded vendas, got %d", len(resp.Vendas))
	}

	rec = c.do(http.MethodGet, "/api/v1/vendas?status=pago_parcial", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for status filter, got %d", rec.Code)
	}
	resp = domain.VendaListResponse{}
	decodeInto(t, rec, &resp)
	if len(resp.Vendas) != 1 || resp.Vendas[0].Protocolo != "MTZ-0002" {
		t.Fatalf("expected only MTZ-0002, got %+v", resp.Vendas)
	}

	rec = c.do(http.MethodGet, "/api/v1/vendas?from=10-03-2026", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestSettlementLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	operador := newClient(t, api, domain.RoleOperador)
	admin := newClient(t, api, domain.RoleAdmin)

	venda := mustCreateVenda(t, operador, "HTTP-001", "100.00")
	if venda.Status != domain.StatusRegistrado {
		t.Fatalf("expected REGISTRADO, got %s", venda.Status)
	}

	mustRecordBaixa(t, operador, venda.ID, "40.00")

	rec := operador.do(http.MethodPost, "/api/v1/vendas/"+venda.ID+"/baixas", map[string]any{
		"tipo": "CARD_PIX", "valor": "70.00", "data_baixa": "2026-03-11",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for over-settlement, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	mustRecordBaixa(t, operador, venda.ID, "60.00")

	rec = operador.do(http.MethodGet, "/api/v1/vendas/"+venda.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var detail domain.VendaDetail
	decodeInto(t, rec, &detail)
	if detail.Venda.Status != domain.StatusPago {
		t.Fatalf("expected PAGO, got %s", detail.Venda.Status)
	}
	if !detail.Saldo.IsZero() || !detail.TotalBaixado.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("unexpected totals: baixado=%s saldo=%s", detail.TotalBaixado, detail.Saldo)
	}

	rec = operador.do(http.MethodPost, "/api/v1/vendas/"+venda.ID+"/fechar", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on close, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var closed domain.Venda
	decodeInto(t, rec, &closed)
	if closed.Status != domain.StatusFechado || closed.DataFechamento == nil {
		t.Fatalf("expected FECHADO with closing date, got %+v", closed)
	}

	rec = operador.do(http.MethodPost, "/api/v1/vendas/"+venda.ID+"/baixas", map[string]any{
		"tipo": "CASH", "valor": "1.00", "data_baixa": "2026-03-12",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on closed sale, got %d", rec.Code)
	}

	rec = operador.do(http.MethodPost, "/api/v1/vendas/"+venda.ID+"/cancelar-fechamento", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operador cancel closure, got %d", rec.Code)
	}

	rec = admin.do(http.MethodPost, "/api/v1/vendas/"+venda.ID+"/cancelar-fechamento", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel closure, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var reopened domain.Venda
	decodeInto(t, rec, &reopened)
	if reopened.Status != domain.StatusPago || reopened.DataFechamento != nil {
		t.Fatalf("expected PAGO without closing date, got %+v", reopened)
	}
}

func TestBaixaUpdateAndDelete(t *testing.T) {
	api := newTestAPI(t)
	c := newClient(t, api, domain.RoleOperador)

	venda := mustCreateVenda(t, c, "HTTP-002", "50.00")
	baixa := mustRecordBaixa(t, c, venda.ID, "20.00")

	rec := c.do(http.MethodPatch, "/api/v1/baixas/"+baixa.ID, map[string]any{"valor": "50.00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = c.do(http.MethodPatch, "/api/v1/baixas/"+baixa.ID, map[string]any{"valor": "50.01"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when update overshoots, got %d", rec.Code)
	}

	rec = c.do(http.MethodDelete, "/api/v1/baixas/"+baixa.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = c.do(http.MethodGet, "/api/v1/vendas/"+venda.ID+"/baixas", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing baixas, got %d", rec.Code)
	}
	var list domain.BaixaListResponse
	decodeInto(t, rec, &list)
	if len(list.Baixas) != 0 || !list.TotalBaixado.IsZero() {
		t.Fatalf("expected empty ledger, got %+v", list)
	}

	rec = c.do(http.MethodDelete, "/api/v1/baixas/"+baixa.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t)
	c := newClient(t, api, domain.RoleOperador)
	venda := mustCreateVenda(t, c, "HTTP-003", "10.00")

	cases := []struct {
		name    string
		path    string
		payload any
	}{
		{"unknown tipo", "/api/v1/vendas/" + venda.ID + "/baixas", map[string]any{"tipo": "CHEQUE", "valor": "1", "data_baixa": "2026-03-11"}},
		{"bad date", "/api/v1/vendas/" + venda.ID + "/baixas", map[string]any{"tipo": "CASH", "valor": "1", "data_baixa": "11/03/2026"}},
		{"zero amount", "/api/v1/vendas/" + venda.ID + "/baixas", map[string]any{"tipo": "CASH", "valor": "0", "data_baixa": "2026-03-11"}},
		{"unknown field", "/api/v1/vendas", map[string]any{"protocolo": "X", "data_venda": "2026-03-11", "valor_cliente": "1", "extra": true}},
		{"missing protocolo", "/api/v1/vendas", map[string]any{"data_venda": "2026-03-11", "valor_cliente": "1"}},
		{"empty bulk", "/api/v1/lotes/fechamentos", map[string]any{"venda_ids": []string{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := c.do(http.MethodPost, tc.path, tc.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestVendaNotFound(t *testing.T) {
	api := newTestAPI(t)
	c := newClient(t, api, domain.RoleOperador)

	rec := c.do(http.MethodGet, "/api/v1/vendas/venda-missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelAndDeleteVenda(t *testing.T) {
	api := newTestAPI(t)
	operador := newClient(t, api, domain.RoleOperador)
	admin := newClient(t, api, domain.RoleAdmin)

	venda := mustCreateVenda(t, operador, "HTTP-004", "30.00")

	rec := operador.do(http.MethodPost, "/api/v1/vendas/"+venda.ID+"/cancelar", map[string]any{"motivo": "cliente desistiu"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var cancelled domain.Venda
	decodeInto(t, rec, &cancelled)
	if cancelled.Status != domain.StatusCancelado {
		t.Fatalf("expected CANCELADO, got %s", cancelled.Status)
	}

	rec = operador.do(http.MethodDelete, "/api/v1/vendas/"+venda.ID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operador delete, got %d", rec.Code)
	}

	rec = admin.do(http.MethodDelete, "/api/v1/vendas/"+venda.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin delete, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = admin.do(http.MethodGet, "/api/v1/vendas/"+venda.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestBulkEndpoints(t *testing.T) {
	api := newTestAPI(t)
	operador := newClient(t, api, domain.RoleOperador)
	admin := newClient(t, api, domain.RoleAdmin)

	first := mustCreateVenda(t, operador, "LOTE-001", "80.00")
	second := mustCreateVenda(t, operador, "LOTE-002", "20.00")
	unpaid := mustCreateVenda(t, operador, "LOTE-003", "15.00")

	rec := operador.do(http.MethodPost, "/api/v1/lotes/baixas", map[string]any{
		"venda_ids":  []string{first.ID, second.ID, "venda-missing"},
		"tipo":       "DEPOSIT",
		"data_baixa": "2026-03-12",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on mass settlement, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var settled domain.BulkResult
	decodeInto(t, rec, &settled)
	if len(settled.Sucesso) != 2 || len(settled.Falhas) != 1 {
		t.Fatalf("expected 2 successes and 1 failure, got %+v", settled)
	}
	if settled.Falhas[0].ID != "venda-missing" || settled.Falhas[0].Motivo != "sale not found" {
		t.Fatalf("unexpected failure %+v", settled.Falhas[0])
	}

	rec = operador.do(http.MethodPost, "/api/v1/lotes/fechamentos", map[string]any{
		"venda_ids":       []string{first.ID, unpaid.ID, second.ID},
		"data_fechamento": "2026-03-13",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on bulk close, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var closed domain.BulkResult
	decodeInto(t, rec, &closed)
	if len(closed.Sucesso) != 2 || closed.Sucesso[0] != first.ID || closed.Sucesso[1] != second.ID {
		t.Fatalf("expected first and second closed in order, got %+v", closed.Sucesso)
	}
	if len(closed.Falhas) != 1 || closed.Falhas[0].ID != unpaid.ID || closed.Falhas[0].Protocolo != "LOTE-003" {
		t.Fatalf("expected unpaid sale to fail, got %+v", closed.Falhas)
	}

	rec = operador.do(http.MethodPost, "/api/v1/lotes/fechamentos/cancelar", map[string]any{
		"venda_ids": []string{first.ID},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operador bulk cancel, got %d", rec.Code)
	}

	rec = admin.do(http.MethodPost, "/api/v1/lotes/fechamentos/cancelar", map[string]any{
		"venda_ids": []string{first.ID, unpaid.ID},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on bulk cancel closure, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var reopened domain.BulkResult
	decodeInto(t, rec, &reopened)
	if len(reopened.Sucesso) != 1 || len(reopened.Falhas) != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %+v", reopened)
	}
}

func TestAuditLogsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	operador := newClient(t, api, domain.RoleOperador)
	admin := newClient(t, api, domain.RoleAdmin)

	venda := mustCreateVenda(t, operador, "AUD-001", "12.00")

	rec := operador.do(http.MethodGet, "/api/v1/audit-logs", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operador, got %d", rec.Code)
	}

	rec = admin.do(http.MethodGet, "/api/v1/audit-logs?entity_id="+venda.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Logs []domain.AuditLog `json:"logs"`
	}
	decodeInto(t, rec, &body)
	if len(body.Logs) != 1 || body.Logs[0].Action != "venda_create" || body.Logs[0].ActorUsername != "operador" {
		t.Fatalf("unexpected audit logs %+v", body.Logs)
	}
}

func TestOperatorsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, domain.RoleAdmin)

	rec := admin.do(http.MethodPost, "/api/v1/users/operadores", map[string]any{
		"username": "caixa01",
		"password": "segredo1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = admin.do(http.MethodPost, "/api/v1/users/operadores", map[string]any{
		"username": "caixa01",
		"password": "segredo1",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate operador, got %d", rec.Code)
	}

	rec = admin.do(http.MethodGet, "/api/v1/users/operadores", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Operadores []domain.OperatorUser `json:"operadores"`
	}
	decodeInto(t, rec, &body)
	if len(body.Operadores) != 2 {
		t.Fatalf("expected seeded operador plus caixa01, got %+v", body.Operadores)
	}
}

func TestMetricsMountedOnlyWhenConfigured(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", rec.Code)
	}

	withMetrics := newTestAPIWithOptions(t, Options{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
	rec = httptest.NewRecorder()
	withMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Fatalf("expected metrics handler output, got %d %q", rec.Code, rec.Body.String())
	}
}
