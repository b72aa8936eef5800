package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type VendaStatus string

const (
	StatusRegistrado  VendaStatus = "REGISTRADO"
	StatusPagoParcial VendaStatus = "PAGO_PARCIAL"
	StatusPago        VendaStatus = "PAGO"
	StatusFechado     VendaStatus = "FECHADO"
	StatusCancelado   VendaStatus = "CANCELADO"
)

func (s VendaStatus) Valid() bool {
	switch s {
	case StatusRegistrado, StatusPagoParcial, StatusPago, StatusFechado, StatusCancelado:
		return true
	default:
		return false
	}
}

type TipoBaixa string

const (
	TipoDinheiro  TipoBaixa = "CASH"
	TipoCartaoPix TipoBaixa = "CARD_PIX"
	TipoDeposito  TipoBaixa = "DEPOSIT"
	TipoOutro     TipoBaixa = "OTHER"
)

func (t TipoBaixa) Valid() bool {
	switch t {
	case TipoDinheiro, TipoCartaoPix, TipoDeposito, TipoOutro:
		return true
	default:
		return false
	}
}

type Venda struct {
	ID             string           `json:"id"`
	Unidade        string           `json:"unidade"`
	Protocolo      string           `json:"protocolo"`
	DataVenda      time.Time        `json:"data_venda"`
	ValorCliente   decimal.Decimal  `json:"valor_cliente"`
	ValorCompra    *decimal.Decimal `json:"valor_compra,omitempty"`
	ValorPago      *decimal.Decimal `json:"valor_pago,omitempty"`
	Status         VendaStatus      `json:"status"`
	DataFechamento *time.Time       `json:"data_fechamento,omitempty"`
	DataEnvio      *time.Time       `json:"data_envio,omitempty"`
	Origem         string           `json:"origem,omitempty"`
	Observacao     string           `json:"observacao,omitempty"`
	Version        int64            `json:"version"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type Baixa struct {
	ID         string          `json:"id"`
	VendaID    string          `json:"venda_id"`
	Tipo       TipoBaixa       `json:"tipo"`
	Valor      decimal.Decimal `json:"valor"`
	DataBaixa  time.Time       `json:"data_baixa"`
	Observacao string          `json:"observacao,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type VendaFilter struct {
	Unidade   string
	Origem    string
	Status    []VendaStatus
	Protocolo string
	From      *time.Time
	To        *time.Time
	Limit     int
}

type VendaDetail struct {
	Venda        Venda           `json:"venda"`
	Baixas       []Baixa         `json:"baixas"`
	TotalBaixado decimal.Decimal `json:"total_baixado"`
	Saldo        decimal.Decimal `json:"saldo"`
}

type VendaListResponse struct {
	Vendas []Venda `json:"vendas"`
}

type BaixaListResponse struct {
	VendaID      string          `json:"venda_id"`
	Baixas       []Baixa         `json:"baixas"`
	TotalBaixado decimal.Decimal `json:"total_baixado"`
}

type VendaCreateRequest struct {
	Unidade      string           `json:"unidade"`
	Protocolo    string           `json:"protocolo" validate:"required,max=64"`
	DataVenda    string           `json:"data_venda" validate:"required,datetime=2006-01-02"`
	ValorCliente decimal.Decimal  `json:"valor_cliente"`
	ValorCompra  *decimal.Decimal `json:"valor_compra,omitempty"`
	ValorPago    *decimal.Decimal `json:"valor_pago,omitempty"`
	DataEnvio    string           `json:"data_envio,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Origem       string           `json:"origem,omitempty" validate:"max=120"`
	Observacao   string           `json:"observacao,omitempty" validate:"max=2000"`
}

// VendaUpdateRequest only carries non-financial fields. valor_cliente is
// fixed once the sale exists.
type VendaUpdateRequest struct {
	Unidade     *string          `json:"unidade,omitempty" validate:"omitempty,min=1"`
	Protocolo   *string          `json:"protocolo,omitempty" validate:"omitempty,min=1,max=64"`
	DataVenda   *string          `json:"data_venda,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ValorCompra *decimal.Decimal `json:"valor_compra,omitempty"`
	ValorPago   *decimal.Decimal `json:"valor_pago,omitempty"`
	DataEnvio   *string          `json:"data_envio,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Origem      *string          `json:"origem,omitempty" validate:"omitempty,max=120"`
	Observacao  *string          `json:"observacao,omitempty" validate:"omitempty,max=2000"`
}

type VendaCancelRequest struct {
	Motivo string `json:"motivo" validate:"required,max=500"`
}

type BaixaCreateRequest struct {
	Tipo       TipoBaixa       `json:"tipo" validate:"required,oneof=CASH CARD_PIX DEPOSIT OTHER"`
	Valor      decimal.Decimal `json:"valor"`
	DataBaixa  string          `json:"data_baixa" validate:"required,datetime=2006-01-02"`
	Observacao string          `json:"observacao,omitempty" validate:"max=500"`
}

type BaixaUpdateRequest struct {
	Tipo       *TipoBaixa       `json:"tipo,omitempty" validate:"omitempty,oneof=CASH CARD_PIX DEPOSIT OTHER"`
	Valor      *decimal.Decimal `json:"valor,omitempty"`
	DataBaixa  *string          `json:"data_baixa,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Observacao *string          `json:"observacao,omitempty" validate:"omitempty,max=500"`
}

type FechamentoRequest struct {
	DataFechamento string `json:"data_fechamento,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type MassSettlementRequest struct {
	VendaIDs   []string  `json:"venda_ids" validate:"required,min=1,max=500,dive,required"`
	Tipo       TipoBaixa `json:"tipo" validate:"required,oneof=CASH CARD_PIX DEPOSIT OTHER"`
	DataBaixa  string    `json:"data_baixa" validate:"required,datetime=2006-01-02"`
	Observacao string    `json:"observacao,omitempty" validate:"max=500"`
}

type BulkClosureRequest struct {
	VendaIDs       []string `json:"venda_ids" validate:"required,min=1,max=500,dive,required"`
	DataFechamento string   `json:"data_fechamento,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type BulkCancelClosureRequest struct {
	VendaIDs []string `json:"venda_ids" validate:"required,min=1,max=500,dive,required"`
}

type BulkFailure struct {
	ID        string `json:"id"`
	Protocolo string `json:"protocolo,omitempty"`
	Motivo    string `json:"motivo"`
}

type BulkResult struct {
	Sucesso []string      `json:"sucesso"`
	Falhas  []BulkFailure `json:"falhas"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

const (
	RoleAdmin    = "admin"
	RoleOperador = "operador"
)

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type OperatorCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	Unidade       string    `json:"unidade"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
