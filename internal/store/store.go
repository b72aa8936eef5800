package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"magistral/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("duplicate record")
	ErrConflict           = errors.New("concurrent modification")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// LedgerReader reads the settlement entries of a sale. It never enforces
// sale-level rules.
type LedgerReader interface {
	TotalSettled(ctx context.Context, saleID string) (decimal.Decimal, error)
	Entries(ctx context.Context, saleID string) ([]domain.Baixa, error)
}

// Ledger is the raw settlement entry store. Callers own the invariant that the
// settled total never exceeds the sale's due amount.
type Ledger interface {
	LedgerReader
	Entry(ctx context.Context, entryID string) (*domain.Baixa, error)
	Append(ctx context.Context, entry domain.Baixa) (*domain.Baixa, error)
	Replace(ctx context.Context, entryID string, entry domain.Baixa) (*domain.Baixa, error)
	Remove(ctx context.Context, entryID string) error
}

// SaleTx is a unit of work scoped to one sale: its row and its ledger. Writes
// made through it become visible only when the enclosing WithinSale returns
// nil.
type SaleTx interface {
	Ledger
	Sale() domain.Venda
	SetSale(ctx context.Context, sale domain.Venda) error
	DeleteSale(ctx context.Context) error
}

type Repository interface {
	CreateVenda(ctx context.Context, venda domain.Venda) (*domain.Venda, error)
	GetVenda(ctx context.Context, id string) (*domain.Venda, error)
	ListVendas(ctx context.Context, filter domain.VendaFilter) ([]domain.Venda, error)
	// WithinSale runs fn against a locked view of the sale. Any error returned
	// by fn discards every write made through tx.
	WithinSale(ctx context.Context, saleID string, fn func(tx SaleTx) error) error
	FindBaixaByID(ctx context.Context, id string) (*domain.Baixa, error)
	LedgerReader
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, unidade string, entityID string, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
