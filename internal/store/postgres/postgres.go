package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/store"
	"magistral/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables and indexes when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const vendaColumns = `id, unidade, protocolo, data_venda, valor_cliente, valor_compra, valor_pago,
	status, data_fechamento, data_envio, origem, observacao, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVenda(row rowScanner) (domain.Venda, error) {
	var (
		venda          domain.Venda
		status         string
		valorCompra    decimal.NullDecimal
		valorPago      decimal.NullDecimal
		dataFechamento sql.NullTime
		dataEnvio      sql.NullTime
	)
	err := row.Scan(&venda.ID, &venda.Unidade, &venda.Protocolo, &venda.DataVenda, &venda.ValorCliente,
		&valorCompra, &valorPago, &status, &dataFechamento, &dataEnvio, &venda.Origem, &venda.Observacao,
		&venda.Version, &venda.CreatedAt, &venda.UpdatedAt)
	if err != nil {
		return domain.Venda{}, err
	}
	venda.Status = domain.VendaStatus(status)
	venda.DataVenda = domain.DateOnly(venda.DataVenda)
	venda.ValorCompra = decimalPtr(valorCompra)
	venda.ValorPago = decimalPtr(valorPago)
	venda.DataFechamento = datePtr(dataFechamento)
	venda.DataEnvio = datePtr(dataEnvio)
	venda.CreatedAt = venda.CreatedAt.UTC()
	venda.UpdatedAt = venda.UpdatedAt.UTC()
	return venda, nil
}

func (s *Store) CreateVenda(ctx context.Context, venda domain.Venda) (*domain.Venda, error) {
	if strings.TrimSpace(venda.Protocolo) == "" || strings.TrimSpace(venda.Unidade) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if venda.ID == "" {
		venda.ID = xid.New("venda")
	}
	if venda.Status == "" {
		venda.Status = domain.StatusRegistrado
	}
	now := time.Now().UTC()
	if venda.CreatedAt.IsZero() {
		venda.CreatedAt = now
	}
	venda.UpdatedAt = now
	venda.Version = 1

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendas (`+vendaColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, venda.ID, venda.Unidade, venda.Protocolo, domain.DateOnly(venda.DataVenda), domain.RoundCents(venda.ValorCliente),
		nullDecimal(venda.ValorCompra), nullDecimal(venda.ValorPago), string(venda.Status),
		nullDate(venda.DataFechamento), nullDate(venda.DataEnvio), venda.Origem, venda.Observacao,
		venda.Version, venda.CreatedAt, venda.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := venda
	created.DataVenda = domain.DateOnly(venda.DataVenda)
	return &created, nil
}

func (s *Store) GetVenda(ctx context.Context, id string) (*domain.Venda, error) {
	venda, err := scanVenda(s.db.QueryRowContext(ctx, `
		SELECT `+vendaColumns+`
		FROM vendas
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &venda, nil
}

func (s *Store) ListVendas(ctx context.Context, filter domain.VendaFilter) ([]domain.Venda, error) {
	conditions := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(clause string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.Unidade != "" {
		add("unidade = $%d", filter.Unidade)
	}
	if filter.Origem != "" {
		add("origem = $%d", filter.Origem)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, st := range filter.Status {
			statuses = append(statuses, string(st))
		}
		add("status = ANY($%d)", statuses)
	}
	if filter.Protocolo != "" {
		add("upper(protocolo) LIKE $%d", escapeLike(strings.ToUpper(filter.Protocolo))+"%")
	}
	if filter.From != nil {
		add("data_venda >= $%d", domain.DateOnly(*filter.From))
	}
	if filter.To != nil {
		add("data_venda <= $%d", domain.DateOnly(*filter.To))
	}

	query := `SELECT ` + vendaColumns + ` FROM vendas`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY data_venda DESC, protocolo ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendas := make([]domain.Venda, 0, 64)
	for rows.Next() {
		venda, err := scanVenda(rows)
		if err != nil {
			return nil, err
		}
		vendas = append(vendas, venda)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vendas, nil
}

const baixaColumns = `id, venda_id, tipo, valor, data_baixa, observacao, created_at, updated_at`

func scanBaixa(row rowScanner) (domain.Baixa, error) {
	var (
		baixa domain.Baixa
		tipo  string
	)
	if err := row.Scan(&baixa.ID, &baixa.VendaID, &tipo, &baixa.Valor, &baixa.DataBaixa,
		&baixa.Observacao, &baixa.CreatedAt, &baixa.UpdatedAt); err != nil {
		return domain.Baixa{}, err
	}
	baixa.Tipo = domain.TipoBaixa(tipo)
	baixa.DataBaixa = domain.DateOnly(baixa.DataBaixa)
	baixa.CreatedAt = baixa.CreatedAt.UTC()
	baixa.UpdatedAt = baixa.UpdatedAt.UTC()
	return baixa, nil
}

func (s *Store) FindBaixaByID(ctx context.Context, id string) (*domain.Baixa, error) {
	baixa, err := scanBaixa(s.db.QueryRowContext(ctx, `
		SELECT `+baixaColumns+`
		FROM baixas
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &baixa, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func listEntries(ctx context.Context, q querier, saleID string) ([]domain.Baixa, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+baixaColumns+`
		FROM baixas
		WHERE venda_id = $1
		ORDER BY data_baixa ASC, created_at ASC, id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.Baixa, 0, 8)
	for rows.Next() {
		baixa, err := scanBaixa(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, baixa)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) Entries(ctx context.Context, saleID string) ([]domain.Baixa, error) {
	if err := s.saleExists(ctx, saleID); err != nil {
		return nil, err
	}
	return listEntries(ctx, s.db, saleID)
}

func (s *Store) TotalSettled(ctx context.Context, saleID string) (decimal.Decimal, error) {
	if err := s.saleExists(ctx, saleID); err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(valor), 0)
		FROM baixas
		WHERE venda_id = $1
	`, saleID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.RoundCents(total), nil
}

func (s *Store) saleExists(ctx context.Context, saleID string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vendas WHERE id = $1)`, saleID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, unidade, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.Unidade, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, unidade string, entityID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unidade, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR unidade = $1)
			AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, unidade, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Unidade, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleOperador
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func escapeLike(val string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(val)
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return domain.RoundCents(*val)
}

func decimalPtr(val decimal.NullDecimal) *decimal.Decimal {
	if !val.Valid {
		return nil
	}
	d := val.Decimal
	return &d
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return domain.DateOnly(*val)
}

func datePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	d := domain.DateOnly(val.Time)
	return &d
}
