package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/store"
	"magistral/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	vendasByID      map[string]domain.Venda
	baixasByID      map[string]domain.Baixa
	baixasBySale    map[string][]string
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	now             func() time.Time
}

func New() *Store {
	return &Store{
		vendasByID:      make(map[string]domain.Venda),
		baixasByID:      make(map[string]domain.Baixa),
		baixasBySale:    make(map[string][]string),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_OPERADOR_PASSWORD with hardcoded fallbacks.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operadorPwd := envOr("SEED_OPERADOR_PASSWORD", "operador123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERADOR_PASSWORD") == "" {
		zap.L().Warn("memory store using default dev credentials",
			zap.String("hint", "set SEED_ADMIN_PASSWORD and SEED_OPERADOR_PASSWORD to override"))
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"operador", operadorPwd, domain.RoleOperador},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo accounts and a handful of sales in
// every settlement stage.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	today := domain.DateOnly(time.Now())
	seed := []struct {
		protocolo string
		due       string
		settled   []string
		status    domain.VendaStatus
	}{
		{"MTZ-0001", "100.00", nil, domain.StatusRegistrado},
		{"MTZ-0002", "250.00", []string{"100.00"}, domain.StatusPagoParcial},
		{"MTZ-0003", "180.50", []string{"80.50", "100.00"}, domain.StatusPago},
	}
	for i, row := range seed {
		venda := domain.Venda{
			ID:           xid.New("venda"),
			Unidade:      "matriz",
			Protocolo:    row.protocolo,
			DataVenda:    today.AddDate(0, 0, -i),
			ValorCliente: decimal.RequireFromString(row.due),
			Status:       row.status,
			Origem:       "matriz",
			Version:      1,
			CreatedAt:    s.now(),
			UpdatedAt:    s.now(),
		}
		s.vendasByID[venda.ID] = venda
		for _, amount := range row.settled {
			baixa := domain.Baixa{
				ID:        xid.New("baixa"),
				VendaID:   venda.ID,
				Tipo:      domain.TipoCartaoPix,
				Valor:     decimal.RequireFromString(amount),
				DataBaixa: venda.DataVenda,
				CreatedAt: s.now(),
				UpdatedAt: s.now(),
			}
			s.baixasByID[baixa.ID] = baixa
			s.baixasBySale[venda.ID] = append(s.baixasBySale[venda.ID], baixa.ID)
		}
	}
	return s
}

func (s *Store) CreateVenda(_ context.Context, venda domain.Venda) (*domain.Venda, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(venda.Protocolo) == "" || strings.TrimSpace(venda.Unidade) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if s.protocoloTakenLocked(venda.Unidade, venda.Protocolo, "") {
		return nil, store.ErrDuplicate
	}
	if venda.ID == "" {
		venda.ID = xid.New("venda")
	}
	if _, exists := s.vendasByID[venda.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if venda.Status == "" {
		venda.Status = domain.StatusRegistrado
	}
	now := s.now()
	if venda.CreatedAt.IsZero() {
		venda.CreatedAt = now
	}
	venda.UpdatedAt = now
	venda.Version = 1
	s.vendasByID[venda.ID] = cloneVenda(venda)

	result := cloneVenda(venda)
	return &result, nil
}

func (s *Store) GetVenda(_ context.Context, id string) (*domain.Venda, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	venda, ok := s.vendasByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := cloneVenda(venda)
	return &result, nil
}

func (s *Store) ListVendas(_ context.Context, filter domain.VendaFilter) ([]domain.Venda, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Venda, 0, 64)
	for _, venda := range s.vendasByID {
		if !matchesFilter(venda, filter) {
			continue
		}
		result = append(result, cloneVenda(venda))
	}
	slices.SortFunc(result, func(a, b domain.Venda) int {
		if a.DataVenda.Equal(b.DataVenda) {
			return strings.Compare(a.Protocolo, b.Protocolo)
		}
		if a.DataVenda.After(b.DataVenda) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func matchesFilter(venda domain.Venda, filter domain.VendaFilter) bool {
	if filter.Unidade != "" && venda.Unidade != filter.Unidade {
		return false
	}
	if filter.Origem != "" && venda.Origem != filter.Origem {
		return false
	}
	if len(filter.Status) > 0 && !slices.Contains(filter.Status, venda.Status) {
		return false
	}
	if filter.Protocolo != "" && !strings.HasPrefix(strings.ToUpper(venda.Protocolo), strings.ToUpper(filter.Protocolo)) {
		return false
	}
	if filter.From != nil && venda.DataVenda.Before(*filter.From) {
		return false
	}
	if filter.To != nil && venda.DataVenda.After(*filter.To) {
		return false
	}
	return true
}

func (s *Store) FindBaixaByID(_ context.Context, id string) (*domain.Baixa, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	baixa, ok := s.baixasByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &baixa, nil
}

func (s *Store) TotalSettled(ctx context.Context, saleID string) (decimal.Decimal, error) {
	entries, err := s.Entries(ctx, saleID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.SumBaixas(entries), nil
}

func (s *Store) Entries(_ context.Context, saleID string) ([]domain.Baixa, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.vendasByID[saleID]; !ok {
		return nil, store.ErrNotFound
	}
	return s.entriesLocked(saleID), nil
}

func (s *Store) entriesLocked(saleID string) []domain.Baixa {
	ids := s.baixasBySale[saleID]
	entries := make([]domain.Baixa, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, s.baixasByID[id])
	}
	sortEntries(entries)
	return entries
}

// WithinSale hands fn a private copy of the sale and its ledger. On success
// the copy is written back, provided no other writer committed in between.
func (s *Store) WithinSale(ctx context.Context, saleID string, fn func(tx store.SaleTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	venda, ok := s.vendasByID[saleID]
	if !ok {
		s.mu.RUnlock()
		return store.ErrNotFound
	}
	tx := &saleTx{
		sale:    cloneVenda(venda),
		entries: s.entriesLocked(saleID),
		now:     s.now,
	}
	s.mu.RUnlock()
	baseVersion := venda.Version

	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.vendasByID[saleID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != baseVersion {
		return store.ErrConflict
	}

	next := tx.sale
	if !tx.deleted && (next.Unidade != current.Unidade || next.Protocolo != current.Protocolo) {
		if s.protocoloTakenLocked(next.Unidade, next.Protocolo, saleID) {
			return store.ErrDuplicate
		}
	}

	for _, id := range s.baixasBySale[saleID] {
		delete(s.baixasByID, id)
	}
	delete(s.baixasBySale, saleID)

	if tx.deleted {
		delete(s.vendasByID, saleID)
		return nil
	}

	next.ID = saleID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = s.now()
	s.vendasByID[saleID] = cloneVenda(next)

	ids := make([]string, 0, len(tx.entries))
	for _, entry := range tx.entries {
		s.baixasByID[entry.ID] = entry
		ids = append(ids, entry.ID)
	}
	if len(ids) > 0 {
		s.baixasBySale[saleID] = ids
	}
	return nil
}

func (s *Store) protocoloTakenLocked(unidade string, protocolo string, exceptID string) bool {
	for id, other := range s.vendasByID {
		if id == exceptID {
			continue
		}
		if other.Unidade == unidade && strings.EqualFold(other.Protocolo, protocolo) {
			return true
		}
	}
	return false
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, unidade string, entityID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if unidade != "" && entry.Unidade != unidade {
			continue
		}
		if entityID != "" && entry.EntityID != entityID {
			continue
		}
		result = append(result, entry)
	}
	slices.SortStableFunc(result, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleOperador
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func sortEntries(entries []domain.Baixa) {
	slices.SortStableFunc(entries, func(a, b domain.Baixa) int {
		if c := a.DataBaixa.Compare(b.DataBaixa); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func cloneVenda(src domain.Venda) domain.Venda {
	dup := src
	if src.ValorCompra != nil {
		v := *src.ValorCompra
		dup.ValorCompra = &v
	}
	if src.ValorPago != nil {
		v := *src.ValorPago
		dup.ValorPago = &v
	}
	if src.DataFechamento != nil {
		v := *src.DataFechamento
		dup.DataFechamento = &v
	}
	if src.DataEnvio != nil {
		v := *src.DataEnvio
		dup.DataEnvio = &v
	}
	return dup
}
