package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"magistral/backend/internal/domain"
	"magistral/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func plainAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := plainAdminStore()
	ctx := context.Background()

	manager := NewAuthManager(ctx, "test-secret", time.Hour, store)
	_, err := manager.Login(ctx, domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
	if store.updates != 1 {
		t.Fatalf("expected exactly one rehash write, got %d", store.updates)
	}
}

func TestCreateOperatorStoresPasswordHash(t *testing.T) {
	userStore := plainAdminStore()
	ctx := context.Background()

	manager := NewAuthManager(ctx, "test-secret", time.Hour, userStore)
	operator, err := manager.CreateOperator(ctx, domain.OperatorCreateRequest{
		Username: "Caixa02",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create operador failed: %v", err)
	}
	if operator.Username != "caixa02" || operator.Role != domain.RoleOperador {
		t.Fatalf("unexpected operador %+v", operator)
	}

	saved, ok := userStore.users["caixa02"]
	if !ok {
		t.Fatalf("expected operador to be saved")
	}
	if saved.Password == "pass1234" || !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", saved.Password)
	}

	resp, err := manager.Login(ctx, domain.LoginRequest{
		Username: "caixa02",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with hashed operador failed: %v", err)
	}
	if resp.Role != domain.RoleOperador {
		t.Fatalf("expected operador role, got %q", resp.Role)
	}

	_, err = manager.CreateOperator(ctx, domain.OperatorCreateRequest{Username: "caixa02", Password: "other123"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestCreateOperatorRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, &userStoreStub{})

	for _, req := range []domain.OperatorCreateRequest{
		{Username: "ab", Password: "pass1234"},
		{Username: "caixa 03", Password: "pass1234"},
		{Username: "caixa03", Password: "123"},
	} {
		if _, err := manager.CreateOperator(ctx, req); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("expected invalid input error for %+v, got %v", req, err)
		}
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	userStore := plainAdminStore()
	admin := userStore.users["admin"]
	admin.Active = false
	userStore.users["admin"] = admin
	ctx := context.Background()

	manager := NewAuthManager(ctx, "test-secret", time.Hour, userStore)
	_, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	if !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account error, got %v", err)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, nil)

	token, err := manager.sign("operador", domain.RoleOperador, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	actor, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "operador" || actor.Role != domain.RoleOperador {
		t.Fatalf("unexpected actor %+v", actor)
	}

	expired, err := manager.sign("operador", domain.RoleOperador, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
