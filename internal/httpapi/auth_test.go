package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"freshcart/backend/internal/domain"
	"freshcart/backend/internal/store/memory"
)

func newTestAuthManager(t *testing.T) (*AuthManager, *memory.Store) {
	t.Helper()
	repo := memory.New()
	return NewAuthManager("test-secret", time.Hour, repo), repo
}

func TestRegisterCreatesCustomerAndReturnsToken(t *testing.T) {
	manager, repo := newTestAuthManager(t)

	resp, err := manager.Register(context.Background(), domain.RegisterRequest{
		Email:    "Maria@Example.com",
		Password: "parola1234",
		FullName: "Maria Ionescu",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if resp.Role != domain.RoleCustomer {
		t.Fatalf("expected customer role, got %s", resp.Role)
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		t.Fatalf("expected access token after registration")
	}

	// Email is normalized and the password stored as a bcrypt hash.
	user, err := repo.GetUserByEmail(context.Background(), "maria@example.com")
	if err != nil {
		t.Fatalf("expected registered user: %v", err)
	}
	if user.Password == "parola1234" {
		t.Fatalf("expected password to be hashed")
	}
	if !strings.HasPrefix(user.Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", user.Password)
	}
}

func TestRegisterValidation(t *testing.T) {
	manager, _ := newTestAuthManager(t)
	ctx := context.Background()

	if _, err := manager.Register(ctx, domain.RegisterRequest{Email: "not-an-email", Password: "parola1234"}); err == nil {
		t.Fatalf("expected invalid email to be rejected")
	}
	if _, err := manager.Register(ctx, domain.RegisterRequest{Email: "a@b.com", Password: "short"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	manager, _ := newTestAuthManager(t)
	ctx := context.Background()

	req := domain.RegisterRequest{Email: "dan@example.com", Password: "parola1234"}
	if _, err := manager.Register(ctx, req); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := manager.Register(ctx, req); err == nil {
		t.Fatalf("expected duplicate email to be rejected")
	}
}

func TestEnsureAdminCreatesBootstrapAccount(t *testing.T) {
	manager, repo := newTestAuthManager(t)
	ctx := context.Background()

	if err := manager.EnsureAdmin(ctx, " Ops@FreshCart.dev ", "parola-admin-1"); err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}

	user, err := repo.GetUserByEmail(ctx, "ops@freshcart.dev")
	if err != nil {
		t.Fatalf("expected bootstrap admin: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", user.Role)
	}
	if !strings.HasPrefix(user.Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %q", user.Password)
	}

	resp, err := manager.Login(ctx, domain.LoginRequest{Email: "ops@freshcart.dev", Password: "parola-admin-1"})
	if err != nil {
		t.Fatalf("bootstrap admin login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role on login, got %s", resp.Role)
	}
}

func TestEnsureAdminLeavesExistingAccountUntouched(t *testing.T) {
	manager, repo := newTestAuthManager(t)
	ctx := context.Background()

	if _, err := manager.Register(ctx, domain.RegisterRequest{
		Email:    "ops@freshcart.dev",
		Password: "parola1234",
		FullName: "Ops",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := manager.EnsureAdmin(ctx, "ops@freshcart.dev", "parola-admin-1"); err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}

	user, err := repo.GetUserByEmail(ctx, "ops@freshcart.dev")
	if err != nil {
		t.Fatalf("expected user: %v", err)
	}
	if user.Role != domain.RoleCustomer {
		t.Fatalf("expected existing customer account untouched, got role %s", user.Role)
	}
}

func TestEnsureAdminValidation(t *testing.T) {
	manager, _ := newTestAuthManager(t)
	ctx := context.Background()

	if err := manager.EnsureAdmin(ctx, "not-an-email", "parola-admin-1"); err == nil {
		t.Fatalf("expected invalid email to be rejected")
	}
	if err := manager.EnsureAdmin(ctx, "ops@freshcart.dev", "scurt"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
}

func TestLoginRejectsWrongCredentials(t *testing.T) {
	manager, _ := newTestAuthManager(t)
	ctx := context.Background()

	if _, err := manager.Register(ctx, domain.RegisterRequest{Email: "ana@example.com", Password: "parola1234"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Email: "ana@example.com", Password: "wrong-pass"}); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "parola1234"}); err == nil {
		t.Fatalf("expected unknown email to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	manager, repo := newTestAuthManager(t)
	ctx := context.Background()

	hash, err := hashPassword("parola1234")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if err := repo.CreateUser(ctx, domain.UserAccount{
		ID:       "usr-frozen",
		Email:    "frozen@example.com",
		Password: hash,
		Role:     domain.RoleCustomer,
		Active:   false,
	}); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Email: "frozen@example.com", Password: "parola1234"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager, _ := newTestAuthManager(t)
	ctx := context.Background()

	resp, err := manager.Register(ctx, domain.RegisterRequest{Email: "ana@example.com", Password: "parola1234"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Email != "ana@example.com" {
		t.Fatalf("unexpected actor email %s", actor.Email)
	}
	if actor.Role != domain.RoleCustomer {
		t.Fatalf("unexpected actor role %s", actor.Role)
	}
	if actor.UserID == "" {
		t.Fatalf("expected actor user id from token subject")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	managerA, _ := newTestAuthManager(t)
	repoB := memory.New()
	managerB := NewAuthManager("other-secret", time.Hour, repoB)

	resp, err := managerA.Register(context.Background(), domain.RegisterRequest{Email: "ana@example.com", Password: "parola1234"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := managerB.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	manager, _ := newTestAuthManager(t)
	if _, err := manager.ParseToken("not.a.jwt"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}
