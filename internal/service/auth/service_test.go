package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/splax/taskflow/internal/domain"
	"github.com/splax/taskflow/internal/repository"
	"github.com/splax/taskflow/pkg/config"
)

type memoryUserRepo struct {
	users []domain.User
}

func (m *memoryUserRepo) CreateUser(_ context.Context, user *domain.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	m.users = append(m.users, *user)
	return nil
}

func (m *memoryUserRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := u
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			copy := u
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUserRepo) ListUsers(_ context.Context) ([]domain.User, error) {
	return append([]domain.User(nil), m.users...), nil
}

func (m *memoryUserRepo) DeleteUser(_ context.Context, id string) error {
	for i, u := range m.users {
		if u.ID == id {
			m.users = append(m.users[:i], m.users[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.APIConfig {
	return config.APIConfig{JWTSecret: "test-secret", TokenTTL: time.Hour}
}

func newTestService(provider IdentityProvider) (Service, *memoryUserRepo) {
	repo := &memoryUserRepo{}
	return New(repo, provider, newLogger(), testConfig()), repo
}

func TestRegisterIssuesUsableToken(t *testing.T) {
	svc, _ := newTestService(nil)
	account, token, err := svc.Register(context.Background(), "Ada", "Ada@Example.com", "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if len(account.PasswordHash) == 0 {
		t.Fatal("expected password hash to be stored")
	}
	if account.IsAdmin {
		t.Fatal("new accounts must not be admins")
	}

	resolved, err := svc.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if resolved.ID != account.ID {
		t.Fatalf("token resolved to wrong user: %q", resolved.ID)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, repo := newTestService(nil)
	if _, _, err := svc.Register(context.Background(), "Ada", "ada@example.com", "hunter22"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// same address, different case
	if _, _, err := svc.Register(context.Background(), "Imposter", "ADA@example.com", "password"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if len(repo.users) != 1 {
		t.Fatalf("duplicate registration must not create a record, have %d", len(repo.users))
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _ := newTestService(nil)
	var verr domain.ValidationError

	if _, _, err := svc.Register(context.Background(), "", "ada@example.com", "hunter22"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
	if _, _, err := svc.Register(context.Background(), "Ada", "not-an-email", "hunter22"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for bad email, got %v", err)
	}
	if _, _, err := svc.Register(context.Background(), "Ada", "ada@example.com", "short"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newTestService(nil)
	if _, _, err := svc.Register(context.Background(), "Ada", "ada@example.com", "hunter22"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, wrongPassword := svc.Login(context.Background(), "ada@example.com", "wrong")
	_, _, unknownEmail := svc.Login(context.Background(), "nobody@example.com", "wrong")
	if !errors.Is(wrongPassword, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongPassword)
	}
	if !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("failure messages must match: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestLoginSucceedsWithCorrectCredentials(t *testing.T) {
	svc, _ := newTestService(nil)
	account, _, err := svc.Register(context.Background(), "Ada", "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resolved, token, err := svc.Login(context.Background(), "ADA@Example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resolved.ID != account.ID {
		t.Fatalf("login resolved wrong user: %q", resolved.ID)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
}

func TestLoginRejectsProviderOnlyAccounts(t *testing.T) {
	svc, _ := newTestService(nil)
	if _, err := svc.FindOrCreateByEmail(context.Background(), "Ada", "ada@example.com"); err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "ada@example.com", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for provider-only account, got %v", err)
	}
}

func TestAuthorizeFailsAfterUserDeleted(t *testing.T) {
	svc, repo := newTestService(nil)
	account, token, err := svc.Register(context.Background(), "Ada", "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := repo.DeleteUser(context.Background(), account.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Authorize(context.Background(), token); err == nil {
		t.Fatal("expected authorization to fail for deleted user")
	}
}

func TestFindOrCreateByEmailIsIdempotent(t *testing.T) {
	svc, repo := newTestService(nil)
	first, err := svc.FindOrCreateByEmail(context.Background(), "Ada", "Ada@Example.com")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if len(first.PasswordHash) != 0 {
		t.Fatal("provider accounts must carry no password hash")
	}
	second, err := svc.FindOrCreateByEmail(context.Background(), "Ada Again", "ada@example.com")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same account, got %q and %q", first.ID, second.ID)
	}
	if len(repo.users) != 1 {
		t.Fatalf("expected a single record, have %d", len(repo.users))
	}
}

func TestRequireAdmin(t *testing.T) {
	svc, _ := newTestService(nil)
	if err := svc.RequireAdmin(&domain.User{IsAdmin: true}); err != nil {
		t.Fatalf("admin must pass: %v", err)
	}
	if err := svc.RequireAdmin(&domain.User{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.RequireAdmin(nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for nil identity, got %v", err)
	}
}
