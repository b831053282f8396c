package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/taskflow/internal/domain"
	"github.com/splax/taskflow/internal/repository"
	"github.com/splax/taskflow/pkg/config"
	"github.com/splax/taskflow/pkg/crypto"
	jwtpkg "github.com/splax/taskflow/pkg/jwt"
)

var (
	// ErrEmailTaken signals a duplicate registration attempt.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for unknown emails and wrong
	// passwords alike; callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrForbidden signals an authenticated caller without the required role.
	ErrForbidden = errors.New("admin role required")
)

// dummyHash keeps the unknown-email login path on the same bcrypt cost as a
// real comparison.
var dummyHash = func() []byte {
	h, _ := crypto.HashPassword("taskflow-timing-pad")
	return h
}()

// Service handles registration, login and token authorization.
type Service struct {
	users    repository.UserRepository
	provider IdentityProvider
	logger   *slog.Logger
	cfg      config.APIConfig
}

// New constructs a Service. provider may be nil when third-party sign-in is
// not configured.
func New(users repository.UserRepository, provider IdentityProvider, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, provider: provider, logger: logger, cfg: cfg}
}

// NormalizeEmail lowercases and trims an address for case-insensitive matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account with a bcrypt password hash and issues a token.
func (s Service) Register(ctx context.Context, name, email, password string) (*domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" {
		return nil, "", domain.ValidationError{Reason: "name is required"}
	}
	if !strings.Contains(email, "@") {
		return nil, "", domain.ValidationError{Reason: "please include a valid email"}
	}
	if len(password) < 6 {
		return nil, "", domain.ValidationError{Reason: "password must be at least 6 characters long"}
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}
	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login verifies credentials and issues a token.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = NormalizeEmail(email)
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = crypto.ComparePassword(dummyHash, password)
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if len(user.PasswordHash) == 0 {
		// provider-created account without a local password
		_ = crypto.ComparePassword(dummyHash, password)
		return nil, "", ErrInvalidCredentials
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Authorize validates a bearer token and resolves the caller's account.
// Tokens for users deleted after issuance fail here.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RequireAdmin classifies an identity against the admin role.
func (s Service) RequireAdmin(user *domain.User) error {
	if user == nil || !user.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// FindOrCreateByEmail is the idempotent upsert backing third-party sign-in.
// Accounts created here carry no password hash.
func (s Service) FindOrCreateByEmail(ctx context.Context, name, email string) (*domain.User, error) {
	email = NormalizeEmail(email)
	user, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	user = &domain.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// lost a race with a concurrent first sign-in
			return s.users.GetUserByEmail(ctx, email)
		}
		return nil, err
	}
	s.logger.Info("user created from provider sign-in", "user_id", user.ID)
	return user, nil
}

// IssueToken signs a bearer token for the user with the configured TTL.
func (s Service) IssueToken(userID string) (string, error) {
	return jwtpkg.Generate(userID, s.cfg.JWTSecret, s.cfg.TokenTTL)
}
