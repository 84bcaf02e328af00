package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/expensetracker/internal/apperror"
	"github.com/splax/expensetracker/internal/domain"
	"github.com/splax/expensetracker/internal/repository"
	"github.com/splax/expensetracker/internal/validation"
	"github.com/splax/expensetracker/pkg/crypto"
	jwtpkg "github.com/splax/expensetracker/pkg/jwt"
)

// Tokens issues and verifies identity tokens.
type Tokens interface {
	Issue(userID string) (string, error)
	Verify(token string) (*jwtpkg.Claims, error)
}

// Service handles registration, login and token verification.
type Service struct {
	users  repository.UserRepository
	tokens Tokens
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service.
func New(users repository.UserRepository, tokens Tokens, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{users: users, tokens: tokens, logger: logger, now: time.Now}
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

// LoginInput carries the login form.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and returns it with a fresh token.
func (s Service) Register(ctx context.Context, in RegisterInput) (*domain.User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, "", err
	}

	if _, err := s.FindByEmail(ctx, in.Email); err == nil {
		return nil, "", apperror.Conflict("Email already registered", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", apperror.Internal(fmt.Errorf("lookup email: %w", err))
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, "", apperror.Internal(fmt.Errorf("hash password: %w", err))
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, "", apperror.Conflict("Email already registered", err)
		}
		return nil, "", apperror.Internal(fmt.Errorf("create user: %w", err))
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", apperror.Internal(fmt.Errorf("issue token: %w", err))
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, token, nil
}

// Login authenticates a user and returns a token. Unknown emails and wrong
// passwords produce the same error.
func (s Service) Login(ctx context.Context, in LoginInput) (*domain.User, string, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, "", err
	}
	user, err := s.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.InfoContext(ctx, "login rejected", "reason", "unknown_email")
			return nil, "", apperror.InvalidCredentials()
		}
		return nil, "", apperror.Internal(fmt.Errorf("lookup email: %w", err))
	}
	if !s.VerifyPassword(user, in.Password) {
		s.logger.InfoContext(ctx, "login rejected", "reason", "bad_password", "user_id", user.ID)
		return nil, "", apperror.InvalidCredentials()
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", apperror.Internal(fmt.Errorf("issue token: %w", err))
	}
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return user, token, nil
}

// FindByEmail returns repository.ErrNotFound when no account uses email.
func (s Service) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetUserByEmail(ctx, NormalizeEmail(email))
}

// VerifyPassword reports whether plain matches the user's stored hash.
func (s Service) VerifyPassword(user *domain.User, plain string) bool {
	if user == nil || len(user.PasswordHash) == 0 {
		return false
	}
	return crypto.ComparePassword(user.PasswordHash, plain) == nil
}

// Authorize validates a bearer token and returns the user id it asserts.
// Verification needs no store round-trip.
func (s Service) Authorize(ctx context.Context, token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", apperror.Unauthenticated(errors.New("token required"))
	}
	claims, err := s.tokens.Verify(trimmed)
	if err != nil {
		return "", apperror.Unauthenticated(err)
	}
	return claims.UserID, nil
}
