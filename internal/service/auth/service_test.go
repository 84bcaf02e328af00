package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/splax/expensetracker/internal/apperror"
	"github.com/splax/expensetracker/internal/domain"
	"github.com/splax/expensetracker/internal/repository"
	jwtpkg "github.com/splax/expensetracker/pkg/jwt"
)

type stubUserRepository struct {
	mu        sync.Mutex
	byEmail   map[string]domain.User
	createErr error
	lookupErr error
	creates   int
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{byEmail: make(map[string]domain.User)}
}

func (s *stubUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return repository.ErrConflict
	}
	s.byEmail[user.Email] = *user
	return nil
}

func (s *stubUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	u, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func newTestService(t *testing.T, repo repository.UserRepository) (Service, *bytes.Buffer) {
	t.Helper()
	tokens, err := jwtpkg.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	var logs bytes.Buffer
	svc := New(repo, tokens, slog.New(slog.NewTextHandler(&logs, nil)))
	svc.now = func() time.Time { return time.Date(2025, time.May, 4, 10, 0, 0, 123456789, time.UTC) }
	return svc, &logs
}

func TestRegisterNormalisesAndIssuesToken(t *testing.T) {
	repo := newStubUserRepository()
	svc, logs := newTestService(t, repo)

	user, token, err := svc.Register(context.Background(), RegisterInput{
		Username: "  alice ",
		Email:    " Alice@X.com ",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Username != "alice" || user.Email != "alice@x.com" {
		t.Fatalf("unexpected normalisation: %+v", user)
	}
	if user.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if !user.CreatedAt.Equal(time.Date(2025, time.May, 4, 10, 0, 0, 123000000, time.UTC)) {
		t.Fatalf("expected millisecond precision, got %s", user.CreatedAt)
	}
	if bytes.Contains(user.PasswordHash, []byte("secret1")) {
		t.Fatal("password stored in plaintext")
	}
	id, err := svc.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if id != user.ID {
		t.Fatalf("token resolves to %q, want %q", id, user.ID)
	}
	if bytes.Contains(logs.Bytes(), []byte("secret1")) {
		t.Fatal("plaintext password leaked into logs")
	}
}

func TestRegisterDistinctUsersGetDistinctIDs(t *testing.T) {
	svc, _ := newTestService(t, newStubUserRepository())
	a, tokA, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	b, tokB, err := svc.Register(context.Background(), RegisterInput{Username: "b", Email: "b@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("register b: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("expected distinct ids")
	}
	idA, _ := svc.Authorize(context.Background(), tokA)
	idB, _ := svc.Authorize(context.Background(), tokB)
	if idA != a.ID || idB != b.ID {
		t.Fatalf("tokens resolve to %q/%q", idA, idB)
	}
}

func TestRegisterDuplicateEmailIsConflict(t *testing.T) {
	repo := newStubUserRepository()
	svc, _ := newTestService(t, repo)
	in := RegisterInput{Username: "alice", Email: "alice@x.com", Password: "secret1"}
	if _, _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first register: %v", err)
	}
	in.Email = "ALICE@x.com"
	_, _, err := svc.Register(context.Background(), in)
	if apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if repo.creates != 1 {
		t.Fatalf("expected a single insert attempt, got %d", repo.creates)
	}
	if len(repo.byEmail) != 1 {
		t.Fatalf("expected one stored user, got %d", len(repo.byEmail))
	}
}

func TestRegisterRaceOnUniqueIndexIsConflict(t *testing.T) {
	repo := newStubUserRepository()
	repo.createErr = repository.ErrConflict
	svc, _ := newTestService(t, repo)
	_, _, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@x.com", Password: "secret1"})
	if apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	repo := newStubUserRepository()
	svc, _ := newTestService(t, repo)
	_, _, err := svc.Register(context.Background(), RegisterInput{Username: "   ", Email: "nope", Password: "123"})
	appErr := apperror.From(err)
	if appErr.Kind != apperror.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range appErr.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"username", "email", "password"} {
		if !fields[want] {
			t.Fatalf("expected %s to be rejected, got %+v", want, appErr.Fields)
		}
	}
	if repo.creates != 0 {
		t.Fatal("validation failures must not reach the store")
	}
}

func TestRegisterRejectsPasswordsOverBcryptLimit(t *testing.T) {
	repo := newStubUserRepository()
	svc, _ := newTestService(t, repo)

	_, _, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@x.com", Password: strings.Repeat("p", 80)})
	appErr := apperror.From(err)
	if appErr.Kind != apperror.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(appErr.Fields) != 1 || appErr.Fields[0].Field != "password" {
		t.Fatalf("expected password field error, got %+v", appErr.Fields)
	}
	if repo.creates != 0 {
		t.Fatal("rejected password must not reach the store")
	}

	// 36 two-byte runes sit exactly on the limit.
	if _, _, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@x.com", Password: strings.Repeat("é", 36)}); err != nil {
		t.Fatalf("72-byte password should register: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: strings.Repeat("é", 37)}); apperror.KindOf(err) != apperror.KindInvalidCredentials {
		t.Fatalf("oversized login password should be invalid credentials, got %v", err)
	}
}

func TestRegisterStoreFailureIsInternal(t *testing.T) {
	repo := newStubUserRepository()
	repo.lookupErr = errors.New("db down")
	svc, _ := newTestService(t, repo)
	_, _, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@x.com", Password: "secret1"})
	if apperror.KindOf(err) != apperror.KindInternal {
		t.Fatalf("expected internal, got %v", err)
	}
}

func TestLoginIsGenericOnFailure(t *testing.T) {
	svc, _ := newTestService(t, newStubUserRepository())
	if _, _, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@x.com", Password: "secret1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, unknown := svc.Login(context.Background(), LoginInput{Email: "b@x.com", Password: "secret1"})
	_, _, wrong := svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: "secret2"})
	for _, err := range []error{unknown, wrong} {
		appErr := apperror.From(err)
		if appErr.Kind != apperror.KindInvalidCredentials || appErr.Message != "Invalid credentials" {
			t.Fatalf("expected generic invalid credentials, got %v", err)
		}
	}

	user, token, err := svc.Login(context.Background(), LoginInput{Email: " A@X.COM", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if id, _ := svc.Authorize(context.Background(), token); id != user.ID {
		t.Fatalf("token resolves to %q, want %q", id, user.ID)
	}
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	svc, _ := newTestService(t, newStubUserRepository())
	for _, token := range []string{"", "   ", "garbage"} {
		_, err := svc.Authorize(context.Background(), token)
		if apperror.KindOf(err) != apperror.KindUnauthenticated {
			t.Fatalf("Authorize(%q): expected unauthenticated, got %v", token, err)
		}
	}
}

func TestVerifyPassword(t *testing.T) {
	svc, _ := newTestService(t, newStubUserRepository())
	user, _, err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !svc.VerifyPassword(user, "secret1") || svc.VerifyPassword(user, "secret") {
		t.Fatal("unexpected password verification result")
	}
	if svc.VerifyPassword(nil, "secret1") {
		t.Fatal("nil user must not verify")
	}
}

