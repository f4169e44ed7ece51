package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"flowdesk/internal/domain"
	"flowdesk/internal/email"
	"flowdesk/internal/repository"
	"flowdesk/internal/security"
	"flowdesk/internal/service"
)

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]domain.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	return m.find(func(u domain.User) bool { return u.ID == id })
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	return m.find(func(u domain.User) bool { return u.Email == email })
}

func (m *mockUserRepo) GetByVerificationToken(_ context.Context, tokenHash string) (domain.User, error) {
	return m.find(func(u domain.User) bool {
		return u.VerificationToken != nil && *u.VerificationToken == tokenHash
	})
}

func (m *mockUserRepo) GetByResetToken(_ context.Context, tokenHash string) (domain.User, error) {
	return m.find(func(u domain.User) bool {
		return u.ResetPasswordToken != nil && *u.ResetPasswordToken == tokenHash
	})
}

func (m *mockUserRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		u.PasswordHash = passwordHash
		u.UpdatedAt = updatedAt
		return true
	})
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id, firstName, lastName string, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		u.FirstName, u.LastName, u.UpdatedAt = firstName, lastName, updatedAt
		return true
	})
}

func (m *mockUserRepo) SetVerificationToken(_ context.Context, id, tokenHash string, expiresAt, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		if u.IsEmailVerified {
			return false
		}
		u.VerificationToken, u.VerificationTokenExpiry, u.UpdatedAt = &tokenHash, &expiresAt, updatedAt
		return true
	})
}

func (m *mockUserRepo) MarkEmailVerified(_ context.Context, id, tokenHash string, verifiedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		if u.VerificationToken == nil || *u.VerificationToken != tokenHash || !u.VerificationTokenExpiry.After(verifiedAt) {
			return false
		}
		u.IsEmailVerified = true
		u.VerificationToken, u.VerificationTokenExpiry = nil, nil
		u.UpdatedAt = verifiedAt
		return true
	})
}

func (m *mockUserRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		u.ResetPasswordToken, u.ResetPasswordTokenExpiry, u.UpdatedAt = &tokenHash, &expiresAt, updatedAt
		return true
	})
}

func (m *mockUserRepo) ClearResetToken(_ context.Context, id, tokenHash string, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		if u.ResetPasswordToken == nil || *u.ResetPasswordToken != tokenHash {
			return false
		}
		u.ResetPasswordToken, u.ResetPasswordTokenExpiry, u.UpdatedAt = nil, nil, updatedAt
		return true
	})
}

func (m *mockUserRepo) ResetPassword(_ context.Context, id, tokenHash, passwordHash string, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		if u.ResetPasswordToken == nil || *u.ResetPasswordToken != tokenHash || !u.ResetPasswordTokenExpiry.After(updatedAt) {
			return false
		}
		u.PasswordHash = passwordHash
		u.ResetPasswordToken, u.ResetPasswordTokenExpiry = nil, nil
		u.UpdatedAt = updatedAt
		return true
	})
}

func (m *mockUserRepo) find(match func(domain.User) bool) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *mockUserRepo) update(id string, apply func(*domain.User) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !apply(&u) {
		return repository.ErrNotFound
	}
	m.users[id] = u
	return nil
}

type mockEmailSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (m *mockEmailSender) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockEmailSender) lastToken(t *testing.T, kind email.Kind) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind != kind {
			continue
		}
		u, err := url.Parse(m.sent[i].Payload.Link)
		if err != nil {
			t.Fatalf("parse link: %v", err)
		}
		return u.Query().Get("token")
	}
	t.Fatalf("no %s message sent", kind)
	return ""
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	router *gin.Engine
	repo   *mockUserRepo
	sender *mockEmailSender
}

func newTestServer(t *testing.T, exposeDetail bool) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	accounts := service.NewAccountStore(repo, security.NewBcryptHasher(bcrypt.MinCost), service.PasswordPolicy{MinLength: 8, RequireMixed: true})
	sessions := service.NewJWTServiceWithStore("test-secret", 15*time.Minute, time.Hour, service.NewMemoryRefreshTokenStore())
	creds := service.NewCredentialService(logger, accounts, security.NewTokenGenerator(), sessions, sender, nil, service.DefaultPolicy())

	authH := NewAuthHandler(logger, creds, exposeDetail)
	healthH := NewHealthHandler(logger, pingerFunc(func(context.Context) error { return nil }))
	router := NewRouter(logger, authH, healthH, JWTAuthMiddleware(logger, creds, exposeDetail))
	return testServer{router: router, repo: repo, sender: sender}
}

type apiResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
	Detail  string            `json:"detail"`
	Data    json.RawMessage   `json:"data"`
}

func (s testServer) do(t *testing.T, method, path string, body any, bearer string) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, resp
}

func decodeData(t *testing.T, raw json.RawMessage, dst any) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode data %s: %v", string(raw), err)
	}
}
