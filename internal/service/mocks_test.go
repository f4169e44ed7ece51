package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"flowdesk/internal/domain"
	"flowdesk/internal/email"
	"flowdesk/internal/repository"
	"flowdesk/internal/security"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	createErr    error
	getErr       error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.usersByEmail[user.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.User{}, m.getErr
	}
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[email]
	getErr := m.getErr
	m.mu.Unlock()
	if getErr != nil {
		return domain.User{}, getErr
	}
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) GetByVerificationToken(_ context.Context, tokenHash string) (domain.User, error) {
	return m.findBy(func(u domain.User) bool {
		return u.VerificationToken != nil && *u.VerificationToken == tokenHash
	})
}

func (m *mockUserRepo) GetByResetToken(_ context.Context, tokenHash string) (domain.User, error) {
	return m.findBy(func(u domain.User) bool {
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
		u.FirstName = firstName
		u.LastName = lastName
		u.UpdatedAt = updatedAt
		return true
	})
}

func (m *mockUserRepo) SetVerificationToken(_ context.Context, id, tokenHash string, expiresAt, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		if u.IsEmailVerified {
			return false
		}
		u.VerificationToken = &tokenHash
		u.VerificationTokenExpiry = &expiresAt
		u.UpdatedAt = updatedAt
		return true
	})
}

func (m *mockUserRepo) MarkEmailVerified(_ context.Context, id, tokenHash string, verifiedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		if u.VerificationToken == nil || *u.VerificationToken != tokenHash {
			return false
		}
		if u.VerificationTokenExpiry == nil || !u.VerificationTokenExpiry.After(verifiedAt) {
			return false
		}
		u.IsEmailVerified = true
		u.VerificationToken = nil
		u.VerificationTokenExpiry = nil
		u.UpdatedAt = verifiedAt
		return true
	})
}

func (m *mockUserRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		u.ResetPasswordToken = &tokenHash
		u.ResetPasswordTokenExpiry = &expiresAt
		u.UpdatedAt = updatedAt
		return true
	})
}

func (m *mockUserRepo) ClearResetToken(_ context.Context, id, tokenHash string, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		if u.ResetPasswordToken == nil || *u.ResetPasswordToken != tokenHash {
			return false
		}
		u.ResetPasswordToken = nil
		u.ResetPasswordTokenExpiry = nil
		u.UpdatedAt = updatedAt
		return true
	})
}

func (m *mockUserRepo) ResetPassword(_ context.Context, id, tokenHash, passwordHash string, updatedAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		if u.ResetPasswordToken == nil || *u.ResetPasswordToken != tokenHash {
			return false
		}
		if u.ResetPasswordTokenExpiry == nil || !u.ResetPasswordTokenExpiry.After(updatedAt) {
			return false
		}
		u.PasswordHash = passwordHash
		u.ResetPasswordToken = nil
		u.ResetPasswordTokenExpiry = nil
		u.UpdatedAt = updatedAt
		return true
	})
}

func (m *mockUserRepo) findBy(match func(domain.User) bool) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.usersByID {
		if match(u) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *mockUserRepo) update(id string, apply func(*domain.User) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.usersByID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !apply(&u) {
		return repository.ErrNotFound
	}
	m.usersByID[id] = u
	return nil
}

func (m *mockUserRepo) byEmail(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := m.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("user %q not stored: %v", email, err)
	}
	return u
}

func (m *mockUserRepo) mutate(t *testing.T, id string, apply func(*domain.User)) {
	t.Helper()
	err := m.update(id, func(u *domain.User) bool {
		apply(u)
		return true
	})
	if err != nil {
		t.Fatalf("mutate user: %v", err)
	}
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

func (m *mockEmailSender) last(t *testing.T, kind email.Kind) email.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s message sent", kind)
	return email.Message{}
}

func (m *mockEmailSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	token := u.Query().Get("token")
	if strings.TrimSpace(token) == "" {
		t.Fatalf("link %q carries no token", link)
	}
	return token
}

type allowLimiter struct {
	allow bool
	keys  []string
}

func (l *allowLimiter) Allow(_ context.Context, key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}

var errBoom = errors.New("boom")

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) {
	return "", security.ErrCredentialProcessing
}

func (failingHasher) Verify(string, string) bool { return false }

func newTestAccountStore(repo repository.UserRepository) *AccountStore {
	return NewAccountStore(repo, security.NewBcryptHasher(bcrypt.MinCost), PasswordPolicy{MinLength: 8, RequireMixed: true})
}
