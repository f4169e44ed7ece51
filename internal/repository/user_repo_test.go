package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"flowdesk/internal/domain"
)

const testUserID = "5f0c8a9e-2b7d-4d1e-9a3f-6c2b1e8d7a10"

var userColumnNames = []string{
	"id", "email", "password_hash", "first_name", "last_name", "is_email_verified",
	"verification_token", "verification_token_expiry",
	"reset_password_token", "reset_password_token_expiry",
	"created_at", "updated_at",
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgUserRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPgUserRepository(mock)
}

func TestPgUserRepository_Create(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Now().UTC()
	user := domain.User{
		ID:           testUserID,
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$hash",
		FirstName:    "Alice",
		LastName:     "Doe",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(testUserID, "alice@example.com", "$2a$10$hash", "Alice", "Doe", false,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgUserRepository_CreateDuplicateEmail(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

	err := repo.Create(context.Background(), domain.User{ID: testUserID, Email: "alice@example.com", CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestPgUserRepository_CreateOtherFailure(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("connection refused"))

	err := repo.Create(context.Background(), domain.User{ID: testUserID, Email: "alice@example.com"})
	if err == nil || errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected generic failure, got %v", err)
	}
}

func TestPgUserRepository_GetByEmail(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Now().UTC()
	hash := "abc123"
	expiry := now.Add(time.Hour)

	rows := pgxmock.NewRows(userColumnNames).AddRow(
		testUserID, "alice@example.com", "$2a$10$hash", "Alice", "Doe", false,
		&hash, &expiry, nil, nil, now, now,
	)
	mock.ExpectQuery(`FROM users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	user, err := repo.GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if user.ID != testUserID || user.FirstName != "Alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.VerificationToken == nil || *user.VerificationToken != hash {
		t.Fatalf("expected verification token hash to be scanned")
	}
	if user.ResetPasswordToken != nil {
		t.Fatalf("expected no reset token")
	}
}

func TestPgUserRepository_GetByEmailNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery(`FROM users WHERE email = \$1`).
		WithArgs("missing@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "missing@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPgUserRepository_GetByIDRejectsMalformedID(t *testing.T) {
	mock, repo := newMockRepo(t)

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	if !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query expected: %v", err)
	}
}

func TestPgUserRepository_MarkEmailVerified(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE users`).
		WithArgs(testUserID, "hash-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.MarkEmailVerified(context.Background(), testUserID, "hash-1", now); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	mock.ExpectExec(`UPDATE users`).
		WithArgs(testUserID, "hash-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := repo.MarkEmailVerified(context.Background(), testUserID, "hash-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for consumed token, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgUserRepository_ResetPassword(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE users`).
		WithArgs(testUserID, "reset-hash", "$2a$10$new", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.ResetPassword(context.Background(), testUserID, "reset-hash", "$2a$10$new", now); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgUserRepository_ClearResetTokenOnlyCurrentHash(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec(`WHERE id = \$1 AND reset_password_token = \$2`).
		WithArgs(testUserID, "old-hash", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.ClearResetToken(context.Background(), testUserID, "old-hash", now)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("superseded hash must not clear the row, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgUserRepository_UpdateProfileDBError(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE users`).
		WithArgs(testUserID, "Alicia", "Doe", now).
		WillReturnError(errors.New("connection reset"))

	err := repo.UpdateProfile(context.Background(), testUserID, "Alicia", "Doe", now)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected db error, got %v", err)
	}
}
