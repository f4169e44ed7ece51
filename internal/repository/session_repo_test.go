package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"flowdesk/internal/domain"
)

func newMockSessionRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgSessionRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPgSessionRepository(mock)
}

func TestPgSessionRepository_Create(t *testing.T) {
	mock, repo := newMockSessionRepo(t)
	now := time.Now().UTC()
	session := domain.RefreshSession{ID: "jti-1", UserID: testUserID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectExec(`INSERT INTO refresh_sessions`).
		WithArgs("jti-1", testUserID, session.ExpiresAt, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgSessionRepository_Consume(t *testing.T) {
	mock, repo := newMockSessionRepo(t)
	now := time.Now().UTC()
	expires := now.Add(time.Hour)

	mock.ExpectQuery(`DELETE FROM refresh_sessions\s+WHERE id = \$1 AND expires_at > \$2\s+RETURNING`).
		WithArgs("jti-1", now).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}).
			AddRow("jti-1", testUserID, expires, now))

	session, err := repo.Consume(context.Background(), "jti-1", now)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if session.UserID != testUserID || !session.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session: %+v", session)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgSessionRepository_ConsumeAlreadyTaken(t *testing.T) {
	mock, repo := newMockSessionRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`DELETE FROM refresh_sessions`).
		WithArgs("gone", now).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}))

	_, err := repo.Consume(context.Background(), "gone", now)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPgSessionRepository_DeleteByUser(t *testing.T) {
	mock, repo := newMockSessionRepo(t)

	mock.ExpectExec(`DELETE FROM refresh_sessions WHERE user_id = \$1`).
		WithArgs(testUserID).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	removed, err := repo.DeleteByUser(context.Background(), testUserID)
	if err != nil || removed != 2 {
		t.Fatalf("delete by user: %d %v", removed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgSessionRepository_DeleteAndPrune(t *testing.T) {
	mock, repo := newMockSessionRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM refresh_sessions WHERE id`).
		WithArgs("jti-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM refresh_sessions WHERE expires_at`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	if err := repo.Delete(context.Background(), "jti-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	pruned, err := repo.DeleteExpired(context.Background(), now)
	if err != nil || pruned != 3 {
		t.Fatalf("prune: %d %v", pruned, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgSessionRepository_ExecError(t *testing.T) {
	mock, repo := newMockSessionRepo(t)
	boom := errors.New("connection reset")

	mock.ExpectExec(`DELETE FROM refresh_sessions`).
		WithArgs("jti-1").
		WillReturnError(boom)

	if err := repo.Delete(context.Background(), "jti-1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
