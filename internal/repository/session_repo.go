package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"flowdesk/internal/domain"
)

// SessionRepository persiste los refresh tokens vigentes.
type SessionRepository interface {
	Create(ctx context.Context, session domain.RefreshSession) error
	Consume(ctx context.Context, id string, now time.Time) (domain.RefreshSession, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type PgSessionRepository struct {
	pool DB
}

func NewPgSessionRepository(pool DB) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

func (r *PgSessionRepository) Create(ctx context.Context, session domain.RefreshSession) error {
	const query = `
		INSERT INTO refresh_sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("user_id", session.UserID).Wrap(err)
	}
	return nil
}

// Consume borra la sesión y la devuelve solo si no expiró a la hora now. El
// DELETE ... RETURNING hace que solo una llamada concurrente obtenga la fila.
func (r *PgSessionRepository) Consume(ctx context.Context, id string, now time.Time) (domain.RefreshSession, error) {
	const query = `
		DELETE FROM refresh_sessions
		WHERE id = $1 AND expires_at > $2
		RETURNING id, user_id::text, expires_at, created_at
	`
	var session domain.RefreshSession
	err := r.pool.QueryRow(ctx, query, id, now).Scan(
		&session.ID,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RefreshSession{}, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return domain.RefreshSession{}, oops.Code("SESSION_CONSUME_FAILED").Wrap(err)
	}
	return session, nil
}

func (r *PgSessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM refresh_sessions WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return nil
}

// DeleteByUser revoca todas las sesiones de un usuario.
func (r *PgSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM refresh_sessions WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_USER_FAILED").With("user_id", userID).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM refresh_sessions WHERE expires_at <= $1`
	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, oops.Code("SESSION_PRUNE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
