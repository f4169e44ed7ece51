package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"flowdesk/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("duplicate email")
	ErrInvalidID      = errors.New("invalid id")
)

// DB cubre el subconjunto de pgxpool.Pool que usan los repositorios.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByVerificationToken(ctx context.Context, tokenHash string) (domain.User, error)
	GetByResetToken(ctx context.Context, tokenHash string) (domain.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	UpdateProfile(ctx context.Context, id, firstName, lastName string, updatedAt time.Time) error
	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, updatedAt time.Time) error
	MarkEmailVerified(ctx context.Context, id, tokenHash string, verifiedAt time.Time) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, updatedAt time.Time) error
	ClearResetToken(ctx context.Context, id, tokenHash string, updatedAt time.Time) error
	ResetPassword(ctx context.Context, id, tokenHash, passwordHash string, updatedAt time.Time) error
}

// PgUserRepository implementa UserRepository sobre PostgreSQL.
type PgUserRepository struct {
	pool DB
}

func NewPgUserRepository(pool DB) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	id::text, email, password_hash, first_name, last_name, is_email_verified,
	verification_token, verification_token_expiry,
	reset_password_token, reset_password_token_expiry,
	created_at, updated_at
`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	if _, err := uuid.Parse(user.ID); err != nil {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID).Wrap(ErrInvalidID)
	}
	const query = `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name, is_email_verified,
			verification_token, verification_token_expiry,
			reset_password_token, reset_password_token_expiry,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.IsEmailVerified,
		user.VerificationToken,
		user.VerificationTokenExpiry,
		user.ResetPasswordToken,
		user.ResetPasswordTokenExpiry,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_DUPLICATE_EMAIL").
				With("constraint", pgErr.ConstraintName).
				Wrap(ErrDuplicateEmail)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, oops.Code("USER_INVALID_ID").With("id", id).Wrap(ErrInvalidID)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, "id", query, id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, "email", query, email)
}

func (r *PgUserRepository) GetByVerificationToken(ctx context.Context, tokenHash string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE verification_token = $1`
	return r.getOne(ctx, "verification_token", query, tokenHash)
}

func (r *PgUserRepository) GetByResetToken(ctx context.Context, tokenHash string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_password_token = $1`
	return r.getOne(ctx, "reset_password_token", query, tokenHash)
}

func (r *PgUserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`
	return r.execOne(ctx, "update password", id, query, id, passwordHash, updatedAt)
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id, firstName, lastName string, updatedAt time.Time) error {
	const query = `
		UPDATE users
		SET first_name = $2, last_name = $3, updated_at = $4
		WHERE id = $1
	`
	return r.execOne(ctx, "update profile", id, query, id, firstName, lastName, updatedAt)
}

func (r *PgUserRepository) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, updatedAt time.Time) error {
	const query = `
		UPDATE users
		SET verification_token = $2, verification_token_expiry = $3, updated_at = $4
		WHERE id = $1 AND is_email_verified = FALSE
	`
	return r.execOne(ctx, "set verification token", id, query, id, tokenHash, expiresAt, updatedAt)
}

// MarkEmailVerified consume el token de verificación. Solo afecta la fila si
// el hash sigue siendo el vigente y no expiró, por lo que un token usado o
// reemplazado devuelve ErrNotFound.
func (r *PgUserRepository) MarkEmailVerified(ctx context.Context, id, tokenHash string, verifiedAt time.Time) error {
	const query = `
		UPDATE users
		SET is_email_verified = TRUE,
			verification_token = NULL,
			verification_token_expiry = NULL,
			updated_at = $3
		WHERE id = $1 AND verification_token = $2 AND verification_token_expiry > $3
	`
	return r.execOne(ctx, "mark email verified", id, query, id, tokenHash, verifiedAt)
}

func (r *PgUserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, updatedAt time.Time) error {
	const query = `
		UPDATE users
		SET reset_password_token = $2, reset_password_token_expiry = $3, updated_at = $4
		WHERE id = $1
	`
	return r.execOne(ctx, "set reset token", id, query, id, tokenHash, expiresAt, updatedAt)
}

// ClearResetToken solo limpia la fila si tokenHash sigue siendo el vigente.
func (r *PgUserRepository) ClearResetToken(ctx context.Context, id, tokenHash string, updatedAt time.Time) error {
	const query = `
		UPDATE users
		SET reset_password_token = NULL, reset_password_token_expiry = NULL, updated_at = $3
		WHERE id = $1 AND reset_password_token = $2
	`
	return r.execOne(ctx, "clear reset token", id, query, id, tokenHash, updatedAt)
}

// ResetPassword guarda el nuevo hash y consume el token de reseteo en una sola sentencia.
func (r *PgUserRepository) ResetPassword(ctx context.Context, id, tokenHash, passwordHash string, updatedAt time.Time) error {
	const query = `
		UPDATE users
		SET password_hash = $3,
			reset_password_token = NULL,
			reset_password_token_expiry = NULL,
			updated_at = $4
		WHERE id = $1 AND reset_password_token = $2 AND reset_password_token_expiry > $4
	`
	return r.execOne(ctx, "reset password", id, query, id, tokenHash, passwordHash, updatedAt)
}

func (r *PgUserRepository) getOne(ctx context.Context, lookup, query string, arg any) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.IsEmailVerified,
		&u.VerificationToken,
		&u.VerificationTokenExpiry,
		&u.ResetPasswordToken,
		&u.ResetPasswordTokenExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, oops.Code("USER_NOT_FOUND").With("lookup", lookup).Wrap(ErrNotFound)
	}
	if err != nil {
		return domain.User{}, oops.Code("USER_GET_FAILED").With("lookup", lookup).Wrap(err)
	}
	return u, nil
}

func (r *PgUserRepository) execOne(ctx context.Context, operation, id, query string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return oops.Code("USER_INVALID_ID").With("id", id).Wrap(ErrInvalidID)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("operation", operation).
			With("id", id).
			Wrap(ErrNotFound)
	}
	return nil
}
