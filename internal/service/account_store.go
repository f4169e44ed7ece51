package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"flowdesk/internal/apperr"
	"flowdesk/internal/domain"
	"flowdesk/internal/repository"
	"flowdesk/internal/security"
)

const (
	maxPasswordBytes  = 72
	dummyPasswordSeed = "flowdesk-timing-equaliser"
)

// PasswordPolicy define los umbrales de contraseña configurables.
type PasswordPolicy struct {
	MinLength    int
	RequireMixed bool
}

// NewAccount son los campos de alta de una cuenta.
type NewAccount struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type ProfileUpdate struct {
	FirstName string
	LastName  string
}

type accountFields struct {
	Email     string `validate:"required,email,max=254"`
	FirstName string `validate:"required,min=2,max=50"`
	LastName  string `validate:"required,min=2,max=50"`
}

type profileFields struct {
	FirstName string `validate:"required,min=2,max=50"`
	LastName  string `validate:"required,min=2,max=50"`
}

// AccountStore es la única vía de escritura sobre usuarios: valida invariantes
// de campo, hashea contraseñas y traduce errores de persistencia.
type AccountStore struct {
	users    repository.UserRepository
	hasher   security.PasswordHasher
	validate *validator.Validate
	policy   PasswordPolicy
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAccountStore(users repository.UserRepository, hasher security.PasswordHasher, policy PasswordPolicy) *AccountStore {
	if policy.MinLength <= 0 {
		policy.MinLength = 8
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("password", mixedPassword)
	return &AccountStore{
		users:    users,
		hasher:   hasher,
		validate: v,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Policy expone la política vigente para reutilizarla en otros formularios.
func (s *AccountStore) Policy() PasswordPolicy {
	return s.policy
}

func (s *AccountStore) ValidateNewAccount(in NewAccount) (NewAccount, error) {
	normalized := NewAccount{
		Email:     normalizeEmail(in.Email),
		Password:  in.Password,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}
	fields := s.structFields(accountFields{
		Email:     normalized.Email,
		FirstName: normalized.FirstName,
		LastName:  normalized.LastName,
	})
	if msg := s.passwordProblem(normalized.Password); msg != "" {
		fields["password"] = msg
	}
	if len(fields) > 0 {
		return NewAccount{}, apperr.Validation(fields)
	}
	return normalized, nil
}

// ValidateEmail normaliza y valida una dirección suelta.
func (s *AccountStore) ValidateEmail(email string) (string, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return "", apperr.Validation(map[string]string{"email": "is required"})
	}
	if err := s.validate.Var(normalized, "email,max=254"); err != nil {
		return "", apperr.Validation(map[string]string{"email": "must be a valid email address"})
	}
	return normalized, nil
}

// ValidatePassword aplica la política y reporta el fallo bajo field.
func (s *AccountStore) ValidatePassword(field, password string) error {
	if msg := s.passwordProblem(password); msg != "" {
		return apperr.Validation(map[string]string{field: msg})
	}
	return nil
}

func (s *AccountStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return false, apperr.Internal(err)
}

// Create valida, hashea y persiste una cuenta nueva sin verificar, con el
// token de verificación ya emitido.
func (s *AccountStore) Create(ctx context.Context, in NewAccount, verification security.OneTimeToken) (domain.User, error) {
	normalized, err := s.ValidateNewAccount(in)
	if err != nil {
		return domain.User{}, err
	}
	hash, err := s.hasher.Hash(normalized.Password)
	if err != nil {
		return domain.User{}, apperr.Internal(err)
	}
	now := s.now()
	tokenHash := verification.Hash
	expiresAt := verification.ExpiresAt
	user := domain.User{
		ID:                      uuid.NewString(),
		Email:                   normalized.Email,
		PasswordHash:            hash,
		FirstName:               normalized.FirstName,
		LastName:                normalized.LastName,
		IsEmailVerified:         false,
		VerificationToken:       &tokenHash,
		VerificationTokenExpiry: &expiresAt,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, storeError(err)
	}
	return user, nil
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return domain.User{}, storeError(err)
	}
	return user, nil
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (domain.User, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, apperr.New(apperr.KindInvalidIDFormat, apperr.MessageInvalidIDFormat)
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, storeError(err)
	}
	return user, nil
}

func (s *AccountStore) FindByVerificationToken(ctx context.Context, tokenHash string) (domain.User, error) {
	user, err := s.users.GetByVerificationToken(ctx, tokenHash)
	if err != nil {
		return domain.User{}, storeError(err)
	}
	return user, nil
}

func (s *AccountStore) FindByResetToken(ctx context.Context, tokenHash string) (domain.User, error) {
	user, err := s.users.GetByResetToken(ctx, tokenHash)
	if err != nil {
		return domain.User{}, storeError(err)
	}
	return user, nil
}

// UpdatePassword aplica la política, rehashea y guarda la nueva contraseña.
func (s *AccountStore) UpdatePassword(ctx context.Context, id, newPassword string) error {
	if err := s.ValidatePassword("newPassword", newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.users.UpdatePasswordHash(ctx, id, hash, s.now()); err != nil {
		return storeError(err)
	}
	return nil
}

// UpdateProfile cambia solo nombre y apellido; la contraseña no se toca.
func (s *AccountStore) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (domain.User, error) {
	update := ProfileUpdate{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}
	if fields := s.structFields(profileFields(update)); len(fields) > 0 {
		return domain.User{}, apperr.Validation(fields)
	}
	if err := s.users.UpdateProfile(ctx, id, update.FirstName, update.LastName, s.now()); err != nil {
		return domain.User{}, storeError(err)
	}
	return s.FindByID(ctx, id)
}

// SetVerification reemplaza el token de verificación vigente.
func (s *AccountStore) SetVerification(ctx context.Context, id string, token security.OneTimeToken) error {
	if err := s.users.SetVerificationToken(ctx, id, token.Hash, token.ExpiresAt, s.now()); err != nil {
		return storeError(err)
	}
	return nil
}

// MarkEmailVerified marca la cuenta verificada y limpia el token en una sola
// escritura. Si el token ya fue consumido o reemplazado devuelve
// InvalidOrExpiredToken.
func (s *AccountStore) MarkEmailVerified(ctx context.Context, id, tokenHash string) error {
	err := s.users.MarkEmailVerified(ctx, id, tokenHash, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.KindInvalidOrExpiredToken, apperr.MessageInvalidOrExpiredToken)
	}
	if err != nil {
		return storeError(err)
	}
	return nil
}

func (s *AccountStore) SetResetToken(ctx context.Context, id string, token security.OneTimeToken) error {
	if err := s.users.SetResetToken(ctx, id, token.Hash, token.ExpiresAt, s.now()); err != nil {
		return storeError(err)
	}
	return nil
}

// ClearResetToken borra el token de reseteo solo si tokenHash sigue siendo el
// vigente; uno ya reemplazado por otra solicitud no se toca.
func (s *AccountStore) ClearResetToken(ctx context.Context, id, tokenHash string) error {
	err := s.users.ClearResetToken(ctx, id, tokenHash, s.now())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeError(err)
	}
	return nil
}

// ResetPassword consume el token de reseteo y guarda el nuevo hash.
func (s *AccountStore) ResetPassword(ctx context.Context, id, tokenHash, newPassword string) error {
	if err := s.ValidatePassword("newPassword", newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	err = s.users.ResetPassword(ctx, id, tokenHash, hash, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.KindInvalidOrExpiredToken, apperr.MessageInvalidOrExpiredToken)
	}
	if err != nil {
		return storeError(err)
	}
	return nil
}

func (s *AccountStore) CheckPassword(user domain.User, password string) bool {
	return s.hasher.Verify(password, user.PasswordHash)
}

// CheckPasswordDummy compara contra un hash fijo para que un email inexistente
// tarde lo mismo que una contraseña incorrecta.
func (s *AccountStore) CheckPasswordDummy(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(dummyPasswordSeed)
	})
	_ = s.hasher.Verify(password, s.dummyHash)
}

func (s *AccountStore) structFields(v any) map[string]string {
	fields := map[string]string{}
	if err := s.validate.Struct(v); err != nil {
		if verr := apperr.FromValidator(err); verr != nil {
			for k, msg := range verr.Fields {
				fields[k] = msg
			}
		}
	}
	return fields
}

func (s *AccountStore) passwordProblem(password string) string {
	if password == "" {
		return "is required"
	}
	if utf8.RuneCountInString(password) < s.policy.MinLength {
		return fmt.Sprintf("must be at least %d characters", s.policy.MinLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)
	}
	if s.policy.RequireMixed {
		if err := s.validate.Var(password, "password"); err != nil {
			return "must contain an uppercase letter, a lowercase letter and a digit"
		}
	}
	return ""
}

func mixedPassword(fl validator.FieldLevel) bool {
	var upper, lower, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// storeError traduce los sentinelas del repositorio a la taxonomía pública.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, apperr.MessageNotFound)
	case errors.Is(err, repository.ErrInvalidID):
		return apperr.Wrap(apperr.KindInvalidIDFormat, err, apperr.MessageInvalidIDFormat)
	case errors.Is(err, repository.ErrDuplicateEmail):
		return apperr.Wrap(apperr.KindAccountExists, err, apperr.MessageAccountExists)
	default:
		return apperr.Internal(err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
