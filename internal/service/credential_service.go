package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"flowdesk/internal/apperr"
	"flowdesk/internal/domain"
	"flowdesk/internal/email"
	"flowdesk/internal/security"
)

// Mensajes de éxito de los flujos de credenciales.
const (
	MessageRegistered      = "Registration successful. Please check your email to verify your account"
	MessageEmailVerified   = "Email verified successfully. You can now log in"
	MessageLinkSent        = "If an account with that email is registered, a link has been sent to it"
	MessageAlreadyVerified = "This email is already verified. You can log in"
	MessagePasswordReset   = "Password has been reset successfully. You can now log in"
	MessagePasswordChanged = "Password changed successfully"
	MessageProfileUpdated  = "Profile updated successfully"
	MessageLoggedOut       = "Logged out successfully"
)

// NotifyPolicy decide si un fallo del Notifier aborta el flujo.
type NotifyPolicy int

const (
	NotifyBestEffort NotifyPolicy = iota
	NotifyRequired
)

// Policy agrupa las decisiones configurables de los flujos.
type Policy struct {
	VerificationTTL          time.Duration
	ResetTTL                 time.Duration
	RequireEmailVerification bool
	RevealLoginFailureReason bool
	RegistrationNotify       NotifyPolicy
	ResendNotify             NotifyPolicy
	ForgotPasswordNotify     NotifyPolicy
	AppBaseURL               string
}

func DefaultPolicy() Policy {
	return Policy{
		VerificationTTL:          24 * time.Hour,
		ResetTTL:                 time.Hour,
		RequireEmailVerification: true,
		RegistrationNotify:       NotifyBestEffort,
		ResendNotify:             NotifyRequired,
		ForgotPasswordNotify:     NotifyRequired,
		AppBaseURL:               "http://localhost:3000",
	}
}

type LoginResult struct {
	User   domain.Profile `json:"user"`
	Tokens TokenPair      `json:"tokens"`
}

// CredentialService orquesta registro, verificación, login y reseteo de
// contraseña. Toda escritura pasa por AccountStore.
type CredentialService struct {
	logger   *zap.Logger
	accounts *AccountStore
	tokens   *security.TokenGenerator
	sessions *JWTService
	mailer   email.Sender
	limiter  DeliveryLimiter
	policy   Policy
	now      func() time.Time
}

func NewCredentialService(
	logger *zap.Logger,
	accounts *AccountStore,
	tokens *security.TokenGenerator,
	sessions *JWTService,
	mailer email.Sender,
	limiter DeliveryLimiter,
	policy Policy,
) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = security.NewTokenGenerator()
	}
	if mailer == nil {
		mailer = email.NewDisabledSender("email sender not configured")
	}
	return &CredentialService{
		logger:   logger,
		accounts: accounts,
		tokens:   tokens,
		sessions: sessions,
		mailer:   mailer,
		limiter:  limiter,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register crea una cuenta sin verificar y envía el enlace de verificación.
func (s *CredentialService) Register(ctx context.Context, in NewAccount) (domain.Profile, error) {
	normalized, err := s.accounts.ValidateNewAccount(in)
	if err != nil {
		return domain.Profile{}, err
	}
	taken, err := s.accounts.EmailTaken(ctx, normalized.Email)
	if err != nil {
		return domain.Profile{}, err
	}
	if taken {
		return domain.Profile{}, apperr.New(apperr.KindAccountExists, apperr.MessageAccountExists)
	}

	token, err := s.tokens.Generate(s.policy.VerificationTTL)
	if err != nil {
		return domain.Profile{}, apperr.Internal(err)
	}
	user, err := s.accounts.Create(ctx, normalized, token)
	if err != nil {
		return domain.Profile{}, err
	}
	s.logger.Info("account registered", zap.String("user_id", user.ID))

	err = s.notify(ctx, s.policy.RegistrationNotify, "register", user.ID, email.Message{
		To:   user.Email,
		Kind: email.KindVerification,
		Payload: email.Payload{
			Name:      user.FirstName,
			Link:      s.link("/verify-email", token.Secret),
			ExpiresAt: token.ExpiresAt,
		},
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return user.Profile(), nil
}

// VerifyEmail consume un token de verificación. Token inexistente, expirado o
// ya usado producen el mismo InvalidOrExpiredToken.
func (s *CredentialService) VerifyEmail(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return apperr.Validation(map[string]string{"token": "is required"})
	}
	tokenHash := security.HashToken(rawToken)
	user, err := s.accounts.FindByVerificationToken(ctx, tokenHash)
	if err != nil {
		return invalidTokenOr(err)
	}
	if !user.HasPendingVerification() || !security.VerifyToken(rawToken, *user.VerificationToken) ||
		security.IsExpired(*user.VerificationTokenExpiry, s.now()) {
		return apperr.New(apperr.KindInvalidOrExpiredToken, apperr.MessageInvalidOrExpiredToken)
	}
	if err := s.accounts.MarkEmailVerified(ctx, user.ID, tokenHash); err != nil {
		return err
	}
	s.logger.Info("email verified", zap.String("user_id", user.ID))

	_ = s.notify(ctx, NotifyBestEffort, "verify_email", user.ID, email.Message{
		To:      user.Email,
		Kind:    email.KindWelcome,
		Payload: email.Payload{Name: user.FirstName, Link: s.link("/login", "")},
	})
	return nil
}

// ResendVerification emite un token nuevo que reemplaza al anterior. La
// respuesta no distingue una cuenta inexistente de una pendiente.
func (s *CredentialService) ResendVerification(ctx context.Context, emailAddr string) (string, error) {
	normalized, err := s.accounts.ValidateEmail(emailAddr)
	if err != nil {
		return "", err
	}
	if !s.allowDelivery(ctx, "verify:"+normalized) {
		return "", apperr.New(apperr.KindRateLimited, apperr.MessageRateLimited)
	}
	user, err := s.accounts.FindByEmail(ctx, normalized)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return MessageLinkSent, nil
	}
	if err != nil {
		return "", err
	}
	if user.IsEmailVerified {
		return MessageAlreadyVerified, nil
	}

	token, err := s.tokens.Generate(s.policy.VerificationTTL)
	if err != nil {
		return "", apperr.Internal(err)
	}
	err = s.accounts.SetVerification(ctx, user.ID, token)
	if apperr.IsKind(err, apperr.KindNotFound) {
		// verificada entre la lectura y la escritura
		return MessageAlreadyVerified, nil
	}
	if err != nil {
		return "", err
	}

	err = s.notify(ctx, s.policy.ResendNotify, "resend_verification", user.ID, email.Message{
		To:   user.Email,
		Kind: email.KindVerification,
		Payload: email.Payload{
			Name:      user.FirstName,
			Link:      s.link("/verify-email", token.Secret),
			ExpiresAt: token.ExpiresAt,
		},
	})
	if err != nil {
		return "", err
	}
	return MessageLinkSent, nil
}

// Login valida credenciales y emite la sesión. Por defecto ambos fallos
// producen WrongCredentials.
func (s *CredentialService) Login(ctx context.Context, emailAddr, password string) (LoginResult, error) {
	normalized, err := s.accounts.ValidateEmail(emailAddr)
	if err != nil {
		return LoginResult{}, err
	}
	if password == "" {
		return LoginResult{}, apperr.Validation(map[string]string{"password": "is required"})
	}

	user, err := s.accounts.FindByEmail(ctx, normalized)
	if apperr.IsKind(err, apperr.KindNotFound) {
		s.accounts.CheckPasswordDummy(password)
		return LoginResult{}, s.loginFailure(apperr.KindInvalidEmail, apperr.MessageInvalidEmail)
	}
	if err != nil {
		return LoginResult{}, err
	}
	if !s.accounts.CheckPassword(user, password) {
		return LoginResult{}, s.loginFailure(apperr.KindInvalidPassword, apperr.MessageInvalidPassword)
	}
	if s.policy.RequireEmailVerification && !user.IsEmailVerified {
		return LoginResult{}, apperr.New(apperr.KindEmailNotVerified, apperr.MessageEmailNotVerified)
	}

	pair, err := s.sessions.GeneratePair(ctx, user.ID)
	if err != nil {
		return LoginResult{}, apperr.Internal(err)
	}
	s.logger.Info("login succeeded", zap.String("user_id", user.ID))
	return LoginResult{User: user.Profile(), Tokens: pair}, nil
}

// ForgotPassword emite un token de reseteo y lo envía. Responde igual exista
// o no la cuenta.
func (s *CredentialService) ForgotPassword(ctx context.Context, emailAddr string) (string, error) {
	normalized, err := s.accounts.ValidateEmail(emailAddr)
	if err != nil {
		return "", err
	}
	if !s.allowDelivery(ctx, "reset:"+normalized) {
		return "", apperr.New(apperr.KindRateLimited, apperr.MessageRateLimited)
	}
	user, err := s.accounts.FindByEmail(ctx, normalized)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return MessageLinkSent, nil
	}
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Generate(s.policy.ResetTTL)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if err := s.accounts.SetResetToken(ctx, user.ID, token); err != nil {
		return "", err
	}

	err = s.notify(ctx, s.policy.ForgotPasswordNotify, "forgot_password", user.ID, email.Message{
		To:   user.Email,
		Kind: email.KindPasswordReset,
		Payload: email.Payload{
			Name:      user.FirstName,
			Link:      s.link("/reset-password", token.Secret),
			ExpiresAt: token.ExpiresAt,
		},
	})
	if err != nil {
		// un token que nunca llegó al usuario no debe quedar vigente
		if clearErr := s.accounts.ClearResetToken(ctx, user.ID, token.Hash); clearErr != nil {
			s.logger.Error("clear undelivered reset token failed", zap.String("user_id", user.ID), zap.Error(clearErr))
		}
		return "", err
	}
	return MessageLinkSent, nil
}

// ResetPassword consume el token de reseteo y guarda la nueva contraseña.
func (s *CredentialService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	fields := map[string]string{}
	if rawToken == "" {
		fields["token"] = "is required"
	}
	if err := s.accounts.ValidatePassword("newPassword", newPassword); err != nil {
		var verr *apperr.Error
		if errors.As(err, &verr) {
			for k, msg := range verr.Fields {
				fields[k] = msg
			}
		}
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}

	tokenHash := security.HashToken(rawToken)
	user, err := s.accounts.FindByResetToken(ctx, tokenHash)
	if err != nil {
		return invalidTokenOr(err)
	}
	if !user.HasPendingReset() || !security.VerifyToken(rawToken, *user.ResetPasswordToken) ||
		security.IsExpired(*user.ResetPasswordTokenExpiry, s.now()) {
		return apperr.New(apperr.KindInvalidOrExpiredToken, apperr.MessageInvalidOrExpiredToken)
	}
	if err := s.accounts.ResetPassword(ctx, user.ID, tokenHash, newPassword); err != nil {
		return err
	}
	s.logger.Info("password reset", zap.String("user_id", user.ID))
	s.revokeSessions(ctx, user.ID)
	return nil
}

// Authenticate resuelve el usuario vivo detrás de un access token.
func (s *CredentialService) Authenticate(ctx context.Context, accessToken string) (domain.User, error) {
	claims, err := s.sessions.ParseAccessToken(accessToken)
	if err != nil {
		return domain.User{}, sessionError(err)
	}
	user, err := s.accounts.FindByID(ctx, claims.UserID)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindInvalidIDFormat:
			return domain.User{}, apperr.New(apperr.KindUnauthorized, apperr.MessageUnauthorized)
		default:
			return domain.User{}, err
		}
	}
	return user, nil
}

func (s *CredentialService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (domain.Profile, error) {
	user, err := s.accounts.UpdateProfile(ctx, userID, in)
	if err != nil {
		return domain.Profile{}, err
	}
	return user.Profile(), nil
}

// ChangePassword exige la contraseña actual antes de rehashear la nueva.
func (s *CredentialService) ChangePassword(ctx context.Context, user domain.User, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return apperr.Validation(map[string]string{"currentPassword": "is required"})
	}
	if err := s.accounts.ValidatePassword("newPassword", newPassword); err != nil {
		return err
	}
	if !s.accounts.CheckPassword(user, currentPassword) {
		return apperr.New(apperr.KindWrongCredentials, apperr.MessageWrongCurrentPassword)
	}
	if err := s.accounts.UpdatePassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	s.logger.Info("password changed", zap.String("user_id", user.ID))
	s.revokeSessions(ctx, user.ID)

	_ = s.notify(ctx, NotifyBestEffort, "change_password", user.ID, email.Message{
		To:      user.Email,
		Kind:    email.KindPasswordChanged,
		Payload: email.Payload{Name: user.FirstName, Link: s.link("/forgot-password", "")},
	})
	return nil
}

// Refresh rota el refresh token y emite un par nuevo.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, apperr.Validation(map[string]string{"refreshToken": "is required"})
	}
	claims, err := s.sessions.ConsumeRefresh(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, sessionError(err)
	}
	user, err := s.accounts.FindByID(ctx, claims.UserID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return TokenPair{}, apperr.New(apperr.KindInvalidToken, apperr.MessageInvalidToken)
		}
		return TokenPair{}, err
	}
	pair, err := s.sessions.GeneratePair(ctx, user.ID)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	return pair, nil
}

// Logout revoca el refresh token. Uno ya expirado no tiene nada que revocar.
func (s *CredentialService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return apperr.Validation(map[string]string{"refreshToken": "is required"})
	}
	err := s.sessions.RevokeRefresh(ctx, refreshToken)
	switch {
	case err == nil, errors.Is(err, ErrJWTExpired):
		return nil
	case errors.Is(err, ErrJWTInvalid):
		return apperr.New(apperr.KindInvalidToken, apperr.MessageInvalidToken)
	default:
		return apperr.Internal(err)
	}
}

func (s *CredentialService) GetUser(ctx context.Context, id string) (domain.Profile, error) {
	user, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	return user.Profile(), nil
}

// revokeSessions invalida los refresh tokens vigentes tras cambiar la
// contraseña. La contraseña ya quedó guardada, así que un fallo solo se registra.
func (s *CredentialService) revokeSessions(ctx context.Context, userID string) {
	if err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		s.logger.Error("revoke refresh sessions failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *CredentialService) notify(ctx context.Context, policy NotifyPolicy, flow, userID string, msg email.Message) error {
	err := s.mailer.Send(ctx, msg)
	if err == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("flow", flow),
		zap.String("kind", string(msg.Kind)),
		zap.String("user_id", userID),
		zap.Error(err),
	}
	if policy == NotifyBestEffort {
		s.logger.Warn("notification failed", fields...)
		return nil
	}
	s.logger.Error("notification failed", fields...)
	return apperr.Wrap(apperr.KindServer, err, apperr.MessageDeliveryFailed)
}

func (s *CredentialService) allowDelivery(ctx context.Context, key string) bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow(ctx, key)
}

func (s *CredentialService) loginFailure(kind apperr.Kind, message string) error {
	if s.policy.RevealLoginFailureReason {
		return apperr.New(kind, message)
	}
	return apperr.New(apperr.KindWrongCredentials, apperr.MessageWrongCredentials)
}

func (s *CredentialService) link(path, token string) string {
	base := strings.TrimRight(strings.TrimSpace(s.policy.AppBaseURL), "/")
	if token == "" {
		return base + path
	}
	return base + path + "?token=" + url.QueryEscape(token)
}

func invalidTokenOr(err error) error {
	if apperr.IsKind(err, apperr.KindNotFound) {
		return apperr.New(apperr.KindInvalidOrExpiredToken, apperr.MessageInvalidOrExpiredToken)
	}
	return err
}

func sessionError(err error) error {
	if errors.Is(err, ErrJWTExpired) {
		return apperr.New(apperr.KindTokenExpired, apperr.MessageTokenExpired)
	}
	return apperr.New(apperr.KindInvalidToken, apperr.MessageInvalidToken)
}
