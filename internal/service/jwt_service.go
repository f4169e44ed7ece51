package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// JWTService emite y valida tokens de sesión firmados. Los claims solo llevan
// el id del usuario: el perfil se resuelve en cada request.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type Claims struct {
	UserID    string `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "flowdesk",
		store:      NewMemoryRefreshTokenStore(),
	}
}

func NewJWTServiceWithStore(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *JWTService {
	svc := NewJWTService(secret, accessTTL, refreshTTL)
	if store != nil {
		svc.store = store
	}
	return svc
}

// GeneratePair emite un access token y un refresh token para userID.
func (s *JWTService) GeneratePair(ctx context.Context, userID string) (TokenPair, error) {
	if len(s.secret) == 0 || strings.TrimSpace(userID) == "" {
		return TokenPair{}, ErrJWTInvalid
	}
	now := time.Now().UTC()
	access, err := s.signToken(userID, "", now, s.accessTTL, tokenTypeAccess)
	if err != nil {
		return TokenPair{}, err
	}
	jti := uuid.NewString()
	refresh, err := s.signToken(userID, jti, now, s.refreshTTL, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Store(ctx, jti, userID, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// ParseAccessToken valida firma, emisor, tipo y expiración de un access token.
func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

// ConsumeRefresh valida un refresh token y lo revoca; cada refresh token sirve una vez.
func (s *JWTService) ConsumeRefresh(ctx context.Context, refreshToken string) (Claims, error) {
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenTypeRefresh || claims.ID == "" {
		return Claims{}, ErrJWTInvalid
	}
	owner, ok, err := s.store.Consume(ctx, claims.ID)
	if err != nil || !ok || owner != claims.UserID {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

// RevokeUserSessions invalida todos los refresh tokens emitidos para userID.
func (s *JWTService) RevokeUserSessions(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrJWTInvalid
	}
	return s.store.RevokeUser(ctx, userID)
}

func (s *JWTService) RevokeRefresh(ctx context.Context, refreshToken string) error {
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return err
	}
	if claims.TokenType != tokenTypeRefresh || claims.ID == "" {
		return ErrJWTInvalid
	}
	return s.store.Revoke(ctx, claims.ID)
}

func (s *JWTService) signToken(userID, jti string, now time.Time, ttl time.Duration, tokenType string) (string, error) {
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
