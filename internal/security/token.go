package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Longitud en bytes de los secretos de un solo uso (256 bits).
const tokenBytes = 32

var ErrTokenTTL = errors.New("token ttl must be positive")

// OneTimeToken agrupa el secreto entregado al usuario y su hash persistible.
type OneTimeToken struct {
	Secret    string
	Hash      string
	ExpiresAt time.Time
}

// TokenGenerator emite secretos de verificación y reseteo.
type TokenGenerator struct {
	now func() time.Time
}

func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{now: func() time.Time { return time.Now().UTC() }}
}

// NewTokenGeneratorWithClock permite fijar el reloj en pruebas.
func NewTokenGeneratorWithClock(now func() time.Time) *TokenGenerator {
	if now == nil {
		return NewTokenGenerator()
	}
	return &TokenGenerator{now: now}
}

// Generate crea un secreto aleatorio válido durante ttl. El secreto solo debe
// viajar en el enlace del correo; en base de datos se guarda Hash.
func (g *TokenGenerator) Generate(ttl time.Duration) (OneTimeToken, error) {
	if ttl <= 0 {
		return OneTimeToken{}, ErrTokenTTL
	}
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return OneTimeToken{}, err
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	return OneTimeToken{
		Secret:    secret,
		Hash:      HashToken(secret),
		ExpiresAt: g.now().Add(ttl),
	}, nil
}

// HashToken es determinista para poder buscar usuarios por el hash del secreto.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}

func VerifyToken(candidate, storedHash string) bool {
	if strings.TrimSpace(candidate) == "" || storedHash == "" {
		return false
	}
	computed := HashToken(candidate)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// IsExpired reporta si expiresAt ya no es válido en el instante now.
func IsExpired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}
