package domain

import "time"

// RefreshSession registra un refresh token emitido. ID es el jti del token.
type RefreshSession struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
