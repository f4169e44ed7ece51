package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrCredentialProcessing indica un fallo del backend de hashing.
var ErrCredentialProcessing = errors.New("credential processing failed")

// PasswordHasher genera y verifica hashes de contraseñas.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// BcryptHasher implementa PasswordHasher con bcrypt.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialProcessing, err)
	}
	return string(hashBytes), nil
}

func (h *BcryptHasher) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
