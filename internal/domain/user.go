package domain

import "time"

// User es el registro de identidad y credenciales. Los hashes nunca se serializan.
type User struct {
	ID                       string     `json:"id"`
	Email                    string     `json:"email"`
	PasswordHash             string     `json:"-"`
	FirstName                string     `json:"firstName"`
	LastName                 string     `json:"lastName"`
	IsEmailVerified          bool       `json:"isEmailVerified"`
	VerificationToken        *string    `json:"-"`
	VerificationTokenExpiry  *time.Time `json:"-"`
	ResetPasswordToken       *string    `json:"-"`
	ResetPasswordTokenExpiry *time.Time `json:"-"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

// Profile es la vista pública de un usuario.
type Profile struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// HasPendingVerification reporta si hay un token de verificación emitido.
func (u User) HasPendingVerification() bool {
	return u.VerificationToken != nil && u.VerificationTokenExpiry != nil
}

func (u User) HasPendingReset() bool {
	return u.ResetPasswordToken != nil && u.ResetPasswordTokenExpiry != nil
}
