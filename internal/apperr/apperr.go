// Package apperr define la taxonomía cerrada de errores visibles por el cliente.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifica la variante de error.
type Kind int

const (
	KindServer Kind = iota
	KindValidation
	KindAccountExists
	KindWrongCredentials
	KindInvalidEmail
	KindInvalidPassword
	KindEmailNotVerified
	KindInvalidOrExpiredToken
	KindInvalidIDFormat
	KindUnauthorized
	KindInvalidToken
	KindTokenExpired
	KindNotFound
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindServer:                "ServerError",
	KindValidation:            "ValidationFailed",
	KindAccountExists:         "AccountExists",
	KindWrongCredentials:      "WrongCredentials",
	KindInvalidEmail:          "InvalidEmail",
	KindInvalidPassword:       "InvalidPassword",
	KindEmailNotVerified:      "EmailNotVerified",
	KindInvalidOrExpiredToken: "InvalidOrExpiredToken",
	KindInvalidIDFormat:       "InvalidIdFormat",
	KindUnauthorized:          "Unauthorized",
	KindInvalidToken:          "InvalidToken",
	KindTokenExpired:          "TokenExpired",
	KindNotFound:              "NotFound",
	KindRateLimited:           "RateLimited",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error es el error etiquetado que producen los componentes.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is permite comparar por variante: errors.Is(err, apperr.New(KindX, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation construye un ValidationFailed con detalle por campo.
func Validation(fields map[string]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: MessageValidation,
		Fields:  fields,
	}
}

// Internal envuelve un fallo inesperado como ServerError.
func Internal(err error) *Error {
	return Wrap(KindServer, err, MessageServer)
}

// KindOf devuelve la variante de err; errores no etiquetados son KindServer.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

// IsKind reporta si err pertenece a la variante kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
