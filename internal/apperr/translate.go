package apperr

import (
	"errors"
	"net/http"
)

// Response es la forma serializada de cualquier fallo.
type Response struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
	Detail  string            `json:"detail,omitempty"`
}

// Translate convierte err en status HTTP y cuerpo estable. El detalle interno
// solo se incluye cuando exposeDetail es true (entornos no productivos).
func Translate(err error, exposeDetail bool) (int, Response) {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err)
	}

	status, message := statusFor(e.Kind)
	resp := Response{
		Success: false,
		Message: message,
	}
	if e.Message != "" {
		resp.Message = e.Message
	}
	if e.Kind == KindValidation && len(e.Fields) > 0 {
		resp.Errors = e.Fields
	}
	if exposeDetail && e.Kind == KindServer && e.Err != nil {
		resp.Detail = e.Err.Error()
	}
	return status, resp
}

func statusFor(kind Kind) (int, string) {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest, MessageValidation
	case KindAccountExists:
		return http.StatusBadRequest, MessageAccountExists
	case KindWrongCredentials:
		return http.StatusUnauthorized, MessageWrongCredentials
	case KindInvalidEmail:
		return http.StatusUnauthorized, MessageInvalidEmail
	case KindInvalidPassword:
		return http.StatusUnauthorized, MessageInvalidPassword
	case KindEmailNotVerified:
		return http.StatusForbidden, MessageEmailNotVerified
	case KindInvalidOrExpiredToken:
		return http.StatusBadRequest, MessageInvalidOrExpiredToken
	case KindInvalidIDFormat:
		return http.StatusBadRequest, MessageInvalidIDFormat
	case KindUnauthorized:
		return http.StatusUnauthorized, MessageUnauthorized
	case KindInvalidToken:
		return http.StatusUnauthorized, MessageInvalidToken
	case KindTokenExpired:
		return http.StatusUnauthorized, MessageTokenExpired
	case KindNotFound:
		return http.StatusNotFound, MessageNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests, MessageRateLimited
	case KindServer:
		return http.StatusInternalServerError, MessageServer
	default:
		return http.StatusInternalServerError, MessageServer
	}
}
