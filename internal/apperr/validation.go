package apperr

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// FromValidator traduce errores de go-playground/validator (incluidos los de
// gin binding) a un ValidationFailed con un mensaje por campo.
func FromValidator(err error) *Error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation(map[string]string{"body": "request body is malformed"})
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := lowerFirst(fe.Field())
		if _, seen := fields[name]; seen {
			continue
		}
		fields[name] = fieldMessage(fe)
	}
	return Validation(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "uuid", "uuid4":
		return "must be a valid id"
	case "password":
		return "must contain an uppercase letter, a lowercase letter and a digit"
	default:
		return "is invalid"
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
