package apperror

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// FromValidator turns a binding or validator failure into a validation error.
// Field failures are listed under "fields" as field -> failed tag; anything
// else (malformed JSON) goes under "error".
func FromValidator(message string, err error) *AppError {
	appErr := NewValidation(message)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErr.WithDetail("error", err.Error())
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		fields[fe.Namespace()] = tag
	}
	return appErr.WithDetail("fields", fields)
}
