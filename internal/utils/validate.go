package utils

import (
	"errors"
	"fmt"
	"strings"

	"nesavent/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate runs struct tag validation and reports the first failing field
// as a validation error.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Invalid(fmt.Sprintf("field %s tidak valid (%s)", lowerFirst(fe.Field()), fe.Tag()))
	}
	return apperr.Invalid(err.Error())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
