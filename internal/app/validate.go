package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/plexica/plexica-sub002/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their json name so errors match what callers sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("slug", slugValidator); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("role", roleValidator); err != nil {
		panic(err)
	}
	return v
}

func slugValidator(fl validator.FieldLevel) bool {
	return domain.ValidSlug(fl.Field().String())
}

func roleValidator(fl validator.FieldLevel) bool {
	return domain.Role(fl.Field().String()).Valid()
}

// validateInput runs struct validation and reports the first failing field
// as a *domain.ValidationError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &domain.ValidationError{Field: fe.Field(), Reason: reason(fe)}
	}
	return fmt.Errorf("validating input: %w", err)
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "slug":
		return "must be 3-64 lowercase letters, digits or hyphens, start with a letter and not end with a hyphen"
	case "role":
		return "must be one of ADMIN, MEMBER, VIEWER"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
