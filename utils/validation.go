package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	monthRe  = regexp.MustCompile(`^[0-9]{4}-(0[1-9]|1[0-2])$`)
)

func init() {
	validate = validator.New()
	RegisterCustomValidations()
}

// ValidateStruct validates a struct using validation tags
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	return nil
}

// IsValidMonth reports whether s is a calendar month in YYYY-MM form
func IsValidMonth(s string) bool {
	return monthRe.MatchString(s)
}

// IsValidTier reports whether s names a known entitlement tier
func IsValidTier(s string) bool {
	return s == "free" || s == "pro"
}

// IsValidRole reports whether s names a chat participant
func IsValidRole(s string) bool {
	return s == "user" || s == "assistant"
}

// RegisterCustomValidations registers custom validation functions
func RegisterCustomValidations() {
	validate.RegisterValidation("month", func(fl validator.FieldLevel) bool {
		return IsValidMonth(fl.Field().String())
	})

	validate.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
		return IsValidTier(fl.Field().String())
	})

	validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return IsValidRole(fl.Field().String())
	})

	// notblank rejects ids made only of whitespace
	validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}
