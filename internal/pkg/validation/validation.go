// Package validation holds the custom binding rules used by request DTOs.
package validation

import (
	"regexp"
	"strings"

	"saas-billing/internal/domain/usage"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var iso2 = regexp.MustCompile(`^[A-Za-z]{2}$`)

// IsISO2 reports whether s, ignoring surrounding space, is a two-letter
// country code.
func IsISO2(s string) bool {
	return iso2.MatchString(strings.TrimSpace(s))
}

// Register adds the iso2 and usage_metric rules to v.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("iso2", func(fl validator.FieldLevel) bool {
		return IsISO2(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("usage_metric", func(fl validator.FieldLevel) bool {
		return usage.Metric(fl.Field().String()).Valid()
	})
}

// RegisterGin installs the rules on gin's default validator engine.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return Register(v)
}
