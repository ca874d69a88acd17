// Package validation wraps struct-tag validation with field-level errors
// suitable for API responses.
package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldError is one failed field with a human-readable message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects every failed field of one struct.
type Errors struct {
	Fields []FieldError `json:"errors"`
}

func (v *Errors) Error() string {
	if len(v.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(v.Fields))
	for i, e := range v.Fields {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// Struct validates v against its `validate` tags and then a custom
// Validate() error method when one is defined. The returned error is always
// a *Errors so handlers can render per-field messages.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		out := &Errors{}
		for _, e := range err.(validator.ValidationErrors) {
			out.Fields = append(out.Fields, FieldError{
				Field:   toSnakeCase(e.Field()),
				Message: message(e),
			})
		}
		return out
	}

	if custom, ok := v.(interface{ Validate() error }); ok {
		if err := custom.Validate(); err != nil {
			return &Errors{Fields: []FieldError{{Field: "_custom", Message: err.Error()}}}
		}
	}
	return nil
}

// Var validates a single value against a tag expression.
func Var(value any, tag string) error {
	return validate.Var(value, tag)
}

func message(e validator.FieldError) string {
	field := toSnakeCase(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
		}
		return fmt.Sprintf("%s must have at least %s entries", field, e.Param())
	case "max":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
		}
		return fmt.Sprintf("%s must have at most %s entries", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}

// toSnakeCase converts exported Go field names to their wire spelling.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteByte(byte(r + 'a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
