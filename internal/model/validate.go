package model

import (
	"fmt"
	"strings"
)

// MaxDataSourceNameLength bounds DataSource.Name.
const MaxDataSourceNameLength = 64

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateDataSourceName checks that name can be used as a data source key.
// Names are lowercase ASCII letters, digits, '-' and '_'.
func ValidateDataSourceName(name string) error {
	var ve ValidationError

	switch {
	case name == "":
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	case len(name) > MaxDataSourceNameLength:
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "name",
			Message: fmt.Sprintf("must be %d characters or fewer", MaxDataSourceNameLength),
		})
	default:
		for _, r := range name {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
				continue
			}
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "name",
				Message: fmt.Sprintf("contains invalid character %q", r),
			})
			break
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
