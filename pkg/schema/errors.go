package schema

import (
	"fmt"
	"strings"
)

// RootField names the input as a whole in field diagnostics.
const RootField = "(root)"

// FieldError is a single per-field diagnostic.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when input does not satisfy a schema.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "input validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "input validation failed: " + strings.Join(parts, "; ")
}

func newRootError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: RootField, Message: fmt.Sprintf(format, args...)}}}
}
