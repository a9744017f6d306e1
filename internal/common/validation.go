package common

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// Validator provides validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Messages returns the bare rule messages, one per failure.
func (v *Validator) Messages() []string {
	out := make([]string, 0, len(v.errors))
	for _, err := range v.errors {
		out = append(out, err.Message)
	}
	return out
}

// Error returns a combined error message
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, v.ErrorMessage())
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *ValidationError

// Required - Common validation rules
func Required(fieldName string, value interface{}) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}

	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	case *string:
		if v == nil || strings.TrimSpace(*v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	case *float64:
		if v == nil {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	}
	return nil
}

// Positive fails unless value is a number greater than zero. A nil pointer counts as zero.
func Positive(message string) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case *float64:
			if v != nil {
				f = *v
			}
		case int:
			f = float64(v)
		default:
			return &ValidationError{Field: fieldName, Value: value, Message: "must be a number"}
		}
		if f <= 0 {
			return &ValidationError{Field: fieldName, Value: value, Message: message}
		}
		return nil
	}
}

// NotPlaceholder fails when the trimmed, lower-cased value is empty or one of placeholders.
func NotPlaceholder(message string, placeholders ...string) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		str, _ := stringValue(value)
		s := strings.ToLower(strings.TrimSpace(str))
		if s == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: message}
		}
		for _, p := range placeholders {
			if s == p {
				return &ValidationError{Field: fieldName, Value: value, Message: message}
			}
		}
		return nil
	}
}

// ISODate accepts an empty value or a YYYY-MM-DD date.
func ISODate(fieldName string, value interface{}) *ValidationError {
	str, _ := stringValue(value)
	if str == "" {
		return nil
	}
	if _, err := ParseYMD(str); err != nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a YYYY-MM-DD date"}
	}
	return nil
}

// ParseYMD parses a YYYY-MM-DD date at midnight UTC.
func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func stringValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", true
		}
		return *v, true
	}
	return "", false
}

// IsValidation reports whether err came from a Validator.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
