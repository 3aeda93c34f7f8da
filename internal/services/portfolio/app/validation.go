package app

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
)

// Rule names a field constraint.
type Rule string

const (
	RuleRequired Rule = "required"
	RulePositive Rule = "positive"
	RuleNonZero  Rule = "non_zero"
	RuleInRange  Rule = "in_range"
)

// FieldError is one violated field constraint.
type FieldError struct {
	Field string
	Rule  Rule
}

// Message returns the caller-facing description.
func (e FieldError) Message() string {
	switch e.Rule {
	case RuleRequired:
		return fmt.Sprintf("Field '%s' is required", e.Field)
	case RulePositive:
		return fmt.Sprintf("Field '%s' must be positive", e.Field)
	case RuleNonZero:
		return fmt.Sprintf("Field '%s' must be non zero", e.Field)
	case RuleInRange:
		return fmt.Sprintf("Field '%s' is out of range", e.Field)
	default:
		return fmt.Sprintf("Field '%s' is invalid", e.Field)
	}
}

// ValidationError carries every field error found in one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages(), "; ")
}

// Messages returns the field messages in check order.
func (e *ValidationError) Messages() []string {
	messages := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		messages = append(messages, field.Message())
	}
	return messages
}

// Metadata maps each invalid field to its message.
func (e *ValidationError) Metadata() map[string]string {
	metadata := make(map[string]string, len(e.Fields))
	for _, field := range e.Fields {
		if _, ok := metadata[field.Field]; !ok {
			metadata[field.Field] = field.Message()
		}
	}
	return metadata
}

// ErrorCode returns apperrors.CodeValidation.
func (e *ValidationError) ErrorCode() apperrors.Code { return apperrors.CodeValidation }

// Is matches platform errors carrying the validation code.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*apperrors.Error)
	return ok && t.Code == apperrors.CodeValidation
}

type validator struct {
	fields []FieldError
}

func (v *validator) check(ok bool, field string, rule Rule) {
	if !ok {
		v.fields = append(v.fields, FieldError{Field: field, Rule: rule})
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
