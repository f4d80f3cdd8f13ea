package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Packages wrap these so callers can branch with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrConflict    = errors.New("conflict")
	ErrDependency  = errors.New("dependency failure")
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError reports malformed input with a per-field breakdown.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) HasErrors() bool { return len(e.Fields) > 0 }

// OrNil returns e only when at least one field failed.
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a single-field validation error.
func Invalid(field, msg string) error {
	v := NewValidationError()
	v.Add(field, msg)
	return v
}

// ProductError names the product that failed catalog validation.
type ProductError struct {
	ProductID string
	Kind      error
}

func (e *ProductError) Error() string {
	if errors.Is(e.Kind, ErrUnavailable) {
		return fmt.Sprintf("product %s is not available", e.ProductID)
	}
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductError) Unwrap() error { return e.Kind }
