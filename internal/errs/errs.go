// Package errs defines the error taxonomy shared by the monitoring core.
//
// Every typed error unwraps to one of the sentinels below so callers can
// branch with errors.Is without caring which component produced it.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected at creation time.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a lookup of an unknown id.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateID marks an id collision on creation.
	ErrDuplicateID = errors.New("duplicate id")
)

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an unknown zone, alert or track id.
type NotFoundError struct {
	Kind string // "zone", "alert", "track", "camera"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateIDError reports an id that already exists.
type DuplicateIDError struct {
	Kind string
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// Validation is shorthand for &ValidationError{Field: field, Reason: reason}.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound is shorthand for &NotFoundError{Kind: kind, ID: id}.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Duplicate is shorthand for &DuplicateIDError{Kind: kind, ID: id}.
func Duplicate(kind, id string) error {
	return &DuplicateIDError{Kind: kind, ID: id}
}
