// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")

	// Authentication errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrReauthRequired = errors.New("re-authentication required")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "children", "coordinator", "options"
	Op      string // Operation that failed, e.g., "ByKey", "Update"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Children domain errors
var (
	ErrChildNotFound    = NewDomainError("children", "ByKey", ErrNotFound, "child not found")
	ErrChildIncomplete  = NewDomainError("children", "Build", ErrValidation, "child record missing server or user id")
	ErrOptionsSlotEmpty = NewDomainError("children", "OptionKeyFor", ErrNotFound, "no options slot for child key")
)

// Coordinator domain errors
var (
	ErrRefreshFailed   = NewDomainError("coordinator", "Refresh", ErrExternalService, "poll cycle failed")
	ErrNoSnapshot      = NewDomainError("coordinator", "Select", ErrInvalidState, "no snapshot published yet")
	ErrUnknownChildKey = NewDomainError("coordinator", "Select", ErrNotFound, "unknown child key")
)

// Options (persisted configuration) domain errors
var (
	ErrOptionsUnavailable = NewDomainError("options", "Children", ErrServiceUnavailable, "options store unavailable")
	ErrStaleWrite         = NewDomainError("options", "Update", ErrConcurrentModification, "options write based on stale read")
)
