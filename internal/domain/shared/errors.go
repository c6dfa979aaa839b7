// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrStaleWindow = errors.New("stale time window")

	// Concurrency errors
	ErrConflict    = errors.New("concurrent modification detected")
	ErrLockNotHeld = errors.New("lock not acquired")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progression", "quest", "leaderboard"
	Op      string // Operation that failed, e.g., "AddXP", "Save"
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

// Validationf builds a validation error with a formatted message.
func Validationf(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error with a formatted message.
func NotFoundf(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf(format, args...))
}

// Progression domain errors
var (
	ErrProfileNotFound     = NewDomainError("progression", "Find", ErrNotFound, "profile not found")
	ErrInvalidUserID       = NewDomainError("progression", "Validate", ErrInvalidID, "user ID is required")
	ErrNonPositiveXP       = NewDomainError("progression", "AddXP", ErrValidation, "xp amount must be positive")
	ErrXPOverflow          = NewDomainError("progression", "AddXP", ErrValueOutOfRange, "xp grant would overflow the lifetime total")
	ErrGrantTooLarge       = NewDomainError("progression", "GrantXP", ErrValueOutOfRange, "xp grant exceeds the per-grant limit")
	ErrNegativeActivity    = NewDomainError("progression", "ReportActivity", ErrNegativeValue, "activity counts cannot be negative")
	ErrActivityTooLarge    = NewDomainError("progression", "ReportActivity", ErrValueOutOfRange, "activity counts exceed the per-report limit")
	ErrProfileConflict     = NewDomainError("progression", "Save", ErrConflict, "profile was modified concurrently")
	ErrUnknownQuest        = NewDomainError("quest", "Validate", ErrValidation, "unknown quest id")
	ErrQuestNotActive      = NewDomainError("quest", "Complete", ErrNotFound, "quest is not in today's set")
	ErrUnknownAchievement  = NewDomainError("achievement", "Validate", ErrValidation, "unknown achievement id")
	ErrChallengeStale      = NewDomainError("challenge", "Advance", ErrStaleWindow, "weekly challenge belongs to a past week")
	ErrInvalidLimit        = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "limit must be between 1 and 100")
	ErrProfileLockNotHeld  = NewDomainError("progression", "Lock", ErrLockNotHeld, "profile is locked by another writer")
	ErrStorageUnavailable  = NewDomainError("storage", "Ping", ErrServiceUnavailable, "storage backend is unavailable")
	ErrLeaderboardNotReady = NewDomainError("leaderboard", "Read", ErrNotFound, "leaderboard cache is empty")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConflict checks if the error is an optimistic concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsStaleWindow checks if the error is a soft stale-window error.
func IsStaleWindow(err error) bool {
	return errors.Is(err, ErrStaleWindow)
}

// IsRetryable checks if the whole operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrLockNotHeld) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
