// Package service defines the shared error taxonomy for application services.
// Handlers map these error kinds onto HTTP statuses; services never speak HTTP.
package service

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error sentinels. Concrete error types below wrap one of these so
// callers can classify failures with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timeout")
	ErrInternal           = errors.New("internal error")
)

// NotFoundError reports a missing resource. The message is identical whether
// the resource never existed or is simply not visible to the caller.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError builds a NotFoundError for the given resource kind and id.
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError reports a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RequiredError is shorthand for a missing required field.
func RequiredError(field string) error {
	return NewValidationError(field, "is required")
}

// ValidationErrors collects every invalid field of a request so a write can be
// rejected as a whole with the complete field set.
type ValidationErrors struct {
	errs []*ValidationError
}

// Add records a field error.
func (v *ValidationErrors) Add(field, message string) {
	v.errs = append(v.errs, &ValidationError{Field: field, Message: message})
}

// AddRequired records a missing required field.
func (v *ValidationErrors) AddRequired(field string) {
	v.Add(field, "is required")
}

// Err returns nil when no field errors were recorded, otherwise the set.
func (v *ValidationErrors) Err() error {
	if v == nil || len(v.errs) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	parts := make([]string, 0, len(v.errs))
	for _, e := range v.errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

func (v *ValidationErrors) Unwrap() error { return ErrInvalidInput }

// Fields returns the field-to-message map, for error response bodies.
func (v *ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v.errs))
	for _, e := range v.errs {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

// AccessDeniedError reports a caller acting on a resource it cannot access.
type AccessDeniedError struct {
	Resource  string
	ID        string
	AccountID string
	Reason    string
}

func (e *AccessDeniedError) Error() string {
	msg := fmt.Sprintf("access denied to %s %q for account %s", e.Resource, e.ID, e.AccountID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *AccessDeniedError) Unwrap() error { return ErrForbidden }

// NewAccessDeniedError builds an AccessDeniedError.
func NewAccessDeniedError(resource, id, accountID string) error {
	return &AccessDeniedError{Resource: resource, ID: id, AccountID: accountID}
}

// OwnershipError reports a resource owned by a different account.
type OwnershipError struct {
	Resource  string
	ID        string
	AccountID string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s %s does not belong to account %s", e.Resource, e.ID, e.AccountID)
}

func (e *OwnershipError) Unwrap() error { return ErrForbidden }

// NewOwnershipError builds an OwnershipError.
func NewOwnershipError(resource, id, accountID string) error {
	return &OwnershipError{Resource: resource, ID: id, AccountID: accountID}
}

// EnsureOwnership returns an OwnershipError unless the resource belongs to the
// requesting account. An empty resource owner never matches.
func EnsureOwnership(resourceAccountID, requestAccountID, resourceType, resourceID string) error {
	if resourceAccountID == "" || resourceAccountID != requestAccountID {
		return NewOwnershipError(resourceType, resourceID, requestAccountID)
	}
	return nil
}

// ConflictError reports a uniqueness or state conflict.
type ConflictError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s %q conflict", e.Resource, e.ID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return ErrAlreadyExists }

// NewConflictError builds a ConflictError.
func NewConflictError(resource, id, reason string) error {
	return &ConflictError{Resource: resource, ID: id, Reason: reason}
}

// ServiceError annotates an error with the service and operation it came from.
type ServiceError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Service, e.Operation, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WrapServiceError wraps err with service/operation context. Returns nil for a
// nil err.
func WrapServiceError(service, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Operation: operation, Err: err}
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError reports whether err is an invalid-input failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsForbidden reports whether err is an access failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsConflict reports whether err is a uniqueness or state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsOwnershipError reports whether err is specifically an ownership mismatch.
func IsOwnershipError(err error) bool {
	var oe *OwnershipError
	return errors.As(err, &oe)
}
