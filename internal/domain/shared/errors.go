package shared

import (
	"errors"
	"fmt"
)

// Error codes of the matching error taxonomy
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodePolicyViolation = "POLICY_VIOLATION"
	CodeTransient       = "TRANSIENT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Details carries structured context, e.g. the violations of a rejected allocation
	Details any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so sentinel comparisons survive wrapping and re-creation
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithDetails returns a copy of the error carrying details
func (e *DomainError) WithDetails(details any) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError reports malformed input or an unknown kind
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewNotFoundError reports a source or target that no longer exists
func NewNotFoundError(format string, args ...any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf(format, args...))
}

// NewConflictError reports a competing active link or a lost race
func NewConflictError(format string, args ...any) *DomainError {
	return NewDomainError(CodeConflict, fmt.Sprintf(format, args...))
}

// NewPolicyViolation reports a tolerance or allocation breach. details lists the violations.
func NewPolicyViolation(message string, details any) *DomainError {
	return &DomainError{Code: CodePolicyViolation, Message: message, Details: details}
}

// NewTransientError reports an exhausted budget or an unavailable backend
func NewTransientError(format string, args ...any) *DomainError {
	return NewDomainError(CodeTransient, fmt.Sprintf(format, args...))
}

// Common domain errors
var (
	ErrNotFound        = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput    = NewDomainError(CodeValidation, "Invalid input provided")
	ErrConflict        = NewDomainError(CodeConflict, "Resource is already reconciled")
	ErrPolicyViolation = NewDomainError(CodePolicyViolation, "Operation violates matching policy")
	ErrTransient       = NewDomainError(CodeTransient, "Temporarily unable to complete the operation")
)

// CodeOf returns the domain error code of err, or an empty string
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }

// IsPolicyViolation reports whether err is a PolicyViolation
func IsPolicyViolation(err error) bool { return CodeOf(err) == CodePolicyViolation }

// IsTransient reports whether err is a TransientError
func IsTransient(err error) bool { return CodeOf(err) == CodeTransient }
