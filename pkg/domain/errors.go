// Package domain defines the core domain models for the wallet subsystem.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a wallet subsystem error with a structured error code.
//
// Position is set only for positional argument errors (InvalidParam) and
// identifies which argument of the failing call was rejected.
type DomainError struct {
	Code     string // Error code (e.g., "WM-WLT-4090")
	Message  string // Human-readable message
	Details  string // Optional additional details
	Position int    // Argument position for InvalidParam, 0 otherwise
	Cause    error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := e.Message
	if e.Position > 0 {
		msg = fmt.Sprintf("%s (position %d)", e.Message, e.Position)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, msg, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
//
// Two errors match when their codes are equal. A target that carries a
// position only matches an error with the same position, so
// errors.Is(err, ErrInvalidParam) matches any position while
// errors.Is(err, InvalidParam(4)) matches position 4 only.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Position == 0 || t.Position == e.Position
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// WithPosition returns a copy of the error bound to an argument position.
func (e *DomainError) WithPosition(position int) *DomainError {
	c := *e
	c.Position = position
	return &c
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetPosition extracts the argument position from an InvalidParam error.
// Returns 0 for any other error.
func GetPosition(err error) int {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Position
	}
	return 0
}

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidParam indicates a malformed or missing required argument.
	// Use InvalidParam to bind it to a position.
	ErrInvalidParam = NewDomainError("WM-ARG-1001", "invalid parameter")

	// ErrInvalidStructure indicates a malformed configuration document.
	ErrInvalidStructure = NewDomainError("WM-ARG-1002", "invalid structure")
)

// InvalidParam returns ErrInvalidParam bound to the given argument position.
func InvalidParam(position int) *DomainError {
	return ErrInvalidParam.WithPosition(position)
}

// ============================================================================
// Wallet Errors (WLT)
// ============================================================================

var (
	// ErrWalletAlreadyExists indicates a wallet with the same name exists.
	ErrWalletAlreadyExists = NewDomainError("WM-WLT-4090", "wallet already exists")

	// ErrAccessFailed indicates the supplied credentials were rejected.
	ErrAccessFailed = NewDomainError("WM-WLT-4031", "wallet access failed")

	// ErrItemNotFound indicates the requested record is missing or stale.
	ErrItemNotFound = NewDomainError("WM-WLT-4040", "wallet item not found")
)

// ============================================================================
// Type Registry Errors (TYPE)
// ============================================================================

var (
	// ErrUnknownType indicates the wallet type is not registered.
	ErrUnknownType = NewDomainError("WM-TYPE-4040", "unknown wallet type")

	// ErrTypeAlreadyRegistered indicates the wallet type name is taken.
	ErrTypeAlreadyRegistered = NewDomainError("WM-TYPE-4090", "wallet type already registered")
)

// ============================================================================
// Handle Errors (HDL)
// ============================================================================

var (
	// ErrInvalidHandle indicates an unknown or retired wallet handle.
	ErrInvalidHandle = NewDomainError("WM-HDL-4000", "invalid wallet handle")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternal indicates an internal error.
	ErrInternal = NewDomainError("WM-SYS-5000", "internal error")

	// ErrIO indicates a backend existence or access failure.
	ErrIO = NewDomainError("WM-SYS-5001", "io error")
)
