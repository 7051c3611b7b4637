package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("WM-TEST-1000", "test message"),
			expected: "[WM-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("WM-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[WM-TEST-1001] test message: extra info",
		},
		{
			name:     "positional error",
			err:      InvalidParam(3),
			expected: "[WM-ARG-1001] invalid parameter (position 3)",
		},
		{
			name:     "positional error with details",
			err:      InvalidParam(2).WithDetails("pool name is empty"),
			expected: "[WM-ARG-1001] invalid parameter (position 2): pool name is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("WM-TEST-1000", "message 1")
	err2 := NewDomainError("WM-TEST-1000", "message 2") // Same code, different message
	err3 := NewDomainError("WM-TEST-1001", "message 1") // Different code

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_IsPosition(t *testing.T) {
	err := InvalidParam(4)

	tests := []struct {
		name   string
		target error
		want   bool
	}{
		{"unpositioned sentinel", ErrInvalidParam, true},
		{"same position", InvalidParam(4), true},
		{"different position", InvalidParam(5), false},
		{"different code", ErrInvalidStructure, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}

	// Wrapped errors keep their position.
	wrapped := fmt.Errorf("register: %w", err)
	if !errors.Is(wrapped, InvalidParam(4)) {
		t.Error("wrapped error should match its position")
	}
	if GetPosition(wrapped) != 4 {
		t.Errorf("GetPosition() = %d, want 4", GetPosition(wrapped))
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := NewDomainError("WM-TEST-1000", "wrapper").WithCause(cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}

	errNoCause := NewDomainError("WM-TEST-1000", "no cause")
	if errors.Unwrap(errNoCause) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_CopySemantics(t *testing.T) {
	original := NewDomainError("WM-TEST-1000", "original message")

	withDetails := original.WithDetails("additional details")
	withCause := original.WithCause(errors.New("cause"))
	withPosition := original.WithPosition(7)

	if original.Details != "" || original.Cause != nil || original.Position != 0 {
		t.Error("With* helpers should not modify the original error")
	}
	if withDetails.Details != "additional details" {
		t.Errorf("Details = %q, want %q", withDetails.Details, "additional details")
	}
	if withCause.Cause == nil {
		t.Error("WithCause should set Cause")
	}
	if withPosition.Position != 7 {
		t.Errorf("Position = %d, want 7", withPosition.Position)
	}
	if ErrInvalidParam.Position != 0 {
		t.Error("InvalidParam should not modify the sentinel")
	}
}

func TestIsDomainError(t *testing.T) {
	err := ErrWalletAlreadyExists.WithDetails("wallet1")

	if !IsDomainError(err, "WM-WLT-4090") {
		t.Error("IsDomainError should return true for matching code")
	}
	if IsDomainError(err, "WM-WLT-4040") {
		t.Error("IsDomainError should return false for wrong code")
	}
	if !IsDomainError(err, "") {
		t.Error("IsDomainError with empty code should return true for DomainError")
	}
	if IsDomainError(errors.New("plain"), "") {
		t.Error("IsDomainError should return false for non-DomainError")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrUnknownType, "WM-TYPE-4040"},
		{"wrapped", fmt.Errorf("wrap: %w", ErrInvalidHandle), "WM-HDL-4000"},
		{"plain", errors.New("plain"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSentinelCodesUnique(t *testing.T) {
	sentinels := []*DomainError{
		ErrInvalidParam, ErrInvalidStructure,
		ErrWalletAlreadyExists, ErrAccessFailed, ErrItemNotFound,
		ErrUnknownType, ErrTypeAlreadyRegistered,
		ErrInvalidHandle,
		ErrInternal, ErrIO,
	}
	seen := make(map[string]bool)
	for _, e := range sentinels {
		if seen[e.Code] {
			t.Errorf("duplicate error code %s", e.Code)
		}
		seen[e.Code] = true
	}
}
