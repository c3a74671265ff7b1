package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a kiosk failure for recovery decisions. The first
// three kinds are locally recoverable and re-presented inline; upstream
// failures on a commit leave the session mode unchanged so the operator can
// retry without re-entering data.
type ErrorKind string

const (
	PermissionDenied  ErrorKind = "permission_denied"
	Timeout           ErrorKind = "timeout"
	ValidationFailed  ErrorKind = "validation_failed"
	NotFound          ErrorKind = "not_found"
	UpstreamFailure   ErrorKind = "upstream_failure"
	DeviceUnavailable ErrorKind = "device_unavailable"
)

// KioskError carries the failure class alongside the wrapped cause.
type KioskError struct {
	Kind  ErrorKind
	Op    string
	Field string
	Err   error
}

func (e *KioskError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *KioskError) Unwrap() error { return e.Err }

// Errf builds a classified error with a formatted cause.
func Errf(kind ErrorKind, op, format string, args ...any) *KioskError {
	return &KioskError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WrapErr classifies an underlying error without losing it.
func WrapErr(kind ErrorKind, op string, err error) *KioskError {
	return &KioskError{Kind: kind, Op: op, Err: err}
}

// FieldErr marks a validation failure against a specific form field.
func FieldErr(op, field string) *KioskError {
	return &KioskError{Kind: ValidationFailed, Op: op, Field: field,
		Err: fmt.Errorf("missing required field %q", field)}
}

// KindOf extracts the ErrorKind from err, defaulting to UpstreamFailure for
// unclassified errors crossing a collaborator boundary.
func KindOf(err error) ErrorKind {
	var ke *KioskError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return UpstreamFailure
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
