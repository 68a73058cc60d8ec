package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error kind. External callers map codes
// to their own status semantics.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeConflict     Code = "CONFLICT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidState Code = "INVALID_STATE"
	CodeProvisioning Code = "PROVISIONING_FAILED"
	CodeLastAdmin    Code = "LAST_ADMIN"
	CodeCompensation Code = "COMPENSATION_FAILED"
	CodeInternal     Code = "INTERNAL"
)

// ErrorCode returns the code carried by err, or CodeInternal.
func ErrorCode(err error) Code {
	var coded interface{ Code() Code }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound    = &NotFoundError{Resource: "tenant"}
	ErrWorkspaceNotFound = &NotFoundError{Resource: "workspace"}
	ErrMemberNotFound    = &NotFoundError{Resource: "workspace member"}

	// ErrConcurrentUpdate is returned when a conditional write lost a race
	// against another writer of the same row.
	ErrConcurrentUpdate = &ConflictError{Resource: "tenant", Reason: "was modified concurrently"}
)

// NotFoundError is returned for unknown identifiers.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }
func (e *NotFoundError) Code() Code    { return CodeNotFound }

// ValidationError is returned for malformed input, before any I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Code() Code { return CodeValidation }

// ConflictError is returned when a uniqueness rule is violated: a tenant or
// workspace slug already taken, or a duplicate membership.
type ConflictError struct {
	Resource string
	Key      string
	Reason   string
}

func (e *ConflictError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "already exists"
	}
	if e.Key == "" {
		return fmt.Sprintf("%s %s", e.Resource, reason)
	}
	return fmt.Sprintf("%s %q %s", e.Resource, e.Key, reason)
}

func (e *ConflictError) Code() Code { return CodeConflict }

// InvalidStateError is returned when a state transition is not allowed.
type InvalidStateError struct {
	Event   Event
	Current Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s tenant with status: %s", e.Event, e.Current)
}

func (e *InvalidStateError) Code() Code { return CodeInvalidState }

// ProvisioningError reports the step that failed a provisioning run. Any
// compensation failures are attached but do not change the outcome.
type ProvisioningError struct {
	Step         string
	Cause        error
	Compensation error
}

func (e *ProvisioningError) Error() string {
	msg := fmt.Sprintf("provisioning step %q failed: %v", e.Step, e.Cause)
	if e.Compensation != nil {
		msg += fmt.Sprintf(" (rollback incomplete: %v)", e.Compensation)
	}
	return msg
}

func (e *ProvisioningError) Unwrap() error { return e.Cause }
func (e *ProvisioningError) Code() Code    { return CodeProvisioning }

// CompensationError is returned when a rollback action itself fails.
type CompensationError struct {
	Step  string
	Cause error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensating step %q: %v", e.Step, e.Cause)
}

func (e *CompensationError) Unwrap() error { return e.Cause }
func (e *CompensationError) Code() Code    { return CodeCompensation }

// LastAdminError is returned when a membership change would leave a
// workspace without an administrator.
type LastAdminError struct {
	WorkspaceID string
	UserID      string
}

func (e *LastAdminError) Error() string {
	return fmt.Sprintf("user %q is the last admin of workspace %q", e.UserID, e.WorkspaceID)
}

func (e *LastAdminError) Code() Code { return CodeLastAdmin }
