package domain

import (
	"errors"
	"fmt"
)

// Not-found sentinels returned by repositories.
var (
	ErrGroupNotFound = errors.New("alert group not found")
	ErrEventNotFound = errors.New("alert event not found")
	ErrRuleNotFound  = errors.New("routing rule not found")
)

// ValidationError indicates a malformed or unidentifiable source payload.
// It is the caller's fault: the pipeline aborts before persisting anything.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NotConfiguredError indicates the workspace has no applicable route and no
// fallback channel. An operator misconfiguration, not a pipeline bug.
type NotConfiguredError struct {
	WorkspaceID string
	Msg         string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("workspace %s not configured: %s", e.WorkspaceID, e.Msg)
}

// TransientDispatchError indicates a retryable notification or escalation
// delivery failure.
type TransientDispatchError struct {
	Err error
}

func (e *TransientDispatchError) Error() string {
	return fmt.Sprintf("transient dispatch failure: %v", e.Err)
}

func (e *TransientDispatchError) Unwrap() error {
	return e.Err
}

// InternalError indicates the fallback notification itself failed: the alert
// was accepted but has nothing left to degrade to.
type InternalError struct {
	Msg string
	Err error
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInternal reports whether err is (or wraps) an InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
