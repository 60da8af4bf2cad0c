package domain

import (
	"context"
	"errors"
	"fmt"
)

// Reason classifies a failure surfaced by the engine.
type Reason string

const (
	ReasonInvalidCredentials     Reason = "invalid_credentials"
	ReasonAccountNotFound        Reason = "account_not_found"
	ReasonAccountDisabled        Reason = "account_disabled"
	ReasonAccountExists          Reason = "account_exists"
	ReasonProviderDenied         Reason = "provider_denied"
	ReasonNetwork                Reason = "network_error"
	ReasonServer                 Reason = "server_error"
	ReasonValidation             Reason = "validation"
	ReasonSessionExpired         Reason = "session_expired"
	ReasonMalformedStoredSession Reason = "malformed_stored_session"
	ReasonConcurrentOperation    Reason = "concurrent_operation_rejected"
	ReasonInvalidState           Reason = "invalid_state"
)

// Error is a typed failure. Two Errors match under errors.Is when their
// reasons are equal, so the package-level sentinels can be used as targets.
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// NewError builds an Error. err may be nil.
func NewError(reason Reason, message string, err error) *Error {
	return &Error{Reason: reason, Message: message, Err: err}
}

var (
	ErrInvalidCredentials  = &Error{Reason: ReasonInvalidCredentials}
	ErrAccountNotFound     = &Error{Reason: ReasonAccountNotFound}
	ErrAccountDisabled     = &Error{Reason: ReasonAccountDisabled}
	ErrAccountExists       = &Error{Reason: ReasonAccountExists}
	ErrProviderDenied      = &Error{Reason: ReasonProviderDenied}
	ErrNetwork             = &Error{Reason: ReasonNetwork}
	ErrServer              = &Error{Reason: ReasonServer}
	ErrValidation          = &Error{Reason: ReasonValidation}
	ErrSessionExpired      = &Error{Reason: ReasonSessionExpired}
	ErrMalformedSession    = &Error{Reason: ReasonMalformedStoredSession}
	ErrConcurrentOperation = &Error{Reason: ReasonConcurrentOperation, Message: "another session operation is in flight"}
	ErrInvalidState        = &Error{Reason: ReasonInvalidState}
)

// ReasonOf returns the reason carried by err, or "" when err is nil or not a
// typed failure.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsFatal reports whether err must tear down the local session: the token
// was rejected, or the failure is not one the engine knows how to classify.
func IsFatal(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch ReasonOf(err) {
	case ReasonSessionExpired, "":
		return true
	}
	return false
}
