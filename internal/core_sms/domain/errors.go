package domain

import "errors"

var (
	ErrDuplicateRequest   = errors.New("send request already exists")
	ErrNotFound           = errors.New("send request not found")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrStaleAttempt       = errors.New("callback belongs to a superseded attempt")
	ErrInvalidPhoneNumber = errors.New("phone number is not a valid E.164 address")
	ErrInvalidRequestID   = errors.New("request id must not be empty")
	ErrInvalidToken       = errors.New("malformed correlation token")

	// ErrTransientSendFailure and ErrPermanentSendFailure are the targets a
	// FailureReason unwraps to, so callers can use errors.Is on a reason.
	ErrTransientSendFailure = errors.New("transient send failure")
	ErrPermanentSendFailure = errors.New("permanent send failure")
)
