package domain

import "fmt"

// FailureClass separates failures worth retrying from those that are not.
type FailureClass string

const (
	FailureTransient FailureClass = "transient"
	FailurePermanent FailureClass = "permanent"
)

// FailureReason is the classified cause attached to a failed transition.
type FailureReason struct {
	Class FailureClass `json:"class"`
	Code  int          `json:"code"`
	Name  string       `json:"name"`
}

func (r *FailureReason) Error() string {
	return fmt.Sprintf("%s:%s(%d)", r.Class, r.Name, r.Code)
}

func (r *FailureReason) Unwrap() error {
	if r.Class == FailurePermanent {
		return ErrPermanentSendFailure
	}
	return ErrTransientSendFailure
}
