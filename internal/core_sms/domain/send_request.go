package domain

import (
	"fmt"
	"time"
)

// OutcomeKind is the resolution of one transport callback for one segment.
type OutcomeKind string

const (
	OutcomePending OutcomeKind = "PENDING"
	OutcomeOk      OutcomeKind = "OK"
	OutcomeError   OutcomeKind = "ERROR"
)

// Outcome is Pending, Ok, or an error carrying the transport result code.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	Code int         `json:"code,omitempty"`
}

func Pending() Outcome { return Outcome{Kind: OutcomePending} }

func Ok() Outcome { return Outcome{Kind: OutcomeOk} }

func ErrorCode(code int) Outcome { return Outcome{Kind: OutcomeError, Code: code} }

func (o Outcome) IsPending() bool { return o.Kind == OutcomePending || o.Kind == "" }
func (o Outcome) IsOk() bool      { return o.Kind == OutcomeOk }
func (o Outcome) IsError() bool   { return o.Kind == OutcomeError }

// Equal compares two outcomes; the code only matters for errors.
func (o Outcome) Equal(other Outcome) bool {
	if o.IsPending() || other.IsPending() {
		return o.IsPending() == other.IsPending()
	}
	if o.Kind != other.Kind {
		return false
	}
	return o.Kind != OutcomeError || o.Code == other.Code
}

func (o Outcome) String() string {
	if o.IsError() {
		return fmt.Sprintf("ERROR(%d)", o.Code)
	}
	if o.IsPending() {
		return string(OutcomePending)
	}
	return string(o.Kind)
}

// ParseOutcome rebuilds an Outcome from its stored kind and code columns.
func ParseOutcome(kind string, code int) (Outcome, error) {
	switch OutcomeKind(kind) {
	case OutcomePending, "":
		return Pending(), nil
	case OutcomeOk:
		return Ok(), nil
	case OutcomeError:
		return ErrorCode(code), nil
	}
	return Outcome{}, fmt.Errorf("unknown outcome kind: %q", kind)
}

// Segment is one transport-sized part of a SendRequest body.
type Segment struct {
	Index            int     `json:"index"`
	Body             string  `json:"body"`
	Attempt          int     `json:"attempt"`
	SentOutcome      Outcome `json:"sent_outcome"`
	DeliveredOutcome Outcome `json:"delivered_outcome"`
}

// SendRequest is one logical outbound payload tracked through its lifecycle.
type SendRequest struct {
	RequestID        string         `json:"request_id"`
	PhoneNumber      string         `json:"phone_number"`
	Body             string         `json:"body"`
	Segments         []Segment      `json:"segments"`
	State            State          `json:"state"`
	Attempt          int            `json:"attempt"`
	LastReason       *FailureReason `json:"last_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	LastTransitionAt time.Time      `json:"last_transition_at"`
}

// NewSendRequest builds a QUEUED request, one Pending segment per part.
func NewSendRequest(requestID, phoneNumber, body string, parts []string, now time.Time) *SendRequest {
	segments := make([]Segment, len(parts))
	for i, part := range parts {
		segments[i] = Segment{
			Index:            i,
			Body:             part,
			Attempt:          1,
			SentOutcome:      Pending(),
			DeliveredOutcome: Pending(),
		}
	}
	return &SendRequest{
		RequestID:        requestID,
		PhoneNumber:      phoneNumber,
		Body:             body,
		Segments:         segments,
		State:            StateQueued,
		Attempt:          1,
		CreatedAt:        now,
		LastTransitionAt: now,
	}
}

// Clone returns a deep copy so callers never share store-owned memory.
func (r *SendRequest) Clone() *SendRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.Segments = append([]Segment(nil), r.Segments...)
	if r.LastReason != nil {
		reason := *r.LastReason
		out.LastReason = &reason
	}
	return &out
}

// Segment returns the segment at index, if it exists.
func (r *SendRequest) Segment(index int) (*Segment, bool) {
	if index < 0 || index >= len(r.Segments) {
		return nil, false
	}
	return &r.Segments[index], true
}

// AllSentSettled reports whether every segment has a sent outcome.
func (r *SendRequest) AllSentSettled() bool {
	for _, seg := range r.Segments {
		if seg.SentOutcome.IsPending() {
			return false
		}
	}
	return true
}

// AllDeliveredSettled reports whether every segment has a delivered outcome.
func (r *SendRequest) AllDeliveredSettled() bool {
	for _, seg := range r.Segments {
		if seg.DeliveredOutcome.IsPending() {
			return false
		}
	}
	return true
}
