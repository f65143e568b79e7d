package repository

import (
	"fmt"
	"time"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

// The helpers below hold the record-level rules shared by every backend.
// Callers must hold whatever lock serializes access to req.

// ApplySentOutcome records outcome on a segment's sent slot. It reports
// whether req changed.
func ApplySentOutcome(req *domain.SendRequest, segmentIndex, attempt int, outcome domain.Outcome) (bool, error) {
	seg, err := segmentForAttempt(req, segmentIndex, attempt)
	if err != nil {
		return false, err
	}
	return applyOutcome(&seg.SentOutcome, outcome, req.RequestID, segmentIndex, "sent")
}

// ApplyDeliveredOutcome records outcome on a segment's delivered slot.
func ApplyDeliveredOutcome(req *domain.SendRequest, segmentIndex, attempt int, outcome domain.Outcome) (bool, error) {
	seg, err := segmentForAttempt(req, segmentIndex, attempt)
	if err != nil {
		return false, err
	}
	return applyOutcome(&seg.DeliveredOutcome, outcome, req.RequestID, segmentIndex, "delivered")
}

func segmentForAttempt(req *domain.SendRequest, segmentIndex, attempt int) (*domain.Segment, error) {
	seg, ok := req.Segment(segmentIndex)
	if !ok {
		return nil, fmt.Errorf("%w: segment %d of %s", domain.ErrNotFound, segmentIndex, req.RequestID)
	}
	if seg.Attempt != attempt {
		return nil, fmt.Errorf("%w: segment %d of %s is on attempt %d, callback for %d",
			domain.ErrStaleAttempt, segmentIndex, req.RequestID, seg.Attempt, attempt)
	}
	return seg, nil
}

func applyOutcome(slot *domain.Outcome, outcome domain.Outcome, requestID string, index int, kind string) (bool, error) {
	if outcome.IsPending() {
		return false, fmt.Errorf("%w: cannot record a pending %s outcome", domain.ErrInvalidTransition, kind)
	}
	if slot.IsPending() {
		*slot = outcome
		return true, nil
	}
	if slot.Equal(outcome) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s outcome of segment %d of %s already %s, got %s",
		domain.ErrInvalidTransition, kind, index, requestID, slot, outcome)
}

// ApplyTransition performs the compare-and-set of the aggregate state.
func ApplyTransition(req *domain.SendRequest, from, to domain.State, reason *domain.FailureReason, at time.Time) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s is not allowed", domain.ErrInvalidTransition, from, to)
	}
	if req.State != from {
		return fmt.Errorf("%w: %s is %s, expected %s", domain.ErrInvalidTransition, req.RequestID, req.State, from)
	}
	req.State = to
	req.LastReason = reason
	req.LastTransitionAt = at
	return nil
}

// ApplyRedrive moves req back to SUBMITTED for a new attempt. Segments already
// accepted by the carrier keep their outcomes; the rest are reset and get a new
// attempt number so callbacks of the superseded attempt are rejected.
func ApplyRedrive(req *domain.SendRequest, from domain.State, at time.Time) ([]int, error) {
	if !from.CanRedrive() {
		return nil, fmt.Errorf("%w: %s cannot be redriven", domain.ErrInvalidTransition, from)
	}
	if req.State != from {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", domain.ErrInvalidTransition, req.RequestID, req.State, from)
	}

	var reissue []int
	if from == domain.StateQueued {
		// Never handed to the transport, so the first attempt is still fresh.
		for i := range req.Segments {
			reissue = append(reissue, i)
		}
	} else {
		req.Attempt++
		for i := range req.Segments {
			seg := &req.Segments[i]
			if seg.SentOutcome.IsOk() {
				continue
			}
			seg.Attempt++
			seg.SentOutcome = domain.Pending()
			seg.DeliveredOutcome = domain.Pending()
			reissue = append(reissue, i)
		}
	}
	req.State = domain.StateSubmitted
	req.LastReason = nil
	req.LastTransitionAt = at
	return reissue, nil
}
