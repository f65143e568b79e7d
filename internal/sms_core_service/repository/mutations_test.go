package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newReq() *domain.SendRequest {
	return domain.NewSendRequest("req-1", "+15550001111", "abc", []string{"a", "b", "c"}, t0)
}

func TestApplySentOutcomeIdempotentAndConflicting(t *testing.T) {
	req := newReq()

	changed, err := ApplySentOutcome(req, 1, 1, domain.Ok())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = ApplySentOutcome(req, 1, 1, domain.Ok())
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = ApplySentOutcome(req, 1, 1, domain.ErrorCode(2))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.True(t, req.Segments[1].SentOutcome.IsOk())
}

func TestApplyOutcomeRejectsUnknownSegmentAndStaleAttempt(t *testing.T) {
	req := newReq()

	_, err := ApplyDeliveredOutcome(req, 7, 1, domain.Ok())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = ApplyDeliveredOutcome(req, 0, 2, domain.Ok())
	assert.ErrorIs(t, err, domain.ErrStaleAttempt)

	_, err = ApplyDeliveredOutcome(req, 0, 1, domain.Pending())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestApplyTransitionIsCompareAndSet(t *testing.T) {
	req := newReq()

	require.NoError(t, ApplyTransition(req, domain.StateQueued, domain.StateSubmitted, nil, t0.Add(time.Second)))
	assert.Equal(t, domain.StateSubmitted, req.State)
	assert.Equal(t, t0.Add(time.Second), req.LastTransitionAt)

	err := ApplyTransition(req, domain.StateQueued, domain.StateSubmitted, nil, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = ApplyTransition(req, domain.StateSubmitted, domain.StateDelivered, nil, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StateSubmitted, req.State)
}

func TestApplyRedriveResetsOnlyUnacceptedSegments(t *testing.T) {
	req := newReq()
	req.State = domain.StateSendFailedTemp
	req.Segments[0].SentOutcome = domain.Ok()
	req.Segments[1].SentOutcome = domain.ErrorCode(2)
	req.Segments[2].SentOutcome = domain.ErrorCode(1)
	req.LastReason = &domain.FailureReason{Class: domain.FailureTransient, Code: 2, Name: "RADIO_OFF"}

	reissue, err := ApplyRedrive(req, domain.StateSendFailedTemp, t0)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, reissue)
	assert.Equal(t, domain.StateSubmitted, req.State)
	assert.Equal(t, 2, req.Attempt)
	assert.Nil(t, req.LastReason)
	assert.Equal(t, 1, req.Segments[0].Attempt)
	assert.True(t, req.Segments[0].SentOutcome.IsOk())
	assert.Equal(t, 2, req.Segments[1].Attempt)
	assert.True(t, req.Segments[1].SentOutcome.IsPending())
}

func TestApplyRedriveFromQueuedKeepsFirstAttempt(t *testing.T) {
	req := newReq()

	reissue, err := ApplyRedrive(req, domain.StateQueued, t0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, reissue)
	assert.Equal(t, 1, req.Attempt)
	assert.Equal(t, 1, req.Segments[2].Attempt)
}

func TestApplyRedriveRefusesTerminalAndSent(t *testing.T) {
	for _, s := range []domain.State{domain.StateSent, domain.StateDelivered, domain.StateSendFailedPerm, domain.StateDeliveryFailed} {
		req := newReq()
		req.State = s
		_, err := ApplyRedrive(req, s, t0)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, s)
	}

	req := newReq()
	_, err := ApplyRedrive(req, domain.StateSendFailedTemp, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
