package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateQueued, StateSubmitted, true},
		{StateSubmitted, StateSent, true},
		{StateSubmitted, StateSendFailedTemp, true},
		{StateSubmitted, StateSendFailedPerm, true},
		{StateSent, StateDelivered, true},
		{StateSent, StateDeliveryFailed, true},
		{StateQueued, StateSent, false},
		{StateSent, StateSubmitted, false},
		{StateSendFailedTemp, StateSent, false},
		{StateDelivered, StateDeliveryFailed, false},
		{StateSendFailedPerm, StateSubmitted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStateTerminalAndRedrive(t *testing.T) {
	for _, s := range []State{StateSendFailedPerm, StateDelivered, StateDeliveryFailed} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.CanRedrive(), s)
	}
	for _, s := range []State{StateQueued, StateSubmitted, StateSendFailedTemp} {
		assert.False(t, s.IsTerminal(), s)
		assert.True(t, s.CanRedrive(), s)
	}
	assert.False(t, StateSent.IsTerminal())
	assert.False(t, StateSent.CanRedrive())

	for _, s := range NonTerminalStates() {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestStateScan(t *testing.T) {
	var s State
	require.NoError(t, s.Scan("SENT"))
	assert.Equal(t, StateSent, s)

	require.NoError(t, s.Scan([]byte("DELIVERED")))
	assert.Equal(t, StateDelivered, s)

	assert.Error(t, s.Scan("sent"))
	assert.Error(t, s.Scan(42))
}

func TestOutcomeEqual(t *testing.T) {
	assert.True(t, Pending().Equal(Outcome{}))
	assert.True(t, Ok().Equal(Ok()))
	assert.True(t, ErrorCode(2).Equal(ErrorCode(2)))
	assert.False(t, ErrorCode(2).Equal(ErrorCode(3)))
	assert.False(t, Ok().Equal(ErrorCode(1)))
	assert.False(t, Pending().Equal(Ok()))
}

func TestSendRequestCloneIsDeep(t *testing.T) {
	req := NewSendRequest("r1", "+15550001111", "hello", []string{"hel", "lo"}, fixedTime)
	req.LastReason = &FailureReason{Class: FailureTransient, Code: 2, Name: "RADIO_OFF"}

	clone := req.Clone()
	clone.Segments[0].SentOutcome = Ok()
	clone.LastReason.Code = 9

	assert.True(t, req.Segments[0].SentOutcome.IsPending())
	assert.Equal(t, 2, req.LastReason.Code)
	assert.Equal(t, StateQueued, clone.State)
	assert.Len(t, clone.Segments, 2)
}

func TestFailureReasonUnwrap(t *testing.T) {
	var err error = &FailureReason{Class: FailurePermanent, Code: 3, Name: "NULL_PDU"}
	assert.ErrorIs(t, err, ErrPermanentSendFailure)
	assert.Equal(t, "permanent:NULL_PDU(3)", err.Error())

	err = &FailureReason{Class: FailureTransient, Code: 2, Name: "RADIO_OFF"}
	assert.ErrorIs(t, err, ErrTransientSendFailure)
}
