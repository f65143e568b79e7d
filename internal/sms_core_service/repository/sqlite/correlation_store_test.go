package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *CorrelationStore {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), fmt.Sprintf("correlation_%d.db", time.Now().UnixNano())))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, AutoMigrate(db))
	return NewCorrelationStore(db)
}

func TestCreateAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req := domain.NewSendRequest("req-1", "+15550001111", "abc", []string{"a", "b", "c"}, t0)
	require.NoError(t, s.Create(ctx, req))

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, got.State)
	assert.True(t, got.CreatedAt.Equal(t0))
	require.Len(t, got.Segments, 3)
	assert.Equal(t, "b", got.Segments[1].Body)
	assert.True(t, got.Segments[2].SentOutcome.IsPending())

	err = s.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOutcomesTransitionAndRedrive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, domain.NewSendRequest("req-1", "+15550001111", "ab", []string{"a", "b"}, t0)))

	_, err := s.Transition(ctx, "req-1", domain.StateQueued, domain.StateSubmitted, nil, t0)
	require.NoError(t, err)

	_, err = s.RecordSentOutcome(ctx, "req-1", 0, 1, domain.Ok())
	require.NoError(t, err)
	req, err := s.RecordSentOutcome(ctx, "req-1", 1, 1, domain.ErrorCode(2))
	require.NoError(t, err)
	assert.True(t, req.AllSentSettled())

	_, err = s.RecordSentOutcome(ctx, "req-1", 1, 1, domain.Ok())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	reason := &domain.FailureReason{Class: domain.FailureTransient, Code: 2, Name: "RADIO_OFF"}
	_, err = s.Transition(ctx, "req-1", domain.StateSubmitted, domain.StateSendFailedTemp, reason, t0.Add(time.Second))
	require.NoError(t, err)

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastReason)
	assert.Equal(t, "RADIO_OFF", got.LastReason.Name)

	redriven, reissue, err := s.Redrive(ctx, "req-1", domain.StateSendFailedTemp, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, reissue)
	assert.Equal(t, domain.StateSubmitted, redriven.State)

	got, err = s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempt)
	assert.Nil(t, got.LastReason)
	assert.Equal(t, 2, got.Segments[1].Attempt)
	assert.True(t, got.Segments[1].SentOutcome.IsPending())
	assert.True(t, got.Segments[0].SentOutcome.IsOk())

	_, err = s.RecordSentOutcome(ctx, "req-1", 1, 1, domain.Ok())
	assert.ErrorIs(t, err, domain.ErrStaleAttempt)
}

func TestListNonTerminal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	states := []domain.State{
		domain.StateQueued, domain.StateSubmitted, domain.StateSent, domain.StateSendFailedTemp,
		domain.StateSendFailedPerm, domain.StateDelivered, domain.StateDeliveryFailed,
	}
	for i, st := range states {
		req := domain.NewSendRequest(fmt.Sprintf("r%d", i), "+15550001111", "x", []string{"x"}, t0.Add(time.Duration(i)*time.Second))
		req.State = st
		require.NoError(t, s.Create(ctx, req))
	}

	list, err := s.ListNonTerminal(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "r0", list[0].RequestID)
	for _, r := range list {
		assert.False(t, r.State.IsTerminal())
		assert.Len(t, r.Segments, 1)
	}
}

func TestTransitionSingleWinner(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	req := domain.NewSendRequest("req-1", "+15550001111", "x", []string{"x"}, t0)
	req.State = domain.StateSubmitted
	require.NoError(t, s.Create(ctx, req))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Transition(ctx, "req-1", domain.StateSubmitted, domain.StateSent, nil, t0); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
