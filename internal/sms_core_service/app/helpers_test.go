package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/walletsms/golang_services/internal/core_sms/classifier"
	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/core_sms/segmenter"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository/memory"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) SendSegment(ctx context.Context, d SegmentDispatch) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

type recordingTransport struct {
	mu         sync.Mutex
	dispatches []SegmentDispatch
}

func (t *recordingTransport) SendSegment(_ context.Context, d SegmentDispatch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatches = append(t.dispatches, d)
	return nil
}

func (t *recordingTransport) all() []SegmentDispatch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SegmentDispatch(nil), t.dispatches...)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturingPublisher) Publish(_ context.Context, e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturingPublisher) stateChanges(requestID string) []domain.OutboundStateChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.OutboundStateChanged
	for _, e := range p.events {
		if sc, ok := e.(domain.OutboundStateChanged); ok && sc.RequestID == requestID {
			out = append(out, sc)
		}
	}
	return out
}

func (p *capturingPublisher) states(requestID string) []domain.State {
	var out []domain.State
	for _, sc := range p.stateChanges(requestID) {
		out = append(out, sc.State)
	}
	return out
}

// --- Test Setup ---

type machineTestComponents struct {
	machine   *OutboundMachine
	store     *memory.Store
	transport *recordingTransport
	events    *capturingPublisher
}

func setupMachine(t *testing.T) machineTestComponents {
	t.Helper()
	store := memory.NewStore()
	transport := &recordingTransport{}
	events := &capturingPublisher{}
	m := NewOutboundMachine(store, transport, events, segmenter.New(), classifier.New(), discardLogger(),
		WithClock(func() time.Time { return t0 }))
	return machineTestComponents{machine: m, store: store, transport: transport, events: events}
}

func tokensFor(t *testing.T, dispatches []SegmentDispatch, requestID string) []SegmentDispatch {
	t.Helper()
	var out []SegmentDispatch
	for _, d := range dispatches {
		tok, err := domain.ParseToken(d.SentToken)
		require.NoError(t, err)
		if tok.RequestID == requestID {
			out = append(out, d)
		}
	}
	return out
}
