package loopback

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletsms/golang_services/internal/core_sms/classifier"
	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/core_sms/segmenter"
	"github.com/walletsms/golang_services/internal/sms_core_service/app"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository/memory"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newMachine(t *testing.T, opts Options) (*app.OutboundMachine, *memory.Store, *Transport) {
	t.Helper()
	store := memory.NewStore()
	transport := NewTransport(opts, discardLogger())
	m := app.NewOutboundMachine(store, transport, app.NewBroadcaster(discardLogger()),
		segmenter.New(), classifier.New(), discardLogger())
	transport.Attach(m)
	return m, store, transport
}

func TestLoopback_DeliversEverySegment(t *testing.T) {
	m, store, transport := newMachine(t, DefaultOptions())

	require.NoError(t, m.Submit(context.Background(), "+15550001111", strings.Repeat("z", 400), "r1"))
	transport.Wait()

	req, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDelivered, req.State)
}

func TestLoopback_PermanentSentCode(t *testing.T) {
	m, store, transport := newMachine(t, Options{SentCode: classifier.ResultNullPDU})

	require.NoError(t, m.Submit(context.Background(), "+15550001111", "WLT1|TX|x", "r1"))
	transport.Wait()

	req, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSendFailedPerm, req.State)
}

func TestLoopback_FailSend(t *testing.T) {
	transport := NewTransport(Options{FailSend: true}, discardLogger())
	err := transport.SendSegment(context.Background(), app.SegmentDispatch{PhoneNumber: "+15550001111"})
	assert.ErrorIs(t, err, ErrSimulatedSendFailure)
}
