package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/sms_core_service/app"
)

// --- Mocks ---

type MockNatsClient struct {
	mock.Mock
	handlers map[string]nats.MsgHandler
}

func NewMockNatsClient() *MockNatsClient {
	return &MockNatsClient{handlers: make(map[string]nats.MsgHandler)}
}

func (m *MockNatsClient) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func (m *MockNatsClient) Subscribe(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) (*nats.Subscription, error) {
	args := m.Called(ctx, subject, queueGroup)
	m.handlers[subject] = handler
	return nil, args.Error(0)
}

type MockCallbackHandler struct {
	mock.Mock
}

func (m *MockCallbackHandler) OnSent(ctx context.Context, token string, code int) error {
	return m.Called(ctx, token, code).Error(0)
}

func (m *MockCallbackHandler) OnDelivered(ctx context.Context, token string, code int) error {
	return m.Called(ctx, token, code).Error(0)
}

type MockInboundHandler struct {
	mock.Mock
}

func (m *MockInboundHandler) OnInboundAssembled(ctx context.Context, body string, sender *string, sent, received time.Time) bool {
	return m.Called(ctx, body, sender, sent, received).Bool(0)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// --- Tests ---

func TestTransport_PublishesDispatchJSON(t *testing.T) {
	client := NewMockNatsClient()
	d := app.SegmentDispatch{PhoneNumber: "+15550001111", Body: "WLT1|TX|x", SentToken: "st", DeliveredToken: "dt"}
	client.On("Publish", mock.Anything, SubjectSegmentsSend, mock.MatchedBy(func(data []byte) bool {
		var got app.SegmentDispatch
		return json.Unmarshal(data, &got) == nil && got == d
	})).Return(nil).Once()

	require.NoError(t, NewTransport(client).SendSegment(context.Background(), d))
	client.AssertExpectations(t)
}

func TestTransport_PropagatesPublishError(t *testing.T) {
	client := NewMockNatsClient()
	client.On("Publish", mock.Anything, SubjectSegmentsSend, mock.Anything).Return(nats.ErrConnectionClosed)

	err := NewTransport(client).SendSegment(context.Background(), app.SegmentDispatch{})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestEventPublisher_SubjectPerKindAndSwallowsErrors(t *testing.T) {
	client := NewMockNatsClient()
	client.On("Publish", mock.Anything, "wallet.sms.events.outbound_state_changed", mock.MatchedBy(func(data []byte) bool {
		var env struct {
			EventID string                      `json:"event_id"`
			Kind    string                      `json:"kind"`
			Data    domain.OutboundStateChanged `json:"data"`
		}
		return json.Unmarshal(data, &env) == nil && env.EventID != "" && env.Data.State == domain.StateSent
	})).Return(errors.New("no responders")).Once()

	p := NewEventPublisher(client, discardLogger())
	p.Publish(context.Background(), domain.OutboundStateChanged{RequestID: "r1", State: domain.StateSent})
	client.AssertExpectations(t)
}

func TestCallbackConsumer_RoutesBySubject(t *testing.T) {
	client := NewMockNatsClient()
	client.On("Subscribe", mock.Anything, SubjectCallbackSent, "sms_core").Return(nil)
	client.On("Subscribe", mock.Anything, SubjectCallbackDelivered, "sms_core").Return(nil)

	handler := new(MockCallbackHandler)
	handler.On("OnSent", mock.Anything, "tok-s", -1).Return(nil).Once()
	handler.On("OnDelivered", mock.Anything, "tok-d", 2).Return(nil).Once()

	c := NewCallbackConsumer(client, handler, discardLogger())
	require.NoError(t, c.StartConsuming(context.Background(), "sms_core"))

	client.handlers[SubjectCallbackSent](&nats.Msg{Subject: SubjectCallbackSent, Data: []byte(`{"token":"tok-s","result_code":-1}`)})
	client.handlers[SubjectCallbackDelivered](&nats.Msg{Subject: SubjectCallbackDelivered, Data: []byte(`{"token":"tok-d","result_code":2}`)})
	client.handlers[SubjectCallbackSent](&nats.Msg{Subject: SubjectCallbackSent, Data: []byte(`not json`)})

	handler.AssertExpectations(t)
}

func TestCallbackConsumer_SubscribeError(t *testing.T) {
	client := NewMockNatsClient()
	client.On("Subscribe", mock.Anything, SubjectCallbackSent, "q").Return(nats.ErrConnectionClosed)

	err := NewCallbackConsumer(client, new(MockCallbackHandler), discardLogger()).StartConsuming(context.Background(), "q")
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestInboxConsumer_DecodesPayload(t *testing.T) {
	client := NewMockNatsClient()
	client.On("Subscribe", mock.Anything, SubjectInboundAssembled, "q").Return(nil)

	sent := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	received := time.Date(2024, 5, 1, 12, 0, 7, 0, time.UTC)
	handler := new(MockInboundHandler)
	handler.On("OnInboundAssembled", mock.Anything, "WLT1|TX|abc", mock.MatchedBy(func(s *string) bool {
		return s != nil && *s == "+15550002222"
	}), sent, received).Return(true).Once()
	handler.On("OnInboundAssembled", mock.Anything, "WLT1|TX|late", (*string)(nil), sent, time.Time{}).Return(true).Once()

	c := NewInboxConsumer(client, handler, discardLogger())
	require.NoError(t, c.StartConsuming(context.Background(), "q"))

	client.handlers[SubjectInboundAssembled](&nats.Msg{
		Subject: SubjectInboundAssembled,
		Data:    []byte(`{"body":"WLT1|TX|abc","sender_address":"+15550002222","sent_timestamp":"2024-05-01T12:00:00Z","received_at":"2024-05-01T12:00:07Z"}`),
	})
	// Without received_at the zero time is handed on for the processor to fill.
	client.handlers[SubjectInboundAssembled](&nats.Msg{
		Subject: SubjectInboundAssembled,
		Data:    []byte(`{"body":"WLT1|TX|late","sent_timestamp":"2024-05-01T12:00:00Z"}`),
	})
	handler.AssertExpectations(t)
}
