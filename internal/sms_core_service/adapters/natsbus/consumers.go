package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// CallbackPayload is published by the device-side sender for each sent or
// delivered broadcast it receives.
type CallbackPayload struct {
	Token      string `json:"token"`
	ResultCode int    `json:"result_code"`
}

// CallbackHandler is satisfied by *app.OutboundMachine.
type CallbackHandler interface {
	OnSent(ctx context.Context, token string, resultCode int) error
	OnDelivered(ctx context.Context, token string, resultCode int) error
}

// CallbackConsumer feeds transport callbacks from NATS into the state machine.
type CallbackConsumer struct {
	subscriber Subscriber
	handler    CallbackHandler
	logger     *slog.Logger
	timeout    time.Duration
}

func NewCallbackConsumer(subscriber Subscriber, handler CallbackHandler, logger *slog.Logger) *CallbackConsumer {
	return &CallbackConsumer{
		subscriber: subscriber,
		handler:    handler,
		logger:     logger.With("component", "nats_callback_consumer"),
		timeout:    10 * time.Second,
	}
}

// StartConsuming subscribes to both callback subjects; subscriptions end with ctx.
func (c *CallbackConsumer) StartConsuming(ctx context.Context, queueGroup string) error {
	if _, err := c.subscriber.Subscribe(ctx, SubjectCallbackSent, queueGroup, c.handle(c.handler.OnSent)); err != nil {
		return err
	}
	if _, err := c.subscriber.Subscribe(ctx, SubjectCallbackDelivered, queueGroup, c.handle(c.handler.OnDelivered)); err != nil {
		return err
	}
	return nil
}

func (c *CallbackConsumer) handle(apply func(context.Context, string, int) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var payload CallbackPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.logger.Error("Failed to unmarshal callback payload", "subject", msg.Subject, "error", err, "data", string(msg.Data))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := apply(ctx, payload.Token, payload.ResultCode); err != nil {
			c.logger.ErrorContext(ctx, "Failed to apply callback", "subject", msg.Subject, "result_code", payload.ResultCode, "error", err)
		}
	}
}

// InboundPayload is one fully reassembled inbound text.
type InboundPayload struct {
	Body          string    `json:"body"`
	SenderAddress *string   `json:"sender_address,omitempty"`
	SentTimestamp time.Time `json:"sent_timestamp"`
	ReceivedAt    time.Time `json:"received_at,omitempty"`
}

// InboundHandler is satisfied by *app.InboundProcessor.
type InboundHandler interface {
	OnInboundAssembled(ctx context.Context, rawBody string, senderAddress *string, sentTimestamp, receivedAt time.Time) bool
}

// InboxConsumer feeds assembled inbound texts into the decoder.
type InboxConsumer struct {
	subscriber Subscriber
	handler    InboundHandler
	logger     *slog.Logger
}

func NewInboxConsumer(subscriber Subscriber, handler InboundHandler, logger *slog.Logger) *InboxConsumer {
	return &InboxConsumer{subscriber: subscriber, handler: handler, logger: logger.With("component", "nats_inbox_consumer")}
}

func (c *InboxConsumer) StartConsuming(ctx context.Context, queueGroup string) error {
	if _, err := c.subscriber.Subscribe(ctx, SubjectInboundAssembled, queueGroup, c.handleMessage); err != nil {
		return fmt.Errorf("inbox subscription: %w", err)
	}
	return nil
}

func (c *InboxConsumer) handleMessage(msg *nats.Msg) {
	var payload InboundPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.logger.Error("Failed to unmarshal inbound payload", "subject", msg.Subject, "error", err)
		return
	}
	c.handler.OnInboundAssembled(context.Background(), payload.Body, payload.SenderAddress, payload.SentTimestamp, payload.ReceivedAt)
}
