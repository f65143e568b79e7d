package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/core_sms/protocol"
)

// InboundDecoder recognizes wallet payloads among assembled inbound texts.
type InboundDecoder struct{}

// Decode matches rawBody against the protocol marker, exactly and case-sensitively.
func (InboundDecoder) Decode(rawBody string, senderAddress *string, sentTimestamp, receivedAt time.Time) (*domain.InboundMessage, bool) {
	if !protocol.HasMarker(rawBody) {
		return nil, false
	}
	return &domain.InboundMessage{
		RawBody:       rawBody,
		SenderAddress: senderAddress,
		SentTimestamp: sentTimestamp,
		ReceivedAt:    receivedAt,
	}, true
}

// InboundProcessor publishes every matching inbound message.
type InboundProcessor struct {
	decoder InboundDecoder
	events  EventPublisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewInboundProcessor(events EventPublisher, logger *slog.Logger) *InboundProcessor {
	return &InboundProcessor{
		events: events,
		logger: logger.With("component", "inbound_processor"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// OnInboundAssembled handles one fully reassembled inbound text and reports
// whether it carried the wallet marker. Non-matching texts are left alone.
// A zero receivedAt is replaced by the local clock.
func (p *InboundProcessor) OnInboundAssembled(ctx context.Context, rawBody string, senderAddress *string, sentTimestamp, receivedAt time.Time) bool {
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}
	msg, ok := p.decoder.Decode(rawBody, senderAddress, sentTimestamp, receivedAt)
	if !ok {
		inboundCounter.WithLabelValues("false").Inc()
		p.logger.DebugContext(ctx, "Inbound message without wallet marker ignored", "length", len(rawBody))
		return false
	}
	inboundCounter.WithLabelValues("true").Inc()
	p.logger.InfoContext(ctx, "Wallet payload received", "length", len(rawBody), "has_sender", senderAddress != nil)
	p.events.Publish(ctx, domain.InboundMessageReceived{Message: *msg})
	return true
}
