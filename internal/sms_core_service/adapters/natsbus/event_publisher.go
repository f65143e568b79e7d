package natsbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

// EventEnvelope is the JSON body of every event published on the bus.
type EventEnvelope struct {
	EventID     string           `json:"event_id"`
	Kind        domain.EventKind `json:"kind"`
	PublishedAt time.Time        `json:"published_at"`
	Data        domain.Event     `json:"data"`
}

// EventPublisher mirrors core events onto wallet.sms.events.<kind>. Failures are
// logged and otherwise ignored.
type EventPublisher struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewEventPublisher(publisher Publisher, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{publisher: publisher, logger: logger.With("component", "nats_event_publisher")}
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) {
	env := EventEnvelope{
		EventID:     uuid.NewString(),
		Kind:        event.Kind(),
		PublishedAt: time.Now().UTC(),
		Data:        event,
	}
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to marshal event", "kind", env.Kind, "error", err)
		return
	}
	subject := SubjectEventsPrefix + string(env.Kind)
	if err := p.publisher.Publish(ctx, subject, data); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
