package app

import (
	"context"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

// SegmentDispatch is one segment handed to the transport together with the
// tokens its sent and delivered callbacks must carry back.
type SegmentDispatch struct {
	PhoneNumber    string `json:"phone_number"`
	Body           string `json:"body"`
	SentToken      string `json:"sent_token"`
	DeliveredToken string `json:"delivered_token"`
}

// Transport hands segments to the carrier. SendSegment must not wait for the
// network; outcomes arrive later through OnSent and OnDelivered.
type Transport interface {
	SendSegment(ctx context.Context, dispatch SegmentDispatch) error
}

// EventPublisher is fire-and-forget; implementations never block the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}

type Segmenter interface {
	Split(body string) []string
}

type Classifier interface {
	Reason(code int) *domain.FailureReason
}
