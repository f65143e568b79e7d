package repository

import (
	"context"
	"time"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

// CorrelationStore is the durable owner of SendRequest records. Every method is
// safe for concurrent use and mutations of one record are serialized.
type CorrelationStore interface {
	Create(ctx context.Context, req *domain.SendRequest) error
	Get(ctx context.Context, requestID string) (*domain.SendRequest, error)

	// RecordSentOutcome and RecordDeliveredOutcome are idempotent for an equal
	// outcome. A different outcome for an already settled segment fails with
	// domain.ErrInvalidTransition and keeps the stored one.
	RecordSentOutcome(ctx context.Context, requestID string, segmentIndex, attempt int, outcome domain.Outcome) (*domain.SendRequest, error)
	RecordDeliveredOutcome(ctx context.Context, requestID string, segmentIndex, attempt int, outcome domain.Outcome) (*domain.SendRequest, error)

	// Transition moves the aggregate state from -> to only if the stored state
	// is still from. Losing the race yields domain.ErrInvalidTransition.
	Transition(ctx context.Context, requestID string, from, to domain.State, reason *domain.FailureReason, at time.Time) (*domain.SendRequest, error)

	// Redrive starts a fresh attempt for a request in a redrivable state and
	// returns the segment indexes to hand to the transport again.
	Redrive(ctx context.Context, requestID string, from domain.State, at time.Time) (*domain.SendRequest, []int, error)

	ListNonTerminal(ctx context.Context) ([]*domain.SendRequest, error)
}
