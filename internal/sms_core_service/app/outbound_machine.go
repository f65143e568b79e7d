package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/walletsms/golang_services/internal/core_sms/classifier"
	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository"
)

type submitInput struct {
	PhoneNumber string `validate:"required,e164"`
}

// OutboundMachine drives send requests through their lifecycle. It keeps no
// per-request state; the store's compare-and-set decides which of several
// concurrent callbacks performs a transition, and only that caller publishes.
type OutboundMachine struct {
	store      repository.CorrelationStore
	transport  Transport
	events     EventPublisher
	segmenter  Segmenter
	classifier Classifier
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

type OutboundOption func(*OutboundMachine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) OutboundOption {
	return func(m *OutboundMachine) { m.now = now }
}

func NewOutboundMachine(
	store repository.CorrelationStore,
	transport Transport,
	events EventPublisher,
	segmenter Segmenter,
	classifier Classifier,
	logger *slog.Logger,
	opts ...OutboundOption,
) *OutboundMachine {
	m := &OutboundMachine{
		store:      store,
		transport:  transport,
		events:     events,
		segmenter:  segmenter,
		classifier: classifier,
		validate:   validator.New(),
		logger:     logger.With("component", "outbound_machine"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit accepts a payload for sending. A nil error means the request is
// recorded; every later problem is reported through state change events.
func (m *OutboundMachine) Submit(ctx context.Context, phoneNumber, body, requestID string) error {
	if err := m.validateSubmit(ctx, phoneNumber, requestID); err != nil {
		submissionsCounter.WithLabelValues("invalid").Inc()
		return err
	}

	parts := m.segmenter.Split(body)
	segmentsPerRequestHist.Observe(float64(len(parts)))

	req := domain.NewSendRequest(requestID, phoneNumber, body, parts, m.now())
	if err := m.store.Create(ctx, req); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			submissionsCounter.WithLabelValues("duplicate").Inc()
			return err
		}
		submissionsCounter.WithLabelValues("store_error").Inc()
		m.logger.ErrorContext(ctx, "Failed to record send request", "request_id", requestID, "error", err)
		return fmt.Errorf("failed to record send request %s: %w", requestID, err)
	}
	submissionsCounter.WithLabelValues("accepted").Inc()
	m.logger.InfoContext(ctx, "Send request accepted", "request_id", requestID, "segments", len(parts))

	submitted, moved, err := m.transition(ctx, requestID, domain.StateQueued, domain.StateSubmitted, nil)
	if err != nil || !moved {
		// The record exists as QUEUED; the next recovery pass submits it.
		return nil
	}

	indexes := make([]int, len(submitted.Segments))
	for i := range indexes {
		indexes[i] = i
	}
	m.dispatch(ctx, submitted, indexes)
	return nil
}

func (m *OutboundMachine) validateSubmit(ctx context.Context, phoneNumber, requestID string) error {
	if strings.TrimSpace(requestID) == "" {
		return domain.ErrInvalidRequestID
	}
	if err := m.validate.StructCtx(ctx, submitInput{PhoneNumber: phoneNumber}); err != nil {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPhoneNumber, phoneNumber)
	}
	return nil
}

// Get returns the current snapshot of a request.
func (m *OutboundMachine) Get(ctx context.Context, requestID string) (*domain.SendRequest, error) {
	return m.store.Get(ctx, requestID)
}

func (m *OutboundMachine) dispatch(ctx context.Context, req *domain.SendRequest, indexes []int) {
	for _, idx := range indexes {
		seg := req.Segments[idx]
		d := SegmentDispatch{
			PhoneNumber: req.PhoneNumber,
			Body:        seg.Body,
			SentToken: domain.CorrelationToken{
				RequestID: req.RequestID, SegmentIndex: idx, Kind: domain.TokenSent, Attempt: seg.Attempt,
			}.Encode(),
			DeliveredToken: domain.CorrelationToken{
				RequestID: req.RequestID, SegmentIndex: idx, Kind: domain.TokenDelivered, Attempt: seg.Attempt,
			}.Encode(),
		}
		if err := m.transport.SendSegment(ctx, d); err != nil {
			dispatchErrorsCounter.Inc()
			m.logger.WarnContext(ctx, "Transport refused segment",
				"request_id", req.RequestID, "segment_index", idx, "attempt", seg.Attempt, "error", err)
			if err := m.applySent(ctx, req.RequestID, idx, seg.Attempt, domain.ErrorCode(classifier.ResultGenericFailure)); err != nil {
				m.logger.ErrorContext(ctx, "Failed to record dispatch failure",
					"request_id", req.RequestID, "segment_index", idx, "error", err)
			}
		}
	}
}

// OnSent handles the carrier acceptance callback for one segment.
func (m *OutboundMachine) OnSent(ctx context.Context, token string, resultCode int) error {
	tok, err := m.parseToken(token, domain.TokenSent)
	if err != nil {
		return err
	}
	return m.applySent(ctx, tok.RequestID, tok.SegmentIndex, tok.Attempt, classifier.Outcome(resultCode))
}

// OnDelivered handles the delivery report callback for one segment.
func (m *OutboundMachine) OnDelivered(ctx context.Context, token string, resultCode int) error {
	tok, err := m.parseToken(token, domain.TokenDelivered)
	if err != nil {
		return err
	}
	return m.applyDelivered(ctx, tok.RequestID, tok.SegmentIndex, tok.Attempt, classifier.Outcome(resultCode))
}

func (m *OutboundMachine) parseToken(raw string, want domain.TokenKind) (domain.CorrelationToken, error) {
	tok, err := domain.ParseToken(raw)
	if err == nil && tok.Kind != want {
		err = fmt.Errorf("%w: %s token used for %s callback", domain.ErrInvalidToken, tok.Kind, want)
	}
	if err != nil {
		callbacksCounter.WithLabelValues(string(want), "invalid_token").Inc()
		m.logger.Warn("Rejected callback token", "kind", want, "error", err)
		return domain.CorrelationToken{}, err
	}
	return tok, nil
}

func (m *OutboundMachine) applySent(ctx context.Context, requestID string, idx, attempt int, outcome domain.Outcome) error {
	req, err := m.store.RecordSentOutcome(ctx, requestID, idx, attempt, outcome)
	if cbErr := m.callbackResult(ctx, domain.TokenSent, requestID, idx, outcome, err); cbErr != nil || err != nil {
		return cbErr
	}
	return m.settleSent(ctx, req)
}

func (m *OutboundMachine) applyDelivered(ctx context.Context, requestID string, idx, attempt int, outcome domain.Outcome) error {
	req, err := m.store.RecordDeliveredOutcome(ctx, requestID, idx, attempt, outcome)
	if cbErr := m.callbackResult(ctx, domain.TokenDelivered, requestID, idx, outcome, err); cbErr != nil || err != nil {
		return cbErr
	}
	return m.settleDelivered(ctx, req)
}

// callbackResult logs and counts a recording attempt. Rejections caused by
// duplicate, late, or unknown callbacks are swallowed.
func (m *OutboundMachine) callbackResult(ctx context.Context, kind domain.TokenKind, requestID string, idx int, outcome domain.Outcome, err error) error {
	log := m.logger.With("request_id", requestID, "segment_index", idx, "kind", kind, "outcome", outcome.String())
	switch {
	case err == nil:
		callbacksCounter.WithLabelValues(string(kind), "recorded").Inc()
		log.DebugContext(ctx, "Callback recorded")
		return nil
	case errors.Is(err, domain.ErrInvalidTransition):
		callbacksCounter.WithLabelValues(string(kind), "conflict").Inc()
		log.WarnContext(ctx, "Conflicting callback ignored", "error", err)
	case errors.Is(err, domain.ErrStaleAttempt):
		callbacksCounter.WithLabelValues(string(kind), "stale").Inc()
		log.InfoContext(ctx, "Callback for superseded attempt ignored", "error", err)
	case errors.Is(err, domain.ErrNotFound):
		callbacksCounter.WithLabelValues(string(kind), "unknown").Inc()
		log.WarnContext(ctx, "Callback for unknown request ignored", "error", err)
	default:
		callbacksCounter.WithLabelValues(string(kind), "error").Inc()
		log.ErrorContext(ctx, "Failed to record callback", "error", err)
		return err
	}
	return nil
}

// settleSent decides the aggregate send result once every segment reported.
// A permanent failure on any segment wins over transient ones.
func (m *OutboundMachine) settleSent(ctx context.Context, req *domain.SendRequest) error {
	if req.State != domain.StateSubmitted || !req.AllSentSettled() {
		return nil
	}

	var permanent, transient *domain.FailureReason
	for _, seg := range req.Segments {
		if !seg.SentOutcome.IsError() {
			continue
		}
		reason := m.classifier.Reason(seg.SentOutcome.Code)
		if reason.Class == domain.FailurePermanent {
			if permanent == nil {
				permanent = reason
			}
		} else if transient == nil {
			transient = reason
		}
	}

	to, reason := domain.StateSent, (*domain.FailureReason)(nil)
	switch {
	case permanent != nil:
		to, reason = domain.StateSendFailedPerm, permanent
	case transient != nil:
		to, reason = domain.StateSendFailedTemp, transient
	}

	updated, moved, err := m.transition(ctx, req.RequestID, domain.StateSubmitted, to, reason)
	if err != nil || !moved {
		return err
	}
	// Delivery reports may have been recorded before the send result settled.
	return m.settleDelivered(ctx, updated)
}

func (m *OutboundMachine) settleDelivered(ctx context.Context, req *domain.SendRequest) error {
	if req.State != domain.StateSent || !req.AllDeliveredSettled() {
		return nil
	}

	to, reason := domain.StateDelivered, (*domain.FailureReason)(nil)
	for _, seg := range req.Segments {
		if !seg.DeliveredOutcome.IsOk() {
			to, reason = domain.StateDeliveryFailed, m.classifier.Reason(seg.DeliveredOutcome.Code)
			break
		}
	}
	_, _, err := m.transition(ctx, req.RequestID, domain.StateSent, to, reason)
	return err
}

// transition performs one compare-and-set and publishes its event. Losing the
// race is not an error: moved is false and nothing is published.
func (m *OutboundMachine) transition(ctx context.Context, requestID string, from, to domain.State, reason *domain.FailureReason) (*domain.SendRequest, bool, error) {
	at := m.now()
	updated, err := m.store.Transition(ctx, requestID, from, to, reason, at)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			m.logger.DebugContext(ctx, "Transition already taken", "request_id", requestID, "from", from, "to", to)
			return nil, false, nil
		}
		m.logger.ErrorContext(ctx, "Failed to transition send request",
			"request_id", requestID, "from", from, "to", to, "error", err)
		return nil, false, err
	}
	m.announce(ctx, requestID, to, reason, at)
	return updated, true, nil
}

func (m *OutboundMachine) announce(ctx context.Context, requestID string, to domain.State, reason *domain.FailureReason, at time.Time) {
	transitionsCounter.WithLabelValues(string(to)).Inc()
	event := domain.OutboundStateChanged{RequestID: requestID, State: to, At: at}
	if reason != nil {
		event.Reason = reason.Error()
	}
	m.logger.InfoContext(ctx, "Send request state changed", "request_id", requestID, "state", to, "reason", event.Reason)
	m.events.Publish(ctx, event)
}

// Redrive re-submits a recovered request as a fresh attempt with its existing
// segments. It reports false when the request was not in a redrivable state.
func (m *OutboundMachine) Redrive(ctx context.Context, req *domain.SendRequest) (bool, error) {
	if !req.State.CanRedrive() {
		return false, nil
	}
	at := m.now()
	updated, reissue, err := m.store.Redrive(ctx, req.RequestID, req.State, at)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			m.logger.DebugContext(ctx, "Request moved before redrive", "request_id", req.RequestID, "from", req.State)
			return false, nil
		}
		return false, fmt.Errorf("failed to redrive %s: %w", req.RequestID, err)
	}
	redrivenCounter.WithLabelValues(string(req.State)).Inc()
	m.announce(ctx, req.RequestID, domain.StateSubmitted, nil, at)

	m.dispatch(ctx, updated, reissue)
	if len(reissue) == 0 {
		// Every segment was already accepted before the restart.
		if err := m.settleSent(ctx, updated); err != nil {
			return true, err
		}
	}
	return true, nil
}
