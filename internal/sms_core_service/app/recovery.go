package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository"
)

// Redriver is the part of OutboundMachine the recovery engine drives.
type Redriver interface {
	Redrive(ctx context.Context, req *domain.SendRequest) (bool, error)
}

// RecoveryEngine re-submits requests whose process died before they settled.
type RecoveryEngine struct {
	store       repository.CorrelationStore
	redriver    Redriver
	events      EventPublisher
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

func NewRecoveryEngine(store repository.CorrelationStore, redriver Redriver, events EventPublisher, concurrency int, logger *slog.Logger) *RecoveryEngine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RecoveryEngine{
		store:       store,
		redriver:    redriver,
		events:      events,
		concurrency: concurrency,
		logger:      logger.With("component", "recovery_engine"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Recover runs one pass and returns how many requests were re-driven.
// SENT requests only wait for delivery reports, so nothing is reissued for them.
func (e *RecoveryEngine) Recover(ctx context.Context) (int, error) {
	start := e.now()
	e.events.Publish(ctx, domain.RecoveryPassStarted{Timestamp: start})
	defer func() { recoveryDurationHist.Observe(time.Since(start).Seconds()) }()

	pending, err := e.store.ListNonTerminal(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "Recovery scan failed", "error", err)
		return 0, fmt.Errorf("failed to list non-terminal requests: %w", err)
	}
	e.logger.InfoContext(ctx, "Recovery pass started", "candidates", len(pending))

	var redriven atomic.Int32
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, req := range pending {
		req := req
		if !req.State.CanRedrive() {
			e.logger.DebugContext(ctx, "Skipping request awaiting delivery reports", "request_id", req.RequestID, "state", req.State)
			continue
		}
		g.Go(func() error {
			ok, err := e.redriver.Redrive(ctx, req)
			if err != nil {
				e.logger.ErrorContext(ctx, "Redrive failed", "request_id", req.RequestID, "state", req.State, "error", err)
				return err
			}
			if ok {
				redriven.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	n := int(redriven.Load())
	e.logger.InfoContext(ctx, "Recovery pass finished", "redriven", n)
	return n, err
}

type recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// RecoveryScheduler runs a single recovery pass per process after a delay,
// standing in for the platform's boot-completed work request.
type RecoveryScheduler struct {
	engine recoverer
	delay  time.Duration
	once   sync.Once
	logger *slog.Logger
}

func NewRecoveryScheduler(engine recoverer, delay time.Duration, logger *slog.Logger) *RecoveryScheduler {
	return &RecoveryScheduler{engine: engine, delay: delay, logger: logger.With("component", "recovery_scheduler")}
}

// Run blocks until the pass completes or ctx ends. Later calls return immediately.
func (s *RecoveryScheduler) Run(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		if s.delay > 0 {
			timer := time.NewTimer(s.delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				s.logger.InfoContext(ctx, "Recovery cancelled before start")
				return
			case <-timer.C:
			}
		}
		var n int
		n, err = s.engine.Recover(ctx)
		s.logger.InfoContext(ctx, "Boot recovery completed", "redriven", n, "error", err)
	})
	return err
}
