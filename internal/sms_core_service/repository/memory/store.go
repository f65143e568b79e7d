// Package memory keeps send requests in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository"
)

type entry struct {
	mu  sync.Mutex
	req *domain.SendRequest
}

// Store locks the index for lookups and each entry for mutation, so callbacks
// for different requests do not contend.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

var _ repository.CorrelationStore = (*Store)(nil)

func (s *Store) Create(_ context.Context, req *domain.SendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[req.RequestID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateRequest, req.RequestID)
	}
	s.entries[req.RequestID] = &entry{req: req.Clone()}
	return nil
}

func (s *Store) lookup(requestID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[requestID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, requestID)
	}
	return e, nil
}

func (s *Store) Get(_ context.Context, requestID string) (*domain.SendRequest, error) {
	e, err := s.lookup(requestID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.Clone(), nil
}

// mutate runs fn on a scratch copy and commits it only when fn succeeds.
func (s *Store) mutate(requestID string, fn func(req *domain.SendRequest) error) (*domain.SendRequest, error) {
	e, err := s.lookup(requestID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	scratch := e.req.Clone()
	if err := fn(scratch); err != nil {
		return nil, err
	}
	e.req = scratch
	return scratch.Clone(), nil
}

func (s *Store) RecordSentOutcome(_ context.Context, requestID string, segmentIndex, attempt int, outcome domain.Outcome) (*domain.SendRequest, error) {
	return s.mutate(requestID, func(req *domain.SendRequest) error {
		_, err := repository.ApplySentOutcome(req, segmentIndex, attempt, outcome)
		return err
	})
}

func (s *Store) RecordDeliveredOutcome(_ context.Context, requestID string, segmentIndex, attempt int, outcome domain.Outcome) (*domain.SendRequest, error) {
	return s.mutate(requestID, func(req *domain.SendRequest) error {
		_, err := repository.ApplyDeliveredOutcome(req, segmentIndex, attempt, outcome)
		return err
	})
}

func (s *Store) Transition(_ context.Context, requestID string, from, to domain.State, reason *domain.FailureReason, at time.Time) (*domain.SendRequest, error) {
	return s.mutate(requestID, func(req *domain.SendRequest) error {
		return repository.ApplyTransition(req, from, to, reason, at)
	})
}

func (s *Store) Redrive(_ context.Context, requestID string, from domain.State, at time.Time) (*domain.SendRequest, []int, error) {
	var reissue []int
	req, err := s.mutate(requestID, func(req *domain.SendRequest) error {
		var err error
		reissue, err = repository.ApplyRedrive(req, from, at)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return req, reissue, nil
}

// ListNonTerminal copies every non-terminal request, oldest first.
func (s *Store) ListNonTerminal(_ context.Context) ([]*domain.SendRequest, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*domain.SendRequest
	for _, e := range entries {
		e.mu.Lock()
		if !e.req.State.IsTerminal() {
			out = append(out, e.req.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
