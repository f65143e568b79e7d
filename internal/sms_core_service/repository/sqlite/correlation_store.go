// Package sqlite stores send requests in an on-device SQLite database through GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository"
)

// Open opens (or creates) the database at path and applies PRAGMAs.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates the correlation tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&sendRequestRow{}, &segmentRow{})
}

// CorrelationStore serializes writers in process; SQLite allows one at a time.
type CorrelationStore struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewCorrelationStore(db *gorm.DB) *CorrelationStore {
	return &CorrelationStore{db: db}
}

var _ repository.CorrelationStore = (*CorrelationStore)(nil)

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed")
}

func (s *CorrelationStore) Create(ctx context.Context, req *domain.SendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Create(toRow(req)).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateRequest, req.RequestID)
		}
		return fmt.Errorf("create send request: %w", err)
	}
	return nil
}

func load(tx *gorm.DB, requestID string) (*domain.SendRequest, error) {
	var row sendRequestRow
	err := tx.Preload("Segments", func(db *gorm.DB) *gorm.DB {
		return db.Order("segment_index")
	}).First(&row, "request_id = ?", requestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("load send request: %w", err)
	}
	return row.toDomain()
}

func (s *CorrelationStore) Get(ctx context.Context, requestID string) (*domain.SendRequest, error) {
	return load(s.db.WithContext(ctx), requestID)
}

func saveRequest(tx *gorm.DB, req *domain.SendRequest) error {
	class, code, name := reasonColumns(req.LastReason)
	return tx.Model(&sendRequestRow{}).Where("request_id = ?", req.RequestID).Updates(map[string]any{
		"state":              string(req.State),
		"attempt":            req.Attempt,
		"reason_class":       class,
		"reason_code":        code,
		"reason_name":        name,
		"last_transition_at": req.LastTransitionAt,
	}).Error
}

func saveSegment(tx *gorm.DB, requestID string, seg domain.Segment) error {
	row := toSegmentRow(requestID, seg)
	return tx.Model(&segmentRow{}).
		Where("request_id = ? AND segment_index = ?", requestID, seg.Index).
		Updates(map[string]any{
			"attempt":        row.Attempt,
			"sent_kind":      row.SentKind,
			"sent_code":      row.SentCode,
			"delivered_kind": row.DeliveredKind,
			"delivered_code": row.DeliveredCode,
		}).Error
}

func (s *CorrelationStore) recordOutcome(ctx context.Context, requestID string, segmentIndex int, apply func(*domain.SendRequest) (bool, error)) (*domain.SendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *domain.SendRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := load(tx, requestID)
		if err != nil {
			return err
		}
		changed, err := apply(req)
		if err != nil {
			return err
		}
		if changed {
			if err := saveSegment(tx, requestID, req.Segments[segmentIndex]); err != nil {
				return err
			}
		}
		out = req
		return nil
	})
	return out, err
}

func (s *CorrelationStore) RecordSentOutcome(ctx context.Context, requestID string, segmentIndex, attempt int, outcome domain.Outcome) (*domain.SendRequest, error) {
	return s.recordOutcome(ctx, requestID, segmentIndex, func(req *domain.SendRequest) (bool, error) {
		return repository.ApplySentOutcome(req, segmentIndex, attempt, outcome)
	})
}

func (s *CorrelationStore) RecordDeliveredOutcome(ctx context.Context, requestID string, segmentIndex, attempt int, outcome domain.Outcome) (*domain.SendRequest, error) {
	return s.recordOutcome(ctx, requestID, segmentIndex, func(req *domain.SendRequest) (bool, error) {
		return repository.ApplyDeliveredOutcome(req, segmentIndex, attempt, outcome)
	})
}

func (s *CorrelationStore) Transition(ctx context.Context, requestID string, from, to domain.State, reason *domain.FailureReason, at time.Time) (*domain.SendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *domain.SendRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := load(tx, requestID)
		if err != nil {
			return err
		}
		if err := repository.ApplyTransition(req, from, to, reason, at); err != nil {
			return err
		}
		if err := saveRequest(tx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

func (s *CorrelationStore) Redrive(ctx context.Context, requestID string, from domain.State, at time.Time) (*domain.SendRequest, []int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		out     *domain.SendRequest
		reissue []int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := load(tx, requestID)
		if err != nil {
			return err
		}
		if reissue, err = repository.ApplyRedrive(req, from, at); err != nil {
			return err
		}
		if err := saveRequest(tx, req); err != nil {
			return err
		}
		for _, idx := range reissue {
			if err := saveSegment(tx, requestID, req.Segments[idx]); err != nil {
				return err
			}
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, reissue, nil
}

func (s *CorrelationStore) ListNonTerminal(ctx context.Context) ([]*domain.SendRequest, error) {
	states := make([]string, 0, 4)
	for _, st := range domain.NonTerminalStates() {
		states = append(states, string(st))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []sendRequestRow
	err := s.db.WithContext(ctx).
		Preload("Segments", func(db *gorm.DB) *gorm.DB { return db.Order("segment_index") }).
		Where("state IN ?", states).
		Order("created_at, request_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list non-terminal requests: %w", err)
	}

	out := make([]*domain.SendRequest, 0, len(rows))
	for i := range rows {
		req, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}
