package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository"
)

// DB is the subset of *pgxpool.Pool the store needs; pgxmock pools satisfy it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CorrelationStore persists send requests in PostgreSQL. Mutations of a record
// take a row lock on it for the duration of a transaction.
type CorrelationStore struct {
	db     DB
	logger *slog.Logger
}

func NewCorrelationStore(db DB, logger *slog.Logger) *CorrelationStore {
	return &CorrelationStore{db: db, logger: logger.With("component", "correlation_store_pg")}
}

var _ repository.CorrelationStore = (*CorrelationStore)(nil)

const (
	insertRequestSQL = `INSERT INTO sms_send_requests (request_id, phone_number, body, state, attempt, created_at, last_transition_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (request_id) DO NOTHING`
	insertSegmentSQL = `INSERT INTO sms_send_segments (request_id, segment_index, body, attempt, sent_kind, sent_code, delivered_kind, delivered_code) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectRequestSQL  = `SELECT request_id, phone_number, body, state, attempt, reason_class, reason_code, reason_name, created_at, last_transition_at FROM sms_send_requests WHERE request_id = $1`
	selectSegmentsSQL = `SELECT segment_index, body, attempt, sent_kind, sent_code, delivered_kind, delivered_code FROM sms_send_segments WHERE request_id = $1 ORDER BY segment_index`

	compareAndSetSQL = `UPDATE sms_send_requests SET state = $3, reason_class = $4, reason_code = $5, reason_name = $6, last_transition_at = $7 WHERE request_id = $1 AND state = $2`
	selectStateSQL   = `SELECT state FROM sms_send_requests WHERE request_id = $1`

	updateRequestSQL = `UPDATE sms_send_requests SET state = $2, attempt = $3, reason_class = $4, reason_code = $5, reason_name = $6, last_transition_at = $7 WHERE request_id = $1`
	updateSegmentSQL = `UPDATE sms_send_segments SET attempt = $3, sent_kind = $4, sent_code = $5, delivered_kind = $6, delivered_code = $7 WHERE request_id = $1 AND segment_index = $2`

	selectNonTerminalSQL = `SELECT request_id, phone_number, body, state, attempt, reason_class, reason_code, reason_name, created_at, last_transition_at FROM sms_send_requests WHERE state = ANY($1) ORDER BY created_at, request_id`
	selectSegmentsForSQL = `SELECT request_id, segment_index, body, attempt, sent_kind, sent_code, delivered_kind, delivered_code FROM sms_send_segments WHERE request_id = ANY($1) ORDER BY request_id, segment_index`
)

func (s *CorrelationStore) Create(ctx context.Context, req *domain.SendRequest) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertRequestSQL,
			req.RequestID, req.PhoneNumber, req.Body, string(req.State), req.Attempt, req.CreatedAt, req.LastTransitionAt)
		if err != nil {
			return fmt.Errorf("failed to insert send request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateRequest, req.RequestID)
		}
		for _, seg := range req.Segments {
			if _, err := tx.Exec(ctx, insertSegmentSQL,
				req.RequestID, seg.Index, seg.Body, seg.Attempt,
				string(seg.SentOutcome.Kind), seg.SentOutcome.Code,
				string(seg.DeliveredOutcome.Kind), seg.DeliveredOutcome.Code,
			); err != nil {
				return fmt.Errorf("failed to insert segment %d: %w", seg.Index, err)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrDuplicateRequest) {
		s.logger.ErrorContext(ctx, "Create send request failed", "request_id", req.RequestID, "error", err)
	}
	return err
}

func (s *CorrelationStore) Get(ctx context.Context, requestID string) (*domain.SendRequest, error) {
	return loadRequest(ctx, s.db, requestID, false)
}

func (s *CorrelationStore) RecordSentOutcome(ctx context.Context, requestID string, segmentIndex, attempt int, outcome domain.Outcome) (*domain.SendRequest, error) {
	return s.mutateSegment(ctx, requestID, segmentIndex, func(req *domain.SendRequest) (bool, error) {
		return repository.ApplySentOutcome(req, segmentIndex, attempt, outcome)
	})
}

func (s *CorrelationStore) RecordDeliveredOutcome(ctx context.Context, requestID string, segmentIndex, attempt int, outcome domain.Outcome) (*domain.SendRequest, error) {
	return s.mutateSegment(ctx, requestID, segmentIndex, func(req *domain.SendRequest) (bool, error) {
		return repository.ApplyDeliveredOutcome(req, segmentIndex, attempt, outcome)
	})
}

func (s *CorrelationStore) mutateSegment(ctx context.Context, requestID string, segmentIndex int, apply func(*domain.SendRequest) (bool, error)) (*domain.SendRequest, error) {
	var out *domain.SendRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		req, err := loadRequest(ctx, tx, requestID, true)
		if err != nil {
			return err
		}
		changed, err := apply(req)
		if err != nil {
			return err
		}
		if changed {
			if err := writeSegment(ctx, tx, requestID, req.Segments[segmentIndex]); err != nil {
				return err
			}
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CorrelationStore) Transition(ctx context.Context, requestID string, from, to domain.State, reason *domain.FailureReason, at time.Time) (*domain.SendRequest, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s is not allowed", domain.ErrInvalidTransition, from, to)
	}
	class, code, name := reasonColumns(reason)

	var out *domain.SendRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, compareAndSetSQL, requestID, string(from), string(to), class, code, name, at)
		if err != nil {
			return fmt.Errorf("failed to update state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var current string
			if err := tx.QueryRow(ctx, selectStateSQL, requestID).Scan(&current); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("%w: %s", domain.ErrNotFound, requestID)
				}
				return fmt.Errorf("failed to read state: %w", err)
			}
			return fmt.Errorf("%w: %s is %s, expected %s", domain.ErrInvalidTransition, requestID, current, from)
		}
		out, err = loadRequest(ctx, tx, requestID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CorrelationStore) Redrive(ctx context.Context, requestID string, from domain.State, at time.Time) (*domain.SendRequest, []int, error) {
	var (
		out     *domain.SendRequest
		reissue []int
	)
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		req, err := loadRequest(ctx, tx, requestID, true)
		if err != nil {
			return err
		}
		reissue, err = repository.ApplyRedrive(req, from, at)
		if err != nil {
			return err
		}
		class, code, name := reasonColumns(req.LastReason)
		if _, err := tx.Exec(ctx, updateRequestSQL,
			requestID, string(req.State), req.Attempt, class, code, name, req.LastTransitionAt); err != nil {
			return fmt.Errorf("failed to update send request: %w", err)
		}
		for _, idx := range reissue {
			if err := writeSegment(ctx, tx, requestID, req.Segments[idx]); err != nil {
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

// ListNonTerminal reads requests and segments in one repeatable-read snapshot.
func (s *CorrelationStore) ListNonTerminal(ctx context.Context) ([]*domain.SendRequest, error) {
	states := make([]string, 0, 4)
	for _, st := range domain.NonTerminalStates() {
		states = append(states, string(st))
	}

	var out []*domain.SendRequest
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectNonTerminalSQL, states)
		if err != nil {
			return fmt.Errorf("failed to query non-terminal requests: %w", err)
		}
		byID := make(map[string]*domain.SendRequest)
		var ids []string
		for rows.Next() {
			req, err := scanRequest(rows)
			if err != nil {
				rows.Close()
				return err
			}
			byID[req.RequestID] = req
			ids = append(ids, req.RequestID)
			out = append(out, req)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate non-terminal requests: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		segRows, err := tx.Query(ctx, selectSegmentsForSQL, ids)
		if err != nil {
			return fmt.Errorf("failed to query segments: %w", err)
		}
		defer segRows.Close()
		for segRows.Next() {
			var requestID string
			var seg domain.Segment
			var sentKind, deliveredKind string
			var sentCode, deliveredCode int
			if err := segRows.Scan(&requestID, &seg.Index, &seg.Body, &seg.Attempt, &sentKind, &sentCode, &deliveredKind, &deliveredCode); err != nil {
				return fmt.Errorf("failed to scan segment: %w", err)
			}
			if err := fillOutcomes(&seg, sentKind, sentCode, deliveredKind, deliveredCode); err != nil {
				return err
			}
			if req, ok := byID[requestID]; ok {
				req.Segments = append(req.Segments, seg)
			}
		}
		return segRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func loadRequest(ctx context.Context, q querier, requestID string, forUpdate bool) (*domain.SendRequest, error) {
	query := selectRequestSQL
	if forUpdate {
		query += " FOR UPDATE"
	}
	req, err := scanRequest(q.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, requestID)
		}
		return nil, err
	}

	rows, err := q.Query(ctx, selectSegmentsSQL, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seg domain.Segment
		var sentKind, deliveredKind string
		var sentCode, deliveredCode int
		if err := rows.Scan(&seg.Index, &seg.Body, &seg.Attempt, &sentKind, &sentCode, &deliveredKind, &deliveredCode); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		if err := fillOutcomes(&seg, sentKind, sentCode, deliveredKind, deliveredCode); err != nil {
			return nil, err
		}
		req.Segments = append(req.Segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate segments: %w", err)
	}
	return req, nil
}

func scanRequest(row pgx.Row) (*domain.SendRequest, error) {
	var (
		req         domain.SendRequest
		state       string
		reasonClass *string
		reasonCode  *int
		reasonName  *string
	)
	err := row.Scan(&req.RequestID, &req.PhoneNumber, &req.Body, &state, &req.Attempt,
		&reasonClass, &reasonCode, &reasonName, &req.CreatedAt, &req.LastTransitionAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan send request: %w", err)
	}
	if req.State, err = domain.ParseState(state); err != nil {
		return nil, err
	}
	if reasonClass != nil {
		req.LastReason = &domain.FailureReason{Class: domain.FailureClass(*reasonClass)}
		if reasonCode != nil {
			req.LastReason.Code = *reasonCode
		}
		if reasonName != nil {
			req.LastReason.Name = *reasonName
		}
	}
	return &req, nil
}

func fillOutcomes(seg *domain.Segment, sentKind string, sentCode int, deliveredKind string, deliveredCode int) error {
	var err error
	if seg.SentOutcome, err = domain.ParseOutcome(sentKind, sentCode); err != nil {
		return err
	}
	seg.DeliveredOutcome, err = domain.ParseOutcome(deliveredKind, deliveredCode)
	return err
}

func writeSegment(ctx context.Context, q querier, requestID string, seg domain.Segment) error {
	_, err := q.Exec(ctx, updateSegmentSQL, requestID, seg.Index, seg.Attempt,
		string(seg.SentOutcome.Kind), seg.SentOutcome.Code,
		string(seg.DeliveredOutcome.Kind), seg.DeliveredOutcome.Code)
	if err != nil {
		return fmt.Errorf("failed to update segment %d: %w", seg.Index, err)
	}
	return nil
}

func reasonColumns(reason *domain.FailureReason) (*string, *int, *string) {
	if reason == nil {
		return nil, nil, nil
	}
	class := string(reason.Class)
	code := reason.Code
	name := reason.Name
	return &class, &code, &name
}
