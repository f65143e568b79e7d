package postgres

import (
	"context"
	"fmt"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sms_send_requests (
	request_id         TEXT PRIMARY KEY,
	phone_number       TEXT NOT NULL,
	body               TEXT NOT NULL,
	state              TEXT NOT NULL,
	attempt            INTEGER NOT NULL DEFAULT 1,
	reason_class       TEXT,
	reason_code        INTEGER,
	reason_name        TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	last_transition_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sms_send_requests_state ON sms_send_requests (state);
CREATE TABLE IF NOT EXISTS sms_send_segments (
	request_id        TEXT NOT NULL REFERENCES sms_send_requests (request_id) ON DELETE CASCADE,
	segment_index     INTEGER NOT NULL,
	body              TEXT NOT NULL,
	attempt           INTEGER NOT NULL DEFAULT 1,
	sent_kind         TEXT NOT NULL DEFAULT 'PENDING',
	sent_code         INTEGER NOT NULL DEFAULT 0,
	delivered_kind    TEXT NOT NULL DEFAULT 'PENDING',
	delivered_code    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (request_id, segment_index)
);`

// EnsureSchema creates the correlation tables when they are missing.
func (s *CorrelationStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to apply correlation schema: %w", err)
	}
	return nil
}
