package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// TokenKind distinguishes the two callbacks a segment can receive.
type TokenKind string

const (
	TokenSent      TokenKind = "sent"
	TokenDelivered TokenKind = "delivered"
)

const tokenVersion = "v1"

// CorrelationToken links a transport callback back to its segment and attempt.
type CorrelationToken struct {
	RequestID    string
	SegmentIndex int
	Kind         TokenKind
	Attempt      int
}

// Encode renders the token as v1.<kind>.<attempt>.<index>.<base64url(requestID)>.
// The request id is encoded so that dots inside it cannot break parsing.
func (t CorrelationToken) Encode() string {
	return strings.Join([]string{
		tokenVersion,
		string(t.Kind),
		strconv.Itoa(t.Attempt),
		strconv.Itoa(t.SegmentIndex),
		base64.RawURLEncoding.EncodeToString([]byte(t.RequestID)),
	}, ".")
}

// ParseToken is the inverse of Encode.
func ParseToken(raw string) (CorrelationToken, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 5 || parts[0] != tokenVersion {
		return CorrelationToken{}, fmt.Errorf("%w: %q", ErrInvalidToken, raw)
	}
	kind := TokenKind(parts[1])
	if kind != TokenSent && kind != TokenDelivered {
		return CorrelationToken{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidToken, parts[1])
	}
	attempt, err := strconv.Atoi(parts[2])
	if err != nil || attempt < 1 {
		return CorrelationToken{}, fmt.Errorf("%w: bad attempt %q", ErrInvalidToken, parts[2])
	}
	index, err := strconv.Atoi(parts[3])
	if err != nil || index < 0 {
		return CorrelationToken{}, fmt.Errorf("%w: bad segment index %q", ErrInvalidToken, parts[3])
	}
	id, err := base64.RawURLEncoding.DecodeString(parts[4])
	if err != nil || len(id) == 0 {
		return CorrelationToken{}, fmt.Errorf("%w: bad request id", ErrInvalidToken)
	}
	return CorrelationToken{
		RequestID:    string(id),
		SegmentIndex: index,
		Kind:         kind,
		Attempt:      attempt,
	}, nil
}
