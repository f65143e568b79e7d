package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCorrelationTokenRoundTrip(t *testing.T) {
	tok := CorrelationToken{RequestID: "tx.42|a", SegmentIndex: 3, Kind: TokenDelivered, Attempt: 2}

	parsed, err := ParseToken(tok.Encode())
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"v1.sent.1.0",
		"v2.sent.1.0.cjE",
		"v1.read.1.0.cjE",
		"v1.sent.0.0.cjE",
		"v1.sent.1.-1.cjE",
		"v1.sent.1.0.!!",
	} {
		_, err := ParseToken(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
	}
}
