package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

func TestInboundDecoder(t *testing.T) {
	var d InboundDecoder
	sender := "+15550002222"

	msg, ok := d.Decode("WLT1|TX|AMT=5|TO=999", &sender, t0, t0)
	require.True(t, ok)
	assert.Equal(t, "WLT1|TX|AMT=5|TO=999", msg.RawBody)
	assert.Equal(t, &sender, msg.SenderAddress)
	assert.Equal(t, t0, msg.SentTimestamp)

	_, ok = d.Decode("WLT|TX|AMT=5", &sender, t0, t0)
	assert.False(t, ok)
	_, ok = d.Decode("", nil, t0, t0)
	assert.False(t, ok)
	_, ok = d.Decode("wlt1|tx|AMT=5", nil, t0, t0)
	assert.False(t, ok)
}

func TestInboundProcessor_PublishesOnlyMatches(t *testing.T) {
	events := &capturingPublisher{}
	p := NewInboundProcessor(events, discardLogger())
	ctx := context.Background()

	assert.True(t, p.OnInboundAssembled(ctx, "WLT1|TX|abc", nil, t0, time.Time{}))
	assert.False(t, p.OnInboundAssembled(ctx, "hello there", nil, t0, time.Time{}))

	require.Len(t, events.events, 1)
	got, ok := events.events[0].(domain.InboundMessageReceived)
	require.True(t, ok)
	assert.Equal(t, "WLT1|TX|abc", got.Message.RawBody)
	assert.Nil(t, got.Message.SenderAddress)
	assert.False(t, got.Message.ReceivedAt.IsZero())
}

func TestInboundProcessor_KeepsReportedReceiptTime(t *testing.T) {
	events := &capturingPublisher{}
	p := NewInboundProcessor(events, discardLogger())
	received := t0.Add(90 * time.Second)

	require.True(t, p.OnInboundAssembled(context.Background(), "WLT1|TX|abc", nil, t0, received))

	require.Len(t, events.events, 1)
	got := events.events[0].(domain.InboundMessageReceived)
	assert.Equal(t, t0, got.Message.SentTimestamp)
	assert.Equal(t, received, got.Message.ReceivedAt)
}
