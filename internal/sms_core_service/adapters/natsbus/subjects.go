// Package natsbus connects the SMS core to a NATS bus: outbound segments and
// events are published, transport callbacks and inbound texts are consumed.
package natsbus

import (
	"context"

	"github.com/nats-io/nats.go"
)

const (
	SubjectSegmentsSend      = "wallet.sms.segments.send"
	SubjectCallbackSent      = "wallet.sms.callbacks.sent"
	SubjectCallbackDelivered = "wallet.sms.callbacks.delivered"
	SubjectInboundAssembled  = "wallet.sms.inbound.assembled"
	SubjectEventsPrefix      = "wallet.sms.events."
)

// Publisher is satisfied by *messagebroker.NatsClient.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber is satisfied by *messagebroker.NatsClient.
type Subscriber interface {
	Subscribe(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) (*nats.Subscription, error)
}
