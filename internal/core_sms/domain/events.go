package domain

import "time"

// EventKind names an event on the bus and in metrics labels.
type EventKind string

const (
	EventOutboundStateChanged   EventKind = "outbound_state_changed"
	EventInboundMessageReceived EventKind = "inbound_message_received"
	EventRecoveryPassStarted    EventKind = "recovery_pass_started"
)

// Event is anything the core announces to the application.
type Event interface {
	Kind() EventKind
}

// OutboundStateChanged is emitted once per successful aggregate transition.
type OutboundStateChanged struct {
	RequestID string    `json:"request_id"`
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

func (OutboundStateChanged) Kind() EventKind { return EventOutboundStateChanged }

// InboundMessage is a decoded inbound payload; never persisted.
type InboundMessage struct {
	RawBody       string    `json:"raw_body"`
	SenderAddress *string   `json:"sender_address,omitempty"`
	SentTimestamp time.Time `json:"sent_timestamp"`
	ReceivedAt    time.Time `json:"received_at"`
}

type InboundMessageReceived struct {
	Message InboundMessage `json:"message"`
}

func (InboundMessageReceived) Kind() EventKind { return EventInboundMessageReceived }

// RecoveryPassStarted marks the beginning of a boot-time recovery scan.
type RecoveryPassStarted struct {
	Timestamp time.Time `json:"timestamp"`
}

func (RecoveryPassStarted) Kind() EventKind { return EventRecoveryPassStarted }
