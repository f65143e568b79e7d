package http

import (
	"time"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/core_sms/protocol"
)

// SubmitMessageRequest is the body of POST /v1/messages.
type SubmitMessageRequest struct {
	RequestID   string `json:"request_id" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required,e164"`
	Body        string `json:"body"`
}

// CallbackRequest is the body of POST /v1/callbacks/{kind}. ResultCode is a
// pointer so that a missing code is told apart from zero.
type CallbackRequest struct {
	Token      string `json:"token" validate:"required"`
	ResultCode *int   `json:"result_code" validate:"required"`
}

// InboundRequest is the body of POST /v1/inbound.
type InboundRequest struct {
	Body          string    `json:"body"`
	SenderAddress *string   `json:"sender_address,omitempty"`
	SentTimestamp time.Time `json:"sent_timestamp"`
	ReceivedAt    time.Time `json:"received_at,omitempty"`
}

// InboundResponse carries the parsed transaction when a matched body is well formed.
type InboundResponse struct {
	Matched     bool                 `json:"matched"`
	Transaction *TransactionResponse `json:"transaction,omitempty"`
}

type TransactionResponse struct {
	TxID        string `json:"tx_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	AmountCents int64  `json:"amount_cents"`
	Timestamp   int64  `json:"timestamp"`
	Nonce       string `json:"nonce"`
	Memo        string `json:"memo,omitempty"`
	Signature   string `json:"signature"`
}

func toTransactionResponse(p *protocol.TransactionPayload) *TransactionResponse {
	return &TransactionResponse{
		TxID:        p.TxID,
		From:        p.From,
		To:          p.To,
		AmountCents: p.AmountCents,
		Timestamp:   p.Timestamp,
		Nonce:       p.Nonce,
		Memo:        p.Memo,
		Signature:   p.Signature,
	}
}

type SegmentResponse struct {
	Index            int    `json:"index"`
	Attempt          int    `json:"attempt"`
	SentOutcome      string `json:"sent_outcome"`
	DeliveredOutcome string `json:"delivered_outcome"`
}

type MessageResponse struct {
	RequestID        string            `json:"request_id"`
	PhoneNumber      string            `json:"phone_number"`
	State            domain.State      `json:"state"`
	Attempt          int               `json:"attempt"`
	Reason           string            `json:"reason,omitempty"`
	Segments         []SegmentResponse `json:"segments"`
	CreatedAt        time.Time         `json:"created_at"`
	LastTransitionAt time.Time         `json:"last_transition_at"`
}

func toMessageResponse(req *domain.SendRequest) MessageResponse {
	resp := MessageResponse{
		RequestID:        req.RequestID,
		PhoneNumber:      req.PhoneNumber,
		State:            req.State,
		Attempt:          req.Attempt,
		CreatedAt:        req.CreatedAt,
		LastTransitionAt: req.LastTransitionAt,
		Segments:         make([]SegmentResponse, 0, len(req.Segments)),
	}
	if req.LastReason != nil {
		resp.Reason = req.LastReason.Error()
	}
	for _, seg := range req.Segments {
		resp.Segments = append(resp.Segments, SegmentResponse{
			Index:            seg.Index,
			Attempt:          seg.Attempt,
			SentOutcome:      seg.SentOutcome.String(),
			DeliveredOutcome: seg.DeliveredOutcome.String(),
		})
	}
	return resp
}
