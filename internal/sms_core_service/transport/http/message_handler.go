package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/core_sms/protocol"
)

// MessageService is satisfied by *app.OutboundMachine.
type MessageService interface {
	Submit(ctx context.Context, phoneNumber, body, requestID string) error
	Get(ctx context.Context, requestID string) (*domain.SendRequest, error)
	OnSent(ctx context.Context, token string, resultCode int) error
	OnDelivered(ctx context.Context, token string, resultCode int) error
}

// InboundService is satisfied by *app.InboundProcessor.
type InboundService interface {
	OnInboundAssembled(ctx context.Context, rawBody string, senderAddress *string, sentTimestamp, receivedAt time.Time) bool
}

type MessageHandler struct {
	messages MessageService
	inbound  InboundService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewMessageHandler(messages MessageService, inbound InboundService, logger *slog.Logger, validate *validator.Validate) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		inbound:  inbound,
		logger:   logger.With("handler", "message"),
		validate: validate,
	}
}

func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/messages", h.SubmitMessage)
	r.Get("/v1/messages/{requestID}", h.GetMessage)
	r.Post("/v1/callbacks/{kind}", h.HandleCallback)
	r.Post("/v1/inbound", h.HandleInbound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *MessageHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("http_request_id", chi_middleware.GetReqID(ctx))

	var req SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.messages.Submit(ctx, req.PhoneNumber, req.Body, req.RequestID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"request_id": req.RequestID, "status": "accepted"})
	case errors.Is(err, domain.ErrDuplicateRequest):
		http.Error(w, "Request already submitted", http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidPhoneNumber), errors.Is(err, domain.ErrInvalidRequestID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.ErrorContext(ctx, "Submit failed", "request_id", req.RequestID, "error", err)
		http.Error(w, "Failed to record request", http.StatusInternalServerError)
	}
}

func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi.URLParam(r, "requestID")

	req, err := h.messages.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Request not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "Get failed", "request_id", requestID, "error", err)
		http.Error(w, "Failed to load request", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(req))
}

func (h *MessageHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var apply func(context.Context, string, int) error
	switch kind := chi.URLParam(r, "kind"); domain.TokenKind(kind) {
	case domain.TokenSent:
		apply = h.messages.OnSent
	case domain.TokenDelivered:
		apply = h.messages.OnDelivered
	default:
		http.Error(w, "Unknown callback kind", http.StatusNotFound)
		return
	}

	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := apply(ctx, req.Token, *req.ResultCode); err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "Callback failed", "error", err)
		http.Error(w, "Failed to record callback", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (h *MessageHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req InboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp := InboundResponse{Matched: h.inbound.OnInboundAssembled(ctx, req.Body, req.SenderAddress, req.SentTimestamp, req.ReceivedAt)}
	if resp.Matched {
		if tx, err := protocol.ParseTransaction(req.Body); err == nil {
			resp.Transaction = toTransactionResponse(tx)
		} else {
			h.logger.DebugContext(ctx, "Matched inbound body is not a well-formed transaction", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
