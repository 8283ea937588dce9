// Task 8.2: Chat endpoint — HTTP front of the correlation gateway.
// Translates POST /api/v1/chat into a correlated chat:request and maps the
// settlement back to HTTP: data → 200, downstream error → its status,
// timeout → 504.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/internal/infra/gateway"
)

// ChatHandler handles POST /api/v1/chat.
type ChatHandler struct {
	gw *gateway.Gateway
}

// NewChatHandler creates a ChatHandler backed by the provided gateway.
func NewChatHandler(gw *gateway.Gateway) *ChatHandler {
	return &ChatHandler{gw: gw}
}

// ChatRequest is the request body for POST /api/v1/chat.
// RequestID is optional; the gateway generates one when absent.
type ChatRequest struct {
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

// Chat handles POST /api/v1/chat.
//
// Response codes:
//   - 200 OK: responder settled the request with data
//   - 400 Bad Request: invalid JSON or empty message
//   - 409 Conflict: the supplied requestId is already in flight
//   - 502 Bad Gateway (or the responder's status): downstream error, verbatim
//   - 504 Gateway Timeout: no response within the correlation window
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelopeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload := eventbus.ChatRequestPayload{
		RequestID: req.RequestID,
		Message:   req.Message,
		Context:   req.Context,
	}
	if err := payload.Validate(); err != nil {
		writeEnvelopeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.gw.Request(r.Context(), eventbus.KindChatRequest, payload)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrTimeout):
			writeEnvelopeError(w, http.StatusGatewayTimeout, gateway.TimeoutMessage)
		case errors.Is(err, gateway.ErrDuplicateRequest):
			writeEnvelopeError(w, http.StatusConflict, "request id already in flight")
		case errors.Is(err, r.Context().Err()):
			// Client went away; the status is never seen but chi's logger records it.
			writeEnvelopeError(w, http.StatusServiceUnavailable, "request cancelled")
		default:
			writeEnvelopeError(w, http.StatusInternalServerError, "chat request failed")
		}
		return
	}

	if resp.Err != nil {
		status := resp.Err.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		writeEnvelopeError(w, status, resp.Err.Message)
		return
	}

	writeEnvelope(w, http.StatusOK, resp.Data)
}
