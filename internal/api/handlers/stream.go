// Task 8.3: Server-sent events transport for the real-time protocol.
// GET /api/v1/stream holds the connection open and relays router frames;
// POST /api/v1/stream/{connectionID}/request feeds client messages back in.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/internal/realtime"
)

// keepaliveInterval spaces SSE comment lines so idle connections survive
// proxies that reap quiet upstreams.
const keepaliveInterval = 15 * time.Second

// StreamHandler serves the real-time SSE channel.
type StreamHandler struct {
	router *realtime.Router
}

// NewStreamHandler creates a StreamHandler backed by the connection router.
func NewStreamHandler(router *realtime.Router) *StreamHandler {
	return &StreamHandler{router: router}
}

// StreamRequest is the body for POST /api/v1/stream/{connectionID}/request.
type StreamRequest struct {
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

// Stream handles GET /api/v1/stream. It registers a connection, emits the
// "connected" frame with the assigned id, then relays frames until the
// client disconnects.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeEnvelopeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	conn := h.router.Register()
	defer h.router.Disconnect(conn.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering (nginx) so frames reach the client immediately.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeFrame(w, realtime.Frame{
		Type:    realtime.FrameConnected,
		Payload: map[string]string{"connectionId": conn.ID()},
	})
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case frame, open := <-conn.Frames():
			if !open {
				return
			}
			writeFrame(w, frame)
			flusher.Flush()
		}
	}
}

// Request handles POST /api/v1/stream/{connectionID}/request: binds the
// request id to the connection and publishes the domain event. The response
// arrives later as a "response" frame on the stream, so the ack is a 202.
func (h *StreamHandler) Request(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "connectionID")

	var req StreamRequest
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

	rid, err := h.router.HandleClientRequest(connID, payload)
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrUnknownConnection):
			writeEnvelopeError(w, http.StatusNotFound, "unknown connection")
		case errors.Is(err, realtime.ErrDuplicateBinding):
			writeEnvelopeError(w, http.StatusConflict, "request id already bound")
		default:
			writeEnvelopeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeEnvelope(w, http.StatusAccepted, map[string]string{"requestId": rid})
}

// writeFrame emits one SSE event: the frame type as the event name, the
// frame JSON as the data line.
func writeFrame(w http.ResponseWriter, f realtime.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Type, data)
}
