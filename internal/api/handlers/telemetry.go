// Task 8.5: Telemetry query endpoint over the recorded event trail.
package handlers

import (
	"net/http"

	"github.com/synapselabs/synapse/internal/domain/telemetry"
)

// TelemetryHandler serves the recorded bus traffic.
type TelemetryHandler struct {
	recorder *telemetry.Recorder
}

// NewTelemetryHandler creates a TelemetryHandler backed by the recorder.
func NewTelemetryHandler(recorder *telemetry.Recorder) *TelemetryHandler {
	return &TelemetryHandler{recorder: recorder}
}

// telemetryListResponse is the data section for GET /api/v1/telemetry/events.
type telemetryListResponse struct {
	Events []telemetry.EventRecord `json:"events"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// ListEvents handles GET /api/v1/telemetry/events?limit=&offset=.
// Events are returned newest first.
func (h *TelemetryHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	events, total, err := h.recorder.List(r.Context(), params.Limit, params.Offset)
	if err != nil {
		writeEnvelopeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeEnvelope(w, http.StatusOK, telemetryListResponse{
		Events: events,
		Total:  total,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}
