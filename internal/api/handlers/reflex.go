// Task 8.4: Reflex status endpoint.
package handlers

import (
	"net/http"

	"github.com/synapselabs/synapse/internal/domain/reflex"
)

// ReflexHandler exposes the reflex processor's counters.
type ReflexHandler struct {
	proc *reflex.Processor
}

// NewReflexHandler creates a ReflexHandler backed by the processor.
func NewReflexHandler(proc *reflex.Processor) *ReflexHandler {
	return &ReflexHandler{proc: proc}
}

// Status handles GET /api/v1/reflex/status: queue depth, pending batches,
// and dispatch counters.
func (h *ReflexHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, http.StatusOK, h.proc.Status())
}
