// Task 8.1: Uniform response envelope for every API endpoint.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/synapselabs/synapse/internal/version"
)

// Envelope is the uniform response body: exactly one of Data or Error is set.
// Timestamp is unix milliseconds, matching the bus event envelope.
type Envelope struct {
	OK        bool   `json:"ok"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

// writeEnvelope writes a success envelope with the given status and data.
func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{ //nolint:errcheck
		OK:        true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Version:   version.Version,
	})
}

// writeEnvelopeError writes a failure envelope with the given status and message.
func writeEnvelopeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{ //nolint:errcheck
		OK:        false,
		Error:     message,
		Timestamp: time.Now().UnixMilli(),
		Version:   version.Version,
	})
}
