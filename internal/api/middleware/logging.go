// Task 8.8: zerolog request logging middleware.
// One structured line per request: method, path, status, duration.
package middleware

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/api/ctxkeys"
)

// RequestLogger logs every request after it completes. Expected order in
// router: RequestID -> RealIP -> RequestLogger -> Recoverer -> handlers, so
// panics recovered downstream still produce a log line with their 500.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			evt := log.Info()
			if recorder.statusCode >= http.StatusInternalServerError {
				evt = log.Error()
			}

			if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
				evt = evt.Str("request_id", reqID)
			}
			if userID, ok := getStringContext(r.Context(), ctxkeys.UserID); ok {
				evt = evt.Str("user_id", userID)
			}

			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", recorder.statusCode).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// statusRecorder captures the response status for the log line.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Flush forwards to the wrapped writer so SSE streaming keeps working behind
// the logger.
func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func getStringContext(ctx context.Context, key ctxkeys.Key) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
