// Traces: FR-090
// Task 8.9.1: wiring tests for NewRouter — routes registered, auth enforced,
// and the chat endpoint round-trips through the gateway and bus.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/domain/reflex"
	"github.com/synapselabs/synapse/internal/domain/telemetry"
	"github.com/synapselabs/synapse/internal/infra/clock"
	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/internal/infra/gateway"
	"github.com/synapselabs/synapse/internal/infra/sqlite"
	"github.com/synapselabs/synapse/internal/realtime"
)

func TestMain(m *testing.M) {
	// AuthMiddleware reads JWT_SECRET — must be set for protected routes to parse tokens.
	os.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!") //nolint:errcheck
	os.Exit(m.Run())
}

// testEnv bundles the wired router plus the bus so tests can attach responders.
type testEnv struct {
	router *chi.Mux
	bus    *eventbus.Bus
	db     *sql.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "api.sqlite"))
	if err != nil {
		t.Fatalf("sqlite.NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}

	bus := eventbus.New(zerolog.Nop())
	gw := gateway.New(bus, clock.NewSystem(), zerolog.Nop(), gateway.DefaultTimeout)
	t.Cleanup(gw.Close)

	rt, err := realtime.NewRouter(bus, zerolog.Nop(), []eventbus.Kind{eventbus.KindTaskFlushed})
	if err != nil {
		t.Fatalf("realtime.NewRouter: %v", err)
	}

	proc := reflex.New(bus, clock.NewManual(time.Unix(0, 0)), zerolog.Nop(),
		reflex.ExecutorFunc(func(_ context.Context, _ *reflex.Task) error { return nil }),
		reflex.DefaultConfig())

	rec := telemetry.NewRecorder(db, bus, zerolog.Nop())

	router := NewRouter(Deps{
		DB:        db,
		Log:       zerolog.Nop(),
		Gateway:   gw,
		Realtime:  rt,
		Reflex:    proc,
		Telemetry: rec,
	})
	return &testEnv{router: router, bus: bus, db: db}
}

// registerAndLogin creates a user through the public endpoints and returns a
// valid bearer token.
func registerAndLogin(t *testing.T, env *testEnv) string {
	t.Helper()

	body := `{"email":"api@test.com","password":"Password1!","displayName":"API","workspaceName":"Test WS"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var envelope struct {
		OK   bool `json:"ok"`
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("register: decode: %v", err)
	}
	if envelope.Data.Token == "" {
		t.Fatal("register: empty token")
	}
	return envelope.Data.Token
}

// TestNewRouter_HealthEndpoint verifies that NewRouter registers the /health route.
func TestNewRouter_HealthEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("expected body to contain 'ok', got %q", w.Body.String())
	}
}

// TestNewRouter_ProtectedRoutesRequireJWT verifies /api/v1/* is 401 without a token.
func TestNewRouter_ProtectedRoutesRequireJWT(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	for _, route := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/chat"},
		{http.MethodGet, "/api/v1/stream"},
		{http.MethodGet, "/api/v1/reflex/status"},
		{http.MethodGet, "/api/v1/telemetry/events"},
	} {
		req := httptest.NewRequest(route.method, route.path, strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 without JWT, got %d", route.method, route.path, w.Code)
		}
	}
}

// TestNewRouter_ChatRoundTrip drives a chat request through auth, the
// gateway, a bus responder, and back out as a 200 envelope.
func TestNewRouter_ChatRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := registerAndLogin(t, env)

	// Stand-in responder: echoes every chat request back as a response.
	env.bus.On(eventbus.KindChatRequest, func(evt eventbus.Event) {
		req := evt.Payload.(eventbus.ChatRequestPayload)
		env.bus.Publish("test-responder", eventbus.KindResponse, eventbus.ResponsePayload{ //nolint:errcheck
			RequestID: req.RequestID,
			Data:      map[string]any{"reply": "echo: " + req.Message},
		})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"message":"ping"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var envelope struct {
		OK   bool           `json:"ok"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.OK {
		t.Error("envelope.ok = false; want true")
	}
	if envelope.Data["reply"] != "echo: ping" {
		t.Errorf("reply = %v; want %q", envelope.Data["reply"], "echo: ping")
	}
}

// TestNewRouter_ReflexStatus verifies the status endpoint returns queue counters.
func TestNewRouter_ReflexStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := registerAndLogin(t, env)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reflex/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "queueDepth") {
		t.Errorf("expected queueDepth in body, got %q", w.Body.String())
	}
}

// TestNewRouter_TelemetryEvents verifies the telemetry listing endpoint.
func TestNewRouter_TelemetryEvents(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := registerAndLogin(t, env)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/events?limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"total"`) {
		t.Errorf("expected total in body, got %q", w.Body.String())
	}
}
