// Task 9.1: Application assembly and HTTP server lifecycle.
// New wires the full stack — storage, bus, gateway, realtime router, reflex,
// chat motor, telemetry — and Start/Shutdown manage it in dependency order.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/api"
	"github.com/synapselabs/synapse/internal/domain/chat"
	"github.com/synapselabs/synapse/internal/domain/reflex"
	"github.com/synapselabs/synapse/internal/domain/telemetry"
	"github.com/synapselabs/synapse/internal/infra/clock"
	"github.com/synapselabs/synapse/internal/infra/config"
	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/internal/infra/gateway"
	"github.com/synapselabs/synapse/internal/infra/llm"
	"github.com/synapselabs/synapse/internal/infra/sqlite"
	"github.com/synapselabs/synapse/internal/realtime"
)

const (
	readTimeout = 15 * time.Second
	idleTimeout = 60 * time.Second
)

// broadcastKinds are the ambient events relayed to every connected realtime
// client. core:response stays out: correlated responses are routed, never
// broadcast.
var broadcastKinds = []eventbus.Kind{
	eventbus.KindTaskFlushed,
	eventbus.KindTaskDispatched,
	eventbus.KindProviderStatus,
}

// Server wraps the HTTP server and the application components it serves.
type Server struct {
	cfg config.Config
	log zerolog.Logger

	db       *sql.DB
	bus      *eventbus.Bus
	gateway  *gateway.Gateway
	realtime *realtime.Router
	reflex   *reflex.Processor
	watcher  *reflex.Watcher
	motor    *chat.Motor
	recorder *telemetry.Recorder

	http *http.Server
}

// New assembles the application from configuration. The returned server owns
// the database handle and every component; Shutdown releases them.
func New(cfg config.Config, log zerolog.Logger) (*Server, error) {
	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: open database: %w", err)
	}
	if err := sqlite.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: migrate: %w", err)
	}

	bus := eventbus.New(log)
	// A non-positive gateway default means instant timeout; a misconfigured
	// REQUEST_TIMEOUT_MS of 0 should not fail every request.
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = gateway.DefaultTimeout
	}
	gw := gateway.New(bus, clock.NewSystem(), log, requestTimeout)

	rt, err := realtime.NewRouter(bus, log, broadcastKinds)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("server: realtime router: %w", err)
	}

	ollama := llm.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaChatModel)
	llmRouter := llm.NewRouter(map[string]llm.Provider{"ollama": ollama}, cfg.LLMProvider)
	motor := chat.NewMotor(bus, llmRouter, log)

	proc := reflex.New(bus, clock.NewSystem(), log, reflexExecutor(cfg, log), reflex.Config{
		DebounceInterval: cfg.DebounceInterval,
		DrainInterval:    cfg.DrainInterval,
		MaxQueueSize:     cfg.MaxQueueSize,
		DecayFactor:      reflex.DefaultConfig().DecayFactor,
		MinScore:         reflex.DefaultConfig().MinScore,
	}, reflex.DefaultClassifiers()...)

	var watcher *reflex.Watcher
	if cfg.WatchDir != "" {
		watcher, err = reflex.NewWatcher(bus, log, cfg.WatchDir)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("server: watcher: %w", err)
		}
	}

	recorder := telemetry.NewRecorder(db, bus, log)

	router := api.NewRouter(api.Deps{
		DB:        db,
		Log:       log,
		Gateway:   gw,
		Realtime:  rt,
		Reflex:    proc,
		Telemetry: recorder,
	})

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     router,
		ReadTimeout: readTimeout,
		// WriteTimeout stays 0: the SSE stream endpoint holds its response
		// open indefinitely.
		IdleTimeout: idleTimeout,
	}

	return &Server{
		cfg:      cfg,
		log:      log.With().Str("component", "server").Logger(),
		db:       db,
		bus:      bus,
		gateway:  gw,
		realtime: rt,
		reflex:   proc,
		watcher:  watcher,
		motor:    motor,
		recorder: recorder,
		http:     httpServer,
	}, nil
}

// reflexExecutor picks the dispatch action: git add/commit when a repo is
// configured, otherwise a logging no-op so the pipeline still drains.
func reflexExecutor(cfg config.Config, log zerolog.Logger) reflex.Executor {
	if cfg.GitRepoDir != "" {
		return reflex.NewGitExecutor(cfg.GitRepoDir, log)
	}
	noop := log.With().Str("component", "reflex-noop").Logger()
	return reflex.ExecutorFunc(func(_ context.Context, t *reflex.Task) error {
		noop.Info().Str("key", t.Key).Int("score", t.Score).Msg("dispatch (no git repo configured)")
		return nil
	})
}

// Start launches the background components and blocks serving HTTP until the
// listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.recorder.Start(ctx)
	s.motor.Start(ctx)
	s.reflex.Start(ctx)
	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			return fmt.Errorf("server: start watcher: %w", err)
		}
	}

	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	return s.http.ListenAndServe()
}

// Shutdown stops the HTTP listener, then the event producers, and flushes
// telemetry last so final events are recorded.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down")

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if s.watcher != nil {
		s.watcher.Close() //nolint:errcheck
	}
	s.reflex.Stop()
	s.motor.Stop()
	s.gateway.Close()
	s.recorder.Stop()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("database close error: %w", err)
	}

	s.log.Info().Msg("shutdown complete")
	return nil
}
