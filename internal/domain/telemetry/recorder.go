// Package telemetry records every bus event into SQLite for later inspection.
// Task 6.2: append-only event trail behind the /api/v1/telemetry endpoints.
// All operations are append-only; no updates or deletes are supported.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/pkg/uuid"
)

// bufferSize bounds the queue between the bus handler and the writer
// goroutine. Bus delivery is synchronous, so the handler must never block:
// when the buffer is full the event is dropped and counted.
const bufferSize = 256

// EventRecord is one persisted bus event as returned by List.
type EventRecord struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Kind      string          `json:"kind"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"createdAt"`
}

// Recorder subscribes to all bus events and writes them to SQLite from a
// single background goroutine.
type Recorder struct {
	db  *sql.DB
	bus *eventbus.Bus
	log zerolog.Logger

	mu      sync.Mutex
	subID   eventbus.SubscriptionID
	running bool

	// sendMu serializes handler sends against the channel close in Stop:
	// a publish already in flight may invoke the handler after Off returns.
	sendMu  sync.RWMutex
	closed  bool
	events  chan eventbus.Event
	done    chan struct{}
	dropped atomic.Uint64
}

// NewRecorder wires a recorder to the bus and database. Call Start to begin
// recording.
func NewRecorder(db *sql.DB, bus *eventbus.Bus, log zerolog.Logger) *Recorder {
	return &Recorder{
		db:  db,
		bus: bus,
		log: log.With().Str("component", "telemetry").Logger(),
	}
}

// Start subscribes to the bus and launches the writer goroutine.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.closed = false
	r.events = make(chan eventbus.Event, bufferSize)
	r.done = make(chan struct{})

	r.subID = r.bus.ObserveAll(func(evt eventbus.Event) {
		r.sendMu.RLock()
		defer r.sendMu.RUnlock()
		if r.closed {
			return
		}
		select {
		case r.events <- evt:
		default:
			r.dropped.Add(1)
		}
	})

	go r.writeLoop(ctx)
}

// Stop unsubscribes from the bus and waits for queued events to be flushed.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.bus.Off(r.subID)
	r.sendMu.Lock()
	r.closed = true
	close(r.events)
	r.sendMu.Unlock()
	done := r.done
	r.mu.Unlock()

	<-done
}

// Dropped reports how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) writeLoop(ctx context.Context) {
	defer close(r.done)
	for evt := range r.events {
		if err := r.insert(ctx, evt); err != nil {
			r.log.Error().Err(err).
				Str("kind", string(evt.Kind)).
				Msg("failed to record event")
		}
	}
}

func (r *Recorder) insert(ctx context.Context, evt eventbus.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		payload = []byte("{}")
	}

	// request_id stays NULL for kinds that carry no correlation id.
	var requestID sql.NullString
	if c, ok := evt.Payload.(eventbus.Correlatable); ok && c.CorrelationID() != "" {
		requestID = sql.NullString{String: c.CorrelationID(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO telemetry_event (id, source, kind, request_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewV7().String(),
		evt.Source,
		string(evt.Kind),
		requestID,
		string(payload),
		time.UnixMilli(evt.Timestamp).UTC().Format(time.RFC3339Nano),
	)
	return err
}

// List returns the most recent events, newest first, plus the total row count
// for pagination.
func (r *Recorder) List(ctx context.Context, limit, offset int) ([]EventRecord, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM telemetry_event").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, kind, request_id, payload, created_at
		FROM telemetry_event
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]EventRecord, 0, limit)
	for rows.Next() {
		var rec EventRecord
		var requestID sql.NullString
		var payload string
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Kind, &requestID, &payload, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		rec.RequestID = requestID.String
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	return records, total, rows.Err()
}
