// Traces: FR-061
// Task 6.2.2: tests for the telemetry recorder (real SQLite, no mocks).
package telemetry_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/domain/telemetry"
	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/internal/infra/sqlite"
)

func newFixture(t *testing.T) (*telemetry.Recorder, *eventbus.Bus, *sql.DB) {
	t.Helper()

	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "telemetry.sqlite"))
	if err != nil {
		t.Fatalf("sqlite.NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	bus := eventbus.New(zerolog.Nop())
	rec := telemetry.NewRecorder(db, bus, zerolog.Nop())
	return rec, bus, db
}

// waitForRows polls until the telemetry table holds want rows or the deadline
// passes. The writer goroutine is asynchronous, so tests cannot assert
// immediately after Publish.
func waitForRows(t *testing.T, db *sql.DB, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM telemetry_event").Scan(&count); err != nil {
			t.Fatalf("count query error = %v", err)
		}
		if count >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("telemetry_event did not reach %d rows in time", want)
}

// TestRecorder_PersistsPublishedEvents verifies that a published event lands
// in the telemetry table with its source, kind, and correlation id.
func TestRecorder_PersistsPublishedEvents(t *testing.T) {
	t.Parallel()

	rec, bus, db := newFixture(t)
	rec.Start(context.Background())
	defer rec.Stop()

	err := bus.Publish("api", eventbus.KindChatRequest, eventbus.ChatRequestPayload{
		RequestID: "req-telemetry-1",
		Message:   "hello",
	})
	if err != nil {
		t.Fatalf("Publish error = %v", err)
	}

	waitForRows(t, db, 1)

	var source, kind, requestID string
	row := db.QueryRow("SELECT source, kind, request_id FROM telemetry_event LIMIT 1")
	if err := row.Scan(&source, &kind, &requestID); err != nil {
		t.Fatalf("scan error = %v", err)
	}
	if source != "api" {
		t.Errorf("source = %q; want %q", source, "api")
	}
	if kind != string(eventbus.KindChatRequest) {
		t.Errorf("kind = %q; want %q", kind, eventbus.KindChatRequest)
	}
	if requestID != "req-telemetry-1" {
		t.Errorf("request_id = %q; want %q", requestID, "req-telemetry-1")
	}
}

// TestRecorder_NullRequestID verifies that uncorrelated events store NULL in
// request_id rather than an empty string.
func TestRecorder_NullRequestID(t *testing.T) {
	t.Parallel()

	rec, bus, db := newFixture(t)
	rec.Start(context.Background())
	defer rec.Stop()

	err := bus.Publish("watcher", eventbus.KindFileChanged, eventbus.FileChangedPayload{
		Path: "main.go",
		Op:   "update",
	})
	if err != nil {
		t.Fatalf("Publish error = %v", err)
	}

	waitForRows(t, db, 1)

	var requestID sql.NullString
	row := db.QueryRow("SELECT request_id FROM telemetry_event LIMIT 1")
	if err := row.Scan(&requestID); err != nil {
		t.Fatalf("scan error = %v", err)
	}
	if requestID.Valid {
		t.Errorf("request_id = %q; want NULL", requestID.String)
	}
}

// TestRecorder_ListNewestFirst verifies pagination ordering and totals.
func TestRecorder_ListNewestFirst(t *testing.T) {
	t.Parallel()

	rec, bus, db := newFixture(t)
	rec.Start(context.Background())

	for i := 0; i < 3; i++ {
		err := bus.Publish("watcher", eventbus.KindFileChanged, eventbus.FileChangedPayload{
			Path: "file.go",
			Op:   "update",
		})
		if err != nil {
			t.Fatalf("Publish error = %v", err)
		}
	}
	waitForRows(t, db, 3)
	rec.Stop()

	records, total, err := rec.List(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("List error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d; want 3", total)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d; want 2 (limit)", len(records))
	}
	if records[0].CreatedAt < records[1].CreatedAt {
		t.Errorf("records not newest-first: %q before %q", records[0].CreatedAt, records[1].CreatedAt)
	}
}

// TestRecorder_StopFlushesQueue verifies Stop drains buffered events before
// returning, so nothing published before Stop is lost.
func TestRecorder_StopFlushesQueue(t *testing.T) {
	t.Parallel()

	rec, bus, db := newFixture(t)
	rec.Start(context.Background())

	for i := 0; i < 10; i++ {
		err := bus.Publish("reflex", eventbus.KindTaskFlushed, eventbus.TaskFlushedPayload{
			Key:        "main.go",
			Score:      5,
			QueueDepth: 1,
		})
		if err != nil {
			t.Fatalf("Publish error = %v", err)
		}
	}

	rec.Stop()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM telemetry_event").Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != 10 {
		t.Errorf("count = %d; want 10 after Stop flush", count)
	}
}

// TestRecorder_StopUnsubscribes verifies events published after Stop are not
// recorded and do not panic.
func TestRecorder_StopUnsubscribes(t *testing.T) {
	t.Parallel()

	rec, bus, db := newFixture(t)
	rec.Start(context.Background())
	rec.Stop()

	err := bus.Publish("watcher", eventbus.KindFileChanged, eventbus.FileChangedPayload{
		Path: "ignored.go",
		Op:   "update",
	})
	if err != nil {
		t.Fatalf("Publish error = %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM telemetry_event").Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d; want 0 after Stop", count)
	}
}
