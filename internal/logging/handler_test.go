package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/olegiv/desa-go/internal/store"
	"github.com/olegiv/desa-go/internal/testutil"
)

// discardHandler is a slog.Handler that discards all logs.
type discardHandler struct{}

func (h discardHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h discardHandler) WithGroup(string) slog.Handler             { return h }

func TestEventLogHandler_PersistsWarnAndAbove(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	q := store.New(db)
	logger := slog.New(NewEventLogHandler(discardHandler{}, q))

	logger.Info("ignored info")
	logger.Warn("rollup failed for date", "date", "2025-01-01")
	logger.Error("database unreachable", "category", CategorySystem, "error", "dial tcp")

	events, err := q.ListEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	byMessage := map[string]store.Event{}
	for _, e := range events {
		byMessage[e.Message] = e
	}

	warn := byMessage["rollup failed for date"]
	if warn.Level != LevelWarning || warn.Category != CategoryRollup {
		t.Errorf("warn event = %+v", warn)
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(warn.Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if meta["date"] != "2025-01-01" {
		t.Errorf("metadata = %v", meta)
	}

	errEvent := byMessage["database unreachable"]
	if errEvent.Level != LevelError || errEvent.Category != CategorySystem {
		t.Errorf("error event = %+v", errEvent)
	}
}

func TestEventLogHandler_WithAttrsCarriedIntoMetadata(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	q := store.New(db)
	logger := slog.New(NewEventLogHandler(discardHandler{}, q)).With("component", "tracker", "category", CategoryIngest)
	logger.Warn("something odd", "session_id", "abc")

	events, err := q.ListEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Category != CategoryIngest {
		t.Errorf("Category = %q, want %q", events[0].Category, CategoryIngest)
	}
	var meta map[string]string
	_ = json.Unmarshal([]byte(events[0].Metadata), &meta)
	if meta["component"] != "tracker" || meta["session_id"] != "abc" {
		t.Errorf("metadata = %v", meta)
	}
}

func TestEventLogHandler_CustomLevel(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	q := store.New(db)
	logger := slog.New(NewEventLogHandlerWithLevel(discardHandler{}, q, slog.LevelError))
	logger.Warn("below threshold")

	events, _ := q.ListEvents(context.Background(), 10)
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"failed to start session", CategoryIngest},
		{"failed to record page view", CategoryIngest},
		{"rollup job failed", CategoryRollup},
		{"statistics query timed out", CategoryQuery},
		{"redis cache unavailable", CategoryCache},
		{"GeoIP reload failed", CategoryGeoIP},
		{"server shutting down", CategorySystem},
	}

	for _, tt := range tests {
		if got := inferCategory(tt.msg); got != tt.want {
			t.Errorf("inferCategory(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
