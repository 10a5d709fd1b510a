package sessionstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/escriba-labs/escriba/internal/config"
	"github.com/escriba-labs/escriba/internal/transcript"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeralIsNoOp(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{RetentionMode: "ephemeral"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.RecordSession(ctx, "s1", "base"); err != nil {
		t.Fatalf("record session: %v", err)
	}
	if _, found, err := st.GetTranscript(ctx, "s1"); err != nil || found {
		t.Fatalf("expected no transcript in ephemeral mode, found=%v err=%v", found, err)
	}
}

func TestSaveAndLoadTranscript(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "sessions.db"), RetentionMode: "session"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.RecordSession(ctx, "s1", "base"); err != nil {
		t.Fatalf("record session: %v", err)
	}
	tr := transcript.Transcript{
		FullText:            "hello\n\nworld",
		Segments:            []transcript.Segment{{Start: 0, End: 5, Text: "hello"}, {Start: 5, End: 12, Text: "world"}},
		Language:            "en",
		LanguageProbability: 0.97,
		Duration:            12,
		ProcessingTime:      1.4,
	}
	if err := st.SaveTranscript(ctx, "s1", tr); err != nil {
		t.Fatalf("save transcript: %v", err)
	}

	got, found, err := st.GetTranscript(ctx, "s1")
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	if !found {
		t.Fatal("expected transcript to be found")
	}
	if got.FullText != tr.FullText || len(got.Segments) != 2 || got.Language != "en" {
		t.Fatalf("unexpected transcript: %+v", got)
	}
	if got.Segments[1].End != 12 {
		t.Fatalf("unexpected segment round-trip: %+v", got.Segments)
	}
}

func TestRecordAndListEvents(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "sessions.db"), RetentionMode: "session"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.RecordSession(ctx, "s1", "tiny"); err != nil {
		t.Fatalf("record session: %v", err)
	}
	for _, typ := range []string{"staged", "transcribing", "done"} {
		if err := st.RecordEvent(ctx, Event{SessionID: "s1", Type: typ}); err != nil {
			t.Fatalf("record event %s: %v", typ, err)
		}
	}
	events, err := st.ListSessionEvents(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != "staged" || events[2].Type != "done" {
		t.Fatalf("unexpected event order: %+v", events)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "sessions.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	st.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := st.RecordSession(ctx, "old-session", "base"); err != nil {
		t.Fatalf("record session: %v", err)
	}
	if err := st.RecordEvent(ctx, Event{SessionID: "old-session", Type: "staged"}); err != nil {
		t.Fatalf("record event: %v", err)
	}

	st.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := st.RecordSession(ctx, "new-session", "base"); err != nil {
		t.Fatalf("record session: %v", err)
	}
	if err := st.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := st.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatal("expected old session events pruned")
	}
}
