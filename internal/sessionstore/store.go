// Package sessionstore keeps an optional SQLite record of sessions,
// their lifecycle events and finished transcripts. The default
// retention mode is ephemeral, which keeps everything in memory only.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/escriba-labs/escriba/internal/config"
	"github.com/escriba-labs/escriba/internal/transcript"
	_ "modernc.org/sqlite"
)

// Event is one recorded lifecycle entry for a session.
type Event struct {
	ID        int64
	SessionID string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Store wraps the SQLite-backed session record.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. In ephemeral mode all
// operations are no-ops.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("session store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("session store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    model TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    event_type TEXT,
    payload BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS transcripts (
    session_id TEXT PRIMARY KEY,
    language TEXT,
    language_probability REAL,
    duration REAL,
    processing_time REAL,
    full_text TEXT,
    segments BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_session_created ON events(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordSession ensures a session row exists.
func (s *Store) RecordSession(ctx context.Context, sessionID, model string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, model, created_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET model=excluded.model`,
		sessionID, model, s.clock().UTC())
	return err
}

// RecordEvent appends a lifecycle event for a session.
func (s *Store) RecordEvent(ctx context.Context, evt Event) error {
	if s.db == nil {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(session_id, event_type, payload, created_at)
		 VALUES(?, ?, ?, ?)`,
		evt.SessionID, evt.Type, evt.Payload, evt.CreatedAt)
	return err
}

// SaveTranscript persists a finished transcript for a session.
func (s *Store) SaveTranscript(ctx context.Context, sessionID string, tr transcript.Transcript) error {
	if s.db == nil {
		return nil
	}
	segments, err := json.Marshal(tr.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts(session_id, language, language_probability, duration, processing_time, full_text, segments, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   language=excluded.language,
		   language_probability=excluded.language_probability,
		   duration=excluded.duration,
		   processing_time=excluded.processing_time,
		   full_text=excluded.full_text,
		   segments=excluded.segments,
		   created_at=excluded.created_at`,
		sessionID, tr.Language, tr.LanguageProbability, tr.Duration, tr.ProcessingTime, tr.FullText, segments, s.clock().UTC())
	return err
}

// GetTranscript loads a persisted transcript, if one exists.
func (s *Store) GetTranscript(ctx context.Context, sessionID string) (transcript.Transcript, bool, error) {
	if s.db == nil {
		return transcript.Transcript{}, false, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT language, language_probability, duration, processing_time, full_text, segments
		 FROM transcripts WHERE session_id = ?`, sessionID)

	var tr transcript.Transcript
	var segments []byte
	err := row.Scan(&tr.Language, &tr.LanguageProbability, &tr.Duration, &tr.ProcessingTime, &tr.FullText, &segments)
	if err == sql.ErrNoRows {
		return transcript.Transcript{}, false, nil
	}
	if err != nil {
		return transcript.Transcript{}, false, err
	}
	if err := json.Unmarshal(segments, &tr.Segments); err != nil {
		return transcript.Transcript{}, false, fmt.Errorf("unmarshal segments: %w", err)
	}
	return tr, true, nil
}

// ListSessionEvents retrieves up to limit events for a session ordered
// ascending by time.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, payload, created_at
		 FROM events WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Payload, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
