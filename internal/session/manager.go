package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/escriba-labs/escriba/internal/audio"
	"github.com/escriba-labs/escriba/internal/bus"
	"github.com/escriba-labs/escriba/internal/config"
	"github.com/escriba-labs/escriba/internal/protocol"
	"github.com/escriba-labs/escriba/internal/sessionstore"
	"github.com/escriba-labs/escriba/internal/transcribe"
	"github.com/escriba-labs/escriba/internal/transcript"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Manager owns the session registry and drives the workflow against
// the external transcription collaborator.
type Manager struct {
	cfg         config.SessionConfig
	tcfg        config.TranscriberConfig
	transcriber transcribe.Transcriber
	log         *slog.Logger
	bus         *bus.Client
	store       *sessionstore.Store

	mu       sync.Mutex
	sessions map[string]*Session

	runsTotal         metric.Int64Counter
	processingSeconds metric.Float64Histogram
}

func NewManager(cfg config.SessionConfig, tcfg config.TranscriberConfig, tr transcribe.Transcriber, busClient *bus.Client, store *sessionstore.Store, log *slog.Logger) *Manager {
	meter := otel.Meter("github.com/escriba-labs/escriba/internal/session")
	runsTotal, _ := meter.Int64Counter("escriba.runs.total",
		metric.WithDescription("Transcription runs by status"))
	processingSeconds, _ := meter.Float64Histogram("escriba.processing.seconds",
		metric.WithDescription("Wall-clock seconds spent in the external transcriber"))

	return &Manager{
		cfg:               cfg,
		tcfg:              tcfg,
		transcriber:       tr,
		log:               log,
		bus:               busClient,
		store:             store,
		sessions:          make(map[string]*Session),
		runsTotal:         runsTotal,
		processingSeconds: processingSeconds,
	}
}

// Create registers a new session. An empty model falls back to the
// configured default; unknown model tiers are rejected.
func (m *Manager) Create(ctx context.Context, model string) (*Session, error) {
	if model == "" {
		model = m.tcfg.Model
	}
	if !transcribe.ValidModel(model) {
		return nil, fmt.Errorf("unknown model tier %q", model)
	}

	s := newSession(uuid.NewString(), model, m.cfg.ProgressCap)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if err := m.store.RecordSession(ctx, s.ID, model); err != nil {
		m.log.Warn("failed to record session", slog.String("session", s.ID), slog.String("error", err.Error()))
	}
	return s, nil
}

// Get looks up a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List snapshots every live session.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Delete discards a session and its staged audio. A session with a run
// in flight cannot be deleted; the run must finish first.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	if err := s.discard(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.recordEvent(ctx, id, "deleted", nil)
	return nil
}

// StageUpload stages an uploaded clip for the session.
func (m *Manager) StageUpload(ctx context.Context, s *Session, filename, contentType string, r io.Reader) error {
	staged, err := audio.StageUpload(m.cfg.TempDir, filename, contentType, r, m.cfg.MaxUploadBytes)
	if err != nil {
		return err
	}
	if err := s.StageAudio(staged); err != nil {
		staged.Remove()
		return err
	}
	m.recordEvent(ctx, s.ID, "staged", map[string]any{"filename": filename, "mime": staged.MimeType, "size": staged.Size})
	return nil
}

// StageCapture stages raw microphone PCM for the session.
func (m *Manager) StageCapture(ctx context.Context, s *Session, pcm []byte) error {
	staged, err := audio.StagePCM(m.cfg.TempDir, pcm, m.cfg.SampleRate, m.cfg.Channels)
	if err != nil {
		return err
	}
	if err := s.StageAudio(staged); err != nil {
		staged.Remove()
		return err
	}
	m.recordEvent(ctx, s.ID, "staged", map[string]any{"filename": staged.Filename, "mime": staged.MimeType, "size": staged.Size})
	return nil
}

// Transcribe runs the external collaborator against the session's
// staged audio. The call blocks until the run finishes. The staged temp
// file is removed on every exit path, success or failure.
func (m *Manager) Transcribe(ctx context.Context, s *Session) (transcript.Transcript, error) {
	staged, err := s.begin()
	if err != nil {
		return transcript.Transcript{}, err
	}
	defer func() {
		if rmErr := staged.Remove(); rmErr != nil {
			m.log.Warn("failed to remove staged audio", slog.String("session", s.ID), slog.String("error", rmErr.Error()))
		}
	}()

	m.recordEvent(ctx, s.ID, "transcribing", map[string]any{"model": s.Model})
	m.log.Info("transcription started",
		slog.String("session", s.ID),
		slog.String("model", s.Model),
		slog.String("file", staged.Filename))

	if m.tcfg.TimeoutS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.tcfg.TimeoutS)*time.Second)
		defer cancel()
	}

	hint, probeErr := audio.ProbeWAVDuration(staged.Path)
	if probeErr != nil {
		m.log.Debug("wav duration probe failed", slog.String("session", s.ID), slog.String("error", probeErr.Error()))
	}

	opts := transcribe.OptionsFromConfig(m.tcfg)
	opts.Model = s.Model

	sink := &runSink{
		sessionID:    s.ID,
		progress:     s.progress,
		bus:          m.bus,
		durationHint: hint,
	}

	start := time.Now()
	runErr := m.transcriber.Transcribe(ctx, staged.Path, opts, sink)
	elapsed := time.Since(start).Seconds()

	var tr transcript.Transcript
	if runErr == nil {
		tr, runErr = transcript.Build(sink.segments, sink.info.Language, sink.info.LanguageProbability, sink.duration(), elapsed)
	}
	if runErr != nil {
		failure := &Failure{Message: runErr.Error(), At: time.Now().UTC()}
		s.fail(failure)
		m.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		m.bus.PublishJSON(protocol.SubjectFailedPrefix+"."+s.ID, protocol.RunFailed{
			SessionID: s.ID,
			Error:     failure.Message,
			Timestamp: failure.At,
		})
		m.recordEvent(ctx, s.ID, "failed", map[string]any{"error": failure.Message})
		m.log.Warn("transcription failed", slog.String("session", s.ID), slog.String("error", failure.Message))
		return transcript.Transcript{}, failure
	}

	s.complete(tr)
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	m.processingSeconds.Record(ctx, elapsed, metric.WithAttributes(attribute.String("model", s.Model)))
	m.bus.PublishJSON(protocol.SubjectDonePrefix+"."+s.ID, protocol.RunCompleted{
		SessionID:      s.ID,
		Language:       tr.Language,
		Duration:       tr.Duration,
		ProcessingTime: tr.ProcessingTime,
		SegmentCount:   len(tr.Segments),
		Timestamp:      time.Now().UTC(),
	})
	if err := m.store.SaveTranscript(ctx, s.ID, tr); err != nil {
		m.log.Warn("failed to persist transcript", slog.String("session", s.ID), slog.String("error", err.Error()))
	}
	m.recordEvent(ctx, s.ID, "done", map[string]any{"segments": len(tr.Segments), "language": tr.Language})
	m.log.Info("transcription finished",
		slog.String("session", s.ID),
		slog.String("language", tr.Language),
		slog.Float64("duration_s", tr.Duration),
		slog.Float64("processing_s", tr.ProcessingTime),
		slog.Int("segments", len(tr.Segments)))
	return tr, nil
}

// History loads the persisted lifecycle events and transcript for a
// session from the store. With ephemeral retention both come back
// empty. The session does not need to be live: persistent retention
// outlives deletion.
func (m *Manager) History(ctx context.Context, id string, limit int) ([]sessionstore.Event, *transcript.Transcript, error) {
	events, err := m.store.ListSessionEvents(ctx, id, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list session events: %w", err)
	}
	tr, ok, err := m.store.GetTranscript(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load transcript: %w", err)
	}
	if !ok {
		return events, nil, nil
	}
	return events, &tr, nil
}

// Close discards all live sessions so no staged temp files survive
// shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.discard(); err != nil {
			m.log.Warn("failed to discard session", slog.String("session", s.ID), slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) recordEvent(ctx context.Context, sessionID, eventType string, payload map[string]any) {
	var data []byte
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	if err := m.store.RecordEvent(ctx, sessionstore.Event{SessionID: sessionID, Type: eventType, Payload: data}); err != nil {
		m.log.Warn("failed to record event",
			slog.String("session", sessionID),
			slog.String("event", eventType),
			slog.String("error", err.Error()))
	}
}

// runSink collects the collaborator's stream, advances the progress
// estimate and relays events onto the bus.
type runSink struct {
	sessionID    string
	progress     *Progress
	bus          *bus.Client
	durationHint float64

	info     transcribe.Info
	segments []transcript.Segment
}

func (r *runSink) Info(info transcribe.Info) {
	r.info = info
	if d := r.duration(); d > 0 {
		r.progress.SetTotal(d)
	}
}

func (r *runSink) Segment(seg transcript.Segment) {
	r.segments = append(r.segments, seg)
	r.progress.Observe(seg.End)
	r.bus.PublishJSON(protocol.SubjectSegmentPrefix+"."+r.sessionID, protocol.SegmentEvent{
		SessionID: r.sessionID,
		Start:     seg.Start,
		End:       seg.End,
		Text:      seg.Text,
	})
	r.bus.PublishJSON(protocol.SubjectProgressPrefix+"."+r.sessionID, protocol.ProgressUpdate{
		SessionID: r.sessionID,
		Value:     r.progress.Value(),
		Timestamp: time.Now().UTC(),
	})
}

// duration picks the best available total: the collaborator's report,
// then the WAV probe, then the end of the last segment.
func (r *runSink) duration() float64 {
	if r.info.Duration > 0 {
		return r.info.Duration
	}
	if r.durationHint > 0 {
		return r.durationHint
	}
	if n := len(r.segments); n > 0 {
		return r.segments[n-1].End
	}
	return 0
}
