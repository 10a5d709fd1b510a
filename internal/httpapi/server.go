// Package httpapi exposes the session workflow over HTTP and serves
// the embedded upload page.
package httpapi

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/escriba-labs/escriba/internal/audio"
	"github.com/escriba-labs/escriba/internal/config"
	"github.com/escriba-labs/escriba/internal/outputs"
	"github.com/escriba-labs/escriba/internal/session"
	"github.com/escriba-labs/escriba/internal/transcribe"
	"github.com/escriba-labs/escriba/internal/transcript"
)

//go:embed web
var webFS embed.FS

// Server wires the session manager to HTTP handlers.
type Server struct {
	manager *session.Manager
	outputs config.OutputsConfig
	log     *slog.Logger
	ready   func() bool
	mux     *http.ServeMux
}

func New(manager *session.Manager, outputsCfg config.OutputsConfig, log *slog.Logger, ready func() bool) *Server {
	s := &Server{
		manager: manager,
		outputs: outputsCfg,
		log:     log,
		ready:   ready,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	web, err := fs.Sub(webFS, "web")
	if err == nil {
		s.mux.Handle("GET /", http.FileServer(http.FS(web)))
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/audio", s.handleStageAudio)
	s.mux.HandleFunc("POST /api/sessions/{id}/transcribe", s.handleTranscribe)
	s.mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleReset)
	s.mux.HandleFunc("GET /api/sessions/{id}/download/{kind}", s.handleDownload)
	s.mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil || s.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, transcribe.Models)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
	}

	sess, err := s.manager.Create(r.Context(), req.Model)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("id")
	sess, ok := s.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.manager.Delete(r.Context(), sess.ID); err != nil {
		if errors.Is(err, session.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStageAudio(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var err error
	switch {
	case r.URL.Query().Get("pcm") == "1":
		err = s.stageCapture(r, sess)
	case strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"):
		err = s.stageMultipart(r, sess)
	default:
		err = s.stageRawBody(r, sess)
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, audio.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		if errors.Is(err, session.ErrInvalidTransition) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) stageMultipart(r *http.Request, sess *session.Session) error {
	file, header, err := r.FormFile("file")
	if err != nil {
		return fmt.Errorf("read form file: %w", err)
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !audio.SupportedMime(contentType) {
		contentType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	return s.manager.StageUpload(r.Context(), sess, header.Filename, contentType, file)
}

func (s *Server) stageRawBody(r *http.Request, sess *session.Session) error {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "upload"
	}
	return s.manager.StageUpload(r.Context(), sess, filename, r.Header.Get("Content-Type"), r.Body)
}

func (s *Server) stageCapture(r *http.Request, sess *session.Session) error {
	pcm, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read capture payload: %w", err)
	}
	return s.manager.StageCapture(r.Context(), sess, pcm)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	tr, err := s.manager.Transcribe(r.Context(), sess)
	if err != nil {
		if errors.Is(err, session.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":    sess.Snapshot(),
		"transcript": tr,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Reset(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	tr, done := sess.Result()
	if !done {
		writeError(w, http.StatusConflict, "transcription not finished")
		return
	}

	switch r.PathValue("kind") {
	case "txt":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.outputs.TextFilename))
		_, _ = w.Write(outputs.Text(tr))
	case "json":
		data, err := outputs.JSON(tr, sess.Model, time.Now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.outputs.JSONFilename))
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusNotFound, "unknown download kind")
	}
}

type historyEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

type historyResponse struct {
	SessionID  string                 `json:"session_id"`
	Events     []historyEvent         `json:"events"`
	Transcript *transcript.Transcript `json:"transcript,omitempty"`
}

// handleHistory serves the store-backed record of a session. It does
// not require the session to be live; persistent retention keeps
// history past deletion. Ephemeral retention always answers empty.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	events, tr, err := s.manager.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := historyResponse{SessionID: id, Events: make([]historyEvent, 0, len(events)), Transcript: tr}
	for _, e := range events {
		resp.Events = append(resp.Events, historyEvent{Type: e.Type, Payload: e.Payload, At: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
