// Package session implements the upload/transcribe/display/reset
// workflow: a session moves Idle -> FileStaged -> Transcribing -> Done,
// and reset returns it to Idle or FileStaged depending on whether input
// audio is still attached.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/escriba-labs/escriba/internal/audio"
	"github.com/escriba-labs/escriba/internal/transcript"
)

type State string

const (
	StateIdle         State = "idle"
	StateFileStaged   State = "file_staged"
	StateTranscribing State = "transcribing"
	StateDone         State = "done"
)

// ErrInvalidTransition is returned when an operation is not legal in
// the session's current state.
var ErrInvalidTransition = errors.New("invalid session transition")

// Failure describes a failed transcription run. Any error raised by the
// external collaborator lands here and is surfaced verbatim.
type Failure struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (f *Failure) Error() string {
	return f.Message
}

// Session is the explicit workflow state, mutated only through its
// transition methods.
type Session struct {
	ID        string
	Model     string
	CreatedAt time.Time

	mu       sync.Mutex
	state    State
	input    *audio.Staged
	done     bool
	result   *transcript.Transcript
	failure  *Failure
	progress *Progress
}

// Snapshot is a read-only view served to clients.
type Snapshot struct {
	ID        string     `json:"id"`
	Model     string     `json:"model"`
	State     State      `json:"state"`
	Progress  float64    `json:"progress"`
	Done      bool       `json:"done"`
	Error     string     `json:"error,omitempty"`
	Audio     *AudioInfo `json:"audio,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type AudioInfo struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

func newSession(id, model string, progressCap float64) *Session {
	return &Session{
		ID:        id,
		Model:     model,
		CreatedAt: time.Now().UTC(),
		state:     StateIdle,
		progress:  NewProgress(progressCap),
	}
}

// StageAudio attaches input audio, replacing any previous staged file.
// Legal from Idle and FileStaged; a finished session must be reset
// before new audio is staged.
func (s *Session) StageAudio(staged *audio.Staged) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StateFileStaged:
	default:
		return fmt.Errorf("stage audio in state %s: %w", s.state, ErrInvalidTransition)
	}

	if s.input != nil {
		if err := s.input.Remove(); err != nil {
			return err
		}
	}
	s.input = staged
	s.failure = nil
	s.state = StateFileStaged
	return nil
}

// begin moves the session into Transcribing and hands back the staged
// input the run will consume.
func (s *Session) begin() (*audio.Staged, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFileStaged || s.input == nil {
		return nil, fmt.Errorf("transcribe in state %s: %w", s.state, ErrInvalidTransition)
	}
	s.state = StateTranscribing
	s.failure = nil
	s.progress.Reset()
	return s.input, nil
}

// complete records the result. The run has consumed the input audio, so
// the session no longer holds a staged file.
func (s *Session) complete(tr transcript.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.input = nil
	s.result = &tr
	s.done = true
	s.state = StateDone
	s.progress.Finish()
}

// fail records the collaborator's error and returns the session to the
// error display. The staged file was removed by the run, so the session
// lands back on Idle with the failure attached.
func (s *Session) fail(f *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.input = nil
	s.failure = f
	s.done = false
	s.result = nil
	s.state = StateIdle
	s.progress.Reset()
}

// Reset clears the result and done flag. The session returns to
// FileStaged when input audio is still attached, Idle otherwise.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTranscribing {
		return fmt.Errorf("reset in state %s: %w", s.state, ErrInvalidTransition)
	}
	s.result = nil
	s.done = false
	s.failure = nil
	s.progress.Reset()
	if s.input != nil {
		s.state = StateFileStaged
	} else {
		s.state = StateIdle
	}
	return nil
}

// discard releases the staged file, if any, and returns the session to
// Idle. Used when a session is deleted. Rejected while a run is in
// flight: the backend is still reading the staged file, and the run's
// own cleanup owns it.
func (s *Session) discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTranscribing {
		return fmt.Errorf("discard in state %s: %w", s.state, ErrInvalidTransition)
	}

	var err error
	if s.input != nil {
		err = s.input.Remove()
		s.input = nil
	}
	s.result = nil
	s.done = false
	s.state = StateIdle
	return err
}

// Result returns the transcript when the session is Done.
func (s *Session) Result() (transcript.Transcript, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done || s.result == nil {
		return transcript.Transcript{}, false
	}
	return *s.result, true
}

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the current progress estimate in [0, 1].
func (s *Session) Progress() float64 {
	return s.progress.Value()
}

// Snapshot captures the session for API responses.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.ID,
		Model:     s.Model,
		State:     s.state,
		Progress:  s.progress.Value(),
		Done:      s.done,
		CreatedAt: s.CreatedAt,
	}
	if s.failure != nil {
		snap.Error = s.failure.Message
	}
	if s.input != nil {
		snap.Audio = &AudioInfo{
			Filename: s.input.Filename,
			MimeType: s.input.MimeType,
			Size:     s.input.Size,
		}
	}
	return snap
}
