package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestStageAudioRejectedAfterDone(t *testing.T) {
	m := newTestManager(t, nil)
	defer m.Close()

	s, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	stageClip(t, m, s)
	if _, err := m.Transcribe(context.Background(), s); err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	err = m.StageUpload(context.Background(), s, "again.mp3", "audio/mpeg", bytes.NewReader([]byte("x")))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition staging after done, got %v", err)
	}

	// After reset the session accepts audio again.
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stageClip(t, m, s)
	if s.State() != StateFileStaged {
		t.Fatalf("expected file_staged, got %s", s.State())
	}
}

func TestSnapshotCarriesAudioInfo(t *testing.T) {
	m := newTestManager(t, nil)
	defer m.Close()

	s, err := m.Create(context.Background(), "small")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StateIdle || snap.Audio != nil {
		t.Fatalf("unexpected idle snapshot: %+v", snap)
	}

	stageClip(t, m, s)
	snap = s.Snapshot()
	if snap.Audio == nil || snap.Audio.Filename != "clip.mp3" {
		t.Fatalf("expected staged audio info, got %+v", snap.Audio)
	}
	if snap.Model != "small" {
		t.Fatalf("expected model small, got %s", snap.Model)
	}
}
