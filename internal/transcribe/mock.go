package transcribe

import (
	"context"

	"github.com/escriba-labs/escriba/internal/transcript"
)

// Script is a canned transcription result replayed by the mock backend.
type Script struct {
	Info     Info
	Segments []transcript.Segment
	Err      error
}

type mockTranscriber struct {
	script Script
}

// NewMockTranscriber replays the given script. A nil script yields a
// short fixed transcript, enough for wiring checks and dev mode.
func NewMockTranscriber(script *Script) Transcriber {
	if script == nil {
		script = &Script{
			Info: Info{Duration: 3.0, Language: "en", LanguageProbability: 1},
			Segments: []transcript.Segment{
				{Start: 0, End: 3, Text: "mock transcript"},
			},
		}
	}
	return &mockTranscriber{script: *script}
}

func (m *mockTranscriber) Transcribe(ctx context.Context, _ string, _ Options, sink Sink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sink.Info(m.script.Info)
	if m.script.Err != nil {
		return m.script.Err
	}
	for _, seg := range m.script.Segments {
		sink.Segment(seg)
	}
	return nil
}
