// Package transcribe wraps the external speech-to-text collaborator
// behind a single interface. The model itself is a black box: backends
// only move audio in and segments out.
package transcribe

import (
	"context"
	"fmt"

	"github.com/escriba-labs/escriba/internal/config"
	"github.com/escriba-labs/escriba/internal/transcript"
)

// Options tune a single transcription call.
type Options struct {
	Model       string
	Language    string
	BeamSize    int
	ChunkLength int
	VADFilter   bool
	Temperature float64
}

// Info describes the audio as reported by the collaborator, delivered
// to the sink before any segment.
type Info struct {
	Duration            float64
	Language            string
	LanguageProbability float64
}

// Sink receives the streamed output of a run: Info once, then each
// segment in order.
type Sink interface {
	Info(Info)
	Segment(transcript.Segment)
}

// Transcriber runs the external model against a staged audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, opts Options, sink Sink) error
}

// New builds the backend selected by config.
func New(cfg config.TranscriberConfig) (Transcriber, error) {
	switch cfg.Mode {
	case "exec":
		return NewExecTranscriber(cfg)
	case "server":
		return NewServerTranscriber(cfg), nil
	case "mock":
		return NewMockTranscriber(nil), nil
	default:
		return nil, fmt.Errorf("unknown transcriber mode %q", cfg.Mode)
	}
}

// OptionsFromConfig seeds per-run options with the configured defaults.
func OptionsFromConfig(cfg config.TranscriberConfig) Options {
	return Options{
		Model:       cfg.Model,
		Language:    cfg.Language,
		BeamSize:    cfg.BeamSize,
		ChunkLength: cfg.ChunkLength,
		VADFilter:   cfg.VADFilter,
		Temperature: cfg.Temperature,
	}
}
