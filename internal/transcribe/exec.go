package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/escriba-labs/escriba/internal/config"
	"github.com/escriba-labs/escriba/internal/transcript"
	"github.com/mattn/go-shellwords"
)

// execTranscriber shells out to a helper binary that wraps the actual
// model. The helper prints newline-delimited JSON on stdout: one info
// line followed by a segment line per recognized span.
type execTranscriber struct {
	cmd []string
	mu  sync.Mutex
}

type execLine struct {
	Type                string  `json:"type"`
	Duration            float64 `json:"duration"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	Start               float64 `json:"start"`
	End                 float64 `json:"end"`
	Text                string  `json:"text"`
}

func NewExecTranscriber(cfg config.TranscriberConfig) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse transcriber command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcriber command is empty")
	}
	return &execTranscriber{cmd: args}, nil
}

func (t *execTranscriber) Transcribe(ctx context.Context, path string, opts Options, sink Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	args := append([]string{}, t.cmd...)
	base := args[0]
	cmdArgs := args[1:]
	cmdArgs = append(cmdArgs, "--audio", path)
	if opts.Model != "" {
		cmdArgs = append(cmdArgs, "--model", opts.Model)
	}
	if opts.Language != "" {
		cmdArgs = append(cmdArgs, "--language", opts.Language)
	}
	if opts.BeamSize > 0 {
		cmdArgs = append(cmdArgs, "--beam-size", strconv.Itoa(opts.BeamSize))
	}
	if opts.ChunkLength > 0 {
		cmdArgs = append(cmdArgs, "--chunk-length", strconv.Itoa(opts.ChunkLength))
	}
	if opts.VADFilter {
		cmdArgs = append(cmdArgs, "--vad-filter")
	}
	if opts.Temperature > 0 {
		cmdArgs = append(cmdArgs, "--temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64))
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transcriber stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Start(); err != nil {
		return fmt.Errorf("start transcriber command: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var scanErr error
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg execLine
		if err := json.Unmarshal(line, &msg); err != nil {
			scanErr = fmt.Errorf("decode transcriber output: %w", err)
			break
		}
		switch msg.Type {
		case "info":
			sink.Info(Info{
				Duration:            msg.Duration,
				Language:            msg.Language,
				LanguageProbability: msg.LanguageProbability,
			})
		case "segment":
			sink.Segment(transcript.Segment{Start: msg.Start, End: msg.End, Text: msg.Text})
		default:
			scanErr = fmt.Errorf("unexpected transcriber output type %q", msg.Type)
		}
		if scanErr != nil {
			break
		}
	}
	if scanErr == nil {
		scanErr = scanner.Err()
	}
	if scanErr != nil {
		// The helper may still be streaming. Drain stdout so a full
		// pipe cannot block the process and hang Wait below.
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := command.Wait(); err != nil {
		return fmt.Errorf("transcriber command failed: %w: %s", err, stderr.String())
	}
	if scanErr != nil {
		return scanErr
	}
	return nil
}
