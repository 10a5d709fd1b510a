package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/escriba-labs/escriba/internal/config"
	"github.com/escriba-labs/escriba/internal/transcript"
)

// serverTranscriber posts the audio to an OpenAI-compatible
// /v1/audio/transcriptions endpoint (faster-whisper-server, LocalAI and
// friends) asking for verbose_json so segment timings come back.
type serverTranscriber struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

type verboseJSONResponse struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func NewServerTranscriber(cfg config.TranscriberConfig) Transcriber {
	timeout := time.Duration(cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if !strings.HasSuffix(endpoint, "/audio/transcriptions") {
		endpoint += "/v1/audio/transcriptions"
	}
	return &serverTranscriber{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
}

func (t *serverTranscriber) Transcribe(ctx context.Context, path string, opts Options, sink Sink) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open staged audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"model":           opts.Model,
		"response_format": "verbose_json",
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.Temperature > 0 {
		fields["temperature"] = strconv.FormatFloat(opts.Temperature, 'f', -1, 64)
	}
	if opts.VADFilter {
		fields["vad_filter"] = "true"
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return fmt.Errorf("write form field %s: %w", key, err)
		}
	}

	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("copy audio into request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return fmt.Errorf("transcription server http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed verboseJSONResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode transcription response: %w", err)
	}

	duration := parsed.Duration
	if duration == 0 && len(parsed.Segments) > 0 {
		duration = parsed.Segments[len(parsed.Segments)-1].End
	}
	sink.Info(Info{Duration: duration, Language: parsed.Language})
	for _, seg := range parsed.Segments {
		sink.Segment(transcript.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return nil
}
