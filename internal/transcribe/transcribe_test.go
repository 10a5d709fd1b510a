package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/escriba-labs/escriba/internal/config"
	"github.com/escriba-labs/escriba/internal/transcript"
)

type collectSink struct {
	info     Info
	gotInfo  bool
	segments []transcript.Segment
}

func (c *collectSink) Info(info Info) {
	c.info = info
	c.gotInfo = true
}

func (c *collectSink) Segment(seg transcript.Segment) {
	c.segments = append(c.segments, seg)
}

func TestNewSelectsBackend(t *testing.T) {
	cases := []struct {
		mode    string
		cfg     config.TranscriberConfig
		wantErr bool
	}{
		{mode: "mock", cfg: config.TranscriberConfig{Mode: "mock"}},
		{mode: "exec", cfg: config.TranscriberConfig{Mode: "exec", Command: "whisper-helper --device cpu"}},
		{mode: "server", cfg: config.TranscriberConfig{Mode: "server", Endpoint: "http://localhost:8000"}},
		{mode: "bogus", cfg: config.TranscriberConfig{Mode: "bogus"}, wantErr: true},
	}
	for _, tc := range cases {
		_, err := New(tc.cfg)
		if tc.wantErr && err == nil {
			t.Fatalf("mode %s: expected error", tc.mode)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("mode %s: unexpected error: %v", tc.mode, err)
		}
	}
}

func TestExecTranscriberRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecTranscriber(config.TranscriberConfig{Command: "   "}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func writeHelper(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write helper: %v", err)
	}
	return path
}

func TestExecTranscriberStreamsSegments(t *testing.T) {
	helper := writeHelper(t, `
echo '{"type":"info","duration":4,"language":"pt","language_probability":0.9}'
echo '{"type":"segment","start":0,"end":2,"text":"ola"}'
echo '{"type":"segment","start":2,"end":4,"text":"mundo"}'
`)
	tr, err := NewExecTranscriber(config.TranscriberConfig{Command: "sh " + helper})
	if err != nil {
		t.Fatalf("new exec transcriber: %v", err)
	}
	var sink collectSink
	if err := tr.Transcribe(context.Background(), "clip.wav", Options{}, &sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sink.gotInfo || sink.info.Language != "pt" || sink.info.Duration != 4 {
		t.Fatalf("unexpected info: %+v", sink.info)
	}
	if len(sink.segments) != 2 || sink.segments[1].Text != "mundo" {
		t.Fatalf("unexpected segments: %+v", sink.segments)
	}
}

func TestExecTranscriberSurfacesMalformedOutput(t *testing.T) {
	// The helper emits garbage and then keeps writing well past the OS
	// pipe buffer. The decode error must come back promptly even though
	// the stream was abandoned mid-flight.
	helper := writeHelper(t, `
echo notjson
i=0
while [ $i -lt 8192 ]; do
  echo xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx
  i=$((i+1))
done
`)
	tr, err := NewExecTranscriber(config.TranscriberConfig{Command: "sh " + helper})
	if err != nil {
		t.Fatalf("new exec transcriber: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		var sink collectSink
		done <- tr.Transcribe(context.Background(), "clip.wav", Options{}, &sink)
	}()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "decode transcriber output") {
			t.Fatalf("expected decode error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("transcribe did not return after malformed helper output")
	}
}

func TestMockTranscriberReplaysScript(t *testing.T) {
	script := &Script{
		Info: Info{Duration: 12, Language: "pt", LanguageProbability: 0.95},
		Segments: []transcript.Segment{
			{Start: 0, End: 5, Text: "hello"},
			{Start: 5, End: 12, Text: "world"},
		},
	}
	var sink collectSink
	if err := NewMockTranscriber(script).Transcribe(context.Background(), "ignored.mp3", Options{}, &sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sink.gotInfo || sink.info.Duration != 12 {
		t.Fatalf("expected info before segments, got %+v", sink.info)
	}
	if len(sink.segments) != 2 || sink.segments[1].Text != "world" {
		t.Fatalf("unexpected segments: %+v", sink.segments)
	}
}

func TestServerTranscriberParsesVerboseJSON(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "clip.mp3")
	if err := os.WriteFile(audioPath, []byte("fake-mp3-bytes"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("expected verbose_json, got %q", got)
		}
		if got := r.FormValue("model"); got != "base" {
			t.Errorf("expected model base, got %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			file.Close()
		}
		json.NewEncoder(w).Encode(map[string]any{
			"language": "en",
			"duration": 12.0,
			"text":     "hello world",
			"segments": []map[string]any{
				{"start": 0.0, "end": 5.0, "text": "hello"},
				{"start": 5.0, "end": 12.0, "text": "world"},
			},
		})
	}))
	defer srv.Close()

	tr := NewServerTranscriber(config.TranscriberConfig{Endpoint: srv.URL})
	var sink collectSink
	err := tr.Transcribe(context.Background(), audioPath, Options{Model: "base"}, &sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.info.Duration != 12.0 || sink.info.Language != "en" {
		t.Fatalf("unexpected info: %+v", sink.info)
	}
	if len(sink.segments) != 2 || sink.segments[0].Text != "hello" {
		t.Fatalf("unexpected segments: %+v", sink.segments)
	}
}

func TestServerTranscriberSurfacesHTTPError(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "clip.wav")
	if err := os.WriteFile(audioPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unsupported audio format", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	tr := NewServerTranscriber(config.TranscriberConfig{Endpoint: srv.URL})
	var sink collectSink
	err := tr.Transcribe(context.Background(), audioPath, Options{Model: "base"}, &sink)
	if err == nil {
		t.Fatal("expected error from 422 response")
	}
}

func TestValidModel(t *testing.T) {
	for _, tag := range []string{"tiny", "base", "small", "medium", "large"} {
		if !ValidModel(tag) {
			t.Fatalf("expected %s to be a valid model", tag)
		}
	}
	if ValidModel("enormous") {
		t.Fatal("expected unknown tier to be rejected")
	}
}
