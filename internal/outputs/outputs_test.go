package outputs

import (
	"strings"
	"testing"
	"time"

	"github.com/escriba-labs/escriba/internal/transcript"
)

func sampleTranscript(t *testing.T) transcript.Transcript {
	t.Helper()
	tr, err := transcript.Build([]transcript.Segment{
		{Start: 0, End: 5, Text: "hello"},
		{Start: 5, End: 12, Text: "world"},
	}, "en", 0.97, 12.0, 1.2)
	if err != nil {
		t.Fatalf("build transcript: %v", err)
	}
	return tr
}

func TestTextIsFullText(t *testing.T) {
	tr := sampleTranscript(t)
	if got := string(Text(tr)); got != "hello\n\nworld" {
		t.Fatalf("unexpected text payload: %q", got)
	}
}

func TestJSONRoundTrips(t *testing.T) {
	tr := sampleTranscript(t)
	data, err := JSON(tr, "base", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("render json: %v", err)
	}

	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if doc.FullText != tr.FullText {
		t.Fatalf("full text mismatch: %q vs %q", doc.FullText, tr.FullText)
	}
	if len(doc.Segments) != 2 || doc.Segments[1].End != 12 || doc.Segments[1].Text != "world" {
		t.Fatalf("unexpected segments: %+v", doc.Segments)
	}
	// Round-trip invariant: full_text equals the join of segments[].text.
	if doc.FullText != transcript.Join(doc.Segments) {
		t.Fatal("full_text does not equal joined segment texts")
	}
	if doc.Metadata.Language != "en" || doc.Metadata.Model != "base" {
		t.Fatalf("unexpected metadata: %+v", doc.Metadata)
	}
	if doc.Metadata.Duration != 12.0 || doc.Metadata.ProcessingTime != 1.2 {
		t.Fatalf("unexpected metadata timings: %+v", doc.Metadata)
	}
	if doc.Metadata.GeneratedAt != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected generated_at: %s", doc.Metadata.GeneratedAt)
	}
}

func TestLanguageName(t *testing.T) {
	if got := languageName("pt"); got != "Portuguese" {
		t.Fatalf("expected Portuguese, got %q", got)
	}
	if got := languageName("en"); got != "English" {
		t.Fatalf("expected English, got %q", got)
	}
	if got := languageName("not-a-code!"); got != "" {
		t.Fatalf("expected empty name for invalid code, got %q", got)
	}
	if got := languageName(""); got != "" {
		t.Fatalf("expected empty name for empty code, got %q", got)
	}
}

func TestJSONContainsExpectedKeys(t *testing.T) {
	tr := sampleTranscript(t)
	data, err := JSON(tr, "base", time.Now())
	if err != nil {
		t.Fatalf("render json: %v", err)
	}
	for _, key := range []string{`"metadata"`, `"segments"`, `"full_text"`, `"language"`, `"duration"`, `"model"`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("expected key %s in document", key)
		}
	}
}
