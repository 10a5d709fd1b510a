// Package outputs renders the downloadable transcription documents.
package outputs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/escriba-labs/escriba/internal/transcript"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Metadata heads the JSON document.
type Metadata struct {
	Language            string  `json:"language"`
	LanguageName        string  `json:"language_name,omitempty"`
	LanguageProbability float64 `json:"language_probability"`
	Duration            float64 `json:"duration"`
	Model               string  `json:"model"`
	ProcessingTime      float64 `json:"processing_time"`
	GeneratedAt         string  `json:"generated_at"`
}

// Document is the transcricao.json payload.
type Document struct {
	Metadata Metadata             `json:"metadata"`
	Segments []transcript.Segment `json:"segments"`
	FullText string               `json:"full_text"`
}

// Text renders the plain transcricao.txt payload.
func Text(tr transcript.Transcript) []byte {
	return []byte(tr.FullText)
}

// JSON renders the transcricao.json payload, indented for humans.
func JSON(tr transcript.Transcript, model string, generatedAt time.Time) ([]byte, error) {
	doc := Document{
		Metadata: Metadata{
			Language:            tr.Language,
			LanguageName:        languageName(tr.Language),
			LanguageProbability: tr.LanguageProbability,
			Duration:            tr.Duration,
			Model:               model,
			ProcessingTime:      tr.ProcessingTime,
			GeneratedAt:         generatedAt.UTC().Format(time.RFC3339),
		},
		Segments: tr.Segments,
		FullText: tr.FullText,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript document: %w", err)
	}
	return data, nil
}

// Parse decodes a previously rendered JSON document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse transcript document: %w", err)
	}
	return doc, nil
}

// languageName resolves a BCP 47 / ISO 639 code to its English display
// name. Unknown codes yield an empty name rather than an error.
func languageName(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	return display.English.Languages().Name(tag)
}
