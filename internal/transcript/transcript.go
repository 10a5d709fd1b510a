// Package transcript holds the immutable result of a transcription run.
package transcript

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins segment texts into the full transcript text.
const Separator = "\n\n"

// Segment is a time-bounded span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the finished output of a run. It is never mutated after
// Build returns it.
type Transcript struct {
	FullText            string    `json:"full_text"`
	Segments            []Segment `json:"segments"`
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	Duration            float64   `json:"duration"`
	ProcessingTime      float64   `json:"processing_time"`
}

var (
	ErrSegmentOrder  = errors.New("segments not ordered by start time")
	ErrSegmentBounds = errors.New("segment end precedes start")
)

// Build assembles a transcript from raw segments. Texts are trimmed and
// empty segments dropped; FullText is the separator join of what remains.
func Build(segments []Segment, language string, languageProbability, duration, processingTime float64) (Transcript, error) {
	kept := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		kept = append(kept, Segment{Start: seg.Start, End: seg.End, Text: text})
	}

	t := Transcript{
		FullText:            Join(kept),
		Segments:            kept,
		Language:            language,
		LanguageProbability: languageProbability,
		Duration:            duration,
		ProcessingTime:      processingTime,
	}
	if err := t.Validate(); err != nil {
		return Transcript{}, err
	}
	return t, nil
}

// Join concatenates segment texts with the fixed separator.
func Join(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, Separator)
}

// Validate checks the structural invariants: every segment spans forward
// in time, starts never decrease, and FullText matches the segment join.
func (t Transcript) Validate() error {
	prevStart := -1.0
	for i, seg := range t.Segments {
		if seg.End < seg.Start {
			return fmt.Errorf("segment %d [%.2f, %.2f]: %w", i, seg.Start, seg.End, ErrSegmentBounds)
		}
		if seg.Start < prevStart {
			return fmt.Errorf("segment %d starts at %.2f before %.2f: %w", i, seg.Start, prevStart, ErrSegmentOrder)
		}
		prevStart = seg.Start
	}
	if t.FullText != Join(t.Segments) {
		return errors.New("full_text does not match joined segments")
	}
	return nil
}
