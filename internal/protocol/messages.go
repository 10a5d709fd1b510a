// Package protocol defines the bus messages escriba publishes while a
// transcription run advances.
package protocol

import "time"

// ProgressUpdate reports the monotone progress estimate of a run.
type ProgressUpdate struct {
	SessionID string    `json:"session_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// SegmentEvent carries one recognized segment as it streams in.
type SegmentEvent struct {
	SessionID string  `json:"session_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
}

// RunCompleted announces a finished transcription.
type RunCompleted struct {
	SessionID      string    `json:"session_id"`
	Language       string    `json:"language"`
	Duration       float64   `json:"duration"`
	ProcessingTime float64   `json:"processing_time"`
	SegmentCount   int       `json:"segment_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// RunFailed announces a failed transcription with the collaborator's
// error surfaced verbatim.
type RunFailed struct {
	SessionID string    `json:"session_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectProgressPrefix = "transcribe.progress"
	SubjectSegmentPrefix  = "transcribe.segment"
	SubjectDonePrefix     = "transcribe.done"
	SubjectFailedPrefix   = "transcribe.failed"
)
