package session

import "sync"

// Progress tracks the monotone non-decreasing progress estimate of one
// transcription run. While segments stream in, the fraction
// segment.end / total is clamped to [0, cap]; Finish forces 1.0 when
// the run completes.
type Progress struct {
	mu    sync.Mutex
	cap   float64
	total float64
	value float64
	done  bool
}

func NewProgress(cap float64) *Progress {
	if cap <= 0 || cap > 1 {
		cap = 0.9
	}
	return &Progress{cap: cap}
}

// SetTotal records the clip duration used as the denominator. A zero or
// negative total leaves progress pinned at 0 until Finish.
func (p *Progress) SetTotal(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = seconds
}

// Observe advances progress from a segment end offset. Values never
// decrease and never exceed the cap before Finish.
func (p *Progress) Observe(segmentEnd float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || p.total <= 0 {
		return
	}
	frac := segmentEnd / p.total
	if frac > p.cap {
		frac = p.cap
	}
	if frac > p.value {
		p.value = frac
	}
}

// Finish pins progress at exactly 1.0.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	p.value = 1.0
}

// Reset returns the tracker to zero for a fresh run.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = false
	p.total = 0
	p.value = 0
}

// Value reads the current estimate.
func (p *Progress) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}
