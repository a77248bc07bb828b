// Package traffic keeps a short sliding window of /api request outcomes.
// /health derives the degraded state from it and /api/diagnostics reports it.
package traffic

import (
	"sync"
	"time"
)

// retention bounds how far back any window can look.
const retention = 5 * time.Minute

var defaultTracker = NewTracker(time.Now)

// RecordSuccess records a request answered below 500, soft failures included.
func RecordSuccess() {
	defaultTracker.Record(Success)
}

// RecordError records a request answered with a 5xx status.
func RecordError() {
	defaultTracker.Record(Error)
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.Record(Denied)
}

// Window returns the default tracker's counts within window.
func Window(window time.Duration) Counts {
	return defaultTracker.Window(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Outcome classifies a finished request.
type Outcome int

const (
	Success Outcome = iota
	Error
	Denied
)

// Counts is the number of outcomes of each kind within a window.
type Counts struct {
	Success int `json:"success"`
	Errors  int `json:"errors"`
	Denied  int `json:"denied"`
}

// Requests is every outcome in the window, denials included.
func (c Counts) Requests() int {
	return c.Success + c.Errors + c.Denied
}

// ErrorPct is the share of errors among served requests, 0..100.
// Denied requests never reached a handler and are excluded.
func (c Counts) ErrorPct() float64 {
	served := c.Success + c.Errors
	if served == 0 {
		return 0
	}
	return float64(c.Errors) * 100 / float64(served)
}

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker is a time-ordered log of outcomes pruned to the retention period.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

// NewTracker returns an empty tracker using now as its clock.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

// Record appends one outcome.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Window counts the outcomes recorded within window of now.
func (t *Tracker) Window(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	var c Counts
	for i := len(t.events) - 1; i >= 0 && !t.events[i].at.Before(cutoff); i-- {
		switch t.events[i].outcome {
		case Success:
			c.Success++
		case Error:
			c.Errors++
		case Denied:
			c.Denied++
		}
	}
	return c
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events older than the retention period.
// Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
