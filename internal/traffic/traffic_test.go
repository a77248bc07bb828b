package traffic

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTracker_WindowEmpty(t *testing.T) {
	c := &clock{t: time.Unix(1699912800, 0)}
	tr := NewTracker(c.now)
	if got := tr.Window(time.Minute); got != (Counts{}) {
		t.Errorf("Window() = %+v, want zero counts", got)
	}
}

func TestTracker_CountsByOutcome(t *testing.T) {
	c := &clock{t: time.Unix(1699912800, 0)}
	tr := NewTracker(c.now)
	tr.Record(Success)
	tr.Record(Success)
	tr.Record(Error)
	tr.Record(Denied)

	got := tr.Window(time.Minute)
	want := Counts{Success: 2, Errors: 1, Denied: 1}
	if got != want {
		t.Errorf("Window() = %+v, want %+v", got, want)
	}
	if got.Requests() != 4 {
		t.Errorf("Requests() = %d, want 4", got.Requests())
	}
}

func TestTracker_WindowExcludesOlderEvents(t *testing.T) {
	c := &clock{t: time.Unix(1699912800, 0)}
	tr := NewTracker(c.now)
	tr.Record(Error)
	c.t = c.t.Add(2 * time.Minute)
	tr.Record(Success)

	if got := tr.Window(time.Minute); got != (Counts{Success: 1}) {
		t.Errorf("Window(1m) = %+v, want only the recent success", got)
	}
	if got := tr.Window(3 * time.Minute); got != (Counts{Success: 1, Errors: 1}) {
		t.Errorf("Window(3m) = %+v, want both events", got)
	}
}

func TestTracker_PrunesPastRetention(t *testing.T) {
	c := &clock{t: time.Unix(1699912800, 0)}
	tr := NewTracker(c.now)
	tr.Record(Error)
	c.t = c.t.Add(retention + time.Second)
	tr.Record(Success)

	if n := len(tr.events); n != 1 {
		t.Errorf("len(events) = %d, want 1 after pruning", n)
	}
}

func TestCounts_ErrorPct(t *testing.T) {
	tests := []struct {
		name string
		c    Counts
		want float64
	}{
		{"empty", Counts{}, 0},
		{"only denied", Counts{Denied: 5}, 0},
		{"quarter", Counts{Success: 3, Errors: 1}, 25},
		{"denied excluded", Counts{Success: 1, Errors: 1, Denied: 10}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.ErrorPct(); got != tt.want {
				t.Errorf("ErrorPct() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultTracker(t *testing.T) {
	Reset()
	defer Reset()
	RecordSuccess()
	RecordError()
	RecordDenied()
	if got := Window(time.Minute); got != (Counts{Success: 1, Errors: 1, Denied: 1}) {
		t.Errorf("Window() = %+v", got)
	}
	Reset()
	if got := Window(time.Minute); got.Requests() != 0 {
		t.Errorf("Requests() after Reset = %d, want 0", got.Requests())
	}
}
