package service

import "sync"

// stampedeTracker counts concurrent cache misses per key. More than one
// miss in flight for the same key means callers are racing to refill it.
type stampedeTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{active: make(map[string]int)}
}

// RecordMiss registers a miss on key and returns the number of misses now
// in flight for it. Callers defer RecordHit(key) once their fill is done.
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active[key]++
	return st.active[key]
}

// RecordHit marks one miss on key as resolved.
func (st *stampedeTracker) RecordHit(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active[key] <= 1 {
		delete(st.active, key)
		return
	}
	st.active[key]--
}

// InFlight returns the number of unresolved misses on key.
func (st *stampedeTracker) InFlight(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active[key]
}
