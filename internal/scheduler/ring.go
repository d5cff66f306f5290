package scheduler

import (
	"sync"
	"time"
)

// RecordedError is one entry of the bounded recent-errors export.
type RecordedError struct {
	At      time.Time `json:"at"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
}

const errorRingCapacity = 50

// errorRing keeps the most recent errors for the recent_errors.json
// export. Oldest entries fall off once the ring is full.
type errorRing struct {
	mu      sync.Mutex
	entries []RecordedError
}

func (r *errorRing) Add(at time.Time, source string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, RecordedError{At: at.UTC(), Source: source, Message: err.Error()})
	if len(r.entries) > errorRingCapacity {
		r.entries = r.entries[len(r.entries)-errorRingCapacity:]
	}
}

func (r *errorRing) Snapshot() []RecordedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedError, len(r.entries))
	copy(out, r.entries)
	return out
}
