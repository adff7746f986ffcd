package data

import (
	"sync"
	"time"
)

// TimeProvider supplies the timestamps the ticket repository writes for
// requested_time, started_time and completed_time.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the wall clock.
type RealTimeProvider struct{}

func (*RealTimeProvider) Now() time.Time {
	return time.Now()
}

// FixedTimeProvider pins Now to a known instant so tests can assert on
// execution_time and age-based reaper cutoffs.
type FixedTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{now: t}
}

func (f *FixedTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AddTime advances the pinned instant by d.
func (f *FixedTimeProvider) AddTime(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
