package guard

import (
	"context"
	"sync"
	"time"
)

type failureRecord struct {
	failures    int
	lastFailure time.Time
}

// Lockout counts authentication failures per source. Once the threshold is
// reached the source stays locked until duration has passed since the last
// failure; failures during a lockout extend it. Success clears the record.
type Lockout struct {
	mu        sync.Mutex
	threshold int
	duration  time.Duration
	now       func() time.Time
	records   map[string]*failureRecord
}

func NewLockout(threshold int, duration time.Duration) *Lockout {
	return &Lockout{
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
		records:   make(map[string]*failureRecord),
	}
}

func (l *Lockout) WithClock(now func() time.Time) *Lockout {
	l.now = now
	return l
}

// Check reports whether key is locked and for how much longer.
func (l *Lockout) Check(_ context.Context, key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return false, 0
	}
	elapsed := l.now().Sub(rec.lastFailure)
	if elapsed >= l.duration {
		delete(l.records, key)
		return false, 0
	}
	if rec.failures < l.threshold {
		return false, 0
	}
	return true, l.duration - elapsed
}

func (l *Lockout) RecordFailure(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok || now.Sub(rec.lastFailure) >= l.duration {
		rec = &failureRecord{}
		l.records[key] = rec
	}
	rec.failures++
	rec.lastFailure = now
}

func (l *Lockout) RecordSuccess(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}

func (l *Lockout) Failures(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[key]; ok {
		return rec.failures
	}
	return 0
}

// Locked returns how many sources are currently locked out.
func (l *Lockout) Locked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, rec := range l.records {
		if now.Sub(rec.lastFailure) >= l.duration {
			delete(l.records, k)
			continue
		}
		if rec.failures >= l.threshold {
			n++
		}
	}
	return n
}
