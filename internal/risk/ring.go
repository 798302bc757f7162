package risk

import "sync"

// Ring keeps the most recent events up to a fixed capacity.
type Ring struct {
	mu    sync.RWMutex
	buf   []SecurityEvent
	next  int
	full  bool
	limit int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]SecurityEvent, capacity), limit: capacity}
}

func (r *Ring) Append(e SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % r.limit
	if r.next == 0 {
		r.full = true
	}
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.limit
	}
	return r.next
}

func (r *Ring) Cap() int { return r.limit }

// Newest returns events newest first, keeping those for which keep is true
// (nil keeps all), stopping after limit matches when limit > 0.
func (r *Ring) Newest(limit int, keep func(SecurityEvent) bool) []SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	if r.full {
		n = r.limit
	}
	out := make([]SecurityEvent, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + r.limit) % r.limit
		e := r.buf[idx]
		if keep != nil && !keep(e) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
