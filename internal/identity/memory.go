package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and single-node demos.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User
	activity []Activity
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.clone(), nil
}

func (m *MemoryStore) GetAll(context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u.clone())
	}
	return out, nil
}

func (m *MemoryStore) Put(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.users {
		if id == user.ID {
			continue
		}
		if other.Username == user.Username || strings.EqualFold(other.Email, user.Email) {
			return ErrDuplicate
		}
	}
	m.users[user.ID] = user.clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)

	kept := m.activity[:0]
	for _, a := range m.activity {
		if a.UserID != id {
			kept = append(kept, a)
		}
	}
	m.activity = kept
	return true, nil
}

func (m *MemoryStore) AppendActivity(_ context.Context, a Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	m.activity = append(m.activity, a)
	return nil
}

func (m *MemoryStore) FindByLogin(_ context.Context, identifier string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == identifier || strings.EqualFold(u.Email, identifier) {
			return u.clone(), nil
		}
	}
	return nil, ErrNotFound
}

// ListActivity returns newest first; limit <= 0 means everything.
func (m *MemoryStore) ListActivity(_ context.Context, userID string, limit int) ([]Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Activity{}
	for i := len(m.activity) - 1; i >= 0; i-- {
		a := m.activity[i]
		if userID != "" && a.UserID != userID {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) TrimActivity(_ context.Context, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	over := len(m.activity) - keep
	if keep <= 0 || over <= 0 {
		return 0, nil
	}
	m.activity = append([]Activity(nil), m.activity[over:]...)
	return over, nil
}

func (m *MemoryStore) DeleteActivityBefore(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]Activity, 0, len(m.activity))
	for _, a := range m.activity {
		if !a.Timestamp.Before(before) {
			kept = append(kept, a)
		}
	}
	removed := len(m.activity) - len(kept)
	m.activity = kept
	return removed, nil
}

func (m *MemoryStore) CountActivitySince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.activity {
		if a.Timestamp.After(since) {
			n++
		}
	}
	return n, nil
}
