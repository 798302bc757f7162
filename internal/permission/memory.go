package permission

import (
	"context"
	"sync"
)

// MemoryOverrides keeps overrides in process. Used when no database is
// configured and in tests.
type MemoryOverrides struct {
	mu    sync.RWMutex
	kinds map[string]map[Permission]OverrideKind
}

func NewMemoryOverrides() *MemoryOverrides {
	return &MemoryOverrides{kinds: make(map[string]map[Permission]OverrideKind)}
}

func (m *MemoryOverrides) Overrides(_ context.Context, userID string) (Set, Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	grants, restrictions := NewSet(), NewSet()
	for p, kind := range m.kinds[userID] {
		if kind == OverrideGrant {
			grants[p] = struct{}{}
		} else {
			restrictions[p] = struct{}{}
		}
	}
	return grants, restrictions, nil
}

func (m *MemoryOverrides) SetOverride(_ context.Context, userID string, p Permission, kind OverrideKind, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.kinds[userID] == nil {
		m.kinds[userID] = make(map[Permission]OverrideKind)
	}
	m.kinds[userID][p] = kind
	return nil
}

func (m *MemoryOverrides) ClearOverrides(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kinds, userID)
	return nil
}
