package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/frahmantamala/assistant-guard/internal/core/events"
)

// Directory is the slice of the identity directory the model needs.
type Directory interface {
	RoleOf(ctx context.Context, userID string) (Role, error)
	SetRole(ctx context.Context, userID string, role Role) error
	RoleDistribution(ctx context.Context) (map[string]int, error)
	LogActivity(ctx context.Context, userID, action string, details map[string]interface{})
}

type OverrideKind string

const (
	OverrideGrant    OverrideKind = "grant"
	OverrideRestrict OverrideKind = "restrict"
)

// OverrideStore persists per-user grants and restrictions. Setting one kind
// for a permission replaces any previous kind for the same permission.
type OverrideStore interface {
	Overrides(ctx context.Context, userID string) (grants Set, restrictions Set, err error)
	SetOverride(ctx context.Context, userID string, p Permission, kind OverrideKind, by string) error
	ClearOverrides(ctx context.Context, userID string) error
}

// UserPermissions is the resolved view for one identity.
type UserPermissions struct {
	UserID       string
	Role         Role
	Effective    Set
	Grants       Set
	Restrictions Set
	ExpiresAt    time.Time
}

func (u *UserPermissions) Has(p Permission) bool {
	return u != nil && u.Effective.Has(p)
}

func (u *UserPermissions) clone() *UserPermissions {
	return &UserPermissions{
		UserID:       u.UserID,
		Role:         u.Role,
		Effective:    u.Effective.Clone(),
		Grants:       u.Grants.Clone(),
		Restrictions: u.Restrictions.Clone(),
		ExpiresAt:    u.ExpiresAt,
	}
}

// Effective is the single place effective permissions are computed.
func Effective(role Role, grants, restrictions Set) Set {
	return RolePermissions(role).Union(grants).Minus(restrictions)
}

type Service struct {
	directory Directory
	overrides OverrideStore
	cache     *lru.LRU[string, *UserPermissions]
	ttl       time.Duration
	logger    *slog.Logger

	// serializes override writes against cache fills for the same process
	mu sync.Mutex

	// genMu guards the invalidation counters; a fill is only cached when no
	// invalidation for that user, or purge, happened while it ran.
	genMu sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

func NewService(directory Directory, overrides OverrideStore, cacheSize int, ttl time.Duration, logger *slog.Logger) *Service {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		directory: directory,
		overrides: overrides,
		cache:     lru.NewLRU[string, *UserPermissions](cacheSize, nil, ttl),
		ttl:       ttl,
		logger:    logger,
		gens:      make(map[string]uint64),
	}
}

type generation struct{ epoch, user uint64 }

func (s *Service) generation(userID string) generation {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return generation{epoch: s.epoch, user: s.gens[userID]}
}

// remember caches up unless userID was invalidated since gen was taken.
func (s *Service) remember(userID string, gen generation, up *UserPermissions) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if gen.epoch != s.epoch || gen.user != s.gens[userID] {
		return
	}
	s.cache.Add(userID, up)
}

func (s *Service) invalidate(userID string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if userID == "" {
		s.epoch++
		s.cache.Purge()
		return
	}
	s.gens[userID]++
	s.cache.Remove(userID)
}

func (s *Service) guest(userID string) *UserPermissions {
	return &UserPermissions{
		UserID:       userID,
		Role:         RoleGuest,
		Effective:    RolePermissions(RoleGuest),
		Grants:       NewSet(),
		Restrictions: NewSet(),
		ExpiresAt:    time.Now().Add(s.ttl),
	}
}

// Resolve returns the effective permissions for userID. Unknown or empty
// identities resolve to guest and are not cached.
func (s *Service) Resolve(ctx context.Context, userID string) *UserPermissions {
	if userID == "" {
		return s.guest("")
	}
	if cached, ok := s.cache.Get(userID); ok {
		return cached.clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.generation(userID)
	role, err := s.directory.RoleOf(ctx, userID)
	if err != nil {
		s.logger.DebugContext(ctx, "resolving unknown identity as guest", "user_id", userID, "error", err)
		return s.guest(userID)
	}

	grants, restrictions := NewSet(), NewSet()
	if s.overrides != nil {
		g, r, err := s.overrides.Overrides(ctx, userID)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load permission overrides", "user_id", userID, "error", err)
		} else {
			grants, restrictions = g, r
		}
	}

	up := &UserPermissions{
		UserID:       userID,
		Role:         role,
		Effective:    Effective(role, grants, restrictions),
		Grants:       grants,
		Restrictions: restrictions,
		ExpiresAt:    time.Now().Add(s.ttl),
	}
	s.remember(userID, gen, up)
	return up.clone()
}

func (s *Service) HasPermission(ctx context.Context, userID string, p Permission) bool {
	return s.Resolve(ctx, userID).Has(p)
}

func (s *Service) HasAny(ctx context.Context, userID string, perms ...Permission) bool {
	up := s.Resolve(ctx, userID)
	for _, p := range perms {
		if up.Has(p) {
			return true
		}
	}
	return false
}

func (s *Service) HasAll(ctx context.Context, userID string, perms ...Permission) bool {
	up := s.Resolve(ctx, userID)
	for _, p := range perms {
		if !up.Has(p) {
			return false
		}
	}
	return true
}

// CanAccessCategory gates coarse command categories. Unknown categories deny.
func (s *Service) CanAccessCategory(ctx context.Context, userID string, c Category) bool {
	p, ok := CategoryPermission(c)
	if !ok {
		s.logger.WarnContext(ctx, "denying unknown command category", "user_id", userID, "category", c)
		return false
	}
	return s.HasPermission(ctx, userID, p)
}

// IsAdmin reports whether userID holds an administrative role. Lookup
// failures are returned so callers can fail closed.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	role, err := s.directory.RoleOf(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("lookup role for %s: %w", userID, err)
	}
	return role.IsAdministrative(), nil
}

// Grant adds p to the target's custom grants. It reports false without
// changing anything when granter lacks role_management.
func (s *Service) Grant(ctx context.Context, userID string, p Permission, granter string) (bool, error) {
	return s.override(ctx, userID, p, granter, OverrideGrant, "permission_granted", "granted_by")
}

// Revoke adds p to the target's restrictions.
func (s *Service) Revoke(ctx context.Context, userID string, p Permission, revoker string) (bool, error) {
	return s.override(ctx, userID, p, revoker, OverrideRestrict, "permission_revoked", "revoked_by")
}

func (s *Service) override(ctx context.Context, userID string, p Permission, actor string, kind OverrideKind, action, actorKey string) (bool, error) {
	if !s.HasPermission(ctx, actor, RoleManagement) {
		s.logger.WarnContext(ctx, "permission override denied", "actor", actor, "target_user", userID, "permission", p, "kind", kind)
		return false, nil
	}
	if _, err := s.directory.RoleOf(ctx, userID); err != nil {
		return false, fmt.Errorf("lookup target %s: %w", userID, err)
	}

	s.mu.Lock()
	err := s.overrides.SetOverride(ctx, userID, p, kind, actor)
	s.invalidate(userID)
	s.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("store %s override: %w", kind, err)
	}

	s.directory.LogActivity(ctx, actor, action, map[string]interface{}{
		"target_user": userID,
		"permission":  p.String(),
		actorKey:      actor,
	})
	s.logger.InfoContext(ctx, "permission override stored", "actor", actor, "target_user", userID, "permission", p, "kind", kind)
	return true, nil
}

// ChangeRole reassigns the target's role when changer holds role_management.
func (s *Service) ChangeRole(ctx context.Context, userID string, role Role, changer string) (bool, error) {
	if !s.HasPermission(ctx, changer, RoleManagement) {
		s.logger.WarnContext(ctx, "role change denied", "actor", changer, "target_user", userID, "role", role)
		return false, nil
	}
	if role.Level() < 0 {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	if err := s.directory.SetRole(ctx, userID, role); err != nil {
		return false, fmt.Errorf("set role: %w", err)
	}
	s.invalidate(userID)

	s.directory.LogActivity(ctx, changer, "role_changed", map[string]interface{}{
		"target_user": userID,
		"new_role":    role.String(),
		"changed_by":  changer,
	})
	return true, nil
}

// ClearCache drops one identity, or everything when userID is empty.
func (s *Service) ClearCache(userID string) {
	s.invalidate(userID)
}

// HandleRoleChanged invalidates cached permissions on role change events.
func (s *Service) HandleRoleChanged(ctx context.Context, event events.Event) error {
	if id, ok := events.UserIDOf(event); ok {
		s.ClearCache(id)
	}
	return nil
}

// HandleUserDeleted drops cached and persisted overrides for the user.
func (s *Service) HandleUserDeleted(ctx context.Context, event events.Event) error {
	id, ok := events.UserIDOf(event)
	if !ok {
		return nil
	}
	s.ClearCache(id)
	if s.overrides == nil {
		return nil
	}
	if err := s.overrides.ClearOverrides(ctx, id); err != nil {
		return fmt.Errorf("clear overrides for %s: %w", id, err)
	}
	return nil
}

type Summary struct {
	UserID              string   `json:"user_id"`
	Role                RoleInfo `json:"role"`
	Permissions         []string `json:"permissions"`
	CustomGrants        []string `json:"custom_permissions"`
	Restrictions        []string `json:"restrictions"`
	AccessibleTools     []string `json:"accessible_tools"`
	AccessibleWorkflows []string `json:"accessible_workflows"`
	AccessiblePlugins   []string `json:"accessible_plugins"`
	IsAdmin             bool     `json:"is_admin"`
}

func (s *Service) Summary(ctx context.Context, userID string) Summary {
	up := s.Resolve(ctx, userID)
	return Summary{
		UserID:              userID,
		Role:                Info(up.Role),
		Permissions:         up.Effective.Strings(),
		CustomGrants:        up.Grants.Strings(),
		Restrictions:        up.Restrictions.Strings(),
		AccessibleTools:     AccessibleTools(up.Effective),
		AccessibleWorkflows: AccessibleWorkflows(up.Effective),
		AccessiblePlugins:   AccessiblePlugins(up.Effective),
		IsAdmin:             up.Role.IsAdministrative(),
	}
}

type Stats struct {
	TotalRoles       int            `json:"total_roles"`
	TotalPermissions int            `json:"total_permissions"`
	CachedUsers      int            `json:"cached_users"`
	CacheTTLSeconds  int            `json:"cache_ttl_seconds"`
	RoleDistribution map[string]int `json:"role_distribution"`
}

func (s *Service) Stats(ctx context.Context) Stats {
	dist, err := s.directory.RoleDistribution(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load role distribution", "error", err)
		dist = map[string]int{}
	}
	return Stats{
		TotalRoles:       len(orderedRoles),
		TotalPermissions: len(allPermissions),
		CachedUsers:      s.cache.Len(),
		CacheTTLSeconds:  int(s.ttl.Seconds()),
		RoleDistribution: dist,
	}
}
