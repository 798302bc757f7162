package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/core/events"
	"github.com/frahmantamala/assistant-guard/internal/credential"
	"github.com/frahmantamala/assistant-guard/internal/permission"
)

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

type TokenIssuer interface {
	Issue(identity credential.Identity) (string, time.Time, error)
	Revoke(ctx context.Context, token string) bool
}

// RoleAuthorizer decides whether an actor may assign roles.
type RoleAuthorizer interface {
	HasPermission(ctx context.Context, userID string, p permission.Permission) bool
}

type Service struct {
	store         Store
	hasher        PasswordHasher
	tokens        TokenIssuer
	publisher     events.Publisher
	roles         RoleAuthorizer
	logger        *slog.Logger
	activityLimit int
	now           func() time.Time

	dummyOnce sync.Once
	dummyHash string

	// serializes writes that can demote, disable or remove an administrator
	adminMu sync.Mutex
}

func NewService(store Store, hasher PasswordHasher, tokens TokenIssuer, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		hasher:        hasher,
		tokens:        tokens,
		publisher:     publisher,
		logger:        logger,
		activityLimit: DefaultActivityLimit,
		now:           time.Now,
	}
}

// WithActivityLimit overrides how many activity records are retained.
func (s *Service) WithActivityLimit(n int) *Service {
	if n > 0 {
		s.activityLimit = n
	}
	return s
}

// WithRoleAuthorizer gates role assignment on behalf of an actor. Without
// one, actor-driven role changes are refused.
func (s *Service) WithRoleAuthorizer(a RoleAuthorizer) *Service {
	s.roles = a
	return s
}

func (s *Service) canAssignRoles(ctx context.Context, actor string) bool {
	return s.roles != nil && s.roles.HasPermission(ctx, actor, permission.RoleManagement)
}

// RegisterUser creates a user on behalf of actor. Roles above the default
// require role_management.
func (s *Service) RegisterUser(ctx context.Context, dto CreateUserDTO, actor string) (*UserResponse, error) {
	if dto.Role != "" {
		if role, err := permission.ParseRole(dto.Role); err == nil && role.Level() > permission.RoleUser.Level() && !s.canAssignRoles(ctx, actor) {
			s.logger.WarnContext(ctx, "role assignment denied on create", "actor", actor, "role", role)
			return nil, internal.ErrRoleChangeDenied
		}
	}
	return s.CreateUser(ctx, dto)
}

// CreateUser is the unprivileged path used by seeding and bootstrap.
func (s *Service) CreateUser(ctx context.Context, dto CreateUserDTO) (*UserResponse, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	role := permission.RoleUser
	if dto.Role != "" {
		r, err := permission.ParseRole(dto.Role)
		if err != nil {
			return nil, internal.NewValidationFieldError("role", err.Error(), internal.ErrCodeInvalidRole)
		}
		role = r
	}

	for _, key := range []string{dto.Username, dto.Email} {
		if _, err := s.store.FindByLogin(ctx, key); err == nil {
			return nil, internal.NewConflictError("username or email already taken", internal.ErrCodeDuplicateIdentity)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, internal.NewInternalError("failed to check identity", err)
		}
	}

	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	now := s.now()
	user := &User{
		ID:           uuid.NewString(),
		Username:     dto.Username,
		Email:        strings.ToLower(dto.Email),
		PasswordHash: hash,
		Role:         role,
		Status:       StatusActive,
		Preferences:  DefaultPreferences(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Put(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, internal.NewConflictError("username or email already taken", internal.ErrCodeDuplicateIdentity)
		}
		s.logger.ErrorContext(ctx, "failed to store user", "username", dto.Username, "error", err)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	s.LogActivity(ctx, user.ID, "user_created", map[string]interface{}{
		"username": user.Username,
		"role":     user.Role.String(),
	})
	s.logger.InfoContext(ctx, "user created", "user_id", user.ID, "username", user.Username, "role", user.Role)
	return user.ToResponse(), nil
}

func (s *Service) dummyVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("timing-equalizer")
	})
	s.hasher.Verify(password, s.dummyHash)
}

// Authenticate returns internal.ErrInvalidCredentials for every credential
// failure so callers cannot tell which check failed.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (*LoginResponse, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, internal.ErrInvalidCredentials
	}

	user, err := s.store.FindByLogin(ctx, dto.Identifier)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.ErrorContext(ctx, "login lookup failed", "error", err)
			return nil, internal.NewInternalError("authentication unavailable", err)
		}
		s.dummyVerify(dto.Password)
		return nil, internal.ErrInvalidCredentials
	}

	if !s.hasher.Verify(dto.Password, user.PasswordHash) || !user.IsActive() {
		s.logger.WarnContext(ctx, "login rejected", "user_id", user.ID, "status", user.Status)
		return nil, internal.ErrInvalidCredentials
	}

	now := s.now()
	user.LastLogin = &now
	user.LoginCount++
	user.UpdatedAt = now
	if err := s.store.Put(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "failed to record login", "user_id", user.ID, "error", err)
	}

	token, expiresAt, err := s.tokens.Issue(credential.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role.String(),
	})
	if err != nil {
		return nil, internal.NewInternalError("failed to issue token", err)
	}

	s.LogActivity(ctx, user.ID, "login", map[string]interface{}{
		"client_addr": internal.ClientAddrFromContext(ctx),
	})

	return &LoginResponse{
		User:      user.ToResponse(),
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) Logout(ctx context.Context, userID, token string) bool {
	ok := s.tokens.Revoke(ctx, token)
	if ok {
		s.LogActivity(ctx, userID, "logout", nil)
	}
	return ok
}

func (s *Service) get(ctx context.Context, id string) (*User, error) {
	user, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, internal.NewInternalError("failed to load user", err)
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.ToResponse(), nil
}

// UpdateUser applies the whitelisted patch. Unknown roles are ignored; a
// role change needs role_management on actor.
func (s *Service) UpdateUser(ctx context.Context, id string, dto UpdateUserDTO, actor string) (*UserResponse, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	oldRole, oldStatus := user.Role, user.Status

	if dto.Email != nil {
		email := strings.ToLower(*dto.Email)
		if email != user.Email {
			if other, err := s.store.FindByLogin(ctx, email); err == nil && other.ID != user.ID {
				return nil, internal.NewConflictError("username or email already taken", internal.ErrCodeDuplicateIdentity)
			}
			user.Email = email
		}
	}
	if dto.Role != nil {
		if role, err := permission.ParseRole(*dto.Role); err == nil {
			if role != user.Role && !s.canAssignRoles(ctx, actor) {
				s.logger.WarnContext(ctx, "role change denied", "actor", actor, "target_user", id, "role", role)
				return nil, internal.ErrRoleChangeDenied
			}
			user.Role = role
		} else {
			s.logger.WarnContext(ctx, "ignoring invalid role in update", "user_id", id, "role", *dto.Role)
		}
	}
	if dto.Status != nil {
		user.Status = Status(*dto.Status)
	}
	for k, v := range dto.Preferences {
		if user.Preferences == nil {
			user.Preferences = DefaultPreferences()
		}
		user.Preferences[k] = v
	}
	if dto.Password != nil {
		hash, err := s.hasher.Hash(*dto.Password)
		if err != nil {
			return nil, internal.NewInternalError("failed to hash password", err)
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now()

	if err := s.keepAnAdmin(ctx, id, oldRole, oldStatus, user.Role, user.Status); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, internal.NewConflictError("username or email already taken", internal.ErrCodeDuplicateIdentity)
		}
		return nil, internal.NewInternalError("failed to update user", err)
	}

	if user.Role != oldRole {
		s.roleChanged(ctx, user.ID, oldRole, user.Role, actor)
	}
	if user.Status != oldStatus {
		s.LogActivity(ctx, user.ID, "status_change", map[string]interface{}{
			"old_status": string(oldStatus),
			"new_status": string(user.Status),
			"changed_by": actor,
		})
	}
	return user.ToResponse(), nil
}

// keepAnAdmin refuses a change that would leave no active administrator.
func (s *Service) keepAnAdmin(ctx context.Context, id string, oldRole permission.Role, oldStatus Status, newRole permission.Role, newStatus Status) error {
	wasAdmin := oldStatus == StatusActive && oldRole.IsAdministrative()
	staysAdmin := newStatus == StatusActive && newRole.IsAdministrative()
	if !wasAdmin || staysAdmin {
		return nil
	}
	users, err := s.store.GetAll(ctx)
	if err != nil {
		return internal.NewInternalError("failed to load users", err)
	}
	for _, u := range users {
		if u.ID != id && u.IsActive() && u.Role.IsAdministrative() {
			return nil
		}
	}
	s.logger.WarnContext(ctx, "refusing to remove the last active administrator", "user_id", id)
	return internal.ErrLastAdmin
}

func (s *Service) roleChanged(ctx context.Context, userID string, oldRole, newRole permission.Role, actor string) {
	if s.publisher != nil {
		event := events.NewUserRoleChangedEvent(userID, oldRole.String(), newRole.String())
		if err := s.publisher.PublishSync(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "role change event failed", "user_id", userID, "error", err)
		}
	}
	s.LogActivity(ctx, userID, "role_change", map[string]interface{}{
		"old_role":   oldRole.String(),
		"new_role":   newRole.String(),
		"changed_by": actor,
	})
}

func (s *Service) DeleteUser(ctx context.Context, id, actor string) (bool, error) {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	user, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, internal.NewInternalError("failed to load user", err)
	}
	if err := s.keepAnAdmin(ctx, id, user.Role, user.Status, "", StatusDisabled); err != nil {
		return false, err
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, internal.NewInternalError("failed to delete user", err)
	}
	if !deleted {
		return false, nil
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSync(ctx, events.NewUserDeletedEvent(id)); err != nil {
			s.logger.ErrorContext(ctx, "user deleted event failed", "user_id", id, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id, "deleted_by", actor)
	return true, nil
}

// LogActivity never fails the caller; storage errors are logged.
func (s *Service) LogActivity(ctx context.Context, userID, action string, details map[string]interface{}) {
	err := s.store.AppendActivity(ctx, Activity{
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to append activity", "user_id", userID, "action", action, "error", err)
		return
	}
	if _, err := s.store.TrimActivity(ctx, s.activityLimit); err != nil {
		s.logger.WarnContext(ctx, "failed to trim activity log", "error", err)
	}
}

func (s *Service) GetActivity(ctx context.Context, userID string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityPage
	}
	activity, err := s.store.ListActivity(ctx, userID, limit)
	if err != nil {
		return nil, internal.NewInternalError("failed to load activity", err)
	}
	return activity, nil
}

// ListUsers returns users ordered by most recent login first.
func (s *Service) ListUsers(ctx context.Context, includeInactive bool) ([]*UserResponse, error) {
	users, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list users", err)
	}

	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i].LastLogin, users[j].LastLogin
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		if !includeInactive && !u.IsActive() {
			continue
		}
		out = append(out, u.ToResponse())
	}
	return out, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to load users", err)
	}

	stats := &Stats{TotalUsers: len(users), RoleDistribution: map[string]int{}}
	for _, u := range users {
		if u.IsActive() {
			stats.ActiveUsers++
		}
		stats.RoleDistribution[u.Role.String()]++
	}

	recent, err := s.store.CountActivitySince(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to count recent activity", "error", err)
	}
	stats.RecentActivity24h = recent
	return stats, nil
}

func (s *Service) ExportUser(ctx context.Context, id string) (*Export, error) {
	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	activity, err := s.store.ListActivity(ctx, id, 0)
	if err != nil {
		return nil, internal.NewInternalError("failed to load activity", err)
	}
	return &Export{User: user.ToResponse(), Activity: activity, ExportedAt: s.now()}, nil
}

func (s *Service) CleanupActivity(ctx context.Context, olderThan time.Duration) (int, error) {
	removed, err := s.store.DeleteActivityBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup activity: %w", err)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "old activity removed", "removed", removed)
	}
	return removed, nil
}

// EnsureAdmin makes sure an active administrative user exists. A bootstrap
// account left behind disabled or demoted is re-activated as super_admin
// with its password untouched; otherwise a new super_admin is created with
// the given credentials, which must be rotated.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	users, err := s.store.GetAll(ctx)
	if err != nil {
		return false, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if u.IsActive() && u.Role.IsAdministrative() {
			return false, nil
		}
	}

	for _, login := range []string{username, email} {
		existing, err := s.store.FindByLogin(ctx, login)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("look up bootstrap admin: %w", err)
		}
		if err := s.restoreAdmin(ctx, existing); err != nil {
			return false, err
		}
		return true, nil
	}

	_, err = s.CreateUser(ctx, CreateUserDTO{
		Username: username,
		Email:    email,
		Password: password,
		Role:     permission.RoleSuperAdmin.String(),
	})
	if err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	s.logger.WarnContext(ctx, "bootstrap admin created with default credentials; rotate them now", "username", username)
	return true, nil
}

func (s *Service) restoreAdmin(ctx context.Context, user *User) error {
	oldRole, oldStatus := user.Role, user.Status
	user.Role = permission.RoleSuperAdmin
	user.Status = StatusActive
	user.UpdatedAt = s.now()
	if err := s.store.Put(ctx, user); err != nil {
		return fmt.Errorf("restore bootstrap admin: %w", err)
	}
	if oldRole != user.Role {
		s.roleChanged(ctx, user.ID, oldRole, user.Role, "system")
	}
	if oldStatus != user.Status {
		s.LogActivity(ctx, user.ID, "status_change", map[string]interface{}{
			"old_status": string(oldStatus),
			"new_status": string(user.Status),
			"changed_by": "system",
		})
	}
	s.logger.WarnContext(ctx, "bootstrap admin restored; rotate its credentials", "user_id", user.ID, "username", user.Username)
	return nil
}

// RoleOf, SetRole and RoleDistribution let the permission model read and
// write roles without depending on this package.
func (s *Service) RoleOf(ctx context.Context, userID string) (permission.Role, error) {
	user, err := s.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (s *Service) SetRole(ctx context.Context, userID string, role permission.Role) error {
	s.adminMu.Lock()
	user, err := s.get(ctx, userID)
	if err != nil {
		s.adminMu.Unlock()
		return err
	}
	if user.Role == role {
		s.adminMu.Unlock()
		return nil
	}
	old := user.Role
	if err := s.keepAnAdmin(ctx, userID, old, user.Status, role, user.Status); err != nil {
		s.adminMu.Unlock()
		return err
	}
	user.Role = role
	user.UpdatedAt = s.now()
	err = s.store.Put(ctx, user)
	s.adminMu.Unlock()
	if err != nil {
		return fmt.Errorf("store role: %w", err)
	}
	s.roleChanged(ctx, userID, old, role, internal.UserIDFromContext(ctx))
	return nil
}

func (s *Service) RoleDistribution(ctx context.Context) (map[string]int, error) {
	users, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	dist := make(map[string]int)
	for _, u := range users {
		dist[u.Role.String()]++
	}
	return dist, nil
}
