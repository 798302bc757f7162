package identity

import (
	"context"
	"errors"
	"time"

	identityDatamodel "github.com/frahmantamala/assistant-guard/internal/core/datamodel/identity"
	"github.com/frahmantamala/assistant-guard/internal/permission"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDisabled  Status = "disabled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusDisabled:
		return true
	}
	return false
}

func StatusValues() []string {
	return []string{string(StatusActive), string(StatusSuspended), string(StatusDisabled)}
}

const (
	DefaultActivityLimit = 1000
	DefaultActivityPage  = 50
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username or email already taken")
)

func DefaultPreferences() map[string]interface{} {
	return map[string]interface{}{
		"theme":         "dark",
		"language":      "en",
		"notifications": true,
	}
}

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         permission.Role
	Status       Status
	Preferences  map[string]interface{}
	LastLogin    *time.Time
	LoginCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

func (u *User) clone() *User {
	c := *u
	c.Preferences = make(map[string]interface{}, len(u.Preferences))
	for k, v := range u.Preferences {
		c.Preferences[k] = v
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

type Activity struct {
	ID        int64                  `json:"id"`
	UserID    string                 `json:"user_id"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Store is the pluggable persistence contract. Get/GetAll/Put/Delete/
// AppendActivity are the core; the rest are query helpers a store can
// answer more cheaply than a full scan.
type Store interface {
	Get(ctx context.Context, id string) (*User, error)
	GetAll(ctx context.Context) ([]*User, error)
	Put(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) (bool, error)
	AppendActivity(ctx context.Context, activity Activity) error

	FindByLogin(ctx context.Context, identifier string) (*User, error)
	ListActivity(ctx context.Context, userID string, limit int) ([]Activity, error)
	TrimActivity(ctx context.Context, keep int) (int, error)
	DeleteActivityBefore(ctx context.Context, before time.Time) (int, error)
	CountActivitySince(ctx context.Context, since time.Time) (int, error)
}

func ToDataModel(u *User) *identityDatamodel.User {
	return &identityDatamodel.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role.String(),
		Status:       string(u.Status),
		Preferences:  u.Preferences,
		LastLogin:    u.LastLogin,
		LoginCount:   u.LoginCount,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// FromDataModel maps stored rows back; unknown stored roles degrade to guest.
func FromDataModel(m *identityDatamodel.User) *User {
	role, err := permission.ParseRole(m.Role)
	if err != nil {
		role = permission.RoleGuest
	}
	prefs := m.Preferences
	if prefs == nil {
		prefs = DefaultPreferences()
	}
	return &User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         role,
		Status:       Status(m.Status),
		Preferences:  prefs,
		LastLogin:    m.LastLogin,
		LoginCount:   m.LoginCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func ActivityToDataModel(a Activity) *identityDatamodel.Activity {
	return &identityDatamodel.Activity{
		ID:        a.ID,
		UserID:    a.UserID,
		Action:    a.Action,
		Details:   a.Details,
		Timestamp: a.Timestamp,
	}
}

func ActivityFromDataModel(m identityDatamodel.Activity) Activity {
	return Activity{
		ID:        m.ID,
		UserID:    m.UserID,
		Action:    m.Action,
		Details:   m.Details,
		Timestamp: m.Timestamp,
	}
}
