package identity

import (
	"time"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/core/common/validation"
	"github.com/frahmantamala/assistant-guard/internal/permission"
)

type CreateUserDTO struct {
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
	Role     string `json:"role,omitempty" yaml:"role"`
}

func roleNames() []string {
	out := []string{"agent", "viewer"}
	for _, r := range permission.Roles() {
		out = append(out, r.String())
	}
	return out
}

func (dto CreateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("username", dto.Username).Required().MinLength(3).MaxLength(64).Identifier()
	v.Field("email", dto.Email).Required().MaxLength(255).Email()
	v.Field("password", dto.Password).Required().MinLength(8).MaxLength(72)
	v.Field("role", dto.Role).OneOf(roleNames(), internal.ErrCodeInvalidRole)
	return v.Validate()
}

// UpdateUserDTO only carries the mutable fields; nil means unchanged.
type UpdateUserDTO struct {
	Email       *string                `json:"email,omitempty"`
	Role        *string                `json:"role,omitempty"`
	Status      *string                `json:"status,omitempty"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
	Password    *string                `json:"password,omitempty"`
}

// Validate skips role on purpose: unknown roles in a patch are ignored.
func (dto UpdateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	if dto.Email != nil {
		v.Field("email", *dto.Email).Required().MaxLength(255).Email()
	}
	if dto.Status != nil {
		v.Field("status", *dto.Status).Required().OneOf(StatusValues(), internal.ErrCodeInvalidStatus)
	}
	if dto.Password != nil {
		v.Field("password", *dto.Password).Required().MinLength(8).MaxLength(72)
	}
	return v.Validate()
}

type LoginDTO struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (dto LoginDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("identifier", dto.Identifier).Required().MaxLength(255)
	v.Field("password", dto.Password).Required().MaxLength(72)
	return v.Validate()
}

type UserResponse struct {
	ID          string                 `json:"id"`
	Username    string                 `json:"username"`
	Email       string                 `json:"email"`
	Role        string                 `json:"role"`
	Status      string                 `json:"status"`
	Preferences map[string]interface{} `json:"preferences"`
	LastLogin   *time.Time             `json:"last_login,omitempty"`
	LoginCount  int                    `json:"login_count"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ToResponse drops the password hash.
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role.String(),
		Status:      string(u.Status),
		Preferences: u.Preferences,
		LastLogin:   u.LastLogin,
		LoginCount:  u.LoginCount,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type LoginResponse struct {
	User      *UserResponse `json:"user"`
	Token     string        `json:"token"`
	TokenType string        `json:"token_type"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type UsersResponse struct {
	Users []*UserResponse `json:"users"`
	Total int             `json:"total"`
}

type ActivityResponse struct {
	UserID   string     `json:"user_id"`
	Activity []Activity `json:"activity"`
}

type Stats struct {
	TotalUsers        int            `json:"total_users"`
	ActiveUsers       int            `json:"active_users"`
	RoleDistribution  map[string]int `json:"role_distribution"`
	RecentActivity24h int            `json:"recent_activity_24h"`
}

type Export struct {
	User       *UserResponse `json:"user"`
	Activity   []Activity    `json:"activity"`
	ExportedAt time.Time     `json:"exported_at"`
}
