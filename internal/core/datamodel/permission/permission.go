package permission

import "time"

// Override is a persisted custom grant or restriction for one user.
type Override struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID     string    `gorm:"column:user_id;not null;uniqueIndex:idx_override_user_permission"`
	Permission string    `gorm:"column:permission;not null;uniqueIndex:idx_override_user_permission"`
	Kind       string    `gorm:"column:kind;not null"`
	GrantedBy  string    `gorm:"column:granted_by"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (Override) TableName() string {
	return "permission_overrides"
}
