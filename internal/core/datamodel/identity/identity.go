package identity

import "time"

type User struct {
	ID           string                 `gorm:"column:id;primaryKey;size:36"`
	Username     string                 `gorm:"column:username;uniqueIndex;not null"`
	Email        string                 `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string                 `gorm:"column:password_hash;not null"`
	Role         string                 `gorm:"column:role;not null;index"`
	Status       string                 `gorm:"column:status;not null"`
	Preferences  map[string]interface{} `gorm:"column:preferences;serializer:json"`
	LastLogin    *time.Time             `gorm:"column:last_login"`
	LoginCount   int                    `gorm:"column:login_count;not null"`
	CreatedAt    time.Time              `gorm:"column:created_at"`
	UpdatedAt    time.Time              `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

type Activity struct {
	ID        int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string                 `gorm:"column:user_id;index;not null"`
	Action    string                 `gorm:"column:action;not null"`
	Details   map[string]interface{} `gorm:"column:details;serializer:json"`
	Timestamp time.Time              `gorm:"column:occurred_at;index;not null"`
}

func (Activity) TableName() string {
	return "user_activity"
}
