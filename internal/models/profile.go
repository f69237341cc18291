package models

import (
	"time"
)

// Profile is a portal member as stored in the chameleons table
type Profile struct {
	UserID         int64     `gorm:"column:user_id;primaryKey" json:"user_id"`
	AuthID         string    `gorm:"column:auth_id;uniqueIndex;not null" json:"auth_id"`
	Username       string    `gorm:"column:username;not null" json:"username"`
	ProfileImage   string    `gorm:"column:profile_image" json:"profile_image,omitempty"`
	CurrentLevel   int       `gorm:"column:current_level;not null;default:1;index" json:"current_level"`
	Specialization string    `gorm:"column:specialization" json:"specialization,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Profile) TableName() string {
	return "chameleons"
}
