package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// User is the minimal row kept for foreign keys; profile and credential
// management live in the external identity service.
type User struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string           `gorm:"column:email;not null;uniqueIndex"`
	Role      enums.MemberRole `gorm:"column:role;type:text;not null;default:'buyer'"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
