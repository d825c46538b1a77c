package models

import (
	"time"

	"github.com/google/uuid"
)

// Warehouse is a physical stock location. Exactly one warehouse carries the
// default flag; the timeout sweep releases stock against it.
type Warehouse struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code      string    `gorm:"column:code;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	IsDefault bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
