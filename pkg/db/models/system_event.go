package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/novamart/novamart-backend/pkg/enums"
)

// SystemEvent is an append-only operational audit entry (webhook volume,
// release failures, unrecorded refunds). Consumed by dashboards, produces no
// domain behavior.
type SystemEvent struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type      enums.SystemEventType `gorm:"column:type;type:system_event_type;not null;index"`
	RefID     *uuid.UUID            `gorm:"column:ref_id;type:uuid"`
	Metadata  json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}
