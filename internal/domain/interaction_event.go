package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// InteractionEvent is one entry of an agent's interaction timeline. The
// window planner slices the per-owner ordered sequence of these events.
type InteractionEvent struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerKey     string         `gorm:"column:owner_key;not null;index" json:"owner_key"`
	AgentVersion string         `gorm:"column:agent_version;not null;index" json:"agent_version"`
	Source       string         `gorm:"column:source;index" json:"source"`
	Payload      datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
}

func (InteractionEvent) TableName() string { return "interaction_event" }
