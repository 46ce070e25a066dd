package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RawFeedback is a unit-level feedback item. It is immutable once created
// except for its rotation status and the aggregation link set when an
// aggregation run consumes it.
type RawFeedback struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AgentVersion     string         `gorm:"column:agent_version;not null;index:idx_raw_feedback_partition" json:"agent_version"`
	FeedbackName     string         `gorm:"column:feedback_name;not null;index:idx_raw_feedback_partition" json:"feedback_name"`
	RotationStatus   RotationStatus `gorm:"column:rotation_status;index;default:''" json:"rotation_status"`
	Payload          datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	AggregatedIntoID *uuid.UUID     `gorm:"type:uuid;column:aggregated_into_id;index" json:"aggregated_into_id,omitempty"`
	LastModifiedUnix int64          `gorm:"column:last_modified_unix;not null;default:0" json:"last_modified_timestamp"`
	CreatedAt        time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (RawFeedback) TableName() string { return "raw_feedback" }

// PartitionKey is the owner key raw feedback rotates and aggregates
// within: (agent_version, feedback_name).
func (f *RawFeedback) PartitionKey() string {
	return f.AgentVersion + "/" + f.FeedbackName
}
