package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AggregatedFeedback struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AgentVersion     string         `gorm:"column:agent_version;not null;index:idx_agg_feedback_partition" json:"agent_version"`
	FeedbackName     string         `gorm:"column:feedback_name;not null;index:idx_agg_feedback_partition" json:"feedback_name"`
	RotationStatus   RotationStatus `gorm:"column:rotation_status;index;default:''" json:"rotation_status"`
	Summary          datatypes.JSON `gorm:"type:jsonb;column:summary" json:"summary"`
	RawFeedbackIDs   datatypes.JSON `gorm:"type:jsonb;column:raw_feedback_ids" json:"raw_feedback_ids"`
	ClusterCount     int            `gorm:"column:cluster_count;not null;default:0" json:"cluster_count"`
	LastModifiedUnix int64          `gorm:"column:last_modified_unix;not null;default:0" json:"last_modified_timestamp"`
	CreatedAt        time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (AggregatedFeedback) TableName() string { return "aggregated_feedback" }

func (a *AggregatedFeedback) PartitionKey() string {
	return a.AgentVersion + "/" + a.FeedbackName
}
