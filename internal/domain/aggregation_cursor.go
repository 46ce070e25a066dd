package domain

import "time"

// AggregationCursor tracks, per (agent_version, feedback_name) partition,
// how much raw feedback arrived since the last successful aggregation.
// The counter resets to zero on success only; a failed attempt keeps the
// accumulated signal.
type AggregationCursor struct {
	AgentVersion     string     `gorm:"column:agent_version;primaryKey" json:"agent_version"`
	FeedbackName     string     `gorm:"column:feedback_name;primaryKey" json:"feedback_name"`
	SinceLastCount   int        `gorm:"column:since_last_count;not null;default:0" json:"since_last_count"`
	LastAggregatedAt *time.Time `gorm:"column:last_aggregated_at" json:"last_aggregated_at,omitempty"`
	UpdatedAt        time.Time  `gorm:"not null" json:"updated_at"`
}

func (AggregationCursor) TableName() string { return "aggregation_cursor" }
