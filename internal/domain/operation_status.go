package domain

import (
	"time"

	"gorm.io/datatypes"
)

// OperationKind names one of the fixed long-running operation kinds. The
// kind is the identity of its status record: at most one row per kind.
type OperationKind string

const (
	OpProfileGeneration       OperationKind = "profile_generation"
	OpRerunProfileGeneration  OperationKind = "rerun_profile_generation"
	OpRerunFeedbackGeneration OperationKind = "rerun_feedback_generation"
	OpFeedbackAggregation     OperationKind = "feedback_aggregation"
	OpSkillSynthesis          OperationKind = "skill_synthesis"
)

func (k OperationKind) Valid() bool {
	switch k {
	case OpProfileGeneration, OpRerunProfileGeneration, OpRerunFeedbackGeneration,
		OpFeedbackAggregation, OpSkillSynthesis:
		return true
	}
	return false
}

type OperationState string

const (
	OperationInProgress OperationState = "in_progress"
	OperationCompleted  OperationState = "completed"
	OperationFailed     OperationState = "failed"
	OperationCancelled  OperationState = "cancelled"
)

// OperationStatus is the one record per operation kind that pollers read.
// Writers are the tracker's run loop plus RequestCancel, which only flips
// cancel_requested.
type OperationStatus struct {
	Kind               OperationKind  `gorm:"column:kind;primaryKey" json:"kind"`
	Status             OperationState `gorm:"column:status;not null;index" json:"status"`
	TotalUnits         int            `gorm:"column:total_units;not null;default:0" json:"total_units"`
	ProcessedUnits     int            `gorm:"column:processed_units;not null;default:0" json:"processed_units"`
	ProgressPercentage float64        `gorm:"column:progress_percentage;not null;default:0" json:"progress_percentage"`
	CurrentUnitID      string         `gorm:"column:current_unit_id" json:"current_unit_id"`
	Stats              datatypes.JSON `gorm:"type:jsonb;column:stats" json:"stats"`
	ErrorMessage       string         `gorm:"column:error_message" json:"error_message"`
	CancelRequested    bool           `gorm:"column:cancel_requested;not null;default:false" json:"cancel_requested"`
	StartedAt          *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt         *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt          time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null" json:"updated_at"`
}

func (OperationStatus) TableName() string { return "operation_status" }

// ProgressPct computes processed/total as a percentage clamped to
// [0,100], defined as 0 when total is 0.
func ProgressPct(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(processed) / float64(total) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
