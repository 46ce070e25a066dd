package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SkillStatus is the per-artifact skill state machine. It is independent
// of the bulk rotation: draft -> published -> deprecated, with
// draft -> deprecated also legal and nothing leaving deprecated.
type SkillStatus string

const (
	SkillDraft      SkillStatus = "draft"
	SkillPublished  SkillStatus = "published"
	SkillDeprecated SkillStatus = "deprecated"
)

func (s SkillStatus) Valid() bool {
	switch s {
	case SkillDraft, SkillPublished, SkillDeprecated:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s SkillStatus) CanTransitionTo(next SkillStatus) bool {
	if !next.Valid() || s == next {
		return false
	}
	switch s {
	case SkillDraft:
		return next == SkillPublished || next == SkillDeprecated
	case SkillPublished:
		return next == SkillDeprecated
	}
	return false
}

type Skill struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AgentVersion     string         `gorm:"column:agent_version;not null;uniqueIndex:idx_skill_partition_name" json:"agent_version"`
	FeedbackName     string         `gorm:"column:feedback_name;not null;uniqueIndex:idx_skill_partition_name" json:"feedback_name"`
	Name             string         `gorm:"column:name;not null;uniqueIndex:idx_skill_partition_name" json:"name"`
	Status           SkillStatus    `gorm:"column:status;not null;index;default:'draft'" json:"status"`
	Content          datatypes.JSON `gorm:"type:jsonb;column:content" json:"content"`
	SourceFeedbackID *uuid.UUID     `gorm:"type:uuid;column:source_feedback_id;index" json:"source_feedback_id,omitempty"`
	LastModifiedUnix int64          `gorm:"column:last_modified_unix;not null;default:0" json:"last_modified_timestamp"`
	CreatedAt        time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (Skill) TableName() string { return "skill" }
