package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Profile struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 string         `gorm:"column:user_id;not null;index" json:"user_id"`
	ExtractorName          string         `gorm:"column:extractor_name;not null;index" json:"extractor_name"`
	RotationStatus         RotationStatus `gorm:"column:rotation_status;index;default:''" json:"rotation_status"`
	Content                datatypes.JSON `gorm:"type:jsonb;column:content" json:"content"`
	GeneratedFromRequestID string         `gorm:"column:generated_from_request_id" json:"generated_from_request_id"`
	WindowStart            int            `gorm:"column:window_start;not null;default:0" json:"window_start"`
	WindowEnd              int            `gorm:"column:window_end;not null;default:0" json:"window_end"`
	ExpirationUnix         int64          `gorm:"column:expiration_unix;not null;default:0" json:"expiration_timestamp"`
	LastModifiedUnix       int64          `gorm:"column:last_modified_unix;not null;default:0" json:"last_modified_timestamp"`
	CreatedAt              time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "profile" }
