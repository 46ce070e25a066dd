package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

type SkillRepo interface {
	Create(dbc dbctx.Context, skills []*domain.Skill) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Skill, error)
	GetByName(dbc dbctx.Context, agentVersion, feedbackName, name string) (*domain.Skill, error)
	List(dbc dbctx.Context, ownerKey string, status *domain.SkillStatus, limit int) ([]*domain.Skill, error)
	UpdateContent(dbc dbctx.Context, id uuid.UUID, content []byte, sourceFeedbackID *uuid.UUID) (int64, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status domain.SkillStatus) (int64, error)
	DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error)
}

type skillRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSkillRepo(db *gorm.DB, baseLog *logger.Logger) SkillRepo {
	return &skillRepo{db: db, log: baseLog.With("repo", "SkillRepo")}
}

func (r *skillRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *skillRepo) Create(dbc dbctx.Context, skills []*domain.Skill) error {
	if len(skills) == 0 {
		return nil
	}
	now := time.Now()
	for _, s := range skills {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.Status == "" {
			s.Status = domain.SkillDraft
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		s.UpdatedAt = now
		s.LastModifiedUnix = now.Unix()
	}
	return r.conn(dbc).Create(&skills).Error
}

func (r *skillRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Skill, error) {
	var s domain.Skill
	err := r.conn(dbc).Where("id = ?", id).Limit(1).Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *skillRepo) GetByName(dbc dbctx.Context, agentVersion, feedbackName, name string) (*domain.Skill, error) {
	var s domain.Skill
	err := r.conn(dbc).
		Where("agent_version = ? AND feedback_name = ? AND name = ?", agentVersion, feedbackName, name).
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *skillRepo) List(dbc dbctx.Context, ownerKey string, status *domain.SkillStatus, limit int) ([]*domain.Skill, error) {
	q := r.conn(dbc).Model(&domain.Skill{})
	if ownerKey != "" {
		q = q.Where(partitionExpr+" = ?", ownerKey)
	}
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*domain.Skill
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *skillRepo) UpdateContent(dbc dbctx.Context, id uuid.UUID, content []byte, sourceFeedbackID *uuid.UUID) (int64, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"content":            content,
		"last_modified_unix": now.Unix(),
		"updated_at":         now,
	}
	if sourceFeedbackID != nil {
		updates["source_feedback_id"] = *sourceFeedbackID
	}
	res := r.conn(dbc).Model(&domain.Skill{}).Where("id = ?", id).Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *skillRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status domain.SkillStatus) (int64, error) {
	now := time.Now()
	res := r.conn(dbc).Model(&domain.Skill{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":             status,
		"last_modified_unix": now.Unix(),
		"updated_at":         now,
	})
	return res.RowsAffected, res.Error
}

func (r *skillRepo) DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	res := r.conn(dbc).Where("id = ?", id).Delete(&domain.Skill{})
	return res.RowsAffected, res.Error
}
