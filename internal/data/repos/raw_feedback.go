package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

// partitionExpr concatenates the composite owner key the way
// domain.RawFeedback.PartitionKey does, so callers can filter bulk
// operations by a list of "version/name" strings.
const partitionExpr = "(agent_version || '/' || feedback_name)"

type RawFeedbackRepo interface {
	Create(dbc dbctx.Context, items []*domain.RawFeedback) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.RawFeedback, error)
	List(dbc dbctx.Context, ownerKey string, status *domain.RotationStatus, limit int) ([]*domain.RawFeedback, error)
	DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error)

	ListUnaggregated(dbc dbctx.Context, agentVersion, feedbackName string) ([]*domain.RawFeedback, error)
	CountUnaggregated(dbc dbctx.Context, agentVersion, feedbackName string) (int64, error)
	MarkAggregated(dbc dbctx.Context, ids []uuid.UUID, aggregatedInto uuid.UUID) (int64, error)
	Partitions(dbc dbctx.Context) ([]string, error)

	OwnersWithStatus(dbc dbctx.Context, status domain.RotationStatus) ([]string, error)
	UpdateStatusForOwners(dbc dbctx.Context, owners []string, from, to domain.RotationStatus) (int64, error)
	DeleteWithStatusForOwners(dbc dbctx.Context, owners []string, status domain.RotationStatus) (int64, error)
	SetStatus(dbc dbctx.Context, id uuid.UUID, status domain.RotationStatus) (int64, error)
}

type rawFeedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRawFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) RawFeedbackRepo {
	return &rawFeedbackRepo{db: db, log: baseLog.With("repo", "RawFeedbackRepo")}
}

func (r *rawFeedbackRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *rawFeedbackRepo) Create(dbc dbctx.Context, items []*domain.RawFeedback) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now()
	for _, f := range items {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		f.UpdatedAt = now
		f.LastModifiedUnix = now.Unix()
	}
	return r.conn(dbc).Create(&items).Error
}

func (r *rawFeedbackRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.RawFeedback, error) {
	var f domain.RawFeedback
	err := r.conn(dbc).Where("id = ?", id).Limit(1).Find(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == uuid.Nil {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

func (r *rawFeedbackRepo) List(dbc dbctx.Context, ownerKey string, status *domain.RotationStatus, limit int) ([]*domain.RawFeedback, error) {
	q := r.conn(dbc).Model(&domain.RawFeedback{})
	if ownerKey != "" {
		q = q.Where(partitionExpr+" = ?", ownerKey)
	}
	if status != nil {
		q = scopeRotationStatus(q, "rotation_status", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*domain.RawFeedback
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rawFeedbackRepo) DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	res := r.conn(dbc).Where("id = ?", id).Delete(&domain.RawFeedback{})
	return res.RowsAffected, res.Error
}

func (r *rawFeedbackRepo) ListUnaggregated(dbc dbctx.Context, agentVersion, feedbackName string) ([]*domain.RawFeedback, error) {
	var out []*domain.RawFeedback
	err := r.conn(dbc).
		Where("agent_version = ? AND feedback_name = ? AND aggregated_into_id IS NULL", agentVersion, feedbackName).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rawFeedbackRepo) CountUnaggregated(dbc dbctx.Context, agentVersion, feedbackName string) (int64, error) {
	var n int64
	err := r.conn(dbc).Model(&domain.RawFeedback{}).
		Where("agent_version = ? AND feedback_name = ? AND aggregated_into_id IS NULL", agentVersion, feedbackName).
		Count(&n).Error
	return n, err
}

func (r *rawFeedbackRepo) MarkAggregated(dbc dbctx.Context, ids []uuid.UUID, aggregatedInto uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	res := r.conn(dbc).Model(&domain.RawFeedback{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"aggregated_into_id": aggregatedInto,
			"last_modified_unix": now.Unix(),
			"updated_at":         now,
		})
	return res.RowsAffected, res.Error
}

func (r *rawFeedbackRepo) Partitions(dbc dbctx.Context) ([]string, error) {
	var out []string
	err := r.conn(dbc).Model(&domain.RawFeedback{}).
		Distinct().
		Pluck(partitionExpr, &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rawFeedbackRepo) OwnersWithStatus(dbc dbctx.Context, status domain.RotationStatus) ([]string, error) {
	var owners []string
	q := scopeRotationStatus(r.conn(dbc).Model(&domain.RawFeedback{}), "rotation_status", status)
	if err := q.Distinct().Pluck(partitionExpr, &owners).Error; err != nil {
		return nil, err
	}
	return owners, nil
}

func (r *rawFeedbackRepo) UpdateStatusForOwners(dbc dbctx.Context, owners []string, from, to domain.RotationStatus) (int64, error) {
	q := scopeRotationStatus(r.conn(dbc).Model(&domain.RawFeedback{}), "rotation_status", from)
	if owners != nil {
		q = q.Where(partitionExpr+" IN ?", owners)
	}
	now := time.Now()
	res := q.Updates(map[string]interface{}{
		"rotation_status":    to,
		"last_modified_unix": now.Unix(),
		"updated_at":         now,
	})
	return res.RowsAffected, res.Error
}

func (r *rawFeedbackRepo) DeleteWithStatusForOwners(dbc dbctx.Context, owners []string, status domain.RotationStatus) (int64, error) {
	q := scopeRotationStatus(r.conn(dbc).Model(&domain.RawFeedback{}), "rotation_status", status)
	if owners != nil {
		q = q.Where(partitionExpr+" IN ?", owners)
	}
	res := q.Delete(&domain.RawFeedback{})
	return res.RowsAffected, res.Error
}

func (r *rawFeedbackRepo) SetStatus(dbc dbctx.Context, id uuid.UUID, status domain.RotationStatus) (int64, error) {
	now := time.Now()
	res := r.conn(dbc).Model(&domain.RawFeedback{}).Where("id = ?", id).Updates(map[string]interface{}{
		"rotation_status":    status,
		"last_modified_unix": now.Unix(),
		"updated_at":         now,
	})
	return res.RowsAffected, res.Error
}
