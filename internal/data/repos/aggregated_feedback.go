package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

type AggregatedFeedbackRepo interface {
	Create(dbc dbctx.Context, items []*domain.AggregatedFeedback) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.AggregatedFeedback, error)
	List(dbc dbctx.Context, ownerKey string, status *domain.RotationStatus, limit int) ([]*domain.AggregatedFeedback, error)
	DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error)
	Partitions(dbc dbctx.Context, status *domain.RotationStatus) ([]string, error)

	OwnersWithStatus(dbc dbctx.Context, status domain.RotationStatus) ([]string, error)
	UpdateStatusForOwners(dbc dbctx.Context, owners []string, from, to domain.RotationStatus) (int64, error)
	DeleteWithStatusForOwners(dbc dbctx.Context, owners []string, status domain.RotationStatus) (int64, error)
	SetStatus(dbc dbctx.Context, id uuid.UUID, status domain.RotationStatus) (int64, error)
}

type aggregatedFeedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAggregatedFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) AggregatedFeedbackRepo {
	return &aggregatedFeedbackRepo{db: db, log: baseLog.With("repo", "AggregatedFeedbackRepo")}
}

func (r *aggregatedFeedbackRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *aggregatedFeedbackRepo) Create(dbc dbctx.Context, items []*domain.AggregatedFeedback) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now()
	for _, a := range items {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
		a.LastModifiedUnix = now.Unix()
	}
	return r.conn(dbc).Create(&items).Error
}

func (r *aggregatedFeedbackRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.AggregatedFeedback, error) {
	var a domain.AggregatedFeedback
	err := r.conn(dbc).Where("id = ?", id).Limit(1).Find(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == uuid.Nil {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r *aggregatedFeedbackRepo) List(dbc dbctx.Context, ownerKey string, status *domain.RotationStatus, limit int) ([]*domain.AggregatedFeedback, error) {
	q := r.conn(dbc).Model(&domain.AggregatedFeedback{})
	if ownerKey != "" {
		q = q.Where(partitionExpr+" = ?", ownerKey)
	}
	if status != nil {
		q = scopeRotationStatus(q, "rotation_status", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*domain.AggregatedFeedback
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *aggregatedFeedbackRepo) DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	res := r.conn(dbc).Where("id = ?", id).Delete(&domain.AggregatedFeedback{})
	return res.RowsAffected, res.Error
}

func (r *aggregatedFeedbackRepo) Partitions(dbc dbctx.Context, status *domain.RotationStatus) ([]string, error) {
	q := r.conn(dbc).Model(&domain.AggregatedFeedback{})
	if status != nil {
		q = scopeRotationStatus(q, "rotation_status", *status)
	}
	var out []string
	if err := q.Distinct().Pluck(partitionExpr, &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *aggregatedFeedbackRepo) OwnersWithStatus(dbc dbctx.Context, status domain.RotationStatus) ([]string, error) {
	var owners []string
	q := scopeRotationStatus(r.conn(dbc).Model(&domain.AggregatedFeedback{}), "rotation_status", status)
	if err := q.Distinct().Pluck(partitionExpr, &owners).Error; err != nil {
		return nil, err
	}
	return owners, nil
}

func (r *aggregatedFeedbackRepo) UpdateStatusForOwners(dbc dbctx.Context, owners []string, from, to domain.RotationStatus) (int64, error) {
	q := scopeRotationStatus(r.conn(dbc).Model(&domain.AggregatedFeedback{}), "rotation_status", from)
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

func (r *aggregatedFeedbackRepo) DeleteWithStatusForOwners(dbc dbctx.Context, owners []string, status domain.RotationStatus) (int64, error) {
	q := scopeRotationStatus(r.conn(dbc).Model(&domain.AggregatedFeedback{}), "rotation_status", status)
	if owners != nil {
		q = q.Where(partitionExpr+" IN ?", owners)
	}
	res := q.Delete(&domain.AggregatedFeedback{})
	return res.RowsAffected, res.Error
}

func (r *aggregatedFeedbackRepo) SetStatus(dbc dbctx.Context, id uuid.UUID, status domain.RotationStatus) (int64, error) {
	now := time.Now()
	res := r.conn(dbc).Model(&domain.AggregatedFeedback{}).Where("id = ?", id).Updates(map[string]interface{}{
		"rotation_status":    status,
		"last_modified_unix": now.Unix(),
		"updated_at":         now,
	})
	return res.RowsAffected, res.Error
}
