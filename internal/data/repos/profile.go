package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

type ProfileRepo interface {
	Create(dbc dbctx.Context, profiles []*domain.Profile) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Profile, error)
	List(dbc dbctx.Context, ownerKey string, status *domain.RotationStatus, limit int) ([]*domain.Profile, error)
	DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error)

	OwnersWithStatus(dbc dbctx.Context, status domain.RotationStatus) ([]string, error)
	UpdateStatusForOwners(dbc dbctx.Context, owners []string, from, to domain.RotationStatus) (int64, error)
	DeleteWithStatusForOwners(dbc dbctx.Context, owners []string, status domain.RotationStatus) (int64, error)
	SetStatus(dbc dbctx.Context, id uuid.UUID, status domain.RotationStatus) (int64, error)
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return &profileRepo{db: db, log: baseLog.With("repo", "ProfileRepo")}
}

func (r *profileRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *profileRepo) Create(dbc dbctx.Context, profiles []*domain.Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	now := time.Now()
	for _, p := range profiles {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		p.LastModifiedUnix = now.Unix()
	}
	return r.conn(dbc).Create(&profiles).Error
}

func (r *profileRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Profile, error) {
	var p domain.Profile
	err := r.conn(dbc).Where("id = ?", id).Limit(1).Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *profileRepo) List(dbc dbctx.Context, ownerKey string, status *domain.RotationStatus, limit int) ([]*domain.Profile, error) {
	q := r.conn(dbc).Model(&domain.Profile{})
	if ownerKey != "" {
		q = q.Where("user_id = ?", ownerKey)
	}
	if status != nil {
		q = scopeRotationStatus(q, "rotation_status", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*domain.Profile
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *profileRepo) DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	res := r.conn(dbc).Where("id = ?", id).Delete(&domain.Profile{})
	return res.RowsAffected, res.Error
}

func (r *profileRepo) OwnersWithStatus(dbc dbctx.Context, status domain.RotationStatus) ([]string, error) {
	var owners []string
	q := scopeRotationStatus(r.conn(dbc).Model(&domain.Profile{}), "rotation_status", status)
	if err := q.Distinct("user_id").Pluck("user_id", &owners).Error; err != nil {
		return nil, err
	}
	return owners, nil
}

func (r *profileRepo) UpdateStatusForOwners(dbc dbctx.Context, owners []string, from, to domain.RotationStatus) (int64, error) {
	q := scopeRotationStatus(r.conn(dbc).Model(&domain.Profile{}), "rotation_status", from)
	if owners != nil {
		q = q.Where("user_id IN ?", owners)
	}
	now := time.Now()
	res := q.Updates(map[string]interface{}{
		"rotation_status":    to,
		"last_modified_unix": now.Unix(),
		"updated_at":         now,
	})
	return res.RowsAffected, res.Error
}

func (r *profileRepo) DeleteWithStatusForOwners(dbc dbctx.Context, owners []string, status domain.RotationStatus) (int64, error) {
	q := scopeRotationStatus(r.conn(dbc).Model(&domain.Profile{}), "rotation_status", status)
	if owners != nil {
		q = q.Where("user_id IN ?", owners)
	}
	res := q.Delete(&domain.Profile{})
	return res.RowsAffected, res.Error
}

func (r *profileRepo) SetStatus(dbc dbctx.Context, id uuid.UUID, status domain.RotationStatus) (int64, error) {
	now := time.Now()
	res := r.conn(dbc).Model(&domain.Profile{}).Where("id = ?", id).Updates(map[string]interface{}{
		"rotation_status":    status,
		"last_modified_unix": now.Unix(),
		"updated_at":         now,
	})
	return res.RowsAffected, res.Error
}

// scopeRotationStatus filters on a rotation status column, treating NULL
// and '' both as "current".
func scopeRotationStatus(q *gorm.DB, column string, status domain.RotationStatus) *gorm.DB {
	if status == domain.RotationCurrent {
		return q.Where("(" + column + " = '' OR " + column + " IS NULL)")
	}
	return q.Where(column+" = ?", status)
}
