package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

type InteractionEventRepo interface {
	Create(dbc dbctx.Context, events []*domain.InteractionEvent) error
	CountForOwner(dbc dbctx.Context, ownerKey string, from, to *time.Time, source string) (int64, error)
	Owners(dbc dbctx.Context, ownerFilter string, source string) ([]string, error)
}

type interactionEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInteractionEventRepo(db *gorm.DB, baseLog *logger.Logger) InteractionEventRepo {
	return &interactionEventRepo{db: db, log: baseLog.With("repo", "InteractionEventRepo")}
}

func (r *interactionEventRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *interactionEventRepo) Create(dbc dbctx.Context, events []*domain.InteractionEvent) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now()
	for _, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
	}
	return r.conn(dbc).Create(&events).Error
}

func (r *interactionEventRepo) CountForOwner(dbc dbctx.Context, ownerKey string, from, to *time.Time, source string) (int64, error) {
	q := r.conn(dbc).Model(&domain.InteractionEvent{}).Where("owner_key = ?", ownerKey)
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at < ?", *to)
	}
	if source != "" {
		q = q.Where("source = ?", source)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func (r *interactionEventRepo) Owners(dbc dbctx.Context, ownerFilter string, source string) ([]string, error) {
	q := r.conn(dbc).Model(&domain.InteractionEvent{})
	if ownerFilter != "" {
		q = q.Where("owner_key = ?", ownerFilter)
	}
	if source != "" {
		q = q.Where("source = ?", source)
	}
	var owners []string
	if err := q.Distinct("owner_key").Order("owner_key").Pluck("owner_key", &owners).Error; err != nil {
		return nil, err
	}
	return owners, nil
}
