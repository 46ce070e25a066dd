package repos

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

type AggregationCursorRepo interface {
	Get(dbc dbctx.Context, agentVersion, feedbackName string) (*domain.AggregationCursor, error)
	Increment(dbc dbctx.Context, agentVersion, feedbackName string) (*domain.AggregationCursor, error)
	Reset(dbc dbctx.Context, agentVersion, feedbackName string) error
}

type aggregationCursorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAggregationCursorRepo(db *gorm.DB, baseLog *logger.Logger) AggregationCursorRepo {
	return &aggregationCursorRepo{db: db, log: baseLog.With("repo", "AggregationCursorRepo")}
}

func (r *aggregationCursorRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *aggregationCursorRepo) Get(dbc dbctx.Context, agentVersion, feedbackName string) (*domain.AggregationCursor, error) {
	var c domain.AggregationCursor
	err := r.conn(dbc).
		Where("agent_version = ? AND feedback_name = ?", agentVersion, feedbackName).
		Limit(1).
		Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.AgentVersion == "" {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *aggregationCursorRepo) Increment(dbc dbctx.Context, agentVersion, feedbackName string) (*domain.AggregationCursor, error) {
	var out *domain.AggregationCursor
	err := r.conn(dbc).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		cur, gErr := r.Get(inner, agentVersion, feedbackName)
		now := time.Now()
		if errors.Is(gErr, domain.ErrNotFound) {
			cur = &domain.AggregationCursor{
				AgentVersion:   agentVersion,
				FeedbackName:   feedbackName,
				SinceLastCount: 1,
				UpdatedAt:      now,
			}
			out = cur
			return tx.Create(cur).Error
		}
		if gErr != nil {
			return gErr
		}
		cur.SinceLastCount++
		cur.UpdatedAt = now
		out = cur
		return tx.Model(&domain.AggregationCursor{}).
			Where("agent_version = ? AND feedback_name = ?", agentVersion, feedbackName).
			Updates(map[string]interface{}{
				"since_last_count": cur.SinceLastCount,
				"updated_at":       now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *aggregationCursorRepo) Reset(dbc dbctx.Context, agentVersion, feedbackName string) error {
	now := time.Now()
	return r.conn(dbc).Model(&domain.AggregationCursor{}).
		Where("agent_version = ? AND feedback_name = ?", agentVersion, feedbackName).
		Updates(map[string]interface{}{
			"since_last_count":   0,
			"last_aggregated_at": now,
			"updated_at":         now,
		}).Error
}
