package repos

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

type OperationStatusRepo interface {
	Get(dbc dbctx.Context, kind domain.OperationKind) (*domain.OperationStatus, error)
	// ClaimStart atomically takes ownership of the kind's status record,
	// resetting it to a fresh in_progress row. Returns
	// domain.ErrOperationAlreadyRunning if the kind is in progress.
	ClaimStart(dbc dbctx.Context, kind domain.OperationKind, totalUnits int) (*domain.OperationStatus, error)
	UpdateFields(dbc dbctx.Context, kind domain.OperationKind, updates map[string]interface{}) error
	// RequestCancel flips cancel_requested on an in_progress record. It
	// never changes status. Returns false when nothing was running.
	RequestCancel(dbc dbctx.Context, kind domain.OperationKind) (bool, error)
	CancelRequested(dbc dbctx.Context, kind domain.OperationKind) (bool, error)
}

type operationStatusRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOperationStatusRepo(db *gorm.DB, baseLog *logger.Logger) OperationStatusRepo {
	return &operationStatusRepo{db: db, log: baseLog.With("repo", "OperationStatusRepo")}
}

func (r *operationStatusRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *operationStatusRepo) Get(dbc dbctx.Context, kind domain.OperationKind) (*domain.OperationStatus, error) {
	var st domain.OperationStatus
	err := r.conn(dbc).Where("kind = ?", kind).Limit(1).Find(&st).Error
	if err != nil {
		return nil, err
	}
	if st.Kind == "" {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

func (r *operationStatusRepo) ClaimStart(dbc dbctx.Context, kind domain.OperationKind, totalUnits int) (*domain.OperationStatus, error) {
	now := time.Now()
	fresh := domain.OperationStatus{
		Kind:               kind,
		Status:             domain.OperationInProgress,
		TotalUnits:         totalUnits,
		ProcessedUnits:     0,
		ProgressPercentage: 0,
		CurrentUnitID:      "",
		Stats:              datatypes.JSON([]byte(`{}`)),
		ErrorMessage:       "",
		CancelRequested:    false,
		StartedAt:          &now,
		FinishedAt:         nil,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := r.conn(dbc).Transaction(func(tx *gorm.DB) error {
		var existing domain.OperationStatus
		qErr := tx.Where("kind = ?", kind).First(&existing).Error
		if qErr != nil && !errors.Is(qErr, gorm.ErrRecordNotFound) {
			return qErr
		}
		if qErr == nil {
			if existing.Status == domain.OperationInProgress {
				return domain.ErrOperationAlreadyRunning
			}
			fresh.CreatedAt = existing.CreatedAt
			// Guard the overwrite on the terminal status we just read so a
			// racing claim loses instead of double-starting.
			res := tx.Model(&domain.OperationStatus{}).
				Where("kind = ? AND status = ?", kind, existing.Status).
				Updates(map[string]interface{}{
					"status":              fresh.Status,
					"total_units":         fresh.TotalUnits,
					"processed_units":     0,
					"progress_percentage": 0,
					"current_unit_id":     "",
					"stats":               fresh.Stats,
					"error_message":       "",
					"cancel_requested":    false,
					"started_at":          now,
					"finished_at":         nil,
					"updated_at":          now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ErrOperationAlreadyRunning
			}
			return nil
		}
		return tx.Create(&fresh).Error
	})
	if err != nil {
		return nil, err
	}
	return &fresh, nil
}

func (r *operationStatusRepo) UpdateFields(dbc dbctx.Context, kind domain.OperationKind, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.conn(dbc).
		Model(&domain.OperationStatus{}).
		Where("kind = ?", kind).
		Updates(updates).Error
}

func (r *operationStatusRepo) RequestCancel(dbc dbctx.Context, kind domain.OperationKind) (bool, error) {
	res := r.conn(dbc).
		Model(&domain.OperationStatus{}).
		Where("kind = ? AND status = ?", kind, domain.OperationInProgress).
		Updates(map[string]interface{}{
			"cancel_requested": true,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *operationStatusRepo) CancelRequested(dbc dbctx.Context, kind domain.OperationKind) (bool, error) {
	st, err := r.Get(dbc, kind)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return st.CancelRequested, nil
}
