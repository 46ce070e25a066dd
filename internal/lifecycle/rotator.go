package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

// Scope selects which owner keys a bulk transition touches.
type Scope string

const (
	// ScopeAffected covers owner keys holding at least one pending artifact.
	ScopeAffected Scope = "affected"
	// ScopeAll covers every owner key of the artifact kind.
	ScopeAll Scope = "all"
)

func (s Scope) Valid() bool { return s == ScopeAffected || s == ScopeAll }

// RotationStore is the slice of the artifact store the rotator needs.
// The per-kind repos implement it.
type RotationStore interface {
	OwnersWithStatus(dbc dbctx.Context, status domain.RotationStatus) ([]string, error)
	UpdateStatusForOwners(dbc dbctx.Context, owners []string, from, to domain.RotationStatus) (int64, error)
	DeleteWithStatusForOwners(dbc dbctx.Context, owners []string, status domain.RotationStatus) (int64, error)
}

type PromoteResult struct {
	Promoted int64 `json:"promoted"`
	Archived int64 `json:"archived"`
	Deleted  int64 `json:"deleted"`
}

type RestoreResult struct {
	Demoted  int64 `json:"demoted"`
	Restored int64 `json:"restored"`
}

// Rotator implements the current/pending/archived bulk transitions.
// Both directions run inside a single store transaction, so readers see
// either the old generation or the new one, never a mix. Status moves
// are idempotent, which makes retrying a failed batch on the same scope
// safe.
type Rotator struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRotator(db *gorm.DB, baseLog *logger.Logger) *Rotator {
	return &Rotator{db: db, log: baseLog.With("component", "LifecycleRotator")}
}

// PromoteAll deletes the previous archive generation, demotes current to
// archived, and promotes pending to current, in that order. The delete
// runs first so it only ever removes the generation that was archived
// before this call.
func (r *Rotator) PromoteAll(ctx context.Context, store RotationStore, scope Scope) (PromoteResult, error) {
	var out PromoteResult
	if !scope.Valid() {
		return out, fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidConfiguration, scope)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		owners, err := r.resolveOwners(inner, store, scope, domain.RotationPending)
		if err != nil {
			return err
		}
		if scope == ScopeAffected && len(owners) == 0 {
			return nil
		}
		deleted, err := store.DeleteWithStatusForOwners(inner, owners, domain.RotationArchived)
		if err != nil {
			return fmt.Errorf("delete archived: %w", err)
		}
		archived, err := store.UpdateStatusForOwners(inner, owners, domain.RotationCurrent, domain.RotationArchived)
		if err != nil {
			return fmt.Errorf("archive current: %w", err)
		}
		promoted, err := store.UpdateStatusForOwners(inner, owners, domain.RotationPending, domain.RotationCurrent)
		if err != nil {
			return fmt.Errorf("promote pending: %w", err)
		}
		out = PromoteResult{Promoted: promoted, Archived: archived, Deleted: deleted}
		return nil
	})
	if err != nil {
		return PromoteResult{}, wrapConflict(err)
	}
	r.log.Info("Promote-all finished", "scope", scope, "promoted", out.Promoted, "archived", out.Archived, "deleted", out.Deleted)
	return out, nil
}

// RestoreAll undoes the relabel half of PromoteAll: the current
// generation is demoted back to pending and the prior archive becomes
// current again. Nothing is deleted, so a following PromoteAll replays
// the swap and lands back on the exact pre-restore state.
func (r *Rotator) RestoreAll(ctx context.Context, store RotationStore, scope Scope) (RestoreResult, error) {
	var out RestoreResult
	if !scope.Valid() {
		return out, fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidConfiguration, scope)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		owners, err := r.resolveOwners(inner, store, scope, domain.RotationArchived)
		if err != nil {
			return err
		}
		if scope == ScopeAffected && len(owners) == 0 {
			return nil
		}
		// Demote first so the two relabels never touch the same rows.
		demoted, err := store.UpdateStatusForOwners(inner, owners, domain.RotationCurrent, domain.RotationPending)
		if err != nil {
			return fmt.Errorf("demote current: %w", err)
		}
		restored, err := store.UpdateStatusForOwners(inner, owners, domain.RotationArchived, domain.RotationCurrent)
		if err != nil {
			return fmt.Errorf("restore archived: %w", err)
		}
		out = RestoreResult{Demoted: demoted, Restored: restored}
		return nil
	})
	if err != nil {
		return RestoreResult{}, wrapConflict(err)
	}
	r.log.Info("Restore-all finished", "scope", scope, "demoted", out.Demoted, "restored", out.Restored)
	return out, nil
}

// resolveOwners returns nil (meaning "no owner filter") for ScopeAll,
// and the distinct owner keys holding markerStatus for ScopeAffected.
func (r *Rotator) resolveOwners(dbc dbctx.Context, store RotationStore, scope Scope, markerStatus domain.RotationStatus) ([]string, error) {
	if scope == ScopeAll {
		return nil, nil
	}
	owners, err := store.OwnersWithStatus(dbc, markerStatus)
	if err != nil {
		return nil, fmt.Errorf("resolve owners: %w", err)
	}
	if owners == nil {
		owners = []string{}
	}
	return owners, nil
}

// wrapConflict maps store-level serialization and lock failures onto the
// retryable RotationConflict sentinel.
func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"deadlock", "could not serialize", "database is locked", "lock timeout"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", domain.ErrRotationConflict, err)
		}
	}
	return err
}
