package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/generation"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

// Filters narrow which units a start request plans. Empty fields mean
// no filtering on that dimension.
type Filters struct {
	OwnerKey   string     `json:"owner_key,omitempty"`
	Extractors []string   `json:"extractors,omitempty"`
	Source     string     `json:"source,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
}

// Definition is a fully planned run: the kind it claims, the units to
// process, the work function, and an optional hook that runs after the
// last unit but before the run is marked completed. An OnComplete error
// fails the run.
type Definition struct {
	Kind       domain.OperationKind
	Units      []generation.Unit
	Generate   generation.GenerateFunc
	OnComplete func(ctx context.Context) error
}

// Notifier receives a snapshot after every progress commit. Implemented
// by the SSE push layer; a nil notifier is legal.
type Notifier interface {
	OperationProgress(ctx context.Context, st *domain.OperationStatus)
}

// Tracker owns the single-flight rule for operation kinds: claiming the
// kind's status record, running its units in the background, committing
// progress after every unit, and honoring cooperative cancellation
// between units. Unit failures are recorded in stats and skipped over;
// only store failures and OnComplete failures fail a run.
type Tracker struct {
	statuses    repos.OperationStatusRepo
	runner      *generation.Runner
	notifier    Notifier
	log         *logger.Logger
	baseCtx     context.Context
	concurrency int
	wg          sync.WaitGroup
}

func NewTracker(
	baseCtx context.Context,
	statuses repos.OperationStatusRepo,
	runner *generation.Runner,
	notifier Notifier,
	concurrency int,
	baseLog *logger.Logger,
) *Tracker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Tracker{
		statuses:    statuses,
		runner:      runner,
		notifier:    notifier,
		log:         baseLog.With("component", "OperationTracker"),
		baseCtx:     baseCtx,
		concurrency: concurrency,
	}
}

// Start claims the definition's kind and launches its run loop in the
// background. The returned snapshot is the freshly claimed in_progress
// record. domain.ErrOperationAlreadyRunning means the kind already has a
// live run.
func (t *Tracker) Start(ctx context.Context, def Definition) (*domain.OperationStatus, error) {
	if !def.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown operation kind %q", domain.ErrInvalidConfiguration, def.Kind)
	}
	if def.Generate == nil && len(def.Units) > 0 {
		return nil, fmt.Errorf("%w: operation %s has units but no work function", domain.ErrInvalidConfiguration, def.Kind)
	}
	st, err := t.statuses.ClaimStart(dbctx.Context{Ctx: ctx}, def.Kind, len(def.Units))
	if err != nil {
		return nil, err
	}
	t.log.Info("Operation started", "kind", def.Kind, "totalUnits", len(def.Units))

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		// The run outlives the HTTP request that started it.
		t.run(t.baseCtx, def)
	}()
	return st, nil
}

// Status returns the kind's latest snapshot.
func (t *Tracker) Status(ctx context.Context, kind domain.OperationKind) (*domain.OperationStatus, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown operation kind %q", domain.ErrInvalidConfiguration, kind)
	}
	return t.statuses.Get(dbctx.Context{Ctx: ctx}, kind)
}

// RequestCancel flags a live run for cooperative cancellation. The run
// loop checks the flag between units, so the current unit finishes (or
// times out) first; with unit concurrency above one, each in-flight
// unit likewise runs to its end, so up to concurrency units may still
// finish after the flag is set. Returns domain.ErrNotFound when
// nothing is running.
func (t *Tracker) RequestCancel(ctx context.Context, kind domain.OperationKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown operation kind %q", domain.ErrInvalidConfiguration, kind)
	}
	flagged, err := t.statuses.RequestCancel(dbctx.Context{Ctx: ctx}, kind)
	if err != nil {
		return err
	}
	if !flagged {
		return fmt.Errorf("%w: no %s run in progress", domain.ErrNotFound, kind)
	}
	t.log.Info("Operation cancel requested", "kind", kind)
	return nil
}

// Wait blocks until every background run launched by Start has
// finished. Used on shutdown.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// runState accumulates progress for one run. Commits are serialized by
// mu when units run concurrently.
type runState struct {
	mu        sync.Mutex
	processed int
	stats     map[string]int64
}

func (t *Tracker) run(ctx context.Context, def Definition) {
	state := &runState{stats: map[string]int64{}}

	if t.concurrency <= 1 {
		for _, unit := range def.Units {
			cancelled, err := t.checkCancelled(ctx, def.Kind)
			if err != nil {
				t.finalizeFailed(ctx, def.Kind, state, fmt.Errorf("read cancel flag: %w", err))
				return
			}
			if cancelled {
				t.finalizeCancelled(ctx, def.Kind, state, len(def.Units))
				return
			}
			if err := t.processUnit(ctx, def, unit, state, len(def.Units)); err != nil {
				t.finalizeFailed(ctx, def.Kind, state, err)
				return
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(t.concurrency)
		for _, unit := range def.Units {
			unit := unit
			g.Go(func() error {
				cancelled, err := t.checkCancelled(gctx, def.Kind)
				if err != nil {
					return fmt.Errorf("read cancel flag: %w", err)
				}
				if cancelled {
					return errCancelled
				}
				return t.processUnit(gctx, def, unit, state, len(def.Units))
			})
		}
		if err := g.Wait(); err != nil {
			if errors.Is(err, errCancelled) {
				t.finalizeCancelled(ctx, def.Kind, state, len(def.Units))
			} else {
				t.finalizeFailed(ctx, def.Kind, state, err)
			}
			return
		}
	}

	if def.OnComplete != nil {
		if err := def.OnComplete(ctx); err != nil {
			t.finalizeFailed(ctx, def.Kind, state, fmt.Errorf("completion hook: %w", err))
			return
		}
	}
	t.finalizeCompleted(ctx, def.Kind, state, len(def.Units))
}

var errCancelled = errors.New("run cancelled")

func (t *Tracker) checkCancelled(ctx context.Context, kind domain.OperationKind) (bool, error) {
	return t.statuses.CancelRequested(dbctx.Context{Ctx: ctx}, kind)
}

// processUnit runs one unit and commits progress. A unit-level failure
// is folded into stats and returns nil so the run continues; only a
// progress-commit failure propagates.
func (t *Tracker) processUnit(ctx context.Context, def Definition, unit generation.Unit, state *runState, total int) error {
	if err := t.statuses.UpdateFields(dbctx.Context{Ctx: ctx}, def.Kind, map[string]interface{}{
		"current_unit_id": unit.ID(),
	}); err != nil {
		return fmt.Errorf("record current unit: %w", err)
	}

	res := t.runner.Run(ctx, unit, def.Generate)

	state.mu.Lock()
	state.processed++
	for k, v := range res.Stats {
		state.stats[k] += v
	}
	state.stats["artifacts_produced"] += res.ArtifactsProduced
	if res.Err != nil {
		state.stats["units_failed"]++
		t.log.Warn("Generation unit failed", "kind", def.Kind, "unit", unit.ID(), "error", res.Err)
	}
	updates := map[string]interface{}{
		"processed_units":     state.processed,
		"progress_percentage": domain.ProgressPct(state.processed, total),
		"stats":               mustStatsJSON(state.stats),
	}
	state.mu.Unlock()

	if err := t.statuses.UpdateFields(dbctx.Context{Ctx: ctx}, def.Kind, updates); err != nil {
		return fmt.Errorf("commit progress: %w", err)
	}
	t.notify(ctx, def.Kind)
	return nil
}

func (t *Tracker) finalizeCompleted(ctx context.Context, kind domain.OperationKind, state *runState, total int) {
	now := time.Now()
	state.mu.Lock()
	updates := map[string]interface{}{
		"status":              domain.OperationCompleted,
		"processed_units":     state.processed,
		"progress_percentage": domain.ProgressPct(state.processed, total),
		"current_unit_id":     "",
		"stats":               mustStatsJSON(state.stats),
		"finished_at":         now,
	}
	state.mu.Unlock()
	t.finalize(ctx, kind, updates)
	t.log.Info("Operation completed", "kind", kind, "processedUnits", state.processed)
}

func (t *Tracker) finalizeCancelled(ctx context.Context, kind domain.OperationKind, state *runState, total int) {
	now := time.Now()
	state.mu.Lock()
	updates := map[string]interface{}{
		"status":              domain.OperationCancelled,
		"processed_units":     state.processed,
		"progress_percentage": domain.ProgressPct(state.processed, total),
		"current_unit_id":     "",
		"stats":               mustStatsJSON(state.stats),
		"finished_at":         now,
	}
	state.mu.Unlock()
	t.finalize(ctx, kind, updates)
	t.log.Info("Operation cancelled", "kind", kind, "processedUnits", state.processed)
}

func (t *Tracker) finalizeFailed(ctx context.Context, kind domain.OperationKind, state *runState, cause error) {
	now := time.Now()
	state.mu.Lock()
	updates := map[string]interface{}{
		"status":          domain.OperationFailed,
		"processed_units": state.processed,
		"current_unit_id": "",
		"stats":           mustStatsJSON(state.stats),
		"error_message":   cause.Error(),
		"finished_at":     now,
	}
	state.mu.Unlock()
	t.finalize(ctx, kind, updates)
	t.log.Error("Operation failed", "kind", kind, "error", cause)
}

func (t *Tracker) finalize(ctx context.Context, kind domain.OperationKind, updates map[string]interface{}) {
	if err := t.statuses.UpdateFields(dbctx.Context{Ctx: ctx}, kind, updates); err != nil {
		t.log.Error("Failed to finalize operation status", "kind", kind, "error", err)
		return
	}
	t.notify(ctx, kind)
}

func (t *Tracker) notify(ctx context.Context, kind domain.OperationKind) {
	if t.notifier == nil {
		return
	}
	st, err := t.statuses.Get(dbctx.Context{Ctx: ctx}, kind)
	if err != nil {
		t.log.Warn("Skipping progress notification", "kind", kind, "error", err)
		return
	}
	t.notifier.OperationProgress(ctx, st)
}

func mustStatsJSON(stats map[string]int64) datatypes.JSON {
	b, err := json.Marshal(stats)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(b)
}
