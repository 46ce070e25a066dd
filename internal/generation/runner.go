package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/extraction"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

// Unit is the smallest schedulable piece of generation work: one
// owner key, one extractor (or feedback/success config), one window.
type Unit struct {
	Kind      domain.OperationKind
	OwnerKey  string
	Extractor string
	Window    extraction.Window
}

// ID is the human-readable identifier surfaced as current_unit_id.
func (u Unit) ID() string {
	return fmt.Sprintf("%s/%s[%d:%d)", u.OwnerKey, u.Extractor, u.Window.Start, u.Window.End)
}

// Result reports one unit's outcome. Err is a unit-level failure the
// caller records and moves past; it never aborts a run.
type Result struct {
	Unit              Unit
	ArtifactsProduced int64
	Stats             map[string]int64
	Err               error
}

// GenerateFunc is the injected, opaque unit of work: provider call,
// prompt construction, persistence of produced artifacts. It returns the
// number of artifacts produced plus counters to merge into run stats.
type GenerateFunc func(ctx context.Context, unit Unit) (int64, map[string]int64, error)

// Runner executes one unit at a time against an injected generation
// function, bounding each call with a per-unit timeout so a hung
// provider call degrades into a unit failure rather than stalling the
// whole run.
type Runner struct {
	log     *logger.Logger
	timeout time.Duration
}

func NewRunner(baseLog *logger.Logger, unitTimeout time.Duration) *Runner {
	return &Runner{
		log:     baseLog.With("component", "GenerationRunner"),
		timeout: unitTimeout,
	}
}

func (r *Runner) Run(ctx context.Context, unit Unit, generate GenerateFunc) Result {
	if generate == nil {
		return Result{Unit: unit, Err: fmt.Errorf("unit %s: no generation function", unit.ID())}
	}
	runCtx := ctx
	cancel := func() {}
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	type out struct {
		produced int64
		stats    map[string]int64
		err      error
	}
	ch := make(chan out, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- out{err: fmt.Errorf("unit %s: panic: %v", unit.ID(), rec)}
			}
		}()
		produced, stats, err := generate(runCtx, unit)
		ch <- out{produced: produced, stats: stats, err: err}
	}()

	select {
	case <-runCtx.Done():
		r.log.Warn("Generation unit timed out", "unit", unit.ID(), "timeout", r.timeout)
		return Result{Unit: unit, Err: fmt.Errorf("unit %s: %w", unit.ID(), runCtx.Err())}
	case o := <-ch:
		if o.err != nil {
			return Result{Unit: unit, Stats: o.stats, Err: fmt.Errorf("unit %s: %w", unit.ID(), o.err)}
		}
		return Result{Unit: unit, ArtifactsProduced: o.produced, Stats: o.stats}
	}
}
