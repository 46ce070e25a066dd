package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

// Partition identifies one feedback stream: an agent version paired
// with a feedback type name.
type Partition struct {
	AgentVersion string `json:"agent_version"`
	FeedbackName string `json:"feedback_name"`
}

func (p Partition) Key() string {
	return p.AgentVersion + "/" + p.FeedbackName
}

// ParsePartition splits a "version/name" owner key back into its parts.
func ParsePartition(key string) (Partition, error) {
	idx := strings.Index(key, "/")
	if idx <= 0 || idx == len(key)-1 {
		return Partition{}, fmt.Errorf("%w: malformed partition key %q", domain.ErrInvalidConfiguration, key)
	}
	return Partition{AgentVersion: key[:idx], FeedbackName: key[idx+1:]}, nil
}

// Thresholds gate when a partition's raw feedback is rolled up.
// RefreshCount is how many new items must arrive since the last roll-up
// before another is attempted. MinFeedbackThreshold is the minimum
// number of unaggregated items that must exist for a roll-up to be
// worth running.
type Thresholds struct {
	RefreshCount         int `yaml:"refresh_count" json:"refresh_count"`
	MinFeedbackThreshold int `yaml:"min_feedback_threshold" json:"min_feedback_threshold"`
}

func (t Thresholds) Validate() error {
	if t.RefreshCount < 1 {
		return fmt.Errorf("%w: refresh_count must be >= 1, got %d", domain.ErrInvalidConfiguration, t.RefreshCount)
	}
	if t.MinFeedbackThreshold < 1 {
		return fmt.Errorf("%w: min_feedback_threshold must be >= 1, got %d", domain.ErrInvalidConfiguration, t.MinFeedbackThreshold)
	}
	return nil
}

// AggregateFunc turns a partition's unaggregated raw feedback into one
// summary artifact. It is opaque to the trigger: typically a provider
// call that clusters and condenses the batch. The returned artifact's
// partition fields, rotation status, and source links are filled in by
// the trigger before persistence.
type AggregateFunc func(ctx context.Context, p Partition, raws []*domain.RawFeedback) (*domain.AggregatedFeedback, error)

// Trigger decides when a feedback partition gets re-aggregated and runs
// the roll-up when it does. The counter only resets after a roll-up
// commits, so a failed provider call or a failed write leaves the
// partition eligible and the next observation retries it.
type Trigger struct {
	db         *gorm.DB
	raw        repos.RawFeedbackRepo
	aggregated repos.AggregatedFeedbackRepo
	cursors    repos.AggregationCursorRepo
	thresholds Thresholds
	log        *logger.Logger
}

func NewTrigger(
	db *gorm.DB,
	raw repos.RawFeedbackRepo,
	aggregated repos.AggregatedFeedbackRepo,
	cursors repos.AggregationCursorRepo,
	thresholds Thresholds,
	baseLog *logger.Logger,
) (*Trigger, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Trigger{
		db:         db,
		raw:        raw,
		aggregated: aggregated,
		cursors:    cursors,
		thresholds: thresholds,
		log:        baseLog.With("component", "AggregationTrigger"),
	}, nil
}

// ShouldAggregate reports whether the partition has crossed both gates:
// enough new feedback since the last roll-up, and enough unaggregated
// feedback overall.
func (t *Trigger) ShouldAggregate(ctx context.Context, p Partition) (bool, error) {
	dbc := dbctx.Context{Ctx: ctx}
	sinceLast := 0
	cur, err := t.cursors.Get(dbc, p.AgentVersion, p.FeedbackName)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("read cursor: %w", err)
	}
	if cur != nil {
		sinceLast = cur.SinceLastCount
	}
	if sinceLast < t.thresholds.RefreshCount {
		return false, nil
	}
	unaggregated, err := t.raw.CountUnaggregated(dbc, p.AgentVersion, p.FeedbackName)
	if err != nil {
		return false, fmt.Errorf("count unaggregated: %w", err)
	}
	return unaggregated >= int64(t.thresholds.MinFeedbackThreshold), nil
}

// Observe records one newly arrived raw feedback item for the partition
// and, if the thresholds are now crossed, runs the roll-up. The produced
// artifact is returned when a roll-up ran, nil when it did not.
func (t *Trigger) Observe(ctx context.Context, p Partition, aggregate AggregateFunc) (*domain.AggregatedFeedback, error) {
	if _, err := t.cursors.Increment(dbctx.Context{Ctx: ctx}, p.AgentVersion, p.FeedbackName); err != nil {
		return nil, fmt.Errorf("increment cursor: %w", err)
	}
	due, err := t.ShouldAggregate(ctx, p)
	if err != nil {
		return nil, err
	}
	if !due {
		return nil, nil
	}
	return t.Aggregate(ctx, p, aggregate)
}

// Aggregate rolls up the partition's unaggregated feedback regardless of
// the refresh gate, as long as the minimum batch size is met. The
// summary write, the source-row links, and the cursor reset commit in
// one transaction.
func (t *Trigger) Aggregate(ctx context.Context, p Partition, aggregate AggregateFunc) (*domain.AggregatedFeedback, error) {
	if aggregate == nil {
		return nil, fmt.Errorf("%w: no aggregation function", domain.ErrInvalidConfiguration)
	}
	dbc := dbctx.Context{Ctx: ctx}
	raws, err := t.raw.ListUnaggregated(dbc, p.AgentVersion, p.FeedbackName)
	if err != nil {
		return nil, fmt.Errorf("list unaggregated: %w", err)
	}
	if len(raws) < t.thresholds.MinFeedbackThreshold {
		return nil, nil
	}

	// Provider work stays outside the transaction; only its result is
	// committed.
	artifact, err := aggregate(ctx, p, raws)
	if err != nil {
		return nil, fmt.Errorf("aggregate partition %s: %w", p.Key(), err)
	}
	if artifact == nil {
		return nil, fmt.Errorf("aggregate partition %s: nil artifact", p.Key())
	}

	ids := make([]uuid.UUID, 0, len(raws))
	for _, rf := range raws {
		ids = append(ids, rf.ID)
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode source ids: %w", err)
	}

	artifact.AgentVersion = p.AgentVersion
	artifact.FeedbackName = p.FeedbackName
	artifact.RotationStatus = domain.RotationPending
	artifact.RawFeedbackIDs = idsJSON
	if artifact.ClusterCount == 0 {
		artifact.ClusterCount = 1
	}

	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if cErr := t.aggregated.Create(inner, []*domain.AggregatedFeedback{artifact}); cErr != nil {
			return fmt.Errorf("persist summary: %w", cErr)
		}
		marked, mErr := t.raw.MarkAggregated(inner, ids, artifact.ID)
		if mErr != nil {
			return fmt.Errorf("link sources: %w", mErr)
		}
		if marked != int64(len(ids)) {
			return fmt.Errorf("link sources: marked %d of %d", marked, len(ids))
		}
		if rErr := t.cursors.Reset(inner, p.AgentVersion, p.FeedbackName); rErr != nil {
			return fmt.Errorf("reset cursor: %w", rErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.log.Info("Aggregated feedback partition", "partition", p.Key(), "sources", len(ids), "artifactID", artifact.ID)
	return artifact, nil
}
