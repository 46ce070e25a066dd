package feedback

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

type triggerFixture struct {
	db      *gorm.DB
	raw     repos.RawFeedbackRepo
	agg     repos.AggregatedFeedbackRepo
	cursors repos.AggregationCursorRepo
	trigger *Trigger
}

func newTriggerFixture(t *testing.T, thresholds Thresholds) *triggerFixture {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.RawFeedback{}, &domain.AggregatedFeedback{}, &domain.AggregationCursor{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f := &triggerFixture{
		db:      db,
		raw:     repos.NewRawFeedbackRepo(db, log),
		agg:     repos.NewAggregatedFeedbackRepo(db, log),
		cursors: repos.NewAggregationCursorRepo(db, log),
	}
	f.trigger, err = NewTrigger(db, f.raw, f.agg, f.cursors, thresholds, log)
	if err != nil {
		t.Fatalf("NewTrigger: %v", err)
	}
	return f
}

func (f *triggerFixture) seedRaw(t *testing.T, p Partition, n int) {
	t.Helper()
	items := make([]*domain.RawFeedback, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, &domain.RawFeedback{
			AgentVersion: p.AgentVersion,
			FeedbackName: p.FeedbackName,
			Payload:      []byte(`{"note":"x"}`),
		})
	}
	if err := f.raw.Create(dbctx.Context{Ctx: context.Background()}, items); err != nil {
		t.Fatalf("seed raw feedback: %v", err)
	}
}

func staticSummary(p Partition, raws []*domain.RawFeedback) (*domain.AggregatedFeedback, error) {
	return &domain.AggregatedFeedback{
		Summary:      []byte(`{"themes":["x"]}`),
		ClusterCount: 1,
	}, nil
}

func TestThresholdsValidate(t *testing.T) {
	if err := (Thresholds{RefreshCount: 0, MinFeedbackThreshold: 1}).Validate(); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("zero refresh: want ErrInvalidConfiguration got %v", err)
	}
	if err := (Thresholds{RefreshCount: 1, MinFeedbackThreshold: 0}).Validate(); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("zero min: want ErrInvalidConfiguration got %v", err)
	}
	if err := (Thresholds{RefreshCount: 1, MinFeedbackThreshold: 1}).Validate(); err != nil {
		t.Fatalf("valid thresholds rejected: %v", err)
	}
}

func TestObserveBelowRefreshGate(t *testing.T) {
	f := newTriggerFixture(t, Thresholds{RefreshCount: 3, MinFeedbackThreshold: 1})
	p := Partition{AgentVersion: "v1", FeedbackName: "tone"}
	f.seedRaw(t, p, 5)

	for i := 0; i < 2; i++ {
		artifact, err := f.trigger.Observe(context.Background(), p, func(ctx context.Context, p Partition, raws []*domain.RawFeedback) (*domain.AggregatedFeedback, error) {
			t.Fatal("aggregate must not run below the refresh gate")
			return nil, nil
		})
		if err != nil {
			t.Fatalf("Observe: %v", err)
		}
		if artifact != nil {
			t.Fatalf("observation %d produced an artifact", i)
		}
	}
}

func TestObserveTriggersRollup(t *testing.T) {
	f := newTriggerFixture(t, Thresholds{RefreshCount: 2, MinFeedbackThreshold: 2})
	p := Partition{AgentVersion: "v1", FeedbackName: "tone"}
	f.seedRaw(t, p, 3)
	ctx := context.Background()

	artifact, err := f.trigger.Observe(ctx, p, staticSummaryFunc())
	if err != nil {
		t.Fatalf("first Observe: %v", err)
	}
	if artifact != nil {
		t.Fatal("first observation must not roll up")
	}

	artifact, err = f.trigger.Observe(ctx, p, staticSummaryFunc())
	if err != nil {
		t.Fatalf("second Observe: %v", err)
	}
	if artifact == nil {
		t.Fatal("second observation must roll up")
	}
	if artifact.RotationStatus != domain.RotationPending {
		t.Fatalf("artifact status: want=pending got=%q", artifact.RotationStatus)
	}

	dbc := dbctx.Context{Ctx: ctx}
	remaining, err := f.raw.CountUnaggregated(dbc, p.AgentVersion, p.FeedbackName)
	if err != nil {
		t.Fatalf("count unaggregated: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("unaggregated after rollup: want=0 got=%d", remaining)
	}
	cur, err := f.cursors.Get(dbc, p.AgentVersion, p.FeedbackName)
	if err != nil {
		t.Fatalf("read cursor: %v", err)
	}
	if cur.SinceLastCount != 0 {
		t.Fatalf("cursor after rollup: want=0 got=%d", cur.SinceLastCount)
	}
	if cur.LastAggregatedAt == nil {
		t.Fatal("cursor must record the rollup time")
	}
}

func TestAggregationFailureKeepsCursor(t *testing.T) {
	f := newTriggerFixture(t, Thresholds{RefreshCount: 1, MinFeedbackThreshold: 1})
	p := Partition{AgentVersion: "v1", FeedbackName: "tone"}
	f.seedRaw(t, p, 2)
	ctx := context.Background()

	boom := errors.New("provider down")
	_, err := f.trigger.Observe(ctx, p, func(ctx context.Context, p Partition, raws []*domain.RawFeedback) (*domain.AggregatedFeedback, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want provider error, got %v", err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	cur, err := f.cursors.Get(dbc, p.AgentVersion, p.FeedbackName)
	if err != nil {
		t.Fatalf("read cursor: %v", err)
	}
	if cur.SinceLastCount == 0 {
		t.Fatal("failed rollup must not reset the cursor")
	}

	// The next observation retries and succeeds.
	artifact, err := f.trigger.Observe(ctx, p, staticSummaryFunc())
	if err != nil {
		t.Fatalf("retry Observe: %v", err)
	}
	if artifact == nil {
		t.Fatal("retry must roll up")
	}
}

func TestAggregateBelowMinThreshold(t *testing.T) {
	f := newTriggerFixture(t, Thresholds{RefreshCount: 1, MinFeedbackThreshold: 5})
	p := Partition{AgentVersion: "v1", FeedbackName: "tone"}
	f.seedRaw(t, p, 2)

	artifact, err := f.trigger.Aggregate(context.Background(), p, staticSummaryFunc())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if artifact != nil {
		t.Fatal("partition below min threshold must not roll up")
	}
}

func TestParsePartition(t *testing.T) {
	p, err := ParsePartition("v2/helpfulness")
	if err != nil {
		t.Fatalf("ParsePartition: %v", err)
	}
	if p.AgentVersion != "v2" || p.FeedbackName != "helpfulness" {
		t.Fatalf("parsed: got=%+v", p)
	}
	for _, bad := range []string{"", "v2", "/name", "v2/"} {
		if _, err := ParsePartition(bad); !errors.Is(err, domain.ErrInvalidConfiguration) {
			t.Fatalf("key %q: want ErrInvalidConfiguration got %v", bad, err)
		}
	}
}

func staticSummaryFunc() AggregateFunc {
	return func(ctx context.Context, p Partition, raws []*domain.RawFeedback) (*domain.AggregatedFeedback, error) {
		return staticSummary(p, raws)
	}
}
