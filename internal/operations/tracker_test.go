package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/extraction"
	"github.com/introspecthq/agentlens-backend/internal/generation"
	"github.com/introspecthq/agentlens-backend/internal/platform/dbctx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

func newTestTracker(t *testing.T) (*Tracker, repos.OperationStatusRepo) {
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
	if err := db.AutoMigrate(&domain.OperationStatus{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	statuses := repos.NewOperationStatusRepo(db, log)
	runner := generation.NewRunner(log, 5*time.Second)
	return NewTracker(context.Background(), statuses, runner, nil, 1, log), statuses
}

func makeUnits(kind domain.OperationKind, n int) []generation.Unit {
	units := make([]generation.Unit, 0, n)
	for i := 0; i < n; i++ {
		units = append(units, generation.Unit{
			Kind:      kind,
			OwnerKey:  fmt.Sprintf("user-%d", i),
			Extractor: "profile",
			Window:    extraction.Window{Start: 0, End: 10},
		})
	}
	return units
}

// waitTerminal polls until the kind leaves in_progress. The run loop
// commits from a background goroutine, so tests have to wait for it.
func waitTerminal(t *testing.T, statuses repos.OperationStatusRepo, kind domain.OperationKind) *domain.OperationStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := statuses.Get(dbctx.Context{Ctx: context.Background()}, kind)
		if err == nil && st.Status != domain.OperationInProgress {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("operation %s never left in_progress", kind)
	return nil
}

func decodeStats(t *testing.T, st *domain.OperationStatus) map[string]int64 {
	t.Helper()
	stats := map[string]int64{}
	if len(st.Stats) > 0 {
		if err := json.Unmarshal(st.Stats, &stats); err != nil {
			t.Fatalf("decode stats %q: %v", st.Stats, err)
		}
	}
	return stats
}

func TestStartRunsToCompletion(t *testing.T) {
	tracker, statuses := newTestTracker(t)
	def := Definition{
		Kind:  domain.OpProfileGeneration,
		Units: makeUnits(domain.OpProfileGeneration, 3),
		Generate: func(ctx context.Context, u generation.Unit) (int64, map[string]int64, error) {
			return 1, map[string]int64{"tokens": 10}, nil
		},
	}
	st, err := tracker.Start(context.Background(), def)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st.Status != domain.OperationInProgress || st.TotalUnits != 3 {
		t.Fatalf("claimed snapshot: got=%+v", st)
	}

	final := waitTerminal(t, statuses, def.Kind)
	if final.Status != domain.OperationCompleted {
		t.Fatalf("status: want=completed got=%q (%s)", final.Status, final.ErrorMessage)
	}
	if final.ProcessedUnits != 3 || final.ProgressPercentage != 100 {
		t.Fatalf("progress: want=(3,100) got=(%d,%v)", final.ProcessedUnits, final.ProgressPercentage)
	}
	if final.CurrentUnitID != "" {
		t.Fatalf("current unit must clear, got %q", final.CurrentUnitID)
	}
	if final.FinishedAt == nil {
		t.Fatal("finished_at must be set")
	}
	stats := decodeStats(t, final)
	if stats["artifacts_produced"] != 3 || stats["tokens"] != 30 {
		t.Fatalf("stats: got=%v", stats)
	}
}

func TestStartNoUnitsCompletesAtZeroProgress(t *testing.T) {
	tracker, statuses := newTestTracker(t)
	if _, err := tracker.Start(context.Background(), Definition{
		Kind: domain.OpProfileGeneration,
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := waitTerminal(t, statuses, domain.OpProfileGeneration)
	if final.Status != domain.OperationCompleted {
		t.Fatalf("status: want=completed got=%q", final.Status)
	}
	if final.ProcessedUnits != 0 || final.ProgressPercentage != 0 {
		t.Fatalf("empty run progress: want=(0,0) got=(%d,%v)", final.ProcessedUnits, final.ProgressPercentage)
	}
}

func TestStartRejectsDoubleClaim(t *testing.T) {
	tracker, statuses := newTestTracker(t)
	release := make(chan struct{})
	def := Definition{
		Kind:  domain.OpFeedbackAggregation,
		Units: makeUnits(domain.OpFeedbackAggregation, 1),
		Generate: func(ctx context.Context, u generation.Unit) (int64, map[string]int64, error) {
			<-release
			return 1, nil, nil
		},
	}
	if _, err := tracker.Start(context.Background(), def); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, err := tracker.Start(context.Background(), def); !errors.Is(err, domain.ErrOperationAlreadyRunning) {
		t.Fatalf("second Start: want ErrOperationAlreadyRunning got %v", err)
	}
	close(release)
	waitTerminal(t, statuses, def.Kind)

	// A terminal record can be reclaimed.
	if _, err := tracker.Start(context.Background(), Definition{
		Kind:  def.Kind,
		Units: nil,
	}); err != nil {
		t.Fatalf("reclaim after completion: %v", err)
	}
	waitTerminal(t, statuses, def.Kind)
	tracker.Wait()
}

func TestUnitFailureContinuesRun(t *testing.T) {
	tracker, statuses := newTestTracker(t)
	def := Definition{
		Kind:  domain.OpRerunProfileGeneration,
		Units: makeUnits(domain.OpRerunProfileGeneration, 3),
		Generate: func(ctx context.Context, u generation.Unit) (int64, map[string]int64, error) {
			if u.OwnerKey == "user-1" {
				return 0, nil, errors.New("extraction failed")
			}
			return 1, nil, nil
		},
	}
	if _, err := tracker.Start(context.Background(), def); err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := waitTerminal(t, statuses, def.Kind)
	if final.Status != domain.OperationCompleted {
		t.Fatalf("status: want=completed got=%q", final.Status)
	}
	if final.ProcessedUnits != 3 {
		t.Fatalf("processed: want=3 got=%d", final.ProcessedUnits)
	}
	stats := decodeStats(t, final)
	if stats["units_failed"] != 1 || stats["artifacts_produced"] != 2 {
		t.Fatalf("stats: got=%v", stats)
	}
}

func TestCancelBetweenUnits(t *testing.T) {
	tracker, statuses := newTestTracker(t)
	def := Definition{
		Kind:  domain.OpSkillSynthesis,
		Units: makeUnits(domain.OpSkillSynthesis, 3),
	}
	def.Generate = func(ctx context.Context, u generation.Unit) (int64, map[string]int64, error) {
		// Flag cancellation from inside the first unit so the loop sees
		// it before the second one.
		if u.OwnerKey == "user-0" {
			if err := tracker.RequestCancel(context.Background(), def.Kind); err != nil {
				return 0, nil, err
			}
		}
		return 1, nil, nil
	}
	if _, err := tracker.Start(context.Background(), def); err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := waitTerminal(t, statuses, def.Kind)
	if final.Status != domain.OperationCancelled {
		t.Fatalf("status: want=cancelled got=%q", final.Status)
	}
	if final.ProcessedUnits != 1 {
		t.Fatalf("processed before cancel: want=1 got=%d", final.ProcessedUnits)
	}
	if final.FinishedAt == nil {
		t.Fatal("finished_at must be set on cancel")
	}
}

func TestOnCompleteFailureFailsRun(t *testing.T) {
	tracker, statuses := newTestTracker(t)
	def := Definition{
		Kind:  domain.OpRerunFeedbackGeneration,
		Units: makeUnits(domain.OpRerunFeedbackGeneration, 1),
		Generate: func(ctx context.Context, u generation.Unit) (int64, map[string]int64, error) {
			return 1, nil, nil
		},
		OnComplete: func(ctx context.Context) error {
			return errors.New("promotion blocked")
		},
	}
	if _, err := tracker.Start(context.Background(), def); err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := waitTerminal(t, statuses, def.Kind)
	if final.Status != domain.OperationFailed {
		t.Fatalf("status: want=failed got=%q", final.Status)
	}
	if final.ErrorMessage == "" {
		t.Fatal("failed run must carry an error message")
	}
}

func TestRequestCancelWithoutRun(t *testing.T) {
	tracker, _ := newTestTracker(t)
	err := tracker.RequestCancel(context.Background(), domain.OpProfileGeneration)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestStartRejectsUnknownKind(t *testing.T) {
	tracker, _ := newTestTracker(t)
	_, err := tracker.Start(context.Background(), Definition{Kind: "mystery"})
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("want ErrInvalidConfiguration, got %v", err)
	}
}
