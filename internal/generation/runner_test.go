package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/extraction"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func testUnit() Unit {
	return Unit{
		Kind:      domain.OpProfileGeneration,
		OwnerKey:  "user-1",
		Extractor: "profile",
		Window:    extraction.Window{Start: 0, End: 50},
	}
}

func TestRunSuccess(t *testing.T) {
	r := NewRunner(testLogger(t), time.Second)
	res := r.Run(context.Background(), testUnit(), func(ctx context.Context, u Unit) (int64, map[string]int64, error) {
		return 2, map[string]int64{"tokens": 120}, nil
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.ArtifactsProduced != 2 {
		t.Fatalf("artifacts: want=2 got=%d", res.ArtifactsProduced)
	}
	if res.Stats["tokens"] != 120 {
		t.Fatalf("stats: want tokens=120 got=%v", res.Stats)
	}
}

func TestRunUnitFailure(t *testing.T) {
	r := NewRunner(testLogger(t), time.Second)
	boom := errors.New("provider unavailable")
	res := r.Run(context.Background(), testUnit(), func(ctx context.Context, u Unit) (int64, map[string]int64, error) {
		return 0, nil, boom
	})
	if !errors.Is(res.Err, boom) {
		t.Fatalf("want wrapped provider error, got %v", res.Err)
	}
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner(testLogger(t), 20*time.Millisecond)
	res := r.Run(context.Background(), testUnit(), func(ctx context.Context, u Unit) (int64, map[string]int64, error) {
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return 1, nil, nil
		}
	})
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", res.Err)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	r := NewRunner(testLogger(t), time.Second)
	res := r.Run(context.Background(), testUnit(), func(ctx context.Context, u Unit) (int64, map[string]int64, error) {
		panic("bad payload")
	})
	if res.Err == nil || !strings.Contains(res.Err.Error(), "panic") {
		t.Fatalf("want panic folded into error, got %v", res.Err)
	}
}

func TestRunNilGenerate(t *testing.T) {
	r := NewRunner(testLogger(t), time.Second)
	res := r.Run(context.Background(), testUnit(), nil)
	if res.Err == nil {
		t.Fatal("want error for missing generation function")
	}
}

func TestUnitID(t *testing.T) {
	got := testUnit().ID()
	want := "user-1/profile[0:50)"
	if got != want {
		t.Fatalf("unit id: want=%q got=%q", want, got)
	}
}
