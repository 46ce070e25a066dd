package extraction

import (
	"errors"
	"testing"

	"github.com/introspecthq/agentlens-backend/internal/domain"
)

func TestPlanTilingAndClipping(t *testing.T) {
	cases := []struct {
		name   string
		count  int
		size   int
		stride int
		want   []Window
	}{
		{
			name:  "exact multiple",
			count: 100, size: 50, stride: 50,
			want: []Window{{0, 50}, {50, 100}},
		},
		{
			name:  "overlapping windows",
			count: 100, size: 50, stride: 25,
			want: []Window{{0, 50}, {25, 75}, {50, 100}},
		},
		{
			name:  "final window clipped",
			count: 60, size: 50, stride: 50,
			want: []Window{{0, 50}, {50, 60}},
		},
		{
			name:  "count below size",
			count: 10, size: 50, stride: 25,
			want: []Window{{0, 10}},
		},
		{
			name:  "single interaction",
			count: 1, size: 1, stride: 1,
			want: []Window{{0, 1}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Plan(tc.count, tc.size, tc.stride)
			if err != nil {
				t.Fatalf("Plan returned error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("window count: want=%d got=%d (%v)", len(tc.want), len(got), got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("window %d: want=%v got=%v", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestPlanEmptyTimeline(t *testing.T) {
	got, err := Plan(0, 50, 25)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no windows, got %v", got)
	}
}

func TestPlanRejectsBadConfig(t *testing.T) {
	if _, err := Plan(10, 0, 5); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("zero size: want ErrInvalidConfiguration got %v", err)
	}
	if _, err := Plan(10, 5, 0); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("zero stride: want ErrInvalidConfiguration got %v", err)
	}
	if _, err := Plan(10, -1, -1); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("negative config: want ErrInvalidConfiguration got %v", err)
	}
}

func TestResolveOverrides(t *testing.T) {
	overrides := map[string]Override{
		"preferences": {WindowSize: 20, Stride: 10},
	}
	size, stride := Resolve("preferences", 50, 25, overrides)
	if size != 20 || stride != 10 {
		t.Fatalf("override: want=(20,10) got=(%d,%d)", size, stride)
	}
	size, stride = Resolve("profile", 50, 25, overrides)
	if size != 50 || stride != 25 {
		t.Fatalf("default: want=(50,25) got=(%d,%d)", size, stride)
	}
}

func TestDueFiltersProcessedWindows(t *testing.T) {
	windows := []Window{{0, 50}, {25, 75}, {50, 100}}

	due := Due(windows, 75)
	if len(due) != 1 || due[0] != (Window{50, 100}) {
		t.Fatalf("high water 75: want=[{50 100}] got=%v", due)
	}

	due = Due(windows, 0)
	if len(due) != 3 {
		t.Fatalf("no high water: want all windows, got %v", due)
	}

	due = Due(windows, 100)
	if due != nil {
		t.Fatalf("fully processed: want none, got %v", due)
	}
}
