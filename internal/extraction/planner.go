package extraction

import (
	"fmt"

	"github.com/introspecthq/agentlens-backend/internal/domain"
)

// Window is a half-open [Start, End) slice of an owner's ordered
// interaction sequence. Windows are derived values and never persisted.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Override replaces the global (window_size, stride) pair for one
// extractor or feedback type. Absence of an override means "use the
// global default", never zero.
type Override struct {
	WindowSize int `yaml:"window_size" json:"window_size"`
	Stride     int `yaml:"stride" json:"stride"`
}

// Resolve picks the effective (size, stride) for an extractor.
func Resolve(extractor string, defaultSize, defaultStride int, overrides map[string]Override) (int, int) {
	if ov, ok := overrides[extractor]; ok {
		return ov.WindowSize, ov.Stride
	}
	return defaultSize, defaultStride
}

// Plan enumerates the extraction windows for a timeline of
// interactionCount events. Start indices are 0, stride, 2*stride, ...;
// the final window is clipped to interactionCount so no trailing
// interactions are skipped. A non-positive size or stride would produce
// an empty or infinite plan and is rejected up front.
func Plan(interactionCount, windowSize, stride int) ([]Window, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: window_size must be >= 1, got %d", domain.ErrInvalidConfiguration, windowSize)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("%w: stride must be >= 1, got %d", domain.ErrInvalidConfiguration, stride)
	}
	if interactionCount <= 0 {
		return nil, nil
	}
	var windows []Window
	for start := 0; ; start += stride {
		end := start + windowSize
		if end >= interactionCount {
			windows = append(windows, Window{Start: start, End: interactionCount})
			break
		}
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows, nil
}

// Due filters a plan down to the windows that still need (re)processing
// given a high-water mark of already-processed interactions. A window is
// due when it covers at least one interaction at or past the mark.
func Due(windows []Window, highWater int) []Window {
	if highWater <= 0 {
		return windows
	}
	var due []Window
	for _, w := range windows {
		if w.End > highWater {
			due = append(due, w)
		}
	}
	return due
}
