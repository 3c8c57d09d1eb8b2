package guide

import "github.com/fixpilot-ai/fixpilot/pkg/core/types"

// HighlightTracker smooths analyzer box output. Boxes only change when a
// frame actually carries new ones; a run of empty frames keeps the last
// set on screen until the decay budget is spent, so boxes don't flicker
// when the analyzer briefly loses the part.
type HighlightTracker struct {
	decayFrames int
	current     []types.Highlight
	emptyRun    int
}

func NewHighlightTracker(decayFrames int) *HighlightTracker {
	if decayFrames < 1 {
		decayFrames = 1
	}
	return &HighlightTracker{decayFrames: decayFrames}
}

// Observe folds one frame's highlights into the tracker. It returns the
// set to display and whether it changed since the previous frame. Boxes
// are clamped to minimum size and screen bounds before display.
func (h *HighlightTracker) Observe(highlights []types.Highlight) ([]types.Highlight, bool) {
	if len(highlights) > 0 {
		h.emptyRun = 0
		clamped := make([]types.Highlight, len(highlights))
		for i, hl := range highlights {
			clamped[i] = hl.Clamp()
		}
		h.current = clamped
		return h.current, true
	}

	if len(h.current) == 0 {
		return nil, false
	}
	h.emptyRun++
	if h.emptyRun < h.decayFrames {
		return h.current, false
	}
	h.current = nil
	h.emptyRun = 0
	return nil, true
}

// Current returns the highlights on display.
func (h *HighlightTracker) Current() []types.Highlight { return h.current }

// Reset clears the display immediately. Called on step changes.
func (h *HighlightTracker) Reset() {
	h.current = nil
	h.emptyRun = 0
}
