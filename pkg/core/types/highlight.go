package types

// Highlight is a normalized bounding box over the camera frame, expressed
// as percentages of the frame dimensions (0-100).
type Highlight struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label,omitempty"`
}

// MinHighlightSizePct is the smallest rendered box dimension. Detection
// services occasionally return degenerate boxes a user cannot see.
const MinHighlightSizePct = 4.0

// Clamp returns a copy of the highlight constrained to the frame bounds
// with a minimum visible size.
func (h Highlight) Clamp() Highlight {
	if h.Width < MinHighlightSizePct {
		h.Width = MinHighlightSizePct
	}
	if h.Height < MinHighlightSizePct {
		h.Height = MinHighlightSizePct
	}
	if h.Width > 100 {
		h.Width = 100
	}
	if h.Height > 100 {
		h.Height = 100
	}
	if h.X < 0 {
		h.X = 0
	}
	if h.Y < 0 {
		h.Y = 0
	}
	if h.X+h.Width > 100 {
		h.X = 100 - h.Width
	}
	if h.Y+h.Height > 100 {
		h.Y = 100 - h.Height
	}
	return h
}
