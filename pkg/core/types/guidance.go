package types

import "time"

// Frame is a single captured camera image.
type Frame struct {
	// JPEG is the encoded image data.
	JPEG []byte `json:"-"`

	// CapturedAt is when the frame was taken.
	CapturedAt time.Time `json:"captured_at"`
}

// GuidanceResponse is the raw result of one frame analysis by the
// real-time guidance service. The engine treats it as read-only input.
type GuidanceResponse struct {
	// Instruction is what the service wants to tell the user right now.
	Instruction string `json:"instruction"`

	// Confidence is the service's confidence in its assessment, 0-1.
	Confidence float64 `json:"confidence"`

	// StepComplete is set when the service believes the current step's
	// completion criteria are met.
	StepComplete bool `json:"step_complete,omitempty"`

	// SuggestCompletion is a weaker signal: the step looks done but the
	// user should confirm.
	SuggestCompletion bool `json:"suggest_completion,omitempty"`

	// RequiresManualAction is set when the instruction describes a
	// physical task rather than camera repositioning or commentary.
	RequiresManualAction bool `json:"requires_manual_action,omitempty"`

	// DetectedObject is the primary object the service identified in the
	// frame. Used by the identity gate.
	DetectedObject string `json:"detected_object,omitempty"`

	// DetectedItemMismatch is set when the object in view does not look
	// like the item the session is about.
	DetectedItemMismatch bool `json:"detected_item_mismatch,omitempty"`

	// Highlights are boxes to draw over the camera view.
	Highlights []Highlight `json:"highlights,omitempty"`

	// ShouldStop indicates a safety hazard; the session must halt.
	ShouldStop bool `json:"should_stop,omitempty"`

	// SafetyWarning is the hazard description when ShouldStop is set.
	SafetyWarning string `json:"safety_warning,omitempty"`
}
