package guide

import (
	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// Event is the interface for all session events delivered to the UI layer.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// SessionStartedEvent is emitted once the session begins loading its plan.
type SessionStartedEvent struct {
	SessionID string `json:"session_id"`
	Category  string `json:"category"`
	Problem   string `json:"problem"`
}

func (e *SessionStartedEvent) EventType() string { return "session.started" }

// SessionEndedEvent is emitted when the session terminates.
type SessionEndedEvent struct {
	Reason         string `json:"reason"` // "completed", "user_ended", "safety_stop", "error"
	StepsCompleted int    `json:"steps_completed"`
	TotalSteps     int    `json:"total_steps"`
	PlanRevision   int    `json:"plan_revision"`
}

func (e *SessionEndedEvent) EventType() string { return "session.ended" }

// StateChangedEvent is emitted on every state transition.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// PlanLoadedEvent is emitted when the initial plan arrives.
type PlanLoadedEvent struct {
	Steps   []types.RepairStep `json:"steps"`
	Summary string             `json:"summary,omitempty"`
}

func (e *PlanLoadedEvent) EventType() string { return "plan.loaded" }

// PlanUpdatedEvent is emitted after a successful plan regeneration.
type PlanUpdatedEvent struct {
	Revision       int                `json:"revision"`
	CompletedSteps int                `json:"completed_steps"`
	Steps          []types.RepairStep `json:"steps"`
}

func (e *PlanUpdatedEvent) EventType() string { return "plan.updated" }

// StepAdvancedEvent is emitted when the session moves to a new step.
type StepAdvancedEvent struct {
	StepIndex    int    `json:"step_index"`
	TotalSteps   int    `json:"total_steps"`
	PlanRevision int    `json:"plan_revision"`
	Method       string `json:"method"` // "auto", "confirmed", "override"
}

func (e *StepAdvancedEvent) EventType() string { return "step.advanced" }

// GuidanceUpdatedEvent carries the current guidance text for display.
type GuidanceUpdatedEvent struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (e *GuidanceUpdatedEvent) EventType() string { return "guidance.updated" }

// HighlightsUpdatedEvent carries the current highlight boxes. An empty
// list means the display should clear.
type HighlightsUpdatedEvent struct {
	Highlights []types.Highlight `json:"highlights"`
}

func (e *HighlightsUpdatedEvent) EventType() string { return "highlights.updated" }

// PauseOpenedEvent is emitted when the session enters StatePaused.
type PauseOpenedEvent struct {
	Reason      PauseReason `json:"reason"`
	StepIndex   int         `json:"step_index"`
	Instruction string      `json:"instruction"`
	NeededItems []string    `json:"needed_items"`
	TaskText    string      `json:"task_text,omitempty"`
}

func (e *PauseOpenedEvent) EventType() string { return "pause.opened" }

// ItemToggledEvent is emitted when the user marks an item missing/present.
type ItemToggledEvent struct {
	Item    string `json:"item"`
	Missing bool   `json:"missing"`
}

func (e *ItemToggledEvent) EventType() string { return "pause.item_toggled" }

// IdentityResultEvent reports one identity-gate check.
type IdentityResultEvent struct {
	Expected string         `json:"expected"`
	Detected string         `json:"detected"`
	Status   IdentityStatus `json:"status"`
}

func (e *IdentityResultEvent) EventType() string { return "identity.result" }

// CompletionSuggestedEvent is emitted when the AI suggests the step may be
// done but wants user confirmation.
type CompletionSuggestedEvent struct {
	StepIndex  int     `json:"step_index"`
	Confidence float64 `json:"confidence"`
}

func (e *CompletionSuggestedEvent) EventType() string { return "completion.suggested" }

// SpeechStartedEvent is emitted when an utterance begins playback.
type SpeechStartedEvent struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Urgent bool   `json:"urgent,omitempty"`
}

func (e *SpeechStartedEvent) EventType() string { return "speech.started" }

// SpeechEndedEvent is emitted when an utterance finishes, is cancelled, or
// times out.
type SpeechEndedEvent struct {
	ID       string `json:"id"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

func (e *SpeechEndedEvent) EventType() string { return "speech.ended" }

// AnswerReadyEvent carries a voice Q&A answer.
type AnswerReadyEvent struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (e *AnswerReadyEvent) EventType() string { return "answer.ready" }

// SubstituteFoundEvent is emitted when the substitute scan finds a candidate.
type SubstituteFoundEvent struct {
	MissingItem string                  `json:"missing_item"`
	Result      *types.SubstituteResult `json:"result"`
}

func (e *SubstituteFoundEvent) EventType() string { return "substitute.found" }

// SubstituteExhaustedEvent is emitted when a scan round ends without a match.
type SubstituteExhaustedEvent struct {
	MissingItem string `json:"missing_item"`
	Attempts    int    `json:"attempts"`
}

func (e *SubstituteExhaustedEvent) EventType() string { return "substitute.exhausted" }

// SafetyStopEvent is emitted on a hazard detection; the session is ending.
type SafetyStopEvent struct {
	Warning string `json:"warning"`
}

func (e *SafetyStopEvent) EventType() string { return "safety.stop" }

// StaleResponseDroppedEvent is diagnostic: a late analysis result was
// discarded by the gate. Never surfaced to the user.
type StaleResponseDroppedEvent struct {
	Generation uint64 `json:"generation"`
	StepIndex  int    `json:"step_index"`
	Reason     string `json:"reason"` // "generation", "step", "freeze_window"
}

func (e *StaleResponseDroppedEvent) EventType() string { return "analysis.stale_dropped" }

// BackoffEvent is emitted when the scan loop pauses after rate limiting.
type BackoffEvent struct {
	DelayMs int `json:"delay_ms"`
}

func (e *BackoffEvent) EventType() string { return "analysis.backoff" }

// ErrorEvent reports a non-fatal error.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// DebugEvent is emitted for debugging information.
type DebugEvent struct {
	Category string `json:"category"` // SCAN, GATE, INTERP, SPEECH, MACHINE, SUB, PLAN
	Message  string `json:"message"`
}

func (e *DebugEvent) EventType() string { return "debug" }
