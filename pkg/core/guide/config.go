package guide

import "time"

// State is the session phase. The session is always in exactly one state;
// every user action and every analysis result is matched against the
// current state, and anything without a valid transition is a logged no-op.
type State int

const (
	// StateIdle is the initial state before the session is started.
	StateIdle State = iota
	// StateLoadingPlan is while the initial step list is being generated.
	StateLoadingPlan
	// StateRequestingPermissions is while camera/microphone access is pending.
	StateRequestingPermissions
	// StateVerifyingIdentity is the identity gate: confirming the object in
	// view matches the item the diagnosis was about.
	StateVerifyingIdentity
	// StateIdentityMismatchModal is shown after consecutive identity mismatches.
	StateIdentityMismatchModal
	// StateStepActive is the main working state: the scan loop is live.
	StateStepActive
	// StateConfirmingCompletion asks "did you already finish?" after
	// repetition or step timeout.
	StateConfirmingCompletion
	// StateCompletionSuggestedModal asks the user to confirm an
	// AI-suggested completion below the auto-advance threshold.
	StateCompletionSuggestedModal
	// StateOverrideConfirmationModal confirms a manual advance after the
	// guidance service declined to mark the step complete.
	StateOverrideConfirmationModal
	// StatePaused is the checklist pause; the reason determines resume semantics.
	StatePaused
	// StateListening is capturing a voice question.
	StateListening
	// StateProcessingQuestion is while the Q&A service is answering.
	StateProcessingQuestion
	// StateShowingAnswer displays (and speaks) a single answer.
	StateShowingAnswer
	// StateConversation is the multi-turn Q&A view.
	StateConversation
	// StateSubstituteScanReady primes the user before the substitute scan.
	StateSubstituteScanReady
	// StateSearchingSubstitute runs the secondary substitute scan loop.
	StateSearchingSubstitute
	// StateSubstituteNotFound offers retry or skip after a failed scan round.
	StateSubstituteNotFound
	// StateSubstituteFoundModal confirms a found substitute.
	StateSubstituteFoundModal
	// StateRegeneratingPlan is while a revised step list is requested.
	StateRegeneratingPlan
	// StateNewPlanModal presents the revised plan for acknowledgment.
	StateNewPlanModal
	// StateVoiceSettingsModal is the voice/feedback toggle sheet.
	StateVoiceSettingsModal
	// StateSessionComplete is terminal: all steps done or user ended.
	StateSessionComplete
	// StateError is the failure state. It is terminal for safety stops and
	// recoverable for plan-load and permission failures.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateLoadingPlan:
		return "LOADING_PLAN"
	case StateRequestingPermissions:
		return "REQUESTING_PERMISSIONS"
	case StateVerifyingIdentity:
		return "VERIFYING_IDENTITY"
	case StateIdentityMismatchModal:
		return "IDENTITY_MISMATCH_MODAL"
	case StateStepActive:
		return "STEP_ACTIVE"
	case StateConfirmingCompletion:
		return "CONFIRMING_COMPLETION"
	case StateCompletionSuggestedModal:
		return "COMPLETION_SUGGESTED_MODAL"
	case StateOverrideConfirmationModal:
		return "OVERRIDE_CONFIRMATION_MODAL"
	case StatePaused:
		return "PAUSED"
	case StateListening:
		return "LISTENING"
	case StateProcessingQuestion:
		return "PROCESSING_QUESTION"
	case StateShowingAnswer:
		return "SHOWING_ANSWER"
	case StateConversation:
		return "CONVERSATION"
	case StateSubstituteScanReady:
		return "SUBSTITUTE_SCAN_READY"
	case StateSearchingSubstitute:
		return "SEARCHING_SUBSTITUTE"
	case StateSubstituteNotFound:
		return "SUBSTITUTE_NOT_FOUND"
	case StateSubstituteFoundModal:
		return "SUBSTITUTE_FOUND_MODAL"
	case StateRegeneratingPlan:
		return "REGENERATING_PLAN"
	case StateNewPlanModal:
		return "NEW_PLAN_MODAL"
	case StateVoiceSettingsModal:
		return "VOICE_SETTINGS_MODAL"
	case StateSessionComplete:
		return "SESSION_COMPLETE"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions leave this state.
// StateError is terminal only when the error is unrecoverable.
func (s State) Terminal() bool {
	return s == StateSessionComplete
}

// PauseReason determines what resuming from StatePaused does.
type PauseReason string

const (
	// PauseManual resumes immediately into active analysis.
	PauseManual PauseReason = "manual"
	// PauseGetItem shows the step's needed-items checklist. Resuming with
	// everything on hand goes straight to analysis; missing items fold into
	// the persistent constraints and may trigger substitution or a new plan.
	PauseGetItem PauseReason = "get_item"
	// PauseWorkingOnStep was requested by the user to work uninterrupted.
	// Resuming re-verifies completion with a fresh analysis.
	PauseWorkingOnStep PauseReason = "working_on_step"
	// PauseDoTask was triggered by an action-task instruction. Resuming
	// delays analysis briefly so the user can reposition the camera.
	PauseDoTask PauseReason = "do_task"
)

// IdentityStatus is the outcome of the identity gate.
type IdentityStatus string

const (
	IdentityUnverified      IdentityStatus = "unverified"
	IdentityConfirmed       IdentityStatus = "confirmed"
	IdentityMismatch        IdentityStatus = "mismatch"
	IdentityConfirmedByUser IdentityStatus = "confirmed_by_user"
)

// Config holds the engine's tunable thresholds. The defaults are the
// empirically chosen values; treat them as configuration, not constants.
type Config struct {
	// ScanIntervalMs is how often the frame loop attempts an analysis.
	// Default: 5000.
	ScanIntervalMs int `json:"scan_interval_ms"`

	// FreezeWindowMs is how long after a step advance incoming guidance is
	// presumed stale and dropped. Default: 3000.
	FreezeWindowMs int `json:"freeze_window_ms"`

	// CompletionConfidence is the minimum confidence for a single-frame
	// auto-advance. Default: 0.7.
	CompletionConfidence float64 `json:"completion_confidence"`

	// RepeatPromptCount is how many consecutive identical instructions
	// trigger the "did you already finish?" prompt. Default: 3.
	RepeatPromptCount int `json:"repeat_prompt_count"`

	// StepTimeoutMs is how long on one step without completion before the
	// same prompt fires (once per step). Default: 25000.
	StepTimeoutMs int `json:"step_timeout_ms"`

	// SpeechTimeoutMs is the per-utterance safety timeout: if playback
	// never signals completion, the queue force-advances. Default: 10000.
	SpeechTimeoutMs int `json:"speech_timeout_ms"`

	// SpeechGapMs is the pause between queued utterances. Default: 300.
	SpeechGapMs int `json:"speech_gap_ms"`

	// HighlightDecayFrames is how many consecutive empty-highlight frames
	// are tolerated before the display clears. Default: 3.
	HighlightDecayFrames int `json:"highlight_decay_frames"`

	// DoTaskResumeDelayMs delays analysis after resuming a do_task pause so
	// the user can reposition the camera. Default: 2000.
	DoTaskResumeDelayMs int `json:"do_task_resume_delay_ms"`

	// WorkingModeCooldownMs suppresses non-critical speech after entering a
	// step, so the engine does not narrate over the user. Default: 8000.
	WorkingModeCooldownMs int `json:"working_mode_cooldown_ms"`

	// MismatchThreshold is how many consecutive identity mismatches open
	// the mismatch modal. Default: 2.
	MismatchThreshold int `json:"mismatch_threshold"`

	// BackoffBaseMs and BackoffMaxMs bound the exponential backoff applied
	// after rate-limit failures. Defaults: 5000 and 30000.
	BackoffBaseMs int `json:"backoff_base_ms"`
	BackoffMaxMs  int `json:"backoff_max_ms"`

	// SubstituteScanIntervalMs is the substitute loop's cadence. Default: 4000.
	SubstituteScanIntervalMs int `json:"substitute_scan_interval_ms"`

	// SubstituteMaxAttempts is how many scans without a match before the
	// not-found prompt. Default: 3.
	SubstituteMaxAttempts int `json:"substitute_max_attempts"`

	// ConversationLimit bounds the Q&A context ring. Default: 10.
	ConversationLimit int `json:"conversation_limit"`

	// VoiceEnabled controls whether guidance is spoken at all.
	// Default: true.
	VoiceEnabled bool `json:"voice_enabled"`
}

// DefaultConfig returns a Config with the standard thresholds.
func DefaultConfig() Config {
	return Config{
		ScanIntervalMs:           5000,
		FreezeWindowMs:           3000,
		CompletionConfidence:     0.7,
		RepeatPromptCount:        3,
		StepTimeoutMs:            25000,
		SpeechTimeoutMs:          10000,
		SpeechGapMs:              300,
		HighlightDecayFrames:     3,
		DoTaskResumeDelayMs:      2000,
		WorkingModeCooldownMs:    8000,
		MismatchThreshold:        2,
		BackoffBaseMs:            5000,
		BackoffMaxMs:             30000,
		SubstituteScanIntervalMs: 4000,
		SubstituteMaxAttempts:    3,
		ConversationLimit:        10,
		VoiceEnabled:             true,
	}
}

// ScanInterval returns ScanIntervalMs as a duration.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMs) * time.Millisecond
}

// FreezeWindow returns FreezeWindowMs as a duration.
func (c Config) FreezeWindow() time.Duration {
	return time.Duration(c.FreezeWindowMs) * time.Millisecond
}

// StepTimeout returns StepTimeoutMs as a duration.
func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutMs) * time.Millisecond
}

// SpeechTimeout returns SpeechTimeoutMs as a duration.
func (c Config) SpeechTimeout() time.Duration {
	return time.Duration(c.SpeechTimeoutMs) * time.Millisecond
}

// SpeechGap returns SpeechGapMs as a duration.
func (c Config) SpeechGap() time.Duration {
	return time.Duration(c.SpeechGapMs) * time.Millisecond
}

// DoTaskResumeDelay returns DoTaskResumeDelayMs as a duration.
func (c Config) DoTaskResumeDelay() time.Duration {
	return time.Duration(c.DoTaskResumeDelayMs) * time.Millisecond
}

// WorkingModeCooldown returns WorkingModeCooldownMs as a duration.
func (c Config) WorkingModeCooldown() time.Duration {
	return time.Duration(c.WorkingModeCooldownMs) * time.Millisecond
}

// BackoffBase returns BackoffBaseMs as a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BackoffMax returns BackoffMaxMs as a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// SubstituteScanInterval returns SubstituteScanIntervalMs as a duration.
func (c Config) SubstituteScanInterval() time.Duration {
	return time.Duration(c.SubstituteScanIntervalMs) * time.Millisecond
}
