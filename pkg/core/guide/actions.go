package guide

import (
	"time"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// Action is a message dispatched into the state machine. Actions are the
// only way session state changes: timers, analysis results, and user input
// all arrive here.
type Action interface {
	// ActionName returns a stable identifier for logging.
	ActionName() string
}

// --- lifecycle ---

// ActionStart begins the session.
type ActionStart struct {
	Category     string
	Problem      string
	LikelyCause  string
	ExpectedItem string
}

func (ActionStart) ActionName() string { return "start" }

// ActionPlanLoaded delivers the initial plan.
type ActionPlanLoaded struct{ Plan *types.RepairPlan }

func (ActionPlanLoaded) ActionName() string { return "plan_loaded" }

// ActionPlanFailed reports initial plan generation failure.
type ActionPlanFailed struct{ Err error }

func (ActionPlanFailed) ActionName() string { return "plan_failed" }

// ActionPermissionsGranted reports camera/microphone access granted.
type ActionPermissionsGranted struct{}

func (ActionPermissionsGranted) ActionName() string { return "permissions_granted" }

// ActionPermissionsDenied reports camera/microphone access denied.
type ActionPermissionsDenied struct{}

func (ActionPermissionsDenied) ActionName() string { return "permissions_denied" }

// ActionRetry retries out of a recoverable error (plan load, permissions).
type ActionRetry struct{}

func (ActionRetry) ActionName() string { return "retry" }

// ActionEndSession ends the session at the user's request.
type ActionEndSession struct{}

func (ActionEndSession) ActionName() string { return "end_session" }

// --- identity gate ---

// ActionIdentityResult delivers one identity-gate analysis result.
type ActionIdentityResult struct{ Detected string }

func (ActionIdentityResult) ActionName() string { return "identity_result" }

// ActionIdentityOverride is the user asserting the item is correct.
type ActionIdentityOverride struct{}

func (ActionIdentityOverride) ActionName() string { return "identity_override" }

// ActionIdentityRescan restarts identity verification from the modal.
type ActionIdentityRescan struct{}

func (ActionIdentityRescan) ActionName() string { return "identity_rescan" }

// --- guidance findings (produced by the interpreter) ---

// ActionGuidance updates the displayed/spoken guidance text.
type ActionGuidance struct {
	Text       string
	Confidence float64
	Speak      bool
}

func (ActionGuidance) ActionName() string { return "guidance" }

// ActionAutoAdvance is a single high-confidence completion detection.
type ActionAutoAdvance struct{ Confidence float64 }

func (ActionAutoAdvance) ActionName() string { return "auto_advance" }

// ActionSuggestCompletion asks the user to confirm a likely completion.
type ActionSuggestCompletion struct{ Confidence float64 }

func (ActionSuggestCompletion) ActionName() string { return "suggest_completion" }

// ActionCompletionPrompt is the repetition/timeout "already finished?" prompt.
type ActionCompletionPrompt struct{ Source string } // "repetition" or "timeout"

func (ActionCompletionPrompt) ActionName() string { return "completion_prompt" }

// ActionItemNeeded pauses for items the instruction asked the user to fetch.
type ActionItemNeeded struct{ Items []string }

func (ActionItemNeeded) ActionName() string { return "item_needed" }

// ActionTaskDetected pauses for a physical task instruction.
type ActionTaskDetected struct{ Task string }

func (ActionTaskDetected) ActionName() string { return "task_detected" }

// ActionWrongItem reports that a mid-step frame showed an object that
// does not look like the session's item.
type ActionWrongItem struct{ Detected string }

func (ActionWrongItem) ActionName() string { return "wrong_item" }

// ActionSafetyStop halts the session on a detected hazard.
type ActionSafetyStop struct{ Warning string }

func (ActionSafetyStop) ActionName() string { return "safety_stop" }

// --- completion confirmations ---

// ActionConfirmCompletion is the user confirming the step is done.
type ActionConfirmCompletion struct{}

func (ActionConfirmCompletion) ActionName() string { return "confirm_completion" }

// ActionDeclineCompletion is the user saying the step is not done.
type ActionDeclineCompletion struct{}

func (ActionDeclineCompletion) ActionName() string { return "decline_completion" }

// ActionRequestOverride opens the manual-advance confirmation.
type ActionRequestOverride struct{}

func (ActionRequestOverride) ActionName() string { return "request_override" }

// ActionOverrideConfirmed advances past the AI's refusal.
type ActionOverrideConfirmed struct{}

func (ActionOverrideConfirmed) ActionName() string { return "override_confirmed" }

// ActionOverrideCancelled closes the override confirmation.
type ActionOverrideCancelled struct{}

func (ActionOverrideCancelled) ActionName() string { return "override_cancelled" }

// --- pause / resume ---

// ActionPause is a manual pause request.
type ActionPause struct{ Reason PauseReason }

func (ActionPause) ActionName() string { return "pause" }

// ActionToggleItem flips an item between on-hand and missing in the
// get_item checklist.
type ActionToggleItem struct{ Item string }

func (ActionToggleItem) ActionName() string { return "toggle_item" }

// ActionResume resumes from pause per the pause reason's semantics.
type ActionResume struct{}

func (ActionResume) ActionName() string { return "resume" }

// ActionUpdatePlan folds the missing items into the permanent constraints
// and regenerates the plan.
type ActionUpdatePlan struct{}

func (ActionUpdatePlan) ActionName() string { return "update_plan" }

// ActionFindSubstitute enters the substitute-scan flow for missing items.
type ActionFindSubstitute struct{}

func (ActionFindSubstitute) ActionName() string { return "find_substitute" }

// --- voice Q&A ---

// ActionStartListening opens voice question capture.
type ActionStartListening struct{}

func (ActionStartListening) ActionName() string { return "start_listening" }

// ActionQuestionCaptured submits a transcribed question.
type ActionQuestionCaptured struct{ Question string }

func (ActionQuestionCaptured) ActionName() string { return "question_captured" }

// ActionAnswerReady delivers the Q&A service's answer.
type ActionAnswerReady struct{ Answer string }

func (ActionAnswerReady) ActionName() string { return "answer_ready" }

// ActionAnswerFailed reports a Q&A failure.
type ActionAnswerFailed struct{ Err error }

func (ActionAnswerFailed) ActionName() string { return "answer_failed" }

// ActionCloseAnswer dismisses the answer view.
type ActionCloseAnswer struct{}

func (ActionCloseAnswer) ActionName() string { return "close_answer" }

// ActionOpenConversation expands the answer view into multi-turn Q&A.
type ActionOpenConversation struct{}

func (ActionOpenConversation) ActionName() string { return "open_conversation" }

// ActionCloseConversation exits multi-turn Q&A.
type ActionCloseConversation struct{}

func (ActionCloseConversation) ActionName() string { return "close_conversation" }

// ActionCancelListening aborts question capture.
type ActionCancelListening struct{}

func (ActionCancelListening) ActionName() string { return "cancel_listening" }

// --- substitute search ---

// ActionBeginSubstituteScan starts scanning for the first missing item.
type ActionBeginSubstituteScan struct{}

func (ActionBeginSubstituteScan) ActionName() string { return "begin_substitute_scan" }

// ActionSubstituteFound delivers a found candidate.
type ActionSubstituteFound struct{ Result *types.SubstituteResult }

func (ActionSubstituteFound) ActionName() string { return "substitute_found" }

// ActionSubstituteExhausted reports a scan round without a match.
type ActionSubstituteExhausted struct{ Attempts int }

func (ActionSubstituteExhausted) ActionName() string { return "substitute_exhausted" }

// ActionSubstituteConfirm accepts the found substitute.
type ActionSubstituteConfirm struct{}

func (ActionSubstituteConfirm) ActionName() string { return "substitute_confirm" }

// ActionSubstituteReject dismisses the candidate and rescans.
type ActionSubstituteReject struct{}

func (ActionSubstituteReject) ActionName() string { return "substitute_reject" }

// ActionSubstituteRetry rescans after a not-found round.
type ActionSubstituteRetry struct{}

func (ActionSubstituteRetry) ActionName() string { return "substitute_retry" }

// ActionSubstituteSkip gives up on the current missing item.
type ActionSubstituteSkip struct{}

func (ActionSubstituteSkip) ActionName() string { return "substitute_skip" }

// --- plan regeneration ---

// ActionPlanRegenerated delivers the revised tail of the plan.
type ActionPlanRegenerated struct{ Plan *types.RepairPlan }

func (ActionPlanRegenerated) ActionName() string { return "plan_regenerated" }

// ActionPlanRegenFailed reports a regeneration failure.
type ActionPlanRegenFailed struct{ Err error }

func (ActionPlanRegenFailed) ActionName() string { return "plan_regen_failed" }

// ActionAcknowledgeNewPlan dismisses the new-plan modal.
type ActionAcknowledgeNewPlan struct{}

func (ActionAcknowledgeNewPlan) ActionName() string { return "acknowledge_new_plan" }

// --- settings ---

// ActionOpenVoiceSettings opens the voice settings sheet.
type ActionOpenVoiceSettings struct{}

func (ActionOpenVoiceSettings) ActionName() string { return "open_voice_settings" }

// ActionCloseVoiceSettings closes the voice settings sheet.
type ActionCloseVoiceSettings struct{}

func (ActionCloseVoiceSettings) ActionName() string { return "close_voice_settings" }

// ActionSetVoiceEnabled toggles spoken guidance.
type ActionSetVoiceEnabled struct{ Enabled bool }

func (ActionSetVoiceEnabled) ActionName() string { return "set_voice_enabled" }

// Effect is a side effect the machine asks the session to perform. The
// machine itself never does I/O; it returns effects from Apply and the
// session executes them after the state commit.
type Effect interface {
	// EffectName returns a stable identifier for logging.
	EffectName() string
}

// EffectLoadPlan requests initial plan generation.
type EffectLoadPlan struct{}

func (EffectLoadPlan) EffectName() string { return "load_plan" }

// EffectSpeak enqueues an utterance. Urgent utterances flush the queue.
type EffectSpeak struct {
	Text   string
	Urgent bool
}

func (EffectSpeak) EffectName() string { return "speak" }

// EffectFlushSpeech drops all queued speech and cancels playback.
type EffectFlushSpeech struct{}

func (EffectFlushSpeech) EffectName() string { return "flush_speech" }

// EffectHoldAnalysis delays the next frame analysis.
type EffectHoldAnalysis struct{ Delay time.Duration }

func (EffectHoldAnalysis) EffectName() string { return "hold_analysis" }

// EffectResetStepTracking clears the interpreter's per-step counters.
type EffectResetStepTracking struct{}

func (EffectResetStepTracking) EffectName() string { return "reset_step_tracking" }

// EffectEnterWorkingMode starts speech suppression while the user is
// heads-down on the step.
type EffectEnterWorkingMode struct{}

func (EffectEnterWorkingMode) EffectName() string { return "enter_working_mode" }

// EffectRequestScan asks the scan loop to run an analysis immediately
// instead of waiting for the next tick.
type EffectRequestScan struct{}

func (EffectRequestScan) EffectName() string { return "request_scan" }

// EffectExitWorkingMode clears speech suppression so the next analysis
// result is spoken.
type EffectExitWorkingMode struct{}

func (EffectExitWorkingMode) EffectName() string { return "exit_working_mode" }

// EffectClearPausedAction forgets the last paused-on task so a repeated
// instruction is treated as still incomplete.
type EffectClearPausedAction struct{}

func (EffectClearPausedAction) EffectName() string { return "clear_paused_action" }

// EffectStartSubstituteScan starts the secondary scan loop for an item.
type EffectStartSubstituteScan struct{ Item string }

func (EffectStartSubstituteScan) EffectName() string { return "start_substitute_scan" }

// EffectStopSubstituteScan stops the secondary scan loop.
type EffectStopSubstituteScan struct{}

func (EffectStopSubstituteScan) EffectName() string { return "stop_substitute_scan" }

// EffectRegeneratePlan requests a revised plan under current constraints.
type EffectRegeneratePlan struct{}

func (EffectRegeneratePlan) EffectName() string { return "regenerate_plan" }

// EffectAskQuestion submits a question to the Q&A service.
type EffectAskQuestion struct{ Question string }

func (EffectAskQuestion) EffectName() string { return "ask_question" }

// EffectEndSession tears the session down.
type EffectEndSession struct{ Reason string }

func (EffectEndSession) EffectName() string { return "end_session" }

// EffectEmit surfaces an event to the UI layer.
type EffectEmit struct{ Event Event }

func (EffectEmit) EffectName() string { return "emit" }
