package guide

import (
	"fmt"
	"strings"
	"time"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// identityMinLen: expected/detected strings shorter than this match
// anything. Very short labels carry no discriminating signal.
const identityMinLen = 3

// Context is the session's side-effecting state. It is owned by the
// Machine and mutated only inside Apply, in the same commit as the state
// transition. Everything else reads it through the session's lock.
type Context struct {
	Category     string
	Problem      string
	LikelyCause  string
	ExpectedItem string

	Steps        []types.RepairStep
	StepIndex    int
	PlanRevision int

	// Generation is the monotonic request id for the stale-response gate.
	// It is bumped on every analysis dispatch and on every invalidating
	// transition, so in-flight responses become inert.
	Generation  uint64
	LastAdvance time.Time

	Identity       IdentityStatus
	MismatchStreak int

	PauseReason PauseReason
	NeededItems []string
	Missing     map[string]bool
	PendingTask string

	Constraints *types.ItemConstraints

	Conversation    types.ConversationLog
	PendingQuestion string
	InConversation  bool

	SubstituteQueue []string
	CurrentMissing  string
	FoundSubstitute *types.SubstituteResult

	GuidanceText string

	// ReturnState is where modal detours (Q&A, settings) go back to.
	ReturnState State

	VoiceEnabled bool

	EndReason      string
	Err            error
	ErrRecoverable bool
}

// CurrentStep returns the active step, or a zero step past the end.
func (c *Context) CurrentStep() types.RepairStep {
	if c.StepIndex >= 0 && c.StepIndex < len(c.Steps) {
		return c.Steps[c.StepIndex]
	}
	return types.RepairStep{}
}

// MissingItems returns the currently toggled-missing items in checklist order.
func (c *Context) MissingItems() []string {
	var out []string
	for _, item := range c.NeededItems {
		if c.Missing[item] {
			out = append(out, item)
		}
	}
	return out
}

// Machine is the session state machine: a closed set of states and a
// transition function. It performs no I/O; Apply returns effects for the
// session to execute after the commit.
type Machine struct {
	cfg  Config
	now  func() time.Time
	logf func(format string, args ...any)

	state State
	ctx   Context
}

// NewMachine creates a machine in StateIdle.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:  cfg,
		now:  time.Now,
		logf: func(string, ...any) {},
	}
}

// SetClock replaces the machine's time source. Test hook.
func (m *Machine) SetClock(now func() time.Time) { m.now = now }

// SetLogf sets the sink for no-op transition logs.
func (m *Machine) SetLogf(logf func(format string, args ...any)) {
	if logf != nil {
		m.logf = logf
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Context returns the machine's context. Callers must hold the same lock
// that serializes Apply.
func (m *Machine) Context() *Context { return &m.ctx }

// NextGeneration bumps and returns the generation counter. Called by the
// scan loop when stamping an analysis request.
func (m *Machine) NextGeneration() uint64 {
	m.ctx.Generation++
	return m.ctx.Generation
}

// Apply matches the action against the current state and either commits a
// transition (returning its effects) or rejects it as a no-op. A no-op is
// logged and returns ok=false; it never panics.
func (m *Machine) Apply(action Action) (effects []Effect, ok bool) {
	if m.state.Terminal() {
		m.noop(action)
		return nil, false
	}

	switch a := action.(type) {
	case ActionStart:
		return m.applyStart(a)
	case ActionPlanLoaded:
		return m.applyPlanLoaded(a)
	case ActionPlanFailed:
		return m.fail(StateLoadingPlan, a.Err, true, "plan_failed", action)
	case ActionPermissionsGranted:
		return m.applyPermissionsGranted(action)
	case ActionPermissionsDenied:
		return m.fail(StateRequestingPermissions, fmt.Errorf("camera permission denied"), true, "permission_denied", action)
	case ActionRetry:
		return m.applyRetry(action)
	case ActionEndSession:
		return m.applyEnd("user_ended")

	case ActionIdentityResult:
		return m.applyIdentityResult(a)
	case ActionIdentityOverride:
		return m.applyIdentityOverride(action)
	case ActionIdentityRescan:
		return m.applyIdentityRescan(action)

	case ActionGuidance:
		return m.applyGuidance(a)
	case ActionAutoAdvance:
		return m.applyAutoAdvance(a)
	case ActionSuggestCompletion:
		return m.applySuggestCompletion(a)
	case ActionCompletionPrompt:
		return m.applyCompletionPrompt(a)
	case ActionItemNeeded:
		return m.applyItemNeeded(a)
	case ActionTaskDetected:
		return m.applyTaskDetected(a)
	case ActionWrongItem:
		return m.applyWrongItem(a)
	case ActionSafetyStop:
		return m.applySafetyStop(a)

	case ActionConfirmCompletion:
		return m.applyConfirmCompletion(action)
	case ActionDeclineCompletion:
		return m.applyDeclineCompletion(action)
	case ActionRequestOverride:
		return m.applyRequestOverride(action)
	case ActionOverrideConfirmed:
		return m.applyAdvanceFrom(StateOverrideConfirmationModal, "override", action)
	case ActionOverrideCancelled:
		return m.simpleTransition(StateOverrideConfirmationModal, StateStepActive, action)

	case ActionPause:
		return m.applyPause(a)
	case ActionToggleItem:
		return m.applyToggleItem(a)
	case ActionResume:
		return m.applyResume(action)
	case ActionUpdatePlan:
		return m.applyUpdatePlan(action)
	case ActionFindSubstitute:
		return m.applyFindSubstitute(action)

	case ActionStartListening:
		return m.applyStartListening(action)
	case ActionCancelListening:
		return m.simpleTransition(StateListening, m.ctx.ReturnState, action)
	case ActionQuestionCaptured:
		return m.applyQuestionCaptured(a)
	case ActionAnswerReady:
		return m.applyAnswerReady(a)
	case ActionAnswerFailed:
		return m.applyAnswerFailed(a)
	case ActionCloseAnswer:
		return m.simpleTransition(StateShowingAnswer, m.ctx.ReturnState, action)
	case ActionOpenConversation:
		return m.applyOpenConversation(action)
	case ActionCloseConversation:
		return m.applyCloseConversation(action)

	case ActionBeginSubstituteScan:
		return m.applyBeginSubstituteScan(action)
	case ActionSubstituteFound:
		return m.applySubstituteFound(a)
	case ActionSubstituteExhausted:
		return m.applySubstituteExhausted(a)
	case ActionSubstituteConfirm:
		return m.applySubstituteConfirm(action)
	case ActionSubstituteReject:
		return m.applySubstituteReject(action)
	case ActionSubstituteRetry:
		return m.applySubstituteRetry(action)
	case ActionSubstituteSkip:
		return m.applySubstituteSkip(action)

	case ActionPlanRegenerated:
		return m.applyPlanRegenerated(a)
	case ActionPlanRegenFailed:
		return m.applyPlanRegenFailed(a)
	case ActionAcknowledgeNewPlan:
		return m.applyAcknowledgeNewPlan(action)

	case ActionOpenVoiceSettings:
		return m.applyOpenVoiceSettings(action)
	case ActionCloseVoiceSettings:
		return m.simpleTransition(StateVoiceSettingsModal, m.ctx.ReturnState, action)
	case ActionSetVoiceEnabled:
		return m.applySetVoiceEnabled(a)
	}

	m.noop(action)
	return nil, false
}

func (m *Machine) noop(action Action) {
	m.logf("machine: no transition for %s in %s", action.ActionName(), m.state)
}

// simpleTransition commits from -> to with no context change.
func (m *Machine) simpleTransition(from, to State, action Action) ([]Effect, bool) {
	if m.state != from {
		m.noop(action)
		return nil, false
	}
	m.state = to
	return nil, true
}

func (m *Machine) fail(from State, err error, recoverable bool, code string, action Action) ([]Effect, bool) {
	if m.state != from {
		m.noop(action)
		return nil, false
	}
	m.state = StateError
	m.ctx.Err = err
	m.ctx.ErrRecoverable = recoverable
	return []Effect{
		EffectEmit{&ErrorEvent{Code: code, Message: err.Error()}},
	}, true
}

// --- lifecycle ---

func (m *Machine) applyStart(a ActionStart) ([]Effect, bool) {
	if m.state != StateIdle {
		m.noop(a)
		return nil, false
	}
	m.state = StateLoadingPlan
	m.ctx = Context{
		Category:     a.Category,
		Problem:      a.Problem,
		LikelyCause:  a.LikelyCause,
		ExpectedItem: a.ExpectedItem,
		Identity:     IdentityUnverified,
		Constraints:  types.NewItemConstraints(),
		Conversation: types.NewConversationLog(m.cfg.ConversationLimit),
		VoiceEnabled: m.cfg.VoiceEnabled,
	}
	return []Effect{EffectLoadPlan{}}, true
}

func (m *Machine) applyPlanLoaded(a ActionPlanLoaded) ([]Effect, bool) {
	if m.state != StateLoadingPlan {
		m.noop(a)
		return nil, false
	}
	if a.Plan == nil || len(a.Plan.Steps) == 0 {
		return m.fail(StateLoadingPlan, fmt.Errorf("plan generator returned no steps"), true, "empty_plan", a)
	}
	m.state = StateRequestingPermissions
	m.ctx.Steps = a.Plan.Steps
	m.ctx.PlanRevision = 1
	return []Effect{
		EffectEmit{&PlanLoadedEvent{Steps: a.Plan.Steps, Summary: a.Plan.Summary}},
	}, true
}

func (m *Machine) applyPermissionsGranted(action Action) ([]Effect, bool) {
	if m.state != StateRequestingPermissions {
		m.noop(action)
		return nil, false
	}
	m.state = StateVerifyingIdentity
	m.ctx.Identity = IdentityUnverified
	m.ctx.MismatchStreak = 0
	return []Effect{
		EffectSpeak{Text: "Point your camera at the " + m.ctx.ExpectedItem + " so I can confirm we're looking at the right thing."},
	}, true
}

func (m *Machine) applyRetry(action Action) ([]Effect, bool) {
	if m.state != StateError || !m.ctx.ErrRecoverable {
		m.noop(action)
		return nil, false
	}
	m.ctx.Err = nil
	if len(m.ctx.Steps) == 0 {
		m.state = StateLoadingPlan
		return []Effect{EffectLoadPlan{}}, true
	}
	m.state = StateRequestingPermissions
	return nil, true
}

func (m *Machine) applyEnd(reason string) ([]Effect, bool) {
	m.state = StateSessionComplete
	m.ctx.EndReason = reason
	return []Effect{
		EffectFlushSpeech{},
		EffectStopSubstituteScan{},
		EffectEndSession{Reason: reason},
	}, true
}

// --- identity gate ---

// identityMatches implements the deliberately forgiving identity policy:
// empty or very short strings match anything, otherwise one must contain
// the other, case-insensitively.
func identityMatches(expected, detected string) bool {
	e := strings.ToLower(strings.TrimSpace(expected))
	d := strings.ToLower(strings.TrimSpace(detected))
	if len(e) < identityMinLen || len(d) < identityMinLen {
		return true
	}
	return strings.Contains(e, d) || strings.Contains(d, e)
}

func (m *Machine) applyIdentityResult(a ActionIdentityResult) ([]Effect, bool) {
	if m.state != StateVerifyingIdentity {
		m.noop(a)
		return nil, false
	}
	if identityMatches(m.ctx.ExpectedItem, a.Detected) {
		effects := []Effect{
			EffectEmit{&IdentityResultEvent{Expected: m.ctx.ExpectedItem, Detected: a.Detected, Status: IdentityConfirmed}},
			EffectSpeak{Text: "That's the right item. Let's get started."},
		}
		return append(effects, m.confirmIdentity(IdentityConfirmed)...), true
	}

	m.ctx.Identity = IdentityMismatch
	m.ctx.MismatchStreak++
	effects := []Effect{
		EffectEmit{&IdentityResultEvent{Expected: m.ctx.ExpectedItem, Detected: a.Detected, Status: IdentityMismatch}},
	}
	if m.ctx.MismatchStreak >= m.cfg.MismatchThreshold {
		m.state = StateIdentityMismatchModal
	}
	return effects, true
}

// confirmIdentity enters the first step. Every step entry, including the
// first, goes through Paused(get_item) so the user sees the step's items
// before work begins, even when the list is empty.
func (m *Machine) confirmIdentity(status IdentityStatus) []Effect {
	m.ctx.Identity = status
	m.ctx.MismatchStreak = 0
	m.ctx.StepIndex = 0
	m.ctx.LastAdvance = m.now()
	m.ctx.Generation++
	return m.enterStepPause()
}

func (m *Machine) applyIdentityOverride(action Action) ([]Effect, bool) {
	if m.state != StateIdentityMismatchModal {
		m.noop(action)
		return nil, false
	}
	return m.confirmIdentity(IdentityConfirmedByUser), true
}

func (m *Machine) applyIdentityRescan(action Action) ([]Effect, bool) {
	if m.state != StateIdentityMismatchModal {
		m.noop(action)
		return nil, false
	}
	m.state = StateVerifyingIdentity
	m.ctx.Identity = IdentityUnverified
	m.ctx.MismatchStreak = 0
	m.ctx.Generation++
	return nil, true
}

// --- step advancement ---

// enterStepPause moves into Paused(get_item) for the current step.
func (m *Machine) enterStepPause() []Effect {
	step := m.ctx.CurrentStep()
	m.state = StatePaused
	m.ctx.PauseReason = PauseGetItem
	m.ctx.NeededItems = m.neededItemsFor(step)
	m.ctx.Missing = make(map[string]bool)
	m.ctx.PendingTask = ""
	return []Effect{
		EffectResetStepTracking{},
		EffectEmit{&PauseOpenedEvent{
			Reason:      PauseGetItem,
			StepIndex:   m.ctx.StepIndex,
			Instruction: step.Instruction,
			NeededItems: m.ctx.NeededItems,
		}},
		EffectSpeak{Text: stepIntro(m.ctx.StepIndex, step, m.ctx.NeededItems)},
	}
}

// neededItemsFor filters a step's items through the permanent constraints:
// banned items are dropped, substituted items are replaced by their
// confirmed substitute.
func (m *Machine) neededItemsFor(step types.RepairStep) []string {
	items := []string{}
	seen := make(map[string]bool)
	for _, item := range step.NeededItems() {
		display := item
		if m.ctx.Constraints.IsUnavailable(item) {
			sub, ok := m.ctx.Constraints.SubstituteFor(item)
			if !ok {
				continue
			}
			display = sub
		}
		key := strings.ToLower(strings.TrimSpace(display))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, display)
	}
	return items
}

func stepIntro(index int, step types.RepairStep, items []string) string {
	text := fmt.Sprintf("Step %d: %s", index+1, step.Instruction)
	if len(items) > 0 {
		text += " You'll need: " + strings.Join(items, ", ") + "."
	}
	return text
}

// applyAdvanceFrom advances the step when the action arrives in the
// expected state. Used for auto-advance and override confirmation.
func (m *Machine) applyAdvanceFrom(from State, method string, action Action) ([]Effect, bool) {
	if m.state != from {
		m.noop(action)
		return nil, false
	}
	return m.advanceStep(method), true
}

// advanceStep is the single step-advance path: bump the index, invalidate
// in-flight analyses, and either finish the session or introduce the next
// step through Paused(get_item).
func (m *Machine) advanceStep(method string) []Effect {
	m.ctx.StepIndex++
	m.ctx.Generation++
	m.ctx.LastAdvance = m.now()

	effects := []Effect{
		EffectEmit{&StepAdvancedEvent{
			StepIndex:    m.ctx.StepIndex,
			TotalSteps:   len(m.ctx.Steps),
			PlanRevision: m.ctx.PlanRevision,
			Method:       method,
		}},
	}

	if m.ctx.StepIndex >= len(m.ctx.Steps) {
		m.state = StateSessionComplete
		m.ctx.EndReason = "completed"
		return append(effects,
			EffectSpeak{Text: "That was the last step. The repair is complete. Nice work."},
			EffectEndSession{Reason: "completed"},
		)
	}

	return append(effects, m.enterStepPause()...)
}

// --- guidance findings ---

func (m *Machine) applyAutoAdvance(a ActionAutoAdvance) ([]Effect, bool) {
	if m.state != StateStepActive {
		m.noop(a)
		return nil, false
	}
	return m.advanceStep("auto"), true
}

func (m *Machine) applyGuidance(a ActionGuidance) ([]Effect, bool) {
	if m.state != StateStepActive {
		m.noop(a)
		return nil, false
	}
	m.ctx.MismatchStreak = 0
	m.ctx.GuidanceText = a.Text
	effects := []Effect{
		EffectEmit{&GuidanceUpdatedEvent{Text: a.Text, Confidence: a.Confidence}},
	}
	if a.Speak && m.ctx.VoiceEnabled {
		effects = append(effects, EffectSpeak{Text: a.Text})
	}
	return effects, true
}

func (m *Machine) applySuggestCompletion(a ActionSuggestCompletion) ([]Effect, bool) {
	if m.state != StateStepActive {
		m.noop(a)
		return nil, false
	}
	m.state = StateCompletionSuggestedModal
	return []Effect{
		EffectEmit{&CompletionSuggestedEvent{StepIndex: m.ctx.StepIndex, Confidence: a.Confidence}},
		EffectSpeak{Text: "It looks like this step might be done. Confirm if you're ready to move on."},
	}, true
}

func (m *Machine) applyCompletionPrompt(a ActionCompletionPrompt) ([]Effect, bool) {
	if m.state != StateStepActive {
		m.noop(a)
		return nil, false
	}
	m.state = StateConfirmingCompletion
	return []Effect{
		EffectSpeak{Text: "Did you already finish this step? Confirm if so, or keep going."},
	}, true
}

func (m *Machine) applyItemNeeded(a ActionItemNeeded) ([]Effect, bool) {
	if m.state != StateStepActive {
		m.noop(a)
		return nil, false
	}
	items := []string{}
	seen := make(map[string]bool)
	for _, item := range a.Items {
		display := item
		if m.ctx.Constraints.IsUnavailable(item) {
			sub, ok := m.ctx.Constraints.SubstituteFor(item)
			if !ok {
				continue
			}
			display = sub
		}
		key := strings.ToLower(strings.TrimSpace(display))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, display)
	}
	if len(items) == 0 {
		m.noop(a)
		return nil, false
	}

	step := m.ctx.CurrentStep()
	m.state = StatePaused
	m.ctx.PauseReason = PauseGetItem
	m.ctx.NeededItems = items
	m.ctx.Missing = make(map[string]bool)
	m.ctx.PendingTask = ""
	m.ctx.Generation++
	return []Effect{
		EffectEmit{&PauseOpenedEvent{
			Reason:      PauseGetItem,
			StepIndex:   m.ctx.StepIndex,
			Instruction: step.Instruction,
			NeededItems: items,
		}},
	}, true
}

func (m *Machine) applyTaskDetected(a ActionTaskDetected) ([]Effect, bool) {
	if m.state != StateStepActive {
		m.noop(a)
		return nil, false
	}
	step := m.ctx.CurrentStep()
	m.state = StatePaused
	m.ctx.PauseReason = PauseDoTask
	m.ctx.NeededItems = nil
	m.ctx.Missing = make(map[string]bool)
	m.ctx.PendingTask = a.Task
	m.ctx.Generation++
	return []Effect{
		EffectEmit{&PauseOpenedEvent{
			Reason:      PauseDoTask,
			StepIndex:   m.ctx.StepIndex,
			Instruction: step.Instruction,
			TaskText:    a.Task,
		}},
		EffectSpeak{Text: a.Task + " Resume when you're ready."},
	}, true
}

// applyWrongItem tracks mid-step frames whose object no longer looks
// like the session's item. The streak resets on any normal guidance
// frame; at the mismatch threshold the user gets one spoken nudge and
// the streak starts over, without leaving the step.
func (m *Machine) applyWrongItem(a ActionWrongItem) ([]Effect, bool) {
	if m.state != StateStepActive {
		m.noop(a)
		return nil, false
	}
	m.ctx.MismatchStreak++
	if m.ctx.MismatchStreak < m.cfg.MismatchThreshold {
		return nil, true
	}
	m.ctx.MismatchStreak = 0
	return []Effect{
		EffectEmit{&IdentityResultEvent{Expected: m.ctx.ExpectedItem, Detected: a.Detected, Status: IdentityMismatch}},
		EffectSpeak{Text: "That doesn't look like the " + m.ctx.ExpectedItem + ". Make sure the right item is in view."},
	}, true
}

func (m *Machine) applySafetyStop(a ActionSafetyStop) ([]Effect, bool) {
	// Safety beats every non-terminal state, modals included.
	m.state = StateError
	m.ctx.Err = fmt.Errorf("safety stop: %s", a.Warning)
	m.ctx.ErrRecoverable = false
	m.ctx.EndReason = "safety_stop"
	warning := a.Warning
	if warning == "" {
		warning = "A safety hazard was detected."
	}
	return []Effect{
		EffectFlushSpeech{},
		EffectSpeak{Text: warning + " Stop now and seek professional help.", Urgent: true},
		EffectEmit{&SafetyStopEvent{Warning: a.Warning}},
		EffectStopSubstituteScan{},
		EffectEndSession{Reason: "safety_stop"},
	}, true
}

// --- completion confirmations ---

func (m *Machine) applyConfirmCompletion(action Action) ([]Effect, bool) {
	if m.state != StateCompletionSuggestedModal && m.state != StateConfirmingCompletion {
		m.noop(action)
		return nil, false
	}
	return m.advanceStep("confirmed"), true
}

func (m *Machine) applyDeclineCompletion(action Action) ([]Effect, bool) {
	if m.state != StateCompletionSuggestedModal && m.state != StateConfirmingCompletion {
		m.noop(action)
		return nil, false
	}
	m.state = StateStepActive
	m.ctx.Generation++
	return nil, true
}

func (m *Machine) applyRequestOverride(action Action) ([]Effect, bool) {
	if m.state != StateStepActive && m.state != StateConfirmingCompletion {
		m.noop(action)
		return nil, false
	}
	m.state = StateOverrideConfirmationModal
	return nil, true
}

// --- pause / resume ---

func (m *Machine) applyPause(a ActionPause) ([]Effect, bool) {
	if m.state != StateStepActive {
		m.noop(a)
		return nil, false
	}
	reason := a.Reason
	if reason != PauseManual && reason != PauseWorkingOnStep {
		reason = PauseManual
	}
	step := m.ctx.CurrentStep()
	m.state = StatePaused
	m.ctx.PauseReason = reason
	m.ctx.NeededItems = m.neededItemsFor(step)
	m.ctx.Missing = make(map[string]bool)
	m.ctx.PendingTask = ""
	m.ctx.Generation++
	effects := []Effect{
		EffectEmit{&PauseOpenedEvent{
			Reason:      reason,
			StepIndex:   m.ctx.StepIndex,
			Instruction: step.Instruction,
			NeededItems: m.ctx.NeededItems,
		}},
	}
	if reason == PauseWorkingOnStep {
		effects = append(effects, EffectEnterWorkingMode{})
	}
	return effects, true
}

func (m *Machine) applyToggleItem(a ActionToggleItem) ([]Effect, bool) {
	if m.state != StatePaused || m.ctx.PauseReason != PauseGetItem {
		m.noop(a)
		return nil, false
	}
	found := false
	for _, item := range m.ctx.NeededItems {
		if item == a.Item {
			found = true
			break
		}
	}
	if !found {
		m.noop(a)
		return nil, false
	}
	m.ctx.Missing[a.Item] = !m.ctx.Missing[a.Item]
	return []Effect{
		EffectEmit{&ItemToggledEvent{Item: a.Item, Missing: m.ctx.Missing[a.Item]}},
	}, true
}

func (m *Machine) applyResume(action Action) ([]Effect, bool) {
	if m.state != StatePaused {
		m.noop(action)
		return nil, false
	}
	reason := m.ctx.PauseReason
	m.state = StateStepActive
	m.ctx.Generation++

	switch reason {
	case PauseGetItem:
		// Items still marked missing on a plain resume become permanent
		// constraints even without a plan update.
		for _, item := range m.ctx.MissingItems() {
			m.ctx.Constraints.MarkUnavailable(item)
		}
		return nil, true
	case PauseWorkingOnStep:
		// Completion is re-verified right away with a fresh analysis
		// rather than waiting out the next tick.
		return []Effect{EffectExitWorkingMode{}, EffectRequestScan{}}, true
	case PauseDoTask:
		return []Effect{
			EffectHoldAnalysis{Delay: m.cfg.DoTaskResumeDelay()},
			EffectClearPausedAction{},
		}, true
	default: // PauseManual
		return nil, true
	}
}

func (m *Machine) applyUpdatePlan(action Action) ([]Effect, bool) {
	if m.state != StatePaused || m.ctx.PauseReason != PauseGetItem {
		m.noop(action)
		return nil, false
	}
	missing := m.ctx.MissingItems()
	if len(missing) == 0 {
		m.noop(action)
		return nil, false
	}
	for _, item := range missing {
		m.ctx.Constraints.MarkUnavailable(item)
	}
	m.state = StateRegeneratingPlan
	m.ctx.Generation++
	return []Effect{EffectRegeneratePlan{}}, true
}

func (m *Machine) applyFindSubstitute(action Action) ([]Effect, bool) {
	if m.state != StatePaused || m.ctx.PauseReason != PauseGetItem {
		m.noop(action)
		return nil, false
	}
	missing := m.ctx.MissingItems()
	if len(missing) == 0 {
		m.noop(action)
		return nil, false
	}
	for _, item := range missing {
		m.ctx.Constraints.MarkUnavailable(item)
	}
	m.state = StateSubstituteScanReady
	m.ctx.SubstituteQueue = missing
	m.ctx.CurrentMissing = missing[0]
	m.ctx.FoundSubstitute = nil
	m.ctx.Generation++
	return []Effect{
		EffectSpeak{Text: "Point your camera around your workspace and I'll look for something you can use instead of the " + missing[0] + "."},
	}, true
}

// --- voice Q&A ---

func (m *Machine) applyStartListening(action Action) ([]Effect, bool) {
	if m.state != StateStepActive && m.state != StatePaused {
		m.noop(action)
		return nil, false
	}
	m.ctx.ReturnState = m.state
	m.state = StateListening
	m.ctx.Generation++
	return []Effect{EffectFlushSpeech{}}, true
}

func (m *Machine) applyQuestionCaptured(a ActionQuestionCaptured) ([]Effect, bool) {
	if m.state != StateListening && m.state != StateConversation {
		m.noop(a)
		return nil, false
	}
	question := strings.TrimSpace(a.Question)
	if question == "" {
		m.noop(a)
		return nil, false
	}
	if m.state == StateConversation {
		m.ctx.InConversation = true
	}
	m.state = StateProcessingQuestion
	m.ctx.PendingQuestion = question
	return []Effect{EffectAskQuestion{Question: question}}, true
}

func (m *Machine) applyAnswerReady(a ActionAnswerReady) ([]Effect, bool) {
	if m.state != StateProcessingQuestion {
		m.noop(a)
		return nil, false
	}
	now := m.now()
	m.ctx.Conversation.Append("user", m.ctx.PendingQuestion, now)
	m.ctx.Conversation.Append("assistant", a.Answer, now)
	question := m.ctx.PendingQuestion
	m.ctx.PendingQuestion = ""
	if m.ctx.InConversation {
		m.state = StateConversation
	} else {
		m.state = StateShowingAnswer
	}
	effects := []Effect{
		EffectEmit{&AnswerReadyEvent{Question: question, Answer: a.Answer}},
	}
	if m.ctx.VoiceEnabled {
		effects = append(effects, EffectSpeak{Text: a.Answer})
	}
	return effects, true
}

func (m *Machine) applyAnswerFailed(a ActionAnswerFailed) ([]Effect, bool) {
	if m.state != StateProcessingQuestion {
		m.noop(a)
		return nil, false
	}
	m.ctx.PendingQuestion = ""
	if m.ctx.InConversation {
		m.state = StateConversation
	} else {
		m.state = m.ctx.ReturnState
	}
	return []Effect{
		EffectEmit{&ErrorEvent{Code: "answer_failed", Message: a.Err.Error()}},
	}, true
}

func (m *Machine) applyOpenConversation(action Action) ([]Effect, bool) {
	if m.state != StateShowingAnswer {
		m.noop(action)
		return nil, false
	}
	m.state = StateConversation
	m.ctx.InConversation = true
	return nil, true
}

func (m *Machine) applyCloseConversation(action Action) ([]Effect, bool) {
	if m.state != StateConversation {
		m.noop(action)
		return nil, false
	}
	m.state = m.ctx.ReturnState
	m.ctx.InConversation = false
	return nil, true
}

// --- substitute search ---

func (m *Machine) applyBeginSubstituteScan(action Action) ([]Effect, bool) {
	if m.state != StateSubstituteScanReady {
		m.noop(action)
		return nil, false
	}
	m.state = StateSearchingSubstitute
	return []Effect{EffectStartSubstituteScan{Item: m.ctx.CurrentMissing}}, true
}

func (m *Machine) applySubstituteFound(a ActionSubstituteFound) ([]Effect, bool) {
	if m.state != StateSearchingSubstitute || a.Result == nil || !a.Result.Found {
		m.noop(a)
		return nil, false
	}
	m.state = StateSubstituteFoundModal
	m.ctx.FoundSubstitute = a.Result
	return []Effect{
		EffectStopSubstituteScan{},
		EffectEmit{&SubstituteFoundEvent{MissingItem: m.ctx.CurrentMissing, Result: a.Result}},
		EffectSpeak{Text: "I found " + a.Result.Substitute + ". You could use it instead of the " + m.ctx.CurrentMissing + "."},
	}, true
}

func (m *Machine) applySubstituteExhausted(a ActionSubstituteExhausted) ([]Effect, bool) {
	if m.state != StateSearchingSubstitute {
		m.noop(a)
		return nil, false
	}
	m.state = StateSubstituteNotFound
	return []Effect{
		EffectStopSubstituteScan{},
		EffectEmit{&SubstituteExhaustedEvent{MissingItem: m.ctx.CurrentMissing, Attempts: a.Attempts}},
	}, true
}

func (m *Machine) applySubstituteConfirm(action Action) ([]Effect, bool) {
	if m.state != StateSubstituteFoundModal || m.ctx.FoundSubstitute == nil {
		m.noop(action)
		return nil, false
	}
	m.ctx.Constraints.ConfirmSubstitute(m.ctx.CurrentMissing, m.ctx.FoundSubstitute.Substitute)
	m.ctx.FoundSubstitute = nil
	return m.advanceSubstituteQueue(), true
}

func (m *Machine) applySubstituteReject(action Action) ([]Effect, bool) {
	if m.state != StateSubstituteFoundModal {
		m.noop(action)
		return nil, false
	}
	m.ctx.FoundSubstitute = nil
	m.state = StateSearchingSubstitute
	return []Effect{EffectStartSubstituteScan{Item: m.ctx.CurrentMissing}}, true
}

func (m *Machine) applySubstituteRetry(action Action) ([]Effect, bool) {
	if m.state != StateSubstituteNotFound {
		m.noop(action)
		return nil, false
	}
	m.state = StateSearchingSubstitute
	return []Effect{EffectStartSubstituteScan{Item: m.ctx.CurrentMissing}}, true
}

func (m *Machine) applySubstituteSkip(action Action) ([]Effect, bool) {
	if m.state != StateSubstituteNotFound {
		m.noop(action)
		return nil, false
	}
	return m.advanceSubstituteQueue(), true
}

// advanceSubstituteQueue moves to the next missing item, or regenerates
// the plan once every missing item is resolved or skipped.
func (m *Machine) advanceSubstituteQueue() []Effect {
	if len(m.ctx.SubstituteQueue) > 0 {
		m.ctx.SubstituteQueue = m.ctx.SubstituteQueue[1:]
	}
	if len(m.ctx.SubstituteQueue) > 0 {
		m.ctx.CurrentMissing = m.ctx.SubstituteQueue[0]
		m.state = StateSearchingSubstitute
		return []Effect{EffectStartSubstituteScan{Item: m.ctx.CurrentMissing}}
	}
	m.ctx.CurrentMissing = ""
	m.state = StateRegeneratingPlan
	m.ctx.Generation++
	return []Effect{EffectRegeneratePlan{}}
}

// --- plan regeneration ---

func (m *Machine) applyPlanRegenerated(a ActionPlanRegenerated) ([]Effect, bool) {
	if m.state != StateRegeneratingPlan {
		m.noop(a)
		return nil, false
	}
	if a.Plan == nil || len(a.Plan.Steps) == 0 {
		return m.applyPlanRegenFailed(ActionPlanRegenFailed{Err: fmt.Errorf("plan generator returned no steps")})
	}
	// Splice: completed prefix is preserved, only the tail is replaced.
	completed := m.ctx.Steps[:m.ctx.StepIndex]
	steps := make([]types.RepairStep, 0, len(completed)+len(a.Plan.Steps))
	steps = append(steps, completed...)
	steps = append(steps, a.Plan.Steps...)
	m.ctx.Steps = steps
	m.ctx.PlanRevision++
	m.ctx.Generation++
	m.state = StateNewPlanModal
	return []Effect{
		EffectEmit{&PlanUpdatedEvent{
			Revision:       m.ctx.PlanRevision,
			CompletedSteps: m.ctx.StepIndex,
			Steps:          steps,
		}},
		EffectSpeak{Text: "I've updated the plan to work with what you have. Take a look before we continue."},
	}, true
}

func (m *Machine) applyPlanRegenFailed(a ActionPlanRegenFailed) ([]Effect, bool) {
	if m.state != StateRegeneratingPlan {
		m.noop(a)
		return nil, false
	}
	// Fall back to the prior, unmodified plan rather than blocking.
	effects := []Effect{
		EffectEmit{&ErrorEvent{Code: "plan_regen_failed", Message: a.Err.Error()}},
	}
	return append(effects, m.enterStepPause()...), true
}

func (m *Machine) applyAcknowledgeNewPlan(action Action) ([]Effect, bool) {
	if m.state != StateNewPlanModal {
		m.noop(action)
		return nil, false
	}
	return m.enterStepPause(), true
}

// --- settings ---

func (m *Machine) applyOpenVoiceSettings(action Action) ([]Effect, bool) {
	if m.state != StateStepActive && m.state != StatePaused {
		m.noop(action)
		return nil, false
	}
	m.ctx.ReturnState = m.state
	m.state = StateVoiceSettingsModal
	return nil, true
}

func (m *Machine) applySetVoiceEnabled(a ActionSetVoiceEnabled) ([]Effect, bool) {
	m.ctx.VoiceEnabled = a.Enabled
	if !a.Enabled {
		return []Effect{EffectFlushSpeech{}}, true
	}
	return nil, true
}
