package guide

import (
	"strings"
	"time"
	"unicode"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// needPhrases introduce an item the user does not have yet. The matched
// remainder of the sentence is the item name.
var needPhrases = []string{
	"you'll need",
	"you will need",
	"you need a",
	"you need an",
	"you need the",
	"still need a",
	"still need an",
	"still need the",
	"grab a",
	"grab an",
	"grab the",
	"grab your",
	"get a",
	"get an",
	"get the",
	"find a",
	"find an",
	"find the",
	"pick up a",
	"pick up the",
}

// havePhrases confirm the user already holds the item. A sentence with
// one of these suppresses item detection unless a qualifier like "still"
// or "but" reverses it.
var havePhrases = []string{
	"you have",
	"you already have",
	"you've got",
	"you are holding",
	"you're holding",
	"i can see the",
	"i can see a",
	"i see the",
	"i see you have",
	"good, you have",
}

var haveQualifiers = []string{"still", "also", "but", "however", "except"}

// taskVerbs open an instruction that the user must physically carry out
// before camera guidance is useful again.
var taskVerbs = []string{
	"unplug",
	"turn off",
	"shut off",
	"switch off",
	"disconnect",
	"drain",
	"empty",
	"wait",
	"let it",
	"allow it",
	"move the",
	"flip the breaker",
}

// Interpreter turns raw guidance responses into machine actions. It keeps
// per-step memory: how often the same advice has repeated, whether the
// completion prompt already fired, and whether the user said they are
// working heads-down. All methods are called from the session goroutine
// that also owns the machine, so no locking here.
type Interpreter struct {
	cfg Config
	now func() time.Time

	stepEnteredAt time.Time
	lastRepeat    string
	repeatCount   int
	promptFired   bool
	lastTask      string

	working      bool
	lastSpoken   string
	lastSpokenAt time.Time
}

func NewInterpreter(cfg Config) *Interpreter {
	return &Interpreter{
		cfg: cfg,
		now: time.Now,
	}
}

// SetClock replaces the interpreter's time source. Test hook.
func (it *Interpreter) SetClock(now func() time.Time) { it.now = now }

// ResetStep clears per-step memory. Driven by EffectResetStepTracking.
func (it *Interpreter) ResetStep() {
	it.stepEnteredAt = it.now()
	it.lastRepeat = ""
	it.repeatCount = 0
	it.promptFired = false
	it.lastTask = ""
	it.working = false
	it.lastSpoken = ""
	it.lastSpokenAt = time.Time{}
}

// EnterWorkingMode marks the user as heads-down on the step. Routine
// guidance stops speaking until the mode ends or the cooldown passes.
func (it *Interpreter) EnterWorkingMode() { it.working = true }

// ExitWorkingMode restores normal speech. Driven by EffectExitWorkingMode.
func (it *Interpreter) ExitWorkingMode() {
	it.working = false
	it.lastSpoken = ""
	it.lastSpokenAt = time.Time{}
}

// ClearPausedAction forgets the last detected manual task so the same
// advice does not immediately re-open the pause after a do-task resume.
// Driven by EffectClearPausedAction.
func (it *Interpreter) ClearPausedAction() { it.lastTask = "" }

// Interpret maps one admitted guidance response to an ordered action
// list. Earlier actions win: once one of them transitions the machine
// out of StateStepActive, the machine rejects the rest as no-ops.
func (it *Interpreter) Interpret(resp *types.GuidanceResponse) []Action {
	if resp == nil {
		return nil
	}
	if resp.ShouldStop {
		return []Action{ActionSafetyStop{Warning: resp.SafetyWarning}}
	}
	if resp.DetectedItemMismatch {
		// The rest of the response describes the wrong object; none of
		// it should advance or narrate the step.
		return []Action{ActionWrongItem{Detected: resp.DetectedObject}}
	}

	var actions []Action

	if resp.StepComplete && resp.Confidence >= it.cfg.CompletionConfidence {
		actions = append(actions, ActionAutoAdvance{Confidence: resp.Confidence})
	} else if resp.SuggestCompletion {
		actions = append(actions, ActionSuggestCompletion{Confidence: resp.Confidence})
	}

	text := strings.TrimSpace(resp.Instruction)
	if task, ok := it.detectTask(resp, text); ok {
		actions = append(actions, ActionTaskDetected{Task: task})
	}
	if items := detectNeededItems(text); len(items) > 0 {
		actions = append(actions, ActionItemNeeded{Items: items})
	}

	if text != "" {
		actions = append(actions, ActionGuidance{
			Text:       text,
			Confidence: resp.Confidence,
			Speak:      it.shouldSpeak(text),
		})
		if it.noteRepetition(text) {
			actions = append(actions, ActionCompletionPrompt{Source: "repetition"})
		}
	}
	if it.stepTimedOut() {
		actions = append(actions, ActionCompletionPrompt{Source: "timeout"})
	}
	return actions
}

// detectTask reports a physical task the user must do off-camera. The
// provider flag wins; otherwise a leading imperative verb is enough. The
// same task never fires twice in a row.
func (it *Interpreter) detectTask(resp *types.GuidanceResponse, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	isTask := resp.RequiresManualAction
	if !isTask {
		lower := strings.ToLower(text)
		for _, verb := range taskVerbs {
			if strings.HasPrefix(lower, verb) {
				isTask = true
				break
			}
		}
	}
	if !isTask {
		return "", false
	}
	if normalizeGuidance(text) == normalizeGuidance(it.lastTask) {
		return "", false
	}
	it.lastTask = text
	return text, true
}

// noteRepetition counts consecutive identical normalized guidance texts
// and reports true when the same advice has repeated enough times in a
// row to suggest the step may already be done. Any differing instruction
// resets the count. Fires at most once per step, sharing the budget with
// the timeout prompt.
func (it *Interpreter) noteRepetition(text string) bool {
	key := normalizeGuidance(text)
	if key == "" {
		return false
	}
	if key != it.lastRepeat {
		it.lastRepeat = key
		it.repeatCount = 1
		return false
	}
	it.repeatCount++
	if it.promptFired || it.repeatCount < it.cfg.RepeatPromptCount {
		return false
	}
	it.promptFired = true
	return true
}

func (it *Interpreter) stepTimedOut() bool {
	if it.promptFired || it.stepEnteredAt.IsZero() {
		return false
	}
	if it.now().Sub(it.stepEnteredAt) < it.cfg.StepTimeout() {
		return false
	}
	it.promptFired = true
	return true
}

// shouldSpeak applies working-mode suppression and de-duplication. In
// working mode routine guidance stays silent until the cooldown passes,
// and identical advice is never spoken twice in a row.
func (it *Interpreter) shouldSpeak(text string) bool {
	key := normalizeGuidance(text)
	if key == it.lastSpoken {
		return false
	}
	if it.working && it.now().Sub(it.lastSpokenAt) < it.cfg.WorkingModeCooldown() {
		return false
	}
	it.lastSpoken = key
	it.lastSpokenAt = it.now()
	return true
}

// normalizeGuidance lowercases, strips punctuation, and collapses
// whitespace so trivially reworded advice compares equal.
func normalizeGuidance(text string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// detectNeededItems scans sentence by sentence for need phrasing. A
// sentence that confirms possession suppresses itself unless a qualifier
// ("still", "but", ...) reverses the confirmation.
func detectNeededItems(text string) []string {
	if text == "" {
		return nil
	}
	var items []string
	seen := make(map[string]bool)
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		if confirmsPossession(lower) {
			continue
		}
		for _, phrase := range needPhrases {
			idx := strings.Index(lower, phrase)
			if idx < 0 {
				continue
			}
			item := extractItem(sentence[idx+len(phrase):])
			if item == "" {
				continue
			}
			key := strings.ToLower(item)
			if !seen[key] {
				seen[key] = true
				items = append(items, item)
			}
		}
	}
	return items
}

func confirmsPossession(lower string) bool {
	has := false
	for _, phrase := range havePhrases {
		if strings.Contains(lower, phrase) {
			has = true
			break
		}
	}
	if !has {
		return false
	}
	for _, q := range haveQualifiers {
		if strings.Contains(lower, q) {
			return false
		}
	}
	return true
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == ';' || r == '\n'
	})
}

// extractItem trims the tail of a need phrase down to the item name:
// leading articles go, and the phrase ends at the first conjunction or
// subordinate clause.
func extractItem(tail string) string {
	tail = strings.TrimSpace(tail)
	words := strings.Fields(tail)
	if len(words) == 0 {
		return ""
	}
	switch strings.ToLower(words[0]) {
	case "a", "an", "the", "your", "some":
		words = words[1:]
	}
	var kept []string
	for _, w := range words {
		bare := strings.ToLower(strings.Trim(w, ",:"))
		if bare == "to" || bare == "so" || bare == "before" || bare == "and" || bare == "for" || bare == "from" {
			break
		}
		kept = append(kept, strings.Trim(w, ","))
		if strings.HasSuffix(w, ",") {
			break
		}
		if len(kept) == 4 {
			break
		}
	}
	return strings.Join(kept, " ")
}
