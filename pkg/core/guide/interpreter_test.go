package guide

import (
	"testing"
	"time"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

func newTestInterpreter() (*Interpreter, *time.Time) {
	it := NewInterpreter(DefaultConfig())
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	it.SetClock(func() time.Time { return now })
	it.ResetStep()
	return it, &now
}

func actionNames(actions []Action) []string {
	var names []string
	for _, a := range actions {
		names = append(names, a.ActionName())
	}
	return names
}

func firstAction[T Action](t *testing.T, actions []Action) T {
	t.Helper()
	for _, a := range actions {
		if v, ok := a.(T); ok {
			return v
		}
	}
	var zero T
	t.Fatalf("no %T in %v", zero, actionNames(actions))
	return zero
}

func hasAction[T Action](actions []Action) bool {
	for _, a := range actions {
		if _, ok := a.(T); ok {
			return true
		}
	}
	return false
}

func TestInterpretSafetyStopPreemptsEverything(t *testing.T) {
	it, _ := newTestInterpreter()
	actions := it.Interpret(&types.GuidanceResponse{
		Instruction:   "Stop immediately.",
		StepComplete:  true,
		Confidence:    0.99,
		ShouldStop:    true,
		SafetyWarning: "Exposed live wiring.",
	})
	if len(actions) != 1 {
		t.Fatalf("actions = %v, want only safety stop", actionNames(actions))
	}
	stop := firstAction[ActionSafetyStop](t, actions)
	if stop.Warning != "Exposed live wiring." {
		t.Fatalf("warning = %q", stop.Warning)
	}
}

func TestInterpretCompletionThresholds(t *testing.T) {
	tests := []struct {
		name        string
		resp        types.GuidanceResponse
		wantAdvance bool
		wantSuggest bool
	}{
		{"confident completion", types.GuidanceResponse{StepComplete: true, Confidence: 0.85}, true, false},
		{"threshold exactly", types.GuidanceResponse{StepComplete: true, Confidence: 0.7}, true, false},
		{"low confidence ignored", types.GuidanceResponse{StepComplete: true, Confidence: 0.5}, false, false},
		{"suggestion", types.GuidanceResponse{SuggestCompletion: true, Confidence: 0.6}, false, true},
		{"complete wins over suggest", types.GuidanceResponse{StepComplete: true, SuggestCompletion: true, Confidence: 0.9}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, _ := newTestInterpreter()
			actions := it.Interpret(&tt.resp)
			if got := hasAction[ActionAutoAdvance](actions); got != tt.wantAdvance {
				t.Errorf("auto advance = %v, want %v (%v)", got, tt.wantAdvance, actionNames(actions))
			}
			if got := hasAction[ActionSuggestCompletion](actions); got != tt.wantSuggest {
				t.Errorf("suggest = %v, want %v (%v)", got, tt.wantSuggest, actionNames(actions))
			}
		})
	}
}

func TestDetectNeededItems(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"need phrase", "You'll need a Phillips screwdriver to open the panel.", []string{"Phillips screwdriver"}},
		{"grab phrase", "Grab the adjustable wrench.", []string{"adjustable wrench"}},
		{"two sentences", "Grab the bucket. You'll need a towel for the drips.", []string{"bucket", "towel"}},
		{"possession suppresses", "Good, you have the wrench in hand.", nil},
		{"qualifier reverses suppression", "You have the wrench, but you'll need a bucket under the trap.", []string{"bucket under the trap"}},
		{"still qualifier", "I can see the pliers, but you still need a flashlight.", []string{"flashlight"}},
		{"no items", "Turn the fitting counter-clockwise.", nil},
		{"comma ends item", "Get the drain pan, then slide it under.", []string{"drain pan"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectNeededItems(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("items = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("items = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestInterpretItemNeededAction(t *testing.T) {
	it, _ := newTestInterpreter()
	actions := it.Interpret(&types.GuidanceResponse{
		Instruction: "You'll need a bucket before loosening the trap.",
		Confidence:  0.6,
	})
	item := firstAction[ActionItemNeeded](t, actions)
	if len(item.Items) != 1 || item.Items[0] != "bucket" {
		t.Fatalf("items = %v", item.Items)
	}
}

func TestInterpretItemMismatchShortCircuits(t *testing.T) {
	it, _ := newTestInterpreter()
	actions := it.Interpret(&types.GuidanceResponse{
		Instruction:          "Tighten the hose clamp.",
		StepComplete:         true,
		Confidence:           0.9,
		DetectedItemMismatch: true,
		DetectedObject:       "washing machine",
	})
	if len(actions) != 1 {
		t.Fatalf("actions = %v, want only wrong item", actionNames(actions))
	}
	wrong := firstAction[ActionWrongItem](t, actions)
	if wrong.Detected != "washing machine" {
		t.Fatalf("detected = %q", wrong.Detected)
	}

	// A safety stop still wins over the mismatch.
	actions = it.Interpret(&types.GuidanceResponse{
		DetectedItemMismatch: true,
		ShouldStop:           true,
		SafetyWarning:        "Water near the outlet.",
	})
	if !hasAction[ActionSafetyStop](actions) || hasAction[ActionWrongItem](actions) {
		t.Fatalf("actions = %v", actionNames(actions))
	}
}

func TestDetectTask(t *testing.T) {
	it, _ := newTestInterpreter()

	actions := it.Interpret(&types.GuidanceResponse{Instruction: "Unplug the dryer from the wall outlet.", Confidence: 0.8})
	task := firstAction[ActionTaskDetected](t, actions)
	if task.Task != "Unplug the dryer from the wall outlet." {
		t.Fatalf("task = %q", task.Task)
	}

	// The identical task must not re-fire on the next frame.
	actions = it.Interpret(&types.GuidanceResponse{Instruction: "Unplug the dryer from the wall outlet.", Confidence: 0.8})
	if hasAction[ActionTaskDetected](actions) {
		t.Fatal("same task fired twice")
	}

	// After a do-task resume the slate is cleared.
	it.ClearPausedAction()
	actions = it.Interpret(&types.GuidanceResponse{Instruction: "Unplug the dryer from the wall outlet.", Confidence: 0.8})
	if !hasAction[ActionTaskDetected](actions) {
		t.Fatal("cleared task should fire again")
	}
}

func TestDetectTaskProviderFlag(t *testing.T) {
	it, _ := newTestInterpreter()
	actions := it.Interpret(&types.GuidanceResponse{
		Instruction:          "Tilt the machine forward to access the base.",
		RequiresManualAction: true,
		Confidence:           0.7,
	})
	if !hasAction[ActionTaskDetected](actions) {
		t.Fatalf("provider flag should force a task, got %v", actionNames(actions))
	}
}

func TestRepetitionPromptFiresOncePerStep(t *testing.T) {
	it, _ := newTestInterpreter()
	resp := &types.GuidanceResponse{Instruction: "Keep turning the nut counter-clockwise.", Confidence: 0.6}

	for i := 0; i < 2; i++ {
		if actions := it.Interpret(resp); hasAction[ActionCompletionPrompt](actions) {
			t.Fatalf("prompt fired on repetition %d", i+1)
		}
	}
	actions := it.Interpret(resp)
	prompt := firstAction[ActionCompletionPrompt](t, actions)
	if prompt.Source != "repetition" {
		t.Fatalf("source = %q", prompt.Source)
	}

	// Fourth repeat stays quiet.
	if actions := it.Interpret(resp); hasAction[ActionCompletionPrompt](actions) {
		t.Fatal("prompt fired twice in one step")
	}

	// Punctuation and case differences count as the same advice.
	it.ResetStep()
	variants := []string{
		"Keep turning the nut counter-clockwise.",
		"keep turning the nut counter-clockwise",
		"Keep turning the nut, counter-clockwise!",
	}
	var last []Action
	for _, v := range variants {
		last = it.Interpret(&types.GuidanceResponse{Instruction: v, Confidence: 0.6})
	}
	if !hasAction[ActionCompletionPrompt](last) {
		t.Fatal("normalized variants should count as repeats")
	}
}

func TestRepetitionCounterNeedsConsecutiveRepeats(t *testing.T) {
	it, _ := newTestInterpreter()
	alternating := []string{
		"Turn the nut counter-clockwise.",
		"Hold the pipe steady.",
		"Turn the nut counter-clockwise.",
		"Hold the pipe steady.",
		"Turn the nut counter-clockwise.",
		"Hold the pipe steady.",
	}
	for i, text := range alternating {
		actions := it.Interpret(&types.GuidanceResponse{Instruction: text, Confidence: 0.6})
		if hasAction[ActionCompletionPrompt](actions) {
			t.Fatalf("prompt fired on alternating advice at frame %d", i+1)
		}
	}

	// A differing instruction restarts the count from one.
	it.ResetStep()
	frames := []string{
		"Turn the nut counter-clockwise.",
		"Turn the nut counter-clockwise.",
		"Hold the pipe steady.",
		"Turn the nut counter-clockwise.",
		"Turn the nut counter-clockwise.",
	}
	for i, text := range frames {
		actions := it.Interpret(&types.GuidanceResponse{Instruction: text, Confidence: 0.6})
		if hasAction[ActionCompletionPrompt](actions) {
			t.Fatalf("prompt fired at frame %d without three consecutive repeats", i+1)
		}
	}
	actions := it.Interpret(&types.GuidanceResponse{Instruction: "Turn the nut counter-clockwise.", Confidence: 0.6})
	if !hasAction[ActionCompletionPrompt](actions) {
		t.Fatal("third consecutive repeat should prompt")
	}
}

func TestStepTimeoutPrompt(t *testing.T) {
	it, now := newTestInterpreter()
	resp := &types.GuidanceResponse{Instruction: "Loosen the slip nut.", Confidence: 0.6}

	if actions := it.Interpret(resp); hasAction[ActionCompletionPrompt](actions) {
		t.Fatal("prompt before timeout")
	}
	*now = now.Add(26 * time.Second)
	actions := it.Interpret(&types.GuidanceResponse{Instruction: "Now remove the trap.", Confidence: 0.6})
	prompt := firstAction[ActionCompletionPrompt](t, actions)
	if prompt.Source != "timeout" {
		t.Fatalf("source = %q", prompt.Source)
	}

	// Shares the once-per-step budget with repetition.
	*now = now.Add(30 * time.Second)
	if actions := it.Interpret(resp); hasAction[ActionCompletionPrompt](actions) {
		t.Fatal("prompt fired twice in one step")
	}

	it.ResetStep()
	if actions := it.Interpret(resp); hasAction[ActionCompletionPrompt](actions) {
		t.Fatal("timeout must restart on step entry")
	}
}

func TestWorkingModeSuppressesSpeech(t *testing.T) {
	it, now := newTestInterpreter()

	actions := it.Interpret(&types.GuidanceResponse{Instruction: "Line up the gasket.", Confidence: 0.6})
	if g := firstAction[ActionGuidance](t, actions); !g.Speak {
		t.Fatal("normal guidance should speak")
	}

	it.EnterWorkingMode()
	actions = it.Interpret(&types.GuidanceResponse{Instruction: "Press the gasket into the groove.", Confidence: 0.6})
	if g := firstAction[ActionGuidance](t, actions); g.Speak {
		t.Fatal("working mode guidance spoke inside cooldown")
	}

	*now = now.Add(9 * time.Second)
	actions = it.Interpret(&types.GuidanceResponse{Instruction: "Seat the ring fully.", Confidence: 0.6})
	if g := firstAction[ActionGuidance](t, actions); !g.Speak {
		t.Fatal("cooldown elapsed, guidance should speak")
	}

	it.ExitWorkingMode()
	actions = it.Interpret(&types.GuidanceResponse{Instruction: "Hand-tighten the nut.", Confidence: 0.6})
	if g := firstAction[ActionGuidance](t, actions); !g.Speak {
		t.Fatal("speech should resume after working mode ends")
	}
}

func TestIdenticalAdviceNotSpokenTwice(t *testing.T) {
	it, _ := newTestInterpreter()
	resp := &types.GuidanceResponse{Instruction: "Turn the valve clockwise.", Confidence: 0.6}

	if g := firstAction[ActionGuidance](t, it.Interpret(resp)); !g.Speak {
		t.Fatal("first advice should speak")
	}
	if g := firstAction[ActionGuidance](t, it.Interpret(resp)); g.Speak {
		t.Fatal("identical advice spoke twice in a row")
	}
	other := &types.GuidanceResponse{Instruction: "Check for drips underneath.", Confidence: 0.6}
	if g := firstAction[ActionGuidance](t, it.Interpret(other)); !g.Speak {
		t.Fatal("new advice should speak")
	}
}

func TestNormalizeGuidance(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Turn the valve.", "turn the valve"},
		{"  Turn   the  VALVE!!", "turn the valve"},
		{"turn-the-valve", "turn the valve"},
		{"", ""},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := normalizeGuidance(tt.in); got != tt.want {
			t.Errorf("normalizeGuidance(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInterpretNilAndEmpty(t *testing.T) {
	it, _ := newTestInterpreter()
	if actions := it.Interpret(nil); actions != nil {
		t.Fatalf("nil response produced %v", actionNames(actions))
	}
	actions := it.Interpret(&types.GuidanceResponse{Confidence: 0.3})
	if hasAction[ActionGuidance](actions) {
		t.Fatal("empty instruction should not produce guidance")
	}
}
