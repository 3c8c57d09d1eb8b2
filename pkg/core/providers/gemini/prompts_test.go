package gemini

import (
	"strings"
	"testing"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

func TestBuildPlanPromptCarriesConstraints(t *testing.T) {
	req := &types.PlanRequest{
		Category:           "plumbing",
		Problem:            "leaky faucet",
		CompletedSteps:     2,
		CurrentInstruction: "remove the handle",
		BannedItems:        []string{"basin wrench"},
		Substitutes:        map[string]string{"basin wrench": "channel-lock pliers"},
		Constraints:        "user cannot shut off the main supply",
	}
	prompt := buildPlanPrompt(req)

	for _, want := range []string{
		"leaky faucet",
		"already completed 2 steps",
		"remove the handle",
		"basin wrench",
		"channel-lock pliers",
		"cannot shut off the main supply",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPlanPromptInitial(t *testing.T) {
	prompt := buildPlanPrompt(&types.PlanRequest{Category: "appliance", Problem: "dryer squeaks"})
	if strings.Contains(prompt, "already completed") {
		t.Error("initial prompt should not mention prior progress")
	}
}

func TestBuildGuidancePromptIdentityMode(t *testing.T) {
	req := &types.GuidanceRequest{
		Category:       "plumbing",
		Problem:        "leak",
		ExpectedItem:   "kitchen faucet",
		VerifyIdentity: true,
		Instruction:    "shut off the valve",
	}
	prompt := buildGuidancePrompt(req)
	if !strings.Contains(prompt, "kitchen faucet") {
		t.Errorf("identity prompt missing expected item:\n%s", prompt)
	}
	if strings.Contains(prompt, "shut off the valve") {
		t.Error("identity prompt should not leak step guidance")
	}
}

func TestBuildGuidancePromptStepMode(t *testing.T) {
	req := &types.GuidanceRequest{
		Category:           "plumbing",
		Problem:            "leak",
		StepIndex:          1,
		Instruction:        "remove the trap",
		CompletionCriteria: "trap fully detached",
		BannedItems:        []string{"pipe wrench"},
	}
	prompt := buildGuidancePrompt(req)
	for _, want := range []string{"step 2", "remove the trap", "trap fully detached", "pipe wrench"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildQuestionPromptIncludesHistory(t *testing.T) {
	req := &types.QuestionRequest{
		Question: "do I need to replace it?",
		Category: "plumbing",
		Problem:  "leak",
		Conversation: []types.ConversationEntry{
			{Role: "user", Content: "what is this part called?"},
			{Role: "assistant", Content: "That's the cartridge."},
		},
	}
	prompt := buildQuestionPrompt(req)
	if !strings.Contains(prompt, "That's the cartridge.") {
		t.Errorf("prompt missing history:\n%s", prompt)
	}
	if !strings.Contains(prompt, "do I need to replace it?") {
		t.Errorf("prompt missing question:\n%s", prompt)
	}
}

func TestBuildSubstitutePrompt(t *testing.T) {
	req := &types.SubstituteRequest{
		MissingItem: "basin wrench",
		Category:    "plumbing",
		Instruction: "loosen the nut",
		BannedItems: []string{"basin wrench", "pipe wrench"},
	}
	prompt := buildSubstitutePrompt(req)
	for _, want := range []string{"basin wrench", "loosen the nut", "pipe wrench"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
