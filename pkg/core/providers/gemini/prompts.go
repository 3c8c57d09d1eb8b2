package gemini

import (
	"fmt"
	"strings"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

const planSystemPrompt = `You are a home-repair planner. Produce a numbered repair plan a
careful non-expert can follow with a phone camera pointed at the work.
Respond with JSON only:
{"summary": string, "steps": [{"instruction": string, "tools": [string],
"materials": [string], "completion_criteria": string, "visual_anchors":
string}]}
Each step is one physical action. Never require an item the user has
said they do not have; design around it or use their confirmed
substitute.`

const guidanceSystemPrompt = `You are watching a live repair through the user's camera. Compare the
frame against the current step and respond with JSON only:
{"instruction": string, "confidence": number 0-1, "step_complete": bool,
"suggest_completion": bool, "requires_manual_action": bool,
"should_stop": bool, "safety_warning": string,
"highlights": [{"x": number, "y": number, "width": number,
"height": number, "label": string}]}
Coordinates are percentages of the frame. Set step_complete only when
the completion criteria are visibly met. Set should_stop and
safety_warning only for genuine hazards. Keep instruction to one or two
short spoken sentences.`

const identitySystemPrompt = `You are checking that the user's camera is pointed at the right thing
before a repair starts. Respond with JSON only:
{"detected_object": string, "detected_item_mismatch": bool,
"confidence": number 0-1}
Name the most prominent appliance or fixture in frame in a few words.`

const answerSystemPrompt = `You are a repair assistant answering a spoken question mid-repair.
Answer in one to three short sentences suitable for text-to-speech. No
markdown, no lists. If the question is unrelated to the repair, answer
briefly and steer back to the current step.`

const substituteSystemPrompt = `The user is missing an item and is panning their camera around the
room. Decide whether anything visible could substitute for it. Respond
with JSON only:
{"found": bool, "substitute": string, "reason": string,
"instruction": string, "confidence": number 0-1,
"highlight": {"x": number, "y": number, "width": number,
"height": number, "label": string}}
Coordinates are percentages of the frame. Only report found when the
substitute would actually work for the current step; explain how to use
it in instruction.`

func buildPlanPrompt(req *types.PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\nProblem: %s\n", req.Category, req.Problem)
	if req.LikelyCause != "" {
		fmt.Fprintf(&b, "Likely cause: %s\n", req.LikelyCause)
	}
	if req.CompletedSteps > 0 {
		fmt.Fprintf(&b, "\nThe user already completed %d steps of a previous plan.\n", req.CompletedSteps)
		fmt.Fprintf(&b, "They stopped at: %s\n", req.CurrentInstruction)
		b.WriteString("Plan only the remaining work from this point.\n")
	}
	writeConstraints(&b, req.Constraints, req.BannedItems, req.Substitutes)
	return b.String()
}

func buildGuidancePrompt(req *types.GuidanceRequest) string {
	var b strings.Builder
	if req.VerifyIdentity {
		fmt.Fprintf(&b, "The repair is for a %s (%s: %s).\n", req.ExpectedItem, req.Category, req.Problem)
		b.WriteString("What is the camera pointed at?\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Repair: %s, %s\n", req.Category, req.Problem)
	fmt.Fprintf(&b, "Current step %d: %s\n", req.StepIndex+1, req.Instruction)
	if req.CompletionCriteria != "" {
		fmt.Fprintf(&b, "The step is done when: %s\n", req.CompletionCriteria)
	}
	writeConstraints(&b, req.Constraints, req.BannedItems, req.Substitutes)
	return b.String()
}

func buildQuestionPrompt(req *types.QuestionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repair: %s, %s\n", req.Category, req.Problem)
	if req.Instruction != "" {
		fmt.Fprintf(&b, "Current step: %s\n", req.Instruction)
	}
	if req.Constraints != "" {
		fmt.Fprintf(&b, "Constraints: %s\n", req.Constraints)
	}
	for _, entry := range req.Conversation {
		fmt.Fprintf(&b, "%s: %s\n", entry.Role, entry.Content)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", req.Question)
	return b.String()
}

func buildSubstitutePrompt(req *types.SubstituteRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Missing item: %s\n", req.MissingItem)
	fmt.Fprintf(&b, "Repair category: %s\n", req.Category)
	if req.Instruction != "" {
		fmt.Fprintf(&b, "It is needed for: %s\n", req.Instruction)
	}
	if len(req.BannedItems) > 0 {
		fmt.Fprintf(&b, "The user also does not have: %s\n", strings.Join(req.BannedItems, ", "))
	}
	return b.String()
}

func writeConstraints(b *strings.Builder, constraints string, banned []string, substitutes map[string]string) {
	if len(banned) > 0 {
		fmt.Fprintf(b, "\nThe user does NOT have and cannot get: %s.\n", strings.Join(banned, ", "))
		b.WriteString("Never mention or require these items.\n")
	}
	if len(substitutes) > 0 {
		b.WriteString("Confirmed substitutes in use:\n")
		for item, sub := range substitutes {
			fmt.Fprintf(b, "- %s instead of %s\n", sub, item)
		}
	}
	if constraints != "" {
		fmt.Fprintf(b, "Additional constraints: %s\n", constraints)
	}
}
