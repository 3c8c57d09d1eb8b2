package gemini

import (
	"encoding/json"
	"strings"

	"github.com/fixpilot-ai/fixpilot/pkg/core"
	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

type planPayload struct {
	Summary string `json:"summary"`
	Steps   []struct {
		Instruction        string   `json:"instruction"`
		Tools              []string `json:"tools"`
		Materials          []string `json:"materials"`
		CompletionCriteria string   `json:"completion_criteria"`
		VisualAnchors      []string `json:"visual_anchors"`
	} `json:"steps"`
}

type highlightPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label"`
}

type guidancePayload struct {
	Instruction          string             `json:"instruction"`
	Confidence           float64            `json:"confidence"`
	StepComplete         bool               `json:"step_complete"`
	SuggestCompletion    bool               `json:"suggest_completion"`
	RequiresManualAction bool               `json:"requires_manual_action"`
	DetectedObject       string             `json:"detected_object"`
	DetectedItemMismatch bool               `json:"detected_item_mismatch"`
	ShouldStop           bool               `json:"should_stop"`
	SafetyWarning        string             `json:"safety_warning"`
	Highlights           []highlightPayload `json:"highlights"`
}

type substitutePayload struct {
	Found       bool              `json:"found"`
	Substitute  string            `json:"substitute"`
	Reason      string            `json:"reason"`
	Instruction string            `json:"instruction"`
	Confidence  float64           `json:"confidence"`
	Highlight   *highlightPayload `json:"highlight"`
}

func decodePlan(raw string) (*types.RepairPlan, error) {
	var payload planPayload
	if err := decodeJSON(raw, &payload); err != nil {
		return nil, err
	}
	if len(payload.Steps) == 0 {
		return nil, core.NewAPIError("gemini returned a plan with no steps")
	}
	plan := &types.RepairPlan{Summary: payload.Summary}
	for _, s := range payload.Steps {
		if strings.TrimSpace(s.Instruction) == "" {
			continue
		}
		plan.Steps = append(plan.Steps, types.RepairStep{
			Instruction:        s.Instruction,
			Tools:              s.Tools,
			Materials:          s.Materials,
			CompletionCriteria: s.CompletionCriteria,
			VisualAnchors:      s.VisualAnchors,
		})
	}
	if len(plan.Steps) == 0 {
		return nil, core.NewAPIError("gemini returned a plan with no usable steps")
	}
	return plan, nil
}

func decodeGuidance(raw string) (*types.GuidanceResponse, error) {
	var payload guidancePayload
	if err := decodeJSON(raw, &payload); err != nil {
		return nil, err
	}
	resp := &types.GuidanceResponse{
		Instruction:          payload.Instruction,
		Confidence:           clamp01(payload.Confidence),
		StepComplete:         payload.StepComplete,
		SuggestCompletion:    payload.SuggestCompletion,
		RequiresManualAction: payload.RequiresManualAction,
		DetectedObject:       payload.DetectedObject,
		DetectedItemMismatch: payload.DetectedItemMismatch,
		ShouldStop:           payload.ShouldStop,
		SafetyWarning:        payload.SafetyWarning,
	}
	for _, h := range payload.Highlights {
		resp.Highlights = append(resp.Highlights, types.Highlight{
			X: h.X, Y: h.Y, Width: h.Width, Height: h.Height, Label: h.Label,
		})
	}
	return resp, nil
}

func decodeSubstitute(raw string) (*types.SubstituteResult, error) {
	var payload substitutePayload
	if err := decodeJSON(raw, &payload); err != nil {
		return nil, err
	}
	result := &types.SubstituteResult{
		Found:       payload.Found,
		Substitute:  payload.Substitute,
		Reason:      payload.Reason,
		Instruction: payload.Instruction,
		Confidence:  clamp01(payload.Confidence),
	}
	if payload.Found && strings.TrimSpace(payload.Substitute) == "" {
		result.Found = false
	}
	if h := payload.Highlight; h != nil {
		result.Highlight = &types.Highlight{
			X: h.X, Y: h.Y, Width: h.Width, Height: h.Height, Label: h.Label,
		}
	}
	return result, nil
}

// decodeJSON tolerates the model wrapping its JSON in a markdown fence.
func decodeJSON(raw string, v any) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return core.NewAPIError("gemini returned an empty response")
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return core.NewAPIError("gemini returned malformed JSON: " + err.Error())
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
