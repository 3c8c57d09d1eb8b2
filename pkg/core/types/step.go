package types

// RepairStep is a single instruction in a repair plan.
// Steps are immutable once issued: plan regeneration replaces the tail of
// the step list wholesale rather than editing steps in place.
type RepairStep struct {
	// Instruction is the text shown and spoken to the user.
	Instruction string `json:"instruction"`

	// Tools are the tools the user should have on hand before starting.
	Tools []string `json:"tools,omitempty"`

	// Materials are consumables the step requires.
	Materials []string `json:"materials,omitempty"`

	// CompletionCriteria describes what the camera should see when the
	// step is done. Sent to the guidance service verbatim.
	CompletionCriteria string `json:"completion_criteria,omitempty"`

	// VisualAnchors are objects the guidance service should try to locate
	// and highlight while this step is active.
	VisualAnchors []string `json:"visual_anchors,omitempty"`
}

// NeededItems returns the step's tools and materials as one ordered list,
// tools first. The result is a fresh slice.
func (s RepairStep) NeededItems() []string {
	items := make([]string, 0, len(s.Tools)+len(s.Materials))
	items = append(items, s.Tools...)
	items = append(items, s.Materials...)
	return items
}

// RepairPlan is an ordered list of steps produced by the plan generator.
type RepairPlan struct {
	Steps []RepairStep `json:"steps"`

	// Summary is an optional one-line description of the overall approach.
	Summary string `json:"summary,omitempty"`
}
