package types

// PlanRequest asks the plan generator for an ordered step list.
type PlanRequest struct {
	Category    string `json:"category"`
	Problem     string `json:"problem"`
	LikelyCause string `json:"likely_cause,omitempty"`

	// Regeneration context. Zero values on the initial request.
	CompletedSteps     int               `json:"completed_steps,omitempty"`
	CurrentInstruction string            `json:"current_instruction,omitempty"`
	BannedItems        []string          `json:"banned_items,omitempty"`
	Substitutes        map[string]string `json:"substitutes,omitempty"`
	Constraints        string            `json:"constraints,omitempty"`
}

// GuidanceRequest asks the real-time guidance service to analyze a frame
// against the current step.
type GuidanceRequest struct {
	Frame    Frame  `json:"-"`
	Category string `json:"category"`
	Problem  string `json:"problem"`

	StepIndex          int    `json:"step_index"`
	Instruction        string `json:"instruction"`
	CompletionCriteria string `json:"completion_criteria,omitempty"`

	// ExpectedItem is set during the identity gate; the service should
	// report what it sees rather than give step guidance.
	ExpectedItem   string `json:"expected_item,omitempty"`
	VerifyIdentity bool   `json:"verify_identity,omitempty"`

	Constraints string            `json:"constraints,omitempty"`
	BannedItems []string          `json:"banned_items,omitempty"`
	Substitutes map[string]string `json:"substitutes,omitempty"`

	// Generation stamps the request for the stale-response gate.
	Generation uint64 `json:"-"`
}

// QuestionRequest asks the voice Q&A service to answer a user question.
type QuestionRequest struct {
	Question    string `json:"question"`
	Category    string `json:"category"`
	Problem     string `json:"problem"`
	Instruction string `json:"instruction,omitempty"`

	Frame        *Frame              `json:"-"`
	Conversation []ConversationEntry `json:"conversation,omitempty"`
	Constraints  string              `json:"constraints,omitempty"`
}

// Answer is the voice Q&A service's reply.
type Answer struct {
	Text string `json:"text"`
}

// SubstituteRequest asks the substitute finder to scan a frame for a
// replacement for a missing item.
type SubstituteRequest struct {
	Frame       Frame    `json:"-"`
	MissingItem string   `json:"missing_item"`
	Category    string   `json:"category"`
	Instruction string   `json:"instruction,omitempty"`
	BannedItems []string `json:"banned_items,omitempty"`
}

// SubstituteResult is the substitute finder's verdict for one scan.
type SubstituteResult struct {
	Found      bool   `json:"found"`
	Substitute string `json:"substitute,omitempty"`
	Reason     string `json:"reason,omitempty"`

	// Instruction tells the user how to use the substitute, when found.
	Instruction string     `json:"instruction,omitempty"`
	Confidence  float64    `json:"confidence,omitempty"`
	Highlight   *Highlight `json:"highlight,omitempty"`
}
