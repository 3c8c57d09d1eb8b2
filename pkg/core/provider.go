package core

import (
	"context"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// PlanProvider generates and regenerates repair plans.
type PlanProvider interface {
	// GeneratePlan returns an ordered step list for the described problem.
	// For regeneration, the request carries completed-step context and the
	// accumulated item constraints; the returned plan covers only the
	// remaining work.
	GeneratePlan(ctx context.Context, req *types.PlanRequest) (*types.RepairPlan, error)
}

// GuidanceProvider analyzes camera frames against the current step.
type GuidanceProvider interface {
	Analyze(ctx context.Context, req *types.GuidanceRequest) (*types.GuidanceResponse, error)
}

// AnswerProvider answers free-form user questions mid-repair.
type AnswerProvider interface {
	Answer(ctx context.Context, req *types.QuestionRequest) (*types.Answer, error)
}

// SubstituteProvider scans frames for replacements for missing items.
type SubstituteProvider interface {
	FindSubstitute(ctx context.Context, req *types.SubstituteRequest) (*types.SubstituteResult, error)
}

// Providers bundles the four AI services a guided session consumes.
// All four must be non-nil.
type Providers struct {
	Plan       PlanProvider
	Guidance   GuidanceProvider
	Answer     AnswerProvider
	Substitute SubstituteProvider
}

// Valid reports whether every provider is set.
func (p Providers) Valid() bool {
	return p.Plan != nil && p.Guidance != nil && p.Answer != nil && p.Substitute != nil
}
