// Package gemini implements the four repair-session providers on the
// Gemini API: plan generation, frame guidance, voice Q&A, and
// substitute finding. Vision calls send the current camera frame
// alongside a structured-output prompt and decode the JSON reply.
package gemini

import (
	"context"

	"google.golang.org/genai"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

const (
	// DefaultModel handles all four operations. Frame guidance depends
	// on its vision quality and latency.
	DefaultModel = "gemini-2.0-flash"

	frameMIMEType = "image/jpeg"
)

// Provider implements core.PlanProvider, core.GuidanceProvider,
// core.AnswerProvider, and core.SubstituteProvider.
type Provider struct {
	client *genai.Client
	model  string
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// New creates a Gemini-backed provider set.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, mapError(err)
	}
	p := &Provider{
		client: client,
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// GeneratePlan produces an ordered step list for the reported problem,
// honoring any accumulated item constraints.
func (p *Provider) GeneratePlan(ctx context.Context, req *types.PlanRequest) (*types.RepairPlan, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(buildPlanPrompt(req), genai.RoleUser),
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, jsonConfig(planSystemPrompt))
	if err != nil {
		return nil, mapError(err)
	}
	return decodePlan(resp.Text())
}

// Analyze inspects one camera frame against the current step. During
// the identity gate it reports what it sees instead of giving guidance.
func (p *Provider) Analyze(ctx context.Context, req *types.GuidanceRequest) (*types.GuidanceResponse, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Frame.JPEG, frameMIMEType),
		genai.NewPartFromText(buildGuidancePrompt(req)),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	system := guidanceSystemPrompt
	if req.VerifyIdentity {
		system = identitySystemPrompt
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, jsonConfig(system))
	if err != nil {
		return nil, mapError(err)
	}
	return decodeGuidance(resp.Text())
}

// Answer answers a user question with the session's conversation history
// and, when available, the current frame for visual context.
func (p *Provider) Answer(ctx context.Context, req *types.QuestionRequest) (*types.Answer, error) {
	var parts []*genai.Part
	if req.Frame != nil && len(req.Frame.JPEG) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Frame.JPEG, frameMIMEType))
	}
	parts = append(parts, genai.NewPartFromText(buildQuestionPrompt(req)))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(answerSystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.4),
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, mapError(err)
	}
	return &types.Answer{Text: resp.Text()}, nil
}

// FindSubstitute scans one frame for something that could stand in for
// the missing item.
func (p *Provider) FindSubstitute(ctx context.Context, req *types.SubstituteRequest) (*types.SubstituteResult, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Frame.JPEG, frameMIMEType),
		genai.NewPartFromText(buildSubstitutePrompt(req)),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, jsonConfig(substituteSystemPrompt))
	if err != nil {
		return nil, mapError(err)
	}
	return decodeSubstitute(resp.Text())
}

// jsonConfig forces structured JSON output with a low temperature.
func jsonConfig(system string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	}
}
