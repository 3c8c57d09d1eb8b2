package guide

import (
	"context"
	"sync"
	"time"

	"github.com/fixpilot-ai/fixpilot/pkg/core"
	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// Backoff doubles its delay on every Next up to a cap, and returns to
// the base after Reset. Used to pace analysis after rate limits.
type Backoff struct {
	mu   sync.Mutex
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{base: base, max: max}
}

// Next returns the delay before the next attempt: base on the first
// failure, then doubling up to the cap.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur == 0 {
		b.cur = b.base
	} else {
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}
	return b.cur
}

// Reset returns the backoff to its base. Called after any success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.cur = 0
	b.mu.Unlock()
}

// ScanPacer enforces single-in-flight analysis and honors hold windows
// (post-task delays, rate-limit backoff).
type ScanPacer struct {
	mu        sync.Mutex
	busy      bool
	holdUntil time.Time
	now       func() time.Time
}

func NewScanPacer() *ScanPacer {
	return &ScanPacer{now: time.Now}
}

// SetClock replaces the pacer's time source. Test hook.
func (p *ScanPacer) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// TryBegin claims the in-flight slot. It fails while an analysis is
// outstanding or a hold window is open.
func (p *ScanPacer) TryBegin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy || p.now().Before(p.holdUntil) {
		return false
	}
	p.busy = true
	return true
}

// End releases the in-flight slot.
func (p *ScanPacer) End() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

// HoldFor blocks new analyses for d. Overlapping holds keep the latest
// expiry.
func (p *ScanPacer) HoldFor(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := p.now().Add(d)
	if until.After(p.holdUntil) {
		p.holdUntil = until
	}
}

// runScanLoop is the main frame-capture loop. Each tick it decides
// whether an analysis may start; the result re-enters the machine
// through Dispatch, guarded by the stale-response gate.
func (s *Session) runScanLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if req, ok := s.nextScan(); ok {
				go s.analyzeFrame(ctx, req)
			}
		case <-s.scanKick:
			if req, ok := s.nextScan(); ok {
				go s.analyzeFrame(ctx, req)
			}
		}
	}
}

// nextScan decides whether this tick produces an analysis and, if so,
// stamps a request with a fresh generation. Analysis runs only while a
// step is active or during identity verification; every pause and every
// modal suspends the loop. It waits for the speech queue so guidance is
// not computed against a scene the user hasn't heard about yet.
func (s *Session) nextScan() (*types.GuidanceRequest, bool) {
	if !s.speech.Idle() {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.machine.State()
	if state != StateStepActive && state != StateVerifyingIdentity {
		return nil, false
	}
	if !s.pacer.TryBegin() {
		return nil, false
	}

	mctx := s.machine.Context()
	step := mctx.CurrentStep()
	req := &types.GuidanceRequest{
		Category:           mctx.Category,
		Problem:            mctx.Problem,
		StepIndex:          mctx.StepIndex,
		Instruction:        step.Instruction,
		CompletionCriteria: step.CompletionCriteria,
		Generation:         s.machine.NextGeneration(),
	}
	if state == StateVerifyingIdentity {
		req.ExpectedItem = mctx.ExpectedItem
		req.VerifyIdentity = true
	}
	if mctx.Constraints != nil {
		req.Constraints = mctx.Constraints.Text()
		req.BannedItems = mctx.Constraints.Banned()
		req.Substitutes = mctx.Constraints.Substitutes()
	}
	return req, true
}

func (s *Session) analyzeFrame(ctx context.Context, req *types.GuidanceRequest) {
	defer s.pacer.End()

	frameCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	frame, err := s.frames.Capture(frameCtx)
	cancel()
	if err != nil {
		s.logger.Debug("frame capture failed", "error", err)
		return
	}
	req.Frame = frame

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	resp, err := s.providers.Guidance.Analyze(callCtx, req)
	if err != nil {
		s.analysisError(err)
		return
	}
	s.backoff.Reset()
	s.handleAnalysis(req, resp)
}

// analysisError backs off on rate limits and overload; other provider
// errors just log and wait for the next tick.
func (s *Session) analysisError(err error) {
	if _, ok := core.IsRateLimit(err); ok {
		delay := s.backoff.Next()
		s.pacer.HoldFor(delay)
		s.emit(&BackoffEvent{DelayMs: int(delay / time.Millisecond)})
		s.logger.Warn("analysis rate limited", "hold", delay)
		return
	}
	s.logger.Error("analysis failed", "error", err)
}

// handleAnalysis runs the stale-response gate, then routes the response
// either through the identity check or the guidance interpreter.
// Admission and application commit inside one critical section: a user
// action that bumps the generation in between would otherwise let an
// already-admitted response mutate state it was meant to be fenced
// from. Effects and events go out after the commit, like Dispatch.
func (s *Session) handleAnalysis(req *types.GuidanceRequest, resp *types.GuidanceResponse) {
	type commit struct {
		action   Action
		from, to State
		effects  []Effect
	}
	var commits []commit

	s.mu.Lock()
	reason, admit := s.machine.AdmitResponse(req.Generation, req.StepIndex)
	if !admit {
		s.mu.Unlock()
		s.emit(&StaleResponseDroppedEvent{
			Generation: req.Generation,
			StepIndex:  req.StepIndex,
			Reason:     reason,
		})
		return
	}

	// Earlier actions can move the machine; later ones are then dropped
	// by the machine itself.
	apply := func(action Action) {
		from := s.machine.State()
		effects, ok := s.machine.Apply(action)
		if !ok {
			return
		}
		commits = append(commits, commit{action: action, from: from, to: s.machine.State(), effects: effects})
	}

	var boxes []types.Highlight
	var changed bool
	if req.VerifyIdentity {
		apply(ActionIdentityResult{Detected: resp.DetectedObject})
	} else {
		boxes, changed = s.boxes.Observe(resp.Highlights)
		for _, action := range s.interp.Interpret(resp) {
			apply(action)
		}
	}
	s.mu.Unlock()

	if changed {
		s.emit(&HighlightsUpdatedEvent{Highlights: boxes})
	}
	for _, c := range commits {
		s.logger.Debug("dispatch", "action", c.action.ActionName(), "from", c.from.String(), "to", c.to.String())
		if c.to != c.from {
			s.emit(&StateChangedEvent{From: c.from, To: c.to})
		}
		s.execute(c.effects)
	}
}
