package guide

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fixpilot-ai/fixpilot/pkg/core"
	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// FrameSource yields the most recent camera frame. Capture blocks until
// a frame is available or the context ends.
type FrameSource interface {
	Capture(ctx context.Context) (types.Frame, error)
}

// StartParams seed a new guided repair session.
type StartParams struct {
	Category     string `json:"category"`
	Problem      string `json:"problem"`
	LikelyCause  string `json:"likely_cause,omitempty"`
	ExpectedItem string `json:"expected_item"`
}

// Session orchestrates one guided repair: it owns the state machine, the
// frame-analysis loops, the guidance interpreter, and the speech queue,
// and surfaces everything the UI needs on a single event channel.
//
// All machine access is serialized through mu. Provider calls run on
// their own goroutines and re-enter through Dispatch, where the
// stale-response gate decides whether their results still apply.
type Session struct {
	ID  string
	cfg Config

	providers core.Providers
	frames    FrameSource
	logger    *slog.Logger

	mu      sync.Mutex
	machine *Machine
	interp  *Interpreter
	boxes   *HighlightTracker

	speech  *SpeechQueue
	pacer   *ScanPacer
	backoff *Backoff

	subMu     sync.Mutex
	subCancel context.CancelFunc

	emitMu       sync.Mutex
	events       chan Event
	eventsClosed bool

	done     chan struct{}
	scanKick chan struct{}
	closed   atomic.Bool
	started  atomic.Bool

	cancelLoops context.CancelFunc
}

// NewSession wires a session but does not start any loops; call Start.
func NewSession(cfg Config, providers core.Providers, frames FrameSource, speaker Speaker, logger *slog.Logger) (*Session, error) {
	if !providers.Valid() {
		return nil, core.NewInvalidRequestError("all four providers are required")
	}
	if frames == nil {
		return nil, core.NewInvalidRequestError("frame source is required")
	}
	if speaker == nil {
		return nil, core.NewInvalidRequestError("speaker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		ID:        uuid.NewString(),
		cfg:       cfg,
		providers: providers,
		frames:    frames,
		logger:    logger,
		machine:   NewMachine(cfg),
		interp:    NewInterpreter(cfg),
		boxes:     NewHighlightTracker(cfg.HighlightDecayFrames),
		pacer:     NewScanPacer(),
		backoff:   NewBackoff(cfg.BackoffBase(), cfg.BackoffMax()),
		events:    make(chan Event, 100),
		done:      make(chan struct{}),
		scanKick:  make(chan struct{}, 1),
	}
	s.logger = logger.With("session_id", s.ID)
	s.machine.SetLogf(func(format string, args ...any) {
		s.logger.Debug("machine", "detail", fmt.Sprintf(format, args...))
	})
	s.speech = NewSpeechQueue(cfg, speaker, s.emit)
	return s, nil
}

// Events is the UI-facing event stream. It closes when the session ends.
func (s *Session) Events() <-chan Event { return s.events }

// Done closes when the session reaches a terminal state or is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the machine's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// Start begins the session: plan generation kicks off immediately and
// the frame-analysis loop runs until Done.
func (s *Session) Start(params StartParams) error {
	if !s.started.CompareAndSwap(false, true) {
		return core.NewInvalidRequestError("session already started")
	}
	s.emit(&SessionStartedEvent{SessionID: s.ID, Category: params.Category, Problem: params.Problem})

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancelLoops = cancel
	go s.runScanLoop(loopCtx)

	return s.Dispatch(ActionStart{
		Category:     params.Category,
		Problem:      params.Problem,
		LikelyCause:  params.LikelyCause,
		ExpectedItem: params.ExpectedItem,
	})
}

// Dispatch applies one action to the machine and executes its effects.
// Rejected actions return an invalid-request error and change nothing.
func (s *Session) Dispatch(action Action) error {
	if s.closed.Load() {
		return core.NewInvalidRequestError("session is closed")
	}

	s.mu.Lock()
	from := s.machine.State()
	effects, ok := s.machine.Apply(action)
	to := s.machine.State()
	s.mu.Unlock()

	if !ok {
		return core.NewInvalidRequestError("action " + action.ActionName() + " not allowed in state " + from.String())
	}
	s.logger.Debug("dispatch", "action", action.ActionName(), "from", from.String(), "to", to.String())
	if to != from {
		s.emit(&StateChangedEvent{From: from, To: to})
	}
	s.execute(effects)
	return nil
}

func (s *Session) execute(effects []Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case EffectLoadPlan:
			go s.loadPlan()
		case EffectSpeak:
			s.say(e)
		case EffectFlushSpeech:
			s.speech.Flush()
		case EffectHoldAnalysis:
			s.pacer.HoldFor(e.Delay)
		case EffectRequestScan:
			select {
			case s.scanKick <- struct{}{}:
			default:
			}
		case EffectResetStepTracking:
			s.mu.Lock()
			s.interp.ResetStep()
			s.boxes.Reset()
			s.mu.Unlock()
			s.emit(&HighlightsUpdatedEvent{})
		case EffectEnterWorkingMode:
			s.mu.Lock()
			s.interp.EnterWorkingMode()
			s.mu.Unlock()
		case EffectExitWorkingMode:
			s.mu.Lock()
			s.interp.ExitWorkingMode()
			s.mu.Unlock()
		case EffectClearPausedAction:
			s.mu.Lock()
			s.interp.ClearPausedAction()
			s.mu.Unlock()
		case EffectStartSubstituteScan:
			s.startSubstituteScan(e.Item)
		case EffectStopSubstituteScan:
			s.stopSubstituteScan()
		case EffectRegeneratePlan:
			go s.regeneratePlan()
		case EffectAskQuestion:
			go s.answerQuestion(e.Question)
		case EffectEndSession:
			s.finish(e.Reason)
		case EffectEmit:
			s.emit(e.Event)
		default:
			s.logger.Warn("unknown effect", "effect", effect.EffectName())
		}
	}
}

// say enqueues speech, honoring the voice toggle. Urgent safety speech
// plays even with voice disabled.
func (s *Session) say(e EffectSpeak) {
	if e.Urgent {
		s.speech.EnqueueUrgent(e.Text)
		return
	}
	s.mu.Lock()
	enabled := s.machine.Context().VoiceEnabled
	s.mu.Unlock()
	if enabled {
		s.speech.Enqueue(e.Text)
	}
}

// finish emits the final event and releases the loops. The speech queue
// stays open briefly so closing words can play; Close tears it down.
func (s *Session) finish(reason string) {
	if s.closed.Swap(true) {
		return
	}
	s.mu.Lock()
	ctx := s.machine.Context()
	ended := &SessionEndedEvent{
		Reason:         reason,
		StepsCompleted: ctx.StepIndex,
		TotalSteps:     len(ctx.Steps),
		PlanRevision:   ctx.PlanRevision,
	}
	s.mu.Unlock()

	s.sendEvent(ended)
	s.stopSubstituteScan()
	if s.cancelLoops != nil {
		s.cancelLoops()
	}
	close(s.done)

	s.emitMu.Lock()
	s.eventsClosed = true
	close(s.events)
	s.emitMu.Unlock()
}

// Close force-ends the session. Safe to call more than once.
func (s *Session) Close() {
	if !s.closed.Load() {
		s.mu.Lock()
		reason := "user_ended"
		if s.machine.State().Terminal() {
			reason = s.machine.Context().EndReason
		}
		effects, ok := s.machine.Apply(ActionEndSession{})
		s.mu.Unlock()
		if ok {
			s.execute(effects)
		} else {
			s.finish(reason)
		}
	}
	s.speech.Close()
}

// emit delivers an event without blocking; a full buffer drops the
// event rather than stalling a provider goroutine.
func (s *Session) emit(e Event) {
	if s.closed.Load() {
		return
	}
	s.sendEvent(e)
}

func (s *Session) sendEvent(e Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- e:
	default:
		s.logger.Warn("event buffer full, dropping", "event", e.EventType())
	}
}

// --- provider calls ---

func (s *Session) loadPlan() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	req := s.planRequest()
	plan, err := s.providers.Plan.GeneratePlan(ctx, req)
	if err != nil {
		s.logger.Error("plan generation failed", "error", err)
		_ = s.Dispatch(ActionPlanFailed{Err: err})
		return
	}
	_ = s.Dispatch(ActionPlanLoaded{Plan: plan})
}

func (s *Session) regeneratePlan() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	req := s.planRequest()
	plan, err := s.providers.Plan.GeneratePlan(ctx, req)
	if err != nil {
		s.logger.Error("plan regeneration failed", "error", err)
		_ = s.Dispatch(ActionPlanRegenFailed{Err: err})
		return
	}
	_ = s.Dispatch(ActionPlanRegenerated{Plan: plan})
}

// planRequest snapshots everything the planner needs: the problem, the
// completed prefix, and every accumulated constraint.
func (s *Session) planRequest() *types.PlanRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.machine.Context()

	req := &types.PlanRequest{
		Category:           ctx.Category,
		Problem:            ctx.Problem,
		LikelyCause:        ctx.LikelyCause,
		CompletedSteps:     ctx.StepIndex,
		CurrentInstruction: ctx.CurrentStep().Instruction,
	}
	if ctx.Constraints != nil {
		req.BannedItems = ctx.Constraints.Banned()
		req.Substitutes = ctx.Constraints.Substitutes()
		req.Constraints = ctx.Constraints.Text()
	}
	return req
}

func (s *Session) answerQuestion(question string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	mctx := s.machine.Context()
	req := &types.QuestionRequest{
		Question:     question,
		Category:     mctx.Category,
		Problem:      mctx.Problem,
		Instruction:  mctx.CurrentStep().Instruction,
		Conversation: mctx.Conversation.Entries(),
	}
	if mctx.Constraints != nil {
		req.Constraints = mctx.Constraints.Text()
	}
	s.mu.Unlock()

	// A current frame gives the answer visual context when available.
	frameCtx, frameCancel := context.WithTimeout(ctx, 2*time.Second)
	if frame, err := s.frames.Capture(frameCtx); err == nil {
		req.Frame = &frame
	}
	frameCancel()

	answer, err := s.providers.Answer.Answer(ctx, req)
	if err != nil {
		s.logger.Error("question failed", "error", err, "question", question)
		_ = s.Dispatch(ActionAnswerFailed{Err: err})
		return
	}
	_ = s.Dispatch(ActionAnswerReady{Answer: answer.Text})
}
