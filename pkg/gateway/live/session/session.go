package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fixpilot-ai/fixpilot/pkg/core"
	"github.com/fixpilot-ai/fixpilot/pkg/core/guide"
	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/protocol"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/metrics"
)

type Config struct {
	MaxJSONMessageBytes int64
	MaxFrameBytes       int
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	MaxSessionDuration  time.Duration
	OutboundQueueSize   int
}

type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	Providers core.Providers
	Engine    guide.Config
	Hello     protocol.ClientHello
	Principal string

	// AllowFrame gates inbound camera frames; nil disables the gate.
	AllowFrame func(now time.Time) (allowed bool, retryAfter int)

	Metrics  *metrics.Metrics
	Recorder Recorder
	Config   Config
}

// Bridge connects one websocket to one engine session: the inbound reader
// turns protocol frames into engine actions and cached camera frames, the
// event pump serializes engine events outbound, and the speaker plays
// utterances through the client with ack-based completion.
type Bridge struct {
	cfg       Config
	conn      *websocket.Conn
	logger    *slog.Logger
	metrics   *metrics.Metrics
	recorder  Recorder
	principal string
	hello     protocol.ClientHello

	allowFrame func(time.Time) (bool, int)

	frames  *frameCache
	speaker *wsSpeaker
	engine  *guide.Session

	priorityCh chan outboundFrame
	normalCh   chan outboundFrame
	sendMu     sync.Mutex
	sendClosed bool

	cancel    context.CancelFunc
	startedAt time.Time

	substitutions atomic.Int64
}

func New(deps Dependencies) (*Bridge, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queueSize := deps.Config.OutboundQueueSize
	if queueSize <= 0 {
		queueSize = 128
	}

	b := &Bridge{
		cfg:        deps.Config,
		conn:       deps.Conn,
		logger:     logger,
		metrics:    deps.Metrics,
		recorder:   deps.Recorder,
		principal:  deps.Principal,
		hello:      deps.Hello,
		allowFrame: deps.AllowFrame,
		frames:     newFrameCache(),
		priorityCh: make(chan outboundFrame, 16),
		normalCh:   make(chan outboundFrame, queueSize),
	}
	b.speaker = newWSSpeaker(b.sendSpeech)

	engineCfg := deps.Engine
	if deps.Hello.VoiceEnabled != nil {
		engineCfg.VoiceEnabled = *deps.Hello.VoiceEnabled
	}
	engine, err := guide.NewSession(engineCfg, deps.Providers, b.frames, b.speaker, logger)
	if err != nil {
		return nil, err
	}
	b.engine = engine
	b.logger = logger.With("session_id", engine.ID)
	return b, nil
}

// SessionID is the engine session id, available before Run for the
// handshake ack.
func (b *Bridge) SessionID() string { return b.engine.ID }

// Run drives the connection until the session ends or the socket fails.
func (b *Bridge) Run() error {
	ctx := context.Background()
	var cancel context.CancelFunc
	if b.cfg.MaxSessionDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, b.cfg.MaxSessionDuration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	b.cancel = cancel
	b.startedAt = time.Now()

	writer := &outboundWriter{
		ws:         b.conn,
		ctx:        ctx,
		cfg:        b.cfg,
		priority:   b.priorityCh,
		normal:     b.normalCh,
		isCanceled: b.speaker.isCanceled,
	}
	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run() }()

	// When the engine finishes on its own the reader is still blocked on
	// the socket; cancelling the writer context closes the socket and
	// unblocks it.
	go func() {
		select {
		case <-b.engine.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		b.pumpEvents()
	}()

	if err := b.engine.Start(guide.StartParams{
		Category:     b.hello.Start.Category,
		Problem:      b.hello.Start.Problem,
		LikelyCause:  b.hello.Start.LikelyCause,
		ExpectedItem: b.hello.Start.ExpectedItem,
	}); err != nil {
		b.teardown(cancel, writerDone, pumpDone)
		return err
	}

	readErr := b.readLoop(ctx)
	b.teardown(cancel, writerDone, pumpDone)
	return readErr
}

func (b *Bridge) teardown(cancel context.CancelFunc, writerDone chan error, pumpDone chan struct{}) {
	// Pending utterances fail first so the engine's speech queue cannot
	// block on acks that will never arrive.
	b.speaker.closeAll()
	b.engine.Close()
	<-pumpDone

	// The outbound channels are never closed: the writer exits on the
	// cancelled context, and any sender that slipped past the closed
	// flag just queues a frame nobody drains. Closing them here would
	// race a concurrent send into a panic.
	b.closeSend()
	cancel()
	<-writerDone
}

func (b *Bridge) closeSend() {
	b.sendMu.Lock()
	b.sendClosed = true
	b.sendMu.Unlock()
}

// Cancel force-closes the session. Used by the tracker during shutdown.
func (b *Bridge) Cancel() {
	b.engine.Close()
	if b.cancel != nil {
		b.cancel()
	}
}

// SendWarning delivers a non-fatal server notice to the client.
func (b *Bridge) SendWarning(code, message string) error {
	payload, err := json.Marshal(protocol.ServerError{
		Type:    "error",
		Scope:   "session",
		Code:    code,
		Message: message,
	})
	if err != nil {
		return err
	}
	b.send(outboundFrame{payload: payload}, true)
	return nil
}

// --- inbound ---

func (b *Bridge) readLoop(ctx context.Context) error {
	if b.cfg.MaxJSONMessageBytes > 0 {
		b.conn.SetReadLimit(b.cfg.MaxJSONMessageBytes)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.engine.Done():
			return nil
		default:
		}

		if b.cfg.ReadTimeout > 0 {
			_ = b.conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
		}
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-b.engine.Done():
				return nil
			default:
			}
			return err
		}
		if messageType != websocket.TextMessage {
			b.sendError("message", "bad_request", "frames must be JSON text", "")
			continue
		}
		b.metrics.RecordWSMessage("in")

		decoded, err := protocol.DecodeClientMessage(data)
		if err != nil {
			b.sendDecodeError(err)
			continue
		}

		switch msg := decoded.(type) {
		case protocol.ClientHello:
			b.sendError("message", "bad_request", "duplicate hello", "")
		case protocol.ClientFrame:
			b.handleFrame(msg)
		case protocol.ClientAction:
			b.handleAction(msg)
		case protocol.ClientSpeechMark:
			b.speaker.ack(msg.UtteranceID, msg.State)
		case protocol.ClientControl:
			if msg.Op == "end_session" {
				b.engine.Close()
				return nil
			}
		}
	}
}

func (b *Bridge) handleFrame(msg protocol.ClientFrame) {
	if b.allowFrame != nil {
		allowed, retryAfter := b.allowFrame(time.Now())
		if !allowed {
			b.metrics.RecordRateLimitHit("frame")
			b.sendError("frame", "rate_limited", "camera frames throttled, retry in "+strconv.Itoa(retryAfter)+"s", "")
			return
		}
	}

	jpeg, err := base64.StdEncoding.DecodeString(msg.DataB64)
	if err != nil {
		b.sendError("frame", "bad_request", "data_b64 is not valid base64", "data_b64")
		return
	}
	if b.cfg.MaxFrameBytes > 0 && len(jpeg) > b.cfg.MaxFrameBytes {
		b.sendError("frame", "bad_request", "frame exceeds max size", "data_b64")
		return
	}

	capturedAt := time.Now()
	if msg.TimestampMS != nil && *msg.TimestampMS > 0 {
		capturedAt = time.UnixMilli(*msg.TimestampMS)
	}
	b.frames.Set(types.Frame{JPEG: jpeg, CapturedAt: capturedAt})
	b.metrics.RecordFrame()
}

func (b *Bridge) handleAction(msg protocol.ClientAction) {
	action, err := protocol.ActionFromClient(msg)
	if err != nil {
		b.sendDecodeError(err)
		return
	}
	if err := b.engine.Dispatch(action); err != nil {
		b.sendError("action", "invalid_state", err.Error(), "")
		return
	}
	if msg.Name == "substitute_confirm" {
		b.substitutions.Add(1)
	}
}

// --- outbound ---

func (b *Bridge) pumpEvents() {
	for ev := range b.engine.Events() {
		b.observeEvent(ev)

		if _, ok := ev.(*guide.DebugEvent); ok {
			continue
		}

		enc, err := protocol.EncodeEvent(ev, b.engine.State().String())
		if err != nil {
			b.logger.Error("event encode failed", "event", ev.EventType(), "error", err)
			continue
		}
		payload, err := json.Marshal(enc)
		if err != nil {
			continue
		}

		priority := false
		switch ev.(type) {
		case *guide.SafetyStopEvent, *guide.SessionEndedEvent, *guide.ErrorEvent:
			priority = true
		}
		b.send(outboundFrame{payload: payload}, priority)
	}
}

// observeEvent feeds metrics and the history recorder from the event
// stream, so the engine itself stays free of both concerns.
func (b *Bridge) observeEvent(ev guide.Event) {
	switch e := ev.(type) {
	case *guide.SessionStartedEvent:
		b.metrics.RecordSessionStart()
		b.record(func(ctx context.Context, r Recorder) error {
			return r.SessionStarted(ctx, HistoryStart{
				SessionID: b.engine.ID,
				Principal: b.principal,
				Category:  e.Category,
				Problem:   e.Problem,
				StartedAt: time.Now(),
			})
		})
	case *guide.StepAdvancedEvent:
		b.metrics.RecordStepAdvance()
		stepIndex := e.StepIndex
		planRevision := e.PlanRevision
		b.record(func(ctx context.Context, r Recorder) error {
			return r.StepAdvanced(ctx, b.engine.ID, stepIndex, planRevision)
		})
	case *guide.PlanUpdatedEvent:
		b.metrics.RecordPlanRegen()
	case *guide.StaleResponseDroppedEvent:
		b.metrics.RecordStaleDropped(e.Reason)
	case *guide.BackoffEvent:
		b.metrics.RecordBackoff()
	case *guide.SpeechEndedEvent:
		outcome := "played"
		if e.TimedOut {
			outcome = "timed_out"
		}
		b.metrics.RecordUtterance(outcome)
	case *guide.SessionEndedEvent:
		b.metrics.RecordSessionEnd(e.Reason, time.Since(b.startedAt))
		end := HistoryEnd{
			SessionID:      b.engine.ID,
			Reason:         e.Reason,
			StepsCompleted: e.StepsCompleted,
			TotalSteps:     e.TotalSteps,
			PlanRevision:   e.PlanRevision,
			Substitutions:  int(b.substitutions.Load()),
			EndedAt:        time.Now(),
		}
		b.record(func(ctx context.Context, r Recorder) error {
			return r.SessionEnded(ctx, end)
		})
	}
}

func (b *Bridge) record(fn func(ctx context.Context, r Recorder) error) {
	if b.recorder == nil {
		return
	}
	r := b.recorder
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx, r); err != nil {
			b.logger.Warn("history record failed", "error", err)
		}
	}()
}

// send queues one outbound frame. Priority frames block briefly rather
// than drop; normal frames drop when the client cannot keep up.
func (b *Bridge) send(frame outboundFrame, priority bool) bool {
	b.sendMu.Lock()
	if b.sendClosed {
		b.sendMu.Unlock()
		return false
	}
	ch := b.normalCh
	if priority {
		ch = b.priorityCh
	}
	b.sendMu.Unlock()

	if priority {
		select {
		case ch <- frame:
			b.metrics.RecordWSMessage("out")
			return true
		case <-time.After(time.Second):
			b.logger.Warn("priority queue stalled, dropping frame")
			return false
		}
	}
	select {
	case ch <- frame:
		b.metrics.RecordWSMessage("out")
		return true
	default:
		b.logger.Warn("outbound queue full, dropping frame")
		return false
	}
}

// sendSpeech is the speaker's outbound hook. Speech rides the normal
// queue; cancellation is handled at write time via isCanceled.
func (b *Bridge) sendSpeech(frame outboundFrame) bool {
	return b.send(frame, false)
}

func (b *Bridge) sendError(scope, code, message, param string) {
	payload, err := json.Marshal(protocol.ServerError{
		Type:    "error",
		Scope:   scope,
		Code:    code,
		Message: message,
		Param:   param,
	})
	if err != nil {
		return
	}
	b.send(outboundFrame{payload: payload}, false)
}

func (b *Bridge) sendDecodeError(err error) {
	if de, ok := err.(*protocol.DecodeError); ok {
		b.sendError("message", de.Code, de.Message, de.Param)
		return
	}
	b.sendError("message", "bad_request", err.Error(), "")
}
