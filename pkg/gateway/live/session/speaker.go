package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/fixpilot-ai/fixpilot/pkg/core/guide"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/protocol"
)

var errUtteranceCancelled = errors.New("utterance cancelled")

// wsUtterance tracks one speak frame until the client acks it.
type wsUtterance struct {
	id   string
	done chan struct{}

	mu     sync.Mutex
	err    error
	closed bool

	cancel func(id string)
}

func (u *wsUtterance) Done() <-chan struct{} { return u.done }

func (u *wsUtterance) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

func (u *wsUtterance) Cancel() {
	u.finish(errUtteranceCancelled)
	if u.cancel != nil {
		u.cancel(u.id)
	}
}

func (u *wsUtterance) finish(err error) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	u.err = err
	u.mu.Unlock()
	close(u.done)
}

// wsSpeaker implements guide.Speaker over the websocket: each Speak sends
// a speak frame and the returned utterance completes when the client's
// speech_mark arrives. The engine's own watchdog covers clients that
// never ack.
type wsSpeaker struct {
	send func(frame outboundFrame) bool

	mu      sync.Mutex
	pending map[string]*wsUtterance
	set     map[string]struct{} // cancelled ids, consulted by the writer
}

func newWSSpeaker(send func(frame outboundFrame) bool) *wsSpeaker {
	return &wsSpeaker{
		send:    send,
		pending: make(map[string]*wsUtterance),
		set:     make(map[string]struct{}),
	}
}

func (s *wsSpeaker) Speak(ctx context.Context, text string) (guide.Utterance, error) {
	id := uuid.NewString()
	u := &wsUtterance{id: id, done: make(chan struct{})}
	u.cancel = s.cancelUtterance

	payload, err := json.Marshal(protocol.ServerSpeak{
		Type:        "speak",
		UtteranceID: id,
		Text:        text,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pending[id] = u
	s.mu.Unlock()

	if !s.send(outboundFrame{payload: payload, isSpeech: true, utteranceID: id}) {
		s.drop(id)
		return nil, errors.New("speech channel closed")
	}
	return u, nil
}

// ack completes the pending utterance for a client speech_mark.
func (s *wsSpeaker) ack(id, state string) {
	s.mu.Lock()
	u := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if u == nil {
		return
	}
	if state == "failed" {
		u.finish(errors.New("client playback failed"))
		return
	}
	u.finish(nil)
}

// isCanceled is consulted by the outbound writer before sending a queued
// speak frame.
func (s *wsSpeaker) isCanceled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[id]
	return ok
}

func (s *wsSpeaker) cancelUtterance(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.set[id] = struct{}{}
	s.mu.Unlock()

	payload, err := json.Marshal(protocol.ServerSpeechCancel{Type: "speech_cancel", UtteranceID: id})
	if err != nil {
		return
	}
	s.send(outboundFrame{payload: payload})
}

// closeAll fails every pending utterance so the engine's speech queue can
// drain during teardown.
func (s *wsSpeaker) closeAll() {
	s.mu.Lock()
	pending := make([]*wsUtterance, 0, len(s.pending))
	for _, u := range s.pending {
		pending = append(pending, u)
	}
	s.pending = make(map[string]*wsUtterance)
	s.mu.Unlock()

	for _, u := range pending {
		u.finish(errors.New("connection closed"))
	}
}

func (s *wsSpeaker) drop(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}
