package guide

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Utterance is one in-flight piece of speech. Done closes when playback
// finishes on the client; Err reports why playback stopped early.
type Utterance interface {
	Done() <-chan struct{}
	Err() error
	Cancel()
}

// Speaker turns text into audible speech on the client. Speak returns as
// soon as playback starts; completion is signaled through the Utterance.
type Speaker interface {
	Speak(ctx context.Context, text string) (Utterance, error)
}

type speechItem struct {
	id     string
	text   string
	urgent bool
}

// SpeechQueue serializes spoken guidance. One utterance plays at a time
// with a short gap between them; urgent speech flushes everything queued
// and interrupts the current utterance. A watchdog timeout bounds any
// single utterance so a client that never acks cannot wedge the queue.
type SpeechQueue struct {
	cfg     Config
	speaker Speaker
	emit    func(Event)

	mu            sync.Mutex
	queue         []speechItem
	speaking      bool
	currentText   string
	cancelCurrent context.CancelFunc
	closed        bool

	wake chan struct{}
	done chan struct{}
}

// NewSpeechQueue starts the playback goroutine. Close must be called to
// stop it. emit may be nil.
func NewSpeechQueue(cfg Config, speaker Speaker, emit func(Event)) *SpeechQueue {
	if emit == nil {
		emit = func(Event) {}
	}
	q := &SpeechQueue{
		cfg:     cfg,
		speaker: speaker,
		emit:    emit,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends text to the queue. Text identical to the tail of the
// queue, or to what is playing right now, is dropped.
func (q *SpeechQueue) Enqueue(text string) {
	if text == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.speaking && q.currentText == text {
		return
	}
	if n := len(q.queue); n > 0 && q.queue[n-1].text == text {
		return
	}
	q.queue = append(q.queue, speechItem{id: uuid.NewString(), text: text})
	q.kick()
}

// EnqueueUrgent drops everything queued, interrupts the current
// utterance, and plays text next. Used for safety warnings.
func (q *SpeechQueue) EnqueueUrgent(text string) {
	if text == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.queue = []speechItem{{id: uuid.NewString(), text: text, urgent: true}}
	if q.cancelCurrent != nil {
		q.cancelCurrent()
	}
	q.kick()
}

// Flush drops all queued speech and interrupts the current utterance.
func (q *SpeechQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = nil
	if q.cancelCurrent != nil {
		q.cancelCurrent()
	}
}

// Idle reports whether nothing is playing or queued. The watchdog
// timeout guarantees this eventually turns true even with a dead client.
func (q *SpeechQueue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.speaking && len(q.queue) == 0
}

// Close stops the playback goroutine and interrupts any current
// utterance. Safe to call more than once.
func (q *SpeechQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.queue = nil
	if q.cancelCurrent != nil {
		q.cancelCurrent()
	}
	q.mu.Unlock()
	close(q.done)
}

// kick wakes the run loop. Callers hold q.mu.
func (q *SpeechQueue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *SpeechQueue) run() {
	for {
		item, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}

		q.play(item)

		if gap := q.cfg.SpeechGap(); gap > 0 {
			select {
			case <-time.After(gap):
			case <-q.done:
				return
			}
		}
	}
}

func (q *SpeechQueue) pop() (speechItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return speechItem{}, false
	}
	item := q.queue[0]
	q.queue = q.queue[1:]
	q.speaking = true
	q.currentText = item.text
	return item, true
}

func (q *SpeechQueue) play(item speechItem) {
	ctx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	q.cancelCurrent = cancel
	q.mu.Unlock()

	defer func() {
		cancel()
		q.mu.Lock()
		q.speaking = false
		q.currentText = ""
		q.cancelCurrent = nil
		q.mu.Unlock()
	}()

	u, err := q.speaker.Speak(ctx, item.text)
	if err != nil {
		q.emit(&DebugEvent{Category: "SPEECH", Message: "speak failed: " + err.Error()})
		return
	}
	q.emit(&SpeechStartedEvent{ID: item.id, Text: item.text, Urgent: item.urgent})

	timeout := time.NewTimer(q.cfg.SpeechTimeout())
	defer timeout.Stop()

	timedOut := false
	select {
	case <-u.Done():
	case <-timeout.C:
		timedOut = true
		u.Cancel()
	case <-ctx.Done():
		u.Cancel()
	case <-q.done:
		u.Cancel()
	}
	q.emit(&SpeechEndedEvent{ID: item.id, TimedOut: timedOut})
}
