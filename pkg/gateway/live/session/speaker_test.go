package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/protocol"
)

func collectFrames(frames *[]outboundFrame) func(outboundFrame) bool {
	return func(f outboundFrame) bool {
		*frames = append(*frames, f)
		return true
	}
}

func TestWSSpeaker_SpeakCompletesOnAck(t *testing.T) {
	var sent []outboundFrame
	s := newWSSpeaker(collectFrames(&sent))

	u, err := s.Speak(context.Background(), "turn off the water valve")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if len(sent) != 1 || !sent[0].isSpeech {
		t.Fatalf("expected one speech frame, got %#v", sent)
	}

	var frame protocol.ServerSpeak
	if err := json.Unmarshal(sent[0].payload, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.UtteranceID == "" || frame.Text != "turn off the water valve" {
		t.Fatalf("bad speak frame: %+v", frame)
	}

	select {
	case <-u.Done():
		t.Fatalf("utterance finished before ack")
	default:
	}

	s.ack(frame.UtteranceID, "finished")
	select {
	case <-u.Done():
	case <-time.After(time.Second):
		t.Fatalf("utterance never finished after ack")
	}
	if u.Err() != nil {
		t.Fatalf("err=%v, want nil", u.Err())
	}
}

func TestWSSpeaker_FailedAckSurfacesError(t *testing.T) {
	var sent []outboundFrame
	s := newWSSpeaker(collectFrames(&sent))

	u, err := s.Speak(context.Background(), "hold the fitting steady")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	s.ack(sent[0].utteranceID, "failed")

	<-u.Done()
	if u.Err() == nil {
		t.Fatalf("expected playback error")
	}
}

func TestWSSpeaker_CancelMarksAndNotifies(t *testing.T) {
	var sent []outboundFrame
	s := newWSSpeaker(collectFrames(&sent))

	u, err := s.Speak(context.Background(), "slow instruction")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	id := sent[0].utteranceID

	u.Cancel()

	<-u.Done()
	if !errors.Is(u.Err(), errUtteranceCancelled) {
		t.Fatalf("err=%v, want cancelled", u.Err())
	}
	if !s.isCanceled(id) {
		t.Fatalf("writer should see the utterance as cancelled")
	}
	if len(sent) != 2 {
		t.Fatalf("expected a speech_cancel frame, got %d frames", len(sent))
	}
	var cancelFrame protocol.ServerSpeechCancel
	if err := json.Unmarshal(sent[1].payload, &cancelFrame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cancelFrame.UtteranceID != id {
		t.Fatalf("cancel frame for %q, want %q", cancelFrame.UtteranceID, id)
	}

	// A late ack for a cancelled utterance is a no-op.
	s.ack(id, "finished")
}

func TestWSSpeaker_SendFailureReturnsError(t *testing.T) {
	s := newWSSpeaker(func(outboundFrame) bool { return false })

	if _, err := s.Speak(context.Background(), "anything"); err == nil {
		t.Fatalf("expected error when the channel is closed")
	}
}

func TestWSSpeaker_CloseAllFailsPending(t *testing.T) {
	var sent []outboundFrame
	s := newWSSpeaker(collectFrames(&sent))

	u1, _ := s.Speak(context.Background(), "one")
	u2, _ := s.Speak(context.Background(), "two")

	s.closeAll()

	<-u1.Done()
	<-u2.Done()
	if u1.Err() == nil || u2.Err() == nil {
		t.Fatalf("pending utterances should fail on close")
	}
}
