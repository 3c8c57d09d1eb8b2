package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fixpilot-ai/fixpilot/pkg/core"
	"github.com/fixpilot-ai/fixpilot/pkg/core/guide"
	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// stubProviders satisfies all four provider interfaces with canned
// responses; bridge tests never drive a real analysis loop.
type stubProviders struct{}

func (stubProviders) GeneratePlan(ctx context.Context, req *types.PlanRequest) (*types.RepairPlan, error) {
	return &types.RepairPlan{Steps: []types.RepairStep{{Instruction: "tighten the fitting"}}}, nil
}

func (stubProviders) Analyze(ctx context.Context, req *types.GuidanceRequest) (*types.GuidanceResponse, error) {
	return &types.GuidanceResponse{}, nil
}

func (stubProviders) Answer(ctx context.Context, req *types.QuestionRequest) (*types.Answer, error) {
	return &types.Answer{Text: "counter-clockwise"}, nil
}

func (stubProviders) FindSubstitute(ctx context.Context, req *types.SubstituteRequest) (*types.SubstituteResult, error) {
	return &types.SubstituteResult{Found: false}, nil
}

func newTestBridge(t *testing.T, rec Recorder) *Bridge {
	t.Helper()
	stub := stubProviders{}
	b, err := New(Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Providers: core.Providers{
			Plan:       stub,
			Guidance:   stub,
			Answer:     stub,
			Substitute: stub,
		},
		Engine:   guide.DefaultConfig(),
		Recorder: rec,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.engine.Close)
	return b
}

func TestSendsDuringTeardownDoNotPanic(t *testing.T) {
	b := newTestBridge(t, nil)

	drainDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-b.priorityCh:
			case <-b.normalCh:
			case <-drainDone:
				return
			}
		}
	}()

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 200; j++ {
				b.send(outboundFrame{payload: []byte(`{"type":"event"}`)}, false)
				_ = b.SendWarning("overloaded", "server busy")
			}
		}()
	}

	close(start)
	b.closeSend()
	wg.Wait()
	close(drainDone)

	if b.send(outboundFrame{payload: []byte(`{}`)}, true) {
		t.Fatal("send after close should report a drop")
	}
	if b.send(outboundFrame{payload: []byte(`{}`)}, false) {
		t.Fatal("normal send after close should report a drop")
	}
}

type recordSink struct {
	advanced chan [2]int
}

func (r *recordSink) SessionStarted(ctx context.Context, start HistoryStart) error { return nil }

func (r *recordSink) StepAdvanced(ctx context.Context, sessionID string, stepIndex, planRevision int) error {
	r.advanced <- [2]int{stepIndex, planRevision}
	return nil
}

func (r *recordSink) SessionEnded(ctx context.Context, end HistoryEnd) error { return nil }

func TestStepHistoryCarriesPlanRevision(t *testing.T) {
	rec := &recordSink{advanced: make(chan [2]int, 1)}
	b := newTestBridge(t, rec)

	b.observeEvent(&guide.StepAdvancedEvent{StepIndex: 2, TotalSteps: 4, PlanRevision: 3, Method: "auto"})

	select {
	case got := <-rec.advanced:
		if got != [2]int{2, 3} {
			t.Fatalf("recorded step/revision = %v, want [2 3]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("step advance never recorded")
	}
}
