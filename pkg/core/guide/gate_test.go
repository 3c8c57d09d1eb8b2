package guide

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestResponseGateCheck(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate := ResponseGate{FreezeWindow: 3 * time.Second}

	tests := []struct {
		name       string
		respGen    uint64
		curGen     uint64
		respStep   int
		curStep    int
		sinceStep  time.Duration
		wantAdmit  bool
		wantReason string
	}{
		{"fresh", 5, 5, 2, 2, 10 * time.Second, true, ""},
		{"old generation", 4, 5, 2, 2, 10 * time.Second, false, DropGeneration},
		{"future generation", 6, 5, 2, 2, 10 * time.Second, false, DropGeneration},
		{"old step", 5, 5, 1, 2, 10 * time.Second, false, DropStep},
		{"inside freeze window", 5, 5, 2, 2, time.Second, false, DropFreezeWindow},
		{"at window edge", 5, 5, 2, 2, 3 * time.Second, true, ""},
		{"generation reported before step", 4, 5, 1, 2, 10 * time.Second, false, DropGeneration},
		{"step reported before freeze", 5, 5, 1, 2, time.Second, false, DropStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, admit := gate.Check(tt.respGen, tt.curGen, tt.respStep, tt.curStep, base, base.Add(tt.sinceStep))
			if admit != tt.wantAdmit {
				t.Fatalf("admit = %v, want %v", admit, tt.wantAdmit)
			}
			if reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestResponseGateZeroWindow(t *testing.T) {
	gate := ResponseGate{}
	now := time.Now()
	if reason, admit := gate.Check(1, 1, 0, 0, now, now); !admit {
		t.Fatalf("zero freeze window should admit, got reason %q", reason)
	}
}

func TestResponseGateZeroLastAdvance(t *testing.T) {
	gate := ResponseGate{FreezeWindow: 3 * time.Second}
	if reason, admit := gate.Check(1, 1, 0, 0, time.Time{}, time.Now()); !admit {
		t.Fatalf("unset lastAdvance should not trip the freeze window, got reason %q", reason)
	}
}

// A mismatched generation or step index is never admitted, no matter what
// the clock says.
func TestResponseGateNeverAdmitsStale(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gate := ResponseGate{FreezeWindow: time.Duration(rapid.Int64Range(0, 10_000).Draw(t, "windowMs")) * time.Millisecond}
		curGen := rapid.Uint64Range(0, 1000).Draw(t, "curGen")
		respGen := rapid.Uint64Range(0, 1000).Draw(t, "respGen")
		curStep := rapid.IntRange(0, 50).Draw(t, "curStep")
		respStep := rapid.IntRange(0, 50).Draw(t, "respStep")
		last := time.Unix(rapid.Int64Range(0, 1<<30).Draw(t, "last"), 0)
		now := last.Add(time.Duration(rapid.Int64Range(-5000, 60_000).Draw(t, "elapsedMs")) * time.Millisecond)

		reason, admit := gate.Check(respGen, curGen, respStep, curStep, last, now)
		if (respGen != curGen || respStep != curStep) && admit {
			t.Fatalf("admitted stale response: gen %d/%d step %d/%d", respGen, curGen, respStep, curStep)
		}
		if admit && reason != "" {
			t.Fatalf("admitted with reason %q", reason)
		}
		if !admit && reason == "" {
			t.Fatal("dropped without a reason")
		}
	})
}
