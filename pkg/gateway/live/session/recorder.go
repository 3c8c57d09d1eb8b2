package session

import (
	"context"
	"time"
)

// HistoryStart describes a session at the moment it begins.
type HistoryStart struct {
	SessionID string
	Principal string
	Category  string
	Problem   string
	StartedAt time.Time
}

// HistoryEnd describes a session at the moment it terminates.
type HistoryEnd struct {
	SessionID      string
	Reason         string
	StepsCompleted int
	TotalSteps     int
	PlanRevision   int
	Substitutions  int
	EndedAt        time.Time
}

// Recorder persists session history. A nil Recorder disables history;
// implementations must be safe for concurrent use. Recording failures are
// logged, never surfaced to the client.
type Recorder interface {
	SessionStarted(ctx context.Context, start HistoryStart) error
	StepAdvanced(ctx context.Context, sessionID string, stepIndex, planRevision int) error
	SessionEnded(ctx context.Context, end HistoryEnd) error
}
