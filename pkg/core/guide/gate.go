package guide

import "time"

// Drop reasons reported on StaleResponseDroppedEvent.
const (
	DropGeneration   = "generation"
	DropStep         = "step"
	DropFreezeWindow = "freeze_window"
)

// ResponseGate decides whether an in-flight analysis response may still
// drive the session once it finally arrives. Responses carry the
// generation and step index they were dispatched under; both must still
// be current, and the response must land outside the freeze window that
// follows a step advance. The gate is pure and holds no locks.
type ResponseGate struct {
	FreezeWindow time.Duration
}

// Check reports whether a response stamped (respGen, respStep) is still
// admissible against the current (curGen, curStep). When it is not, the
// first failing check names the drop reason: generation, then step, then
// the freeze window.
func (g ResponseGate) Check(respGen, curGen uint64, respStep, curStep int, lastAdvance, now time.Time) (reason string, admit bool) {
	if respGen != curGen {
		return DropGeneration, false
	}
	if respStep != curStep {
		return DropStep, false
	}
	if g.FreezeWindow > 0 && !lastAdvance.IsZero() && now.Sub(lastAdvance) < g.FreezeWindow {
		return DropFreezeWindow, false
	}
	return "", true
}

// AdmitResponse runs the gate against the machine's current context.
// Callers must hold the lock that serializes Apply.
func (m *Machine) AdmitResponse(respGen uint64, respStep int) (reason string, admit bool) {
	gate := ResponseGate{FreezeWindow: m.cfg.FreezeWindow()}
	return gate.Check(respGen, m.ctx.Generation, respStep, m.ctx.StepIndex, m.ctx.LastAdvance, m.now())
}
