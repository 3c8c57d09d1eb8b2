package guide

import (
	"context"
	"time"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// The substitute scan is a secondary loop: while the user sweeps their
// camera around the workspace, each interval grabs a frame and asks the
// substitute finder whether anything in view could replace the missing
// item. It stops on the first hit, after the attempt budget, or when the
// machine leaves the search state.

func (s *Session) startSubstituteScan(item string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subCancel != nil {
		s.subCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.subCancel = cancel
	go s.runSubstituteScan(ctx, item)
}

func (s *Session) stopSubstituteScan() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subCancel != nil {
		s.subCancel()
		s.subCancel = nil
	}
}

func (s *Session) runSubstituteScan(ctx context.Context, item string) {
	ticker := time.NewTicker(s.cfg.SubstituteScanInterval())
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		result := s.substituteAttempt(ctx, item)
		if ctx.Err() != nil {
			return
		}
		if result != nil && result.Found {
			_ = s.Dispatch(ActionSubstituteFound{Result: result})
			return
		}
		if attempts >= s.cfg.SubstituteMaxAttempts {
			_ = s.Dispatch(ActionSubstituteExhausted{Attempts: attempts})
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) substituteAttempt(ctx context.Context, item string) *types.SubstituteResult {
	frameCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	frame, err := s.frames.Capture(frameCtx)
	cancel()
	if err != nil {
		s.logger.Debug("substitute frame capture failed", "error", err)
		return nil
	}

	s.mu.Lock()
	mctx := s.machine.Context()
	req := &types.SubstituteRequest{
		Frame:       frame,
		MissingItem: item,
		Category:    mctx.Category,
		Instruction: mctx.CurrentStep().Instruction,
	}
	if mctx.Constraints != nil {
		req.BannedItems = mctx.Constraints.Banned()
	}
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result, err := s.providers.Substitute.FindSubstitute(callCtx, req)
	if err != nil {
		s.logger.Warn("substitute lookup failed", "item", item, "error", err)
		return nil
	}
	return result
}
