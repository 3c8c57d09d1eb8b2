package session

import (
	"context"
	"sync"

	"github.com/fixpilot-ai/fixpilot/pkg/core/types"
)

// frameCache holds the most recent camera frame pushed by the client and
// hands it to the engine on demand. Capture blocks until at least one
// frame has arrived; after that it always returns the latest.
type frameCache struct {
	mu      sync.Mutex
	latest  *types.Frame
	arrived chan struct{}
}

func newFrameCache() *frameCache {
	return &frameCache{arrived: make(chan struct{})}
}

func (c *frameCache) Set(frame types.Frame) {
	c.mu.Lock()
	first := c.latest == nil
	c.latest = &frame
	c.mu.Unlock()
	if first {
		close(c.arrived)
	}
}

// Capture implements guide.FrameSource.
func (c *frameCache) Capture(ctx context.Context) (types.Frame, error) {
	c.mu.Lock()
	if c.latest != nil {
		frame := *c.latest
		c.mu.Unlock()
		return frame, nil
	}
	arrived := c.arrived
	c.mu.Unlock()

	select {
	case <-arrived:
	case <-ctx.Done():
		return types.Frame{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return types.Frame{}, context.Canceled
	}
	return *c.latest, nil
}
