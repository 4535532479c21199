package collect

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Controller is the caller's handle onto a collector session. Start begins a
// new collection cycle, implicitly cancelling any prior one; Stop cancels
// explicitly. Both are safe for concurrent use.
type Controller struct {
	actions chan<- action
	done    <-chan struct{}
	logger  *slog.Logger

	mu     sync.Mutex
	cancel *atomic.Bool
}

// Start begins a collection cycle for query against plugins. It returns
// false only if the session is gone; an enqueue failure on a full-but-open
// channel is logged as a serious condition but does not fail the call, since
// the collector always has room for a pending control message by
// construction.
func (c *Controller) Start(plugins []Runner, query string) bool {
	c.Stop()

	fresh := &atomic.Bool{}
	c.mu.Lock()
	c.cancel = fresh
	c.mu.Unlock()

	if c.disconnected() {
		c.logger.Debug("failed to start a collection cycle: session is gone")
		return false
	}
	select {
	case c.actions <- action{start: &startAction{plugins: plugins, query: query, cancel: fresh}}:
	default:
		c.logger.Error("failed to start a collection cycle: control channel full (this is very bad)")
	}
	return true
}

// Stop sets the current cycle's cancellation flag and sends a Stop control
// message. It is idempotent: a second call observes the already-set flag and
// does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	flag := c.cancel
	c.mu.Unlock()

	if !flag.CompareAndSwap(false, true) {
		return
	}
	if c.disconnected() {
		// The other end already exited; nothing left to stop.
		c.logger.Debug("failed to stop a collection cycle: session is gone")
		return
	}
	select {
	case c.actions <- action{}:
	default:
		c.logger.Error("failed to stop the collection cycle: control channel full (this is extremely bad)")
	}
}

func (c *Controller) disconnected() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
