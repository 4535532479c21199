// Package collect implements the result-collection engine: plugin dispatch
// with prefix routing, concurrent evaluation with cooperative cancellation,
// and rate-limited incremental delivery of ranked result batches.
package collect

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/perchrun/perch/internal/log"
	"github.com/perchrun/perch/internal/match"
)

// DefaultSnapshotInterval is the cadence at which a still-running cycle
// emits intermediate result batches.
const DefaultSnapshotInterval = 200 * time.Millisecond

// Runner is the contract the collector requires from a plugin. Plugins
// append entries to the sink and are expected to observe its cancellation
// flag cooperatively; the passed context is cancelled when the cycle is
// abandoned.
type Runner interface {
	Prefix() string
	GetForValues(ctx context.Context, input *match.Input, sink *TaggedSink)
}

// Message is a collector-to-caller notification.
type Message interface{ isMessage() }

// Ready hands the caller its control handle. Emitted once per session.
type Ready struct{ Controller *Controller }

// Finished carries a ranked result batch. Each batch fully replaces the
// previously displayed list; it is never a delta.
type Finished struct{ Entries []GenericEntry }

func (Ready) isMessage()    {}
func (Finished) isMessage() {}

// startAction is a control message; a nil start means Stop.
type startAction struct {
	plugins []Runner
	query   string
	cancel  *atomic.Bool
}

type action struct {
	start *startAction
}

// Collector owns the plugin list for one session and runs collection cycles
// on its own goroutine, isolated from the UI so slow plugin I/O never stalls
// rendering. Communication crosses the boundary only through channels and
// the sink's cancellation flag.
type Collector struct {
	actions       chan action
	out           chan Message
	snapshotEvery time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

// NewCollector creates a collector session. snapshotEvery bounds how often a
// still-running cycle re-emits results; zero selects the default.
func NewCollector(snapshotEvery time.Duration) *Collector {
	if snapshotEvery <= 0 {
		snapshotEvery = DefaultSnapshotInterval
	}
	return &Collector{
		actions:       make(chan action, 20),
		out:           make(chan Message, 32),
		snapshotEvery: snapshotEvery,
		logger:        log.WithComponent("collect"),
		done:          make(chan struct{}),
	}
}

// Messages returns the outbound message stream. It is closed when the
// session ends.
func (c *Collector) Messages() <-chan Message {
	return c.out
}

// Start launches the session goroutine. The Ready message with the session's
// controller is the first message emitted.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.out)
	defer close(c.done)

	ctrl := &Controller{
		actions: c.actions,
		done:    c.done,
		cancel:  &atomic.Bool{},
		logger:  c.logger,
	}
	// The out channel is freshly buffered, this send cannot block.
	c.out <- Ready{Controller: ctrl}

	var pending *action
	for {
		var act action
		if pending != nil {
			act, pending = *pending, nil
		} else {
			select {
			case <-ctx.Done():
				c.logger.Debug("session context cancelled, stopping result collection")
				return
			case a, ok := <-c.actions:
				if !ok {
					c.logger.Debug("control channel closed, stopping result collection")
					return
				}
				act = a
			}
		}
		if act.start == nil {
			// Stop with no cycle in flight.
			continue
		}
		next, ok := c.collect(ctx, act.start)
		if !ok {
			return
		}
		pending = next
	}
}

// collect runs one collection cycle. It returns the control message that
// preempted the cycle, if any, and ok=false when the session should end.
func (c *Collector) collect(ctx context.Context, start *startAction) (*action, bool) {
	logger := c.logger.With(slog.String("cycle_id", uuid.NewString()))
	logger.Debug("starting collection cycle", "query", start.query)

	sink := NewSink(start.cancel)
	pctx, cancelPlugins := context.WithCancel(ctx)
	defer cancelPlugins()

	input, runners, base := route(start.plugins, start.query)

	var wg sync.WaitGroup
	for i, r := range runners {
		wg.Add(1)
		go func(id int, r Runner) {
			defer wg.Done()
			defer func() {
				// A panicking plugin must not corrupt the session.
				if rec := recover(); rec != nil {
					logger.Error("plugin panicked during evaluation", "plugin", id, "panic", rec)
				}
			}()
			r.GetForValues(pctx, input, NewTaggedSink(id, sink))
		}(base+i, r)
	}

	evaluated := make(chan struct{})
	go func() {
		wg.Wait()
		close(evaluated)
	}()

	ticker := time.NewTicker(c.snapshotEvery)
	defer ticker.Stop()

	lastCount := 0
	for {
		select {
		case <-ctx.Done():
			start.cancel.Store(true)
			return nil, false

		case a, ok := <-c.actions:
			// A new Start or Stop supersedes this cycle: make the sink
			// write-inert and abandon the in-flight plugin goroutines.
			start.cancel.Store(true)
			if !ok {
				c.logger.Debug("control channel closed, abandoning cycle")
				return nil, false
			}
			logger.Debug("cycle superseded by new control message")
			return &a, true

		case <-evaluated:
			entries := sink.TakeAll()
			rank(entries)
			logger.Debug("cycle finished", "entries", len(entries))
			c.emit(Finished{Entries: entries}, logger)
			return nil, true

		case <-ticker.C:
			// Progressive delivery: only re-emit when something new
			// accumulated since the last emission.
			if n := sink.Len(); n != lastCount {
				lastCount = n
				entries := sink.Snapshot()
				rank(entries)
				c.emit(Finished{Entries: entries}, logger)
			}
		}
	}
}

// route decides between prefix-routed and fan-out dispatch. It returns the
// shared matcher input, the runners to dispatch, and the plugin index of the
// first runner.
func route(plugins []Runner, query string) (*match.Input, []Runner, int) {
	for i, p := range plugins {
		pfx := p.Prefix()
		if pfx != "" && strings.HasPrefix(query, pfx) {
			return match.New(query[len(pfx):], true), plugins[i : i+1], i
		}
	}
	return match.New(query, false), plugins, 0
}

// rank is a single-key stable partition: perfect matches sort strictly
// before all others, insertion order is preserved otherwise.
func rank(entries []GenericEntry) {
	slices.SortStableFunc(entries, func(a, b GenericEntry) int {
		switch {
		case a.PerfectMatch == b.PerfectMatch:
			return 0
		case a.PerfectMatch:
			return -1
		default:
			return 1
		}
	})
}

// emit delivers a message without blocking the cycle loop. A full channel
// means the frontend is not keeping up; the batch is dropped since the next
// snapshot supersedes it (entries only accumulate).
func (c *Collector) emit(msg Message, logger *slog.Logger) {
	select {
	case c.out <- msg:
	default:
		logger.Debug("frontend is not responding, dropping result batch")
	}
}
