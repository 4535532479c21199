package collect

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/perchrun/perch/internal/log"
)

// Once runs a single collection cycle to completion and returns the final
// ranked batch. It is the non-interactive entry point used by the control
// API; dispatch and routing semantics are identical to a session cycle, but
// there is no progressive delivery and no supersession, only ctx
// cancellation.
func Once(ctx context.Context, plugins []Runner, query string) ([]GenericEntry, error) {
	logger := log.WithCycle(uuid.NewString())
	logger.Debug("starting one-shot collection", "query", query)

	var stop atomic.Bool
	sink := NewSink(&stop)
	pctx, cancelPlugins := context.WithCancel(ctx)
	defer cancelPlugins()

	input, runners, base := route(plugins, query)

	var wg sync.WaitGroup
	for i, r := range runners {
		wg.Add(1)
		go func(id int, r Runner) {
			defer wg.Done()
			defer func() {
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

	select {
	case <-ctx.Done():
		stop.Store(true)
		return nil, ctx.Err()
	case <-evaluated:
		entries := sink.TakeAll()
		rank(entries)
		logger.Debug("one-shot collection finished", "entries", len(entries))
		return entries, nil
	}
}
