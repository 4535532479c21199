package collect

import (
	"iter"
	"sync"
	"sync/atomic"
)

// Sink is the shared, cancellation-aware result accumulator for one
// collection cycle. All dispatched plugins append to it concurrently; the
// collector drains or clones it between ticks.
type Sink struct {
	mu      sync.Mutex
	entries []GenericEntry
	stop    *atomic.Bool
}

// NewSink creates a sink bound to the cycle's shared cancellation flag.
func NewSink(stop *atomic.Bool) *Sink {
	return &Sink{stop: stop}
}

// Commit appends entries one at a time, checking the cancellation flag
// before taking the lock and again after every individual append. It returns
// false, and stops appending, the first time cancellation is observed. This
// per-element check is what makes plugins committing unbounded iterators
// preemptible mid-stream.
func (s *Sink) Commit(entries iter.Seq[GenericEntry]) bool {
	if s.stop.Load() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := true
	for e := range entries {
		// Checked between every element so a cancellation mid-batch never
		// leaks a partial batch past the check.
		if s.stop.Load() {
			return false
		}
		s.entries = append(s.entries, e)
		if s.stop.Load() {
			ok = false
			break
		}
	}
	return ok
}

// ShouldStop is a fast advisory read of the cancellation flag, for plugins
// that want to self-abort expensive work between units.
func (s *Sink) ShouldStop() bool {
	return s.stop.Load()
}

// Len returns the number of accumulated entries.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot clones the accumulated entries for a mid-cycle emission.
func (s *Sink) Snapshot() []GenericEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GenericEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// TakeAll moves the accumulated entries out of the sink at end of cycle.
func (s *Sink) TakeAll() []GenericEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.entries
	s.entries = nil
	return out
}

// TaggedSink is a per-plugin view onto the shared sink. It stamps the
// plugin's index on every entry so the aggregate stream stays attributable
// without plugins knowing their own position.
type TaggedSink struct {
	plugin int
	sink   *Sink
}

// NewTaggedSink wraps sink for the plugin at index plugin.
func NewTaggedSink(plugin int, sink *Sink) *TaggedSink {
	return &TaggedSink{plugin: plugin, sink: sink}
}

// Add commits a single entry. It returns false if the plugin should stop
// adding entries.
func (t *TaggedSink) Add(e Entry) bool {
	return t.sink.Commit(func(yield func(GenericEntry) bool) {
		yield(GenericEntry{Entry: e, Plugin: t.plugin})
	})
}

// Commit appends every entry produced by entries, tagged with the plugin's
// index. It returns false if the plugin should stop adding entries.
func (t *TaggedSink) Commit(entries iter.Seq[Entry]) bool {
	return t.sink.Commit(func(yield func(GenericEntry) bool) {
		for e := range entries {
			if !yield(GenericEntry{Entry: e, Plugin: t.plugin}) {
				return
			}
		}
	})
}

// ShouldStop reports whether the cycle was cancelled.
func (t *TaggedSink) ShouldStop() bool {
	return t.sink.ShouldStop()
}
