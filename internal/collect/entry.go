package collect

import "fmt"

// Entry is one candidate result as a plugin produces it. The Data payload is
// opaque to everything but the plugin that created the entry.
type Entry struct {
	Name     string
	Subtitle string
	Data     Data
	// PerfectMatch pins the entry before all non-perfect entries when a
	// batch is ranked.
	PerfectMatch bool
}

// GenericEntry is the collector-facing view of an Entry, stamped with the
// index of the owning plugin in the cycle's plugin list.
type GenericEntry struct {
	Entry
	Plugin int
}

// Data is a type-erased payload attached to an entry, interpretable only by
// the plugin that owns it.
type Data struct {
	value any
}

// NewData boxes v.
func NewData(v any) Data {
	return Data{value: v}
}

// As unboxes d as T. A mismatched type is a plugin wiring bug, not a runtime
// condition, so it panics rather than failing silently.
func As[T any](d Data) T {
	v, ok := d.value.(T)
	if !ok {
		panic(fmt.Sprintf("collect: custom data holds %T, not %T (plugin wiring bug)", d.value, *new(T)))
	}
	return v
}
