// Package stats holds the per-tracer event counters folded into a
// tracer's exit signal when it garbage-collects itself.
package stats

import "github.com/sltsclo/detecter/event"

// Counters is six non-negative counts: one per recognized event kind, plus
// an "other" bucket for any event kind this module does not recognize.
// Owned by exactly one tracer goroutine at a time, so plain (non-atomic)
// fields are sufficient.
type Counters struct {
	Spawn   uint64
	Exit    uint64
	Send    uint64
	Receive uint64
	Spawned uint64
	Other   uint64
}

// Add increments the counter matching ev.Kind.
func (c *Counters) Add(ev event.Event) {
	switch ev.Kind {
	case event.Spawn:
		c.Spawn++
	case event.Exit:
		c.Exit++
	case event.Send:
		c.Send++
	case event.Receive:
		c.Receive++
	case event.Spawned:
		c.Spawned++
	default:
		c.Other++
	}
}

// Total returns the sum of all six counters.
func (c Counters) Total() uint64 {
	return c.Spawn + c.Exit + c.Send + c.Receive + c.Spawned + c.Other
}
