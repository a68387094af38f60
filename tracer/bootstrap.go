package tracer

import (
	"context"
	"sync"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/instrument"
	"github.com/sltsclo/detecter/observe"
)

var (
	registryMu sync.Mutex
	registry   = make(map[ID]*Tracer)
)

func register(t *Tracer) {
	registryMu.Lock()
	registry[t.id] = t
	registryMu.Unlock()
}

func unregister(id ID) {
	registryMu.Lock()
	delete(registry, id)
	registryMu.Unlock()
}

// Lookup returns the tracer registered under id, for test introspection.
func Lookup(id ID) (*Tracer, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	t, ok := registry[id]
	return t, ok
}

// LookupTraced scans every registered tracer for one directly tracing p,
// for test introspection. Unlike polling a routing-table entry, which a
// detach can remove the instant it is created, a process's membership in
// its owning tracer's traced set is stable from the moment that tracer is
// constructed, so this is safe to poll without a race against cleanup —
// and Inspect itself tolerates a tracer that garbage-collects between
// this function's registry snapshot and the Inspect call reaching it.
func LookupTraced(p event.ProcessID) (*Tracer, bool) {
	registryMu.Lock()
	tracers := make([]*Tracer, 0, len(registry))
	for _, t := range registry {
		tracers = append(tracers, t)
	}
	registryMu.Unlock()

	for _, t := range tracers {
		if _, ok := t.Inspect().Traced[p]; ok {
			return t, true
		}
	}
	return nil, false
}

// Stop releases the auxiliary lookup table Start (and every spawned
// descendant) populates for test introspection via Lookup. It has no
// effect on any already-running tracer — a tracer only ever terminates by
// garbage-collecting itself (spec.md §4.2.4); stop() is purely the test
// cleanup hook named in spec.md §6.
func Stop() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[ID]*Tracer)
}

// Start creates the root tracer of a new choreography: it immediately owns
// rootProcess in direct mode (there is no ancestor to hand off ownership
// from) and has no analyzer handle of its own (spec.md §4.2). It begins
// delivering rootProcess's events via source.Trace, and reports its own
// termination to supervisor once its own traced set and routing table are
// both empty. It does not wait for its descendants: each descendant
// garbage-collects on its own and reports to the tracer that spawned it.
//
// Start returns the root tracer's identity; Lookup(id) retrieves the
// *Tracer for test introspection.
func Start(source observe.Source, predicate instrument.Predicate, kind AnalysisKind, rootProcess event.ProcessID, supervisor Supervisor, opts ...Option) (ID, error) {
	t := newTracer(predicate, kind, source, supervisor, opts...)
	t.mode = ModeDirect
	t.traced[rootProcess] = ModeDirect
	if err := source.Trace(context.Background(), rootProcess, t.extEventCh); err != nil {
		unregister(t.id)
		return t.id, err
	}
	go t.runLoop()
	return t.id, nil
}
