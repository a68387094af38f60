// Package observe defines the external trace primitive this module
// consumes but does not implement: the OS/runtime collaborator that
// delivers a traced process's lifecycle and message events to whichever
// tracer currently owns direct observation of it.
//
// This package is the adaptation of the teacher's trace package
// (trace/event.go, trace/recorder.go, trace/state.go): where the teacher's
// Recorder forwarded archetype read/write events to a vector-clock-stamped
// log, observe.Source hands raw process events to whichever tracer is
// currently observing, and Registry is the in-memory fake standing in for
// the real OS/runtime primitive in tests and the bundled example.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sltsclo/detecter/event"
)

// ErrAlreadyExited names the outcome of preempting a process that has
// already exited — a normal, non-fatal outcome (spec.md §6, §7.4).
// Registry.Preempt reports that outcome as (false, nil) and does not
// return this error.
var ErrAlreadyExited = errors.New("process already exited")

// Source is the external trace primitive: begin delivering a process's
// events (Trace), or transfer delivery of its events to the caller
// (Preempt).
type Source interface {
	// Trace begins delivering lifecycle and message events of p (and,
	// transitively, spawned descendants) to sink until superseded by a
	// later Trace or Preempt call naming p.
	Trace(ctx context.Context, p event.ProcessID, sink chan<- event.Event) error

	// Preempt transfers delivery of p's events to sink. It returns
	// (false, nil) if p has already exited — normal, non-fatal.
	Preempt(ctx context.Context, p event.ProcessID, sink chan<- event.Event) (bool, error)
}

type observer struct {
	sink   chan<- event.Event
	exited bool
}

// Registry is a goroutine-safe, in-memory fake Source. Tests and the
// bundled example use it to stand in for the real runtime trace primitive;
// it is not meant to survive process restart (no SPEC_FULL.md component
// persists state).
type Registry struct {
	mu        sync.Mutex
	observers map[event.ProcessID]*observer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{observers: make(map[event.ProcessID]*observer)}
}

// Trace implements Source.
func (r *Registry) Trace(_ context.Context, p event.ProcessID, sink chan<- event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[p] = &observer{sink: sink}
	return nil
}

// Preempt implements Source.
func (r *Registry) Preempt(_ context.Context, p event.ProcessID, sink chan<- event.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obs, ok := r.observers[p]
	if ok && obs.exited {
		return false, nil
	}
	r.observers[p] = &observer{sink: sink}
	return true, nil
}

// Observed reports whether some sink is currently registered for p, for
// test introspection — e.g. waiting out the asynchronous ownership handoff
// before delivering a process's next event.
func (r *Registry) Observed(p event.ProcessID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.observers[p]
	return ok
}

// Deliver hands ev to whichever sink currently owns observation of its
// source process. It is the test/example-harness equivalent of the real
// runtime generating a trace event. Delivering an Exit event marks the
// process as exited, so a subsequent Preempt correctly reports false.
func (r *Registry) Deliver(ev event.Event) error {
	r.mu.Lock()
	obs, ok := r.observers[ev.Source]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("observe: no observer registered for %s", ev.Source)
	}
	if ev.Kind == event.Exit {
		obs.exited = true
	}
	sink := obs.sink
	r.mu.Unlock()
	sink <- ev
	return nil
}
