// Package analyzer implements the monitor small-step reduction engine: it
// drives a monitor term on one external event at a time, τ-saturates the
// result, and builds an auditable proof-derivation log as it goes.
package analyzer

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/monitor"
)

// ErrNotReady is returned (wrapped) when Analyze is asked to drive a term
// that was not already τ-saturated — a violation of the public contract's
// precondition, and therefore a programmer error.
var ErrNotReady = errors.New("monitor term is not in ready (τ-saturated) form")

// VerdictFunc is invoked exactly once, the first time a monitor driven by
// an Analyzer reaches a verdict.
type VerdictFunc func(yes bool, m monitor.Term, log Log)

// Option configures an Analyzer, following the teacher's functional-options
// convention (distsys.MPCalContextConfigFn and friends).
type Option func(*Analyzer)

// WithLogger overrides the analyzer's logger, which otherwise discards
// messages.
func WithLogger(logger *log.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// WithVerdictCallback registers the function invoked when a monitor first
// reaches a verdict.
func WithVerdictCallback(fn VerdictFunc) Option {
	return func(a *Analyzer) { a.onVerdict = fn }
}

// Analyzer drives monitor terms on a stream of events. A single Analyzer
// instance may be shared by as many independent monitor terms as desired;
// it holds no per-monitor state except, optionally, the one "embedded"
// ambient term used by Embed/Embedded.
type Analyzer struct {
	logger    *log.Logger
	onVerdict VerdictFunc

	mu       sync.Mutex
	embedded monitor.Term
}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{logger: log.New(io.Discard, "", 0)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze advances m by exactly one external event. m must already be
// τ-saturated; ev must not be τ. The returned log contains the event step
// followed by every τ step taken after it, in that chronological order.
// The returned term is τ-saturated.
func (a *Analyzer) Analyze(ev event.Event, m monitor.Term) (Log, monitor.Term) {
	if !isReady(m) {
		panic(fmt.Errorf("%w: Analyze called on a term with a pending τ-rule", ErrNotReady))
	}
	_, wasVerdict := monitor.AsVerdict(m)

	rec, m1 := eventReduce(Root(), ev, m)
	entries := Log{rec}

	m2, tauEntries := a.saturate(m1)
	entries = append(entries, tauEntries...)

	if !wasVerdict {
		if yes, ok := monitor.AsVerdict(m2); ok {
			a.fire(yes, m2, entries)
		}
	}
	return entries, m2
}

// Embed τ-saturates m and stores it as this Analyzer's ambient monitor,
// for inline analysis run directly in a tracer's own goroutine (see
// package tracer). It returns the saturated term.
func (a *Analyzer) Embed(m monitor.Term) monitor.Term {
	saturated, entries := a.saturate(m)
	a.mu.Lock()
	a.embedded = saturated
	a.mu.Unlock()
	if yes, ok := monitor.AsVerdict(saturated); ok {
		a.fire(yes, saturated, entries)
	}
	return saturated
}

// Embedded returns the term last passed to Embed (already saturated).
func (a *Analyzer) Embedded() monitor.Term {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.embedded
}

// saturate repeatedly applies τ-rules to m until none applies, returning
// the fixed point and the log entries produced along the way.
func (a *Analyzer) saturate(m monitor.Term) (monitor.Term, Log) {
	var entries Log
	for {
		rec, m2, ok := tauReduce(Root(), m)
		if !ok {
			return m, entries
		}
		entries = append(entries, rec)
		m = m2
	}
}

func (a *Analyzer) fire(yes bool, m monitor.Term, entries Log) {
	a.logger.Printf("verdict reached: yes=%v", yes)
	if a.onVerdict != nil {
		a.onVerdict(yes, m, entries)
	}
}

// Run accumulates the full proof-derivation history of one monitor across
// many Analyze calls. Each call's records are placed ahead of the
// previously accumulated history, so Run.Log() reads most-recent-first —
// "the overall output is the concatenation, in reverse chronological
// order, of all such records for the full run" (spec.md §4.1).
type Run struct {
	mu  sync.Mutex
	log Log
}

// NewRun returns an empty run history.
func NewRun() *Run { return &Run{} }

// Record prepends entries to the accumulated history.
func (r *Run) Record(entries Log) {
	if len(entries) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	merged := make(Log, 0, len(entries)+len(r.log))
	merged = append(merged, entries...)
	merged = append(merged, r.log...)
	r.log = merged
}

// Log returns a snapshot of the accumulated, reverse-chronological history.
func (r *Run) Log() Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(Log, len(r.log))
	copy(out, r.log)
	return out
}
