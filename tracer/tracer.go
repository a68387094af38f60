// Package tracer implements the hierarchical tracer choreography: a tree
// of agents that partitions the traced processes of a running program,
// routes their events to whichever agent currently analyzes them, and
// migrates ownership from ancestor to descendant via a two-phase detach
// protocol (spec.md §§3-4.2).
//
// Grounded on the teacher's resource/actor goroutines (resources/*.go,
// each one a private mailbox-driven state machine) and on
// distsys.go/mpcalctx.go's coordinated-shutdown idiom, generalized from a
// single flat resource pool to a tree of agents that spawn further agents.
package tracer

import (
	"context"
	"fmt"
	"io"
	"log"

	"go.uber.org/multierr"

	"github.com/sltsclo/detecter/analyzer"
	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/instrument"
	"github.com/sltsclo/detecter/menv"
	"github.com/sltsclo/detecter/monitor"
	"github.com/sltsclo/detecter/observe"
	"github.com/sltsclo/detecter/stats"
)

// Option configures a Tracer at Start time, following the teacher's
// functional-options convention (distsys.MPCalContextConfigFn).
type Option func(*Tracer)

// WithLogger overrides a tracer's logger, which otherwise discards
// messages. Every descendant tracer spawned under it inherits the same
// logger.
func WithLogger(logger *log.Logger) Option {
	return func(t *Tracer) { t.logger = logger }
}

// WithRun attaches a shared analyzer.Run that every tracer in the tree
// (inline or external) appends its proof-derivation records to, giving the
// caller one running history across the whole choreography.
func WithRun(run *analyzer.Run) Option {
	return func(t *Tracer) { t.run = run }
}

// WithVerdictCallback registers the function invoked, once per monitor,
// the first time that monitor reaches a verdict.
func WithVerdictCallback(fn analyzer.VerdictFunc) Option {
	return func(t *Tracer) { t.onVerdict = fn }
}

// WithMailboxCapacity overrides the buffered capacity of a tracer's
// mailbox channel (default 64).
func WithMailboxCapacity(n int) Option {
	return func(t *Tracer) { t.mailboxCap = n }
}

// Tracer is one agent in the hierarchical tracer tree (spec.md §3).
type Tracer struct {
	id ID

	parentID      ID
	parentMailbox chan<- Message
	supervisor    Supervisor

	predicate instrument.Predicate
	source    observe.Source
	logger    *log.Logger
	run       *analyzer.Run
	onVerdict analyzer.VerdictFunc

	kind           AnalysisKind
	inlineAnalyzer *analyzer.Analyzer
	extAgent       *analyzerAgent
	monitorTerm    monitor.Term

	mailbox    chan Message
	mailboxCap int
	extEventCh chan event.Event
	deferred   []Message

	mode   Mode
	traced map[event.ProcessID]Mode
	routes map[event.ProcessID]childHandle

	stats stats.Counters

	pendingFatal error

	// doneCh is closed once, from inside shutdown, so a concurrent
	// Inspect call racing a tracer's self-GC returns a zero Snapshot
	// instead of blocking forever on a mailbox nothing services anymore.
	doneCh chan struct{}
}

func newTracer(predicate instrument.Predicate, kind AnalysisKind, source observe.Source, supervisor Supervisor, opts ...Option) *Tracer {
	t := &Tracer{
		id:         nextID(),
		predicate:  predicate,
		source:     source,
		supervisor: supervisor,
		logger:     log.New(io.Discard, "", 0),
		kind:       kind,
		mailboxCap: 64,
		mode:       ModePriority,
		traced:     make(map[event.ProcessID]Mode),
		routes:     make(map[event.ProcessID]childHandle),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.mailbox = make(chan Message, t.mailboxCap)
	t.extEventCh = make(chan event.Event, t.mailboxCap)
	switch kind {
	case AnalysisInline:
		t.inlineAnalyzer = analyzer.NewAnalyzer(analyzer.WithLogger(t.logger), analyzer.WithVerdictCallback(t.onVerdict))
	case AnalysisExternal:
		t.extAgent = newAnalyzerAgent(analyzer.WithLogger(t.logger), analyzer.WithVerdictCallback(t.onVerdict))
	}
	register(t)
	go t.pump()
	return t
}

// ID returns the tracer's identity.
func (t *Tracer) ID() ID { return t.id }

// pump bridges externally-delivered events (via observe.Source) into the
// tracer's single mailbox, so the run loop never selects on more than one
// channel of real traffic. It exits once the tracer shuts down, via the
// same doneCh Inspect races against — extEventCh itself is never closed,
// since observe.Source implementations retain it and may still hold a
// reference to send on after this tracer has garbage-collected.
func (t *Tracer) pump() {
	for {
		select {
		case ev := <-t.extEventCh:
			select {
			case t.mailbox <- traceEventMsg{Ev: ev, Routed: false}:
			case <-t.doneCh:
				return
			}
		case <-t.doneCh:
			return
		}
	}
}

// runLoop is the tracer's single-threaded message loop (spec.md §4.2). It
// drains the deferred queue ahead of fresh mailbox traffic once the tracer
// is in direct mode, implementing the selective-receive-on-routed
// technique described in spec.md §9 without a language-level primitive for
// it.
func (t *Tracer) runLoop() {
	for {
		var msg Message
		if t.mode == ModeDirect && len(t.deferred) > 0 {
			msg = t.deferred[0]
			t.deferred = t.deferred[1:]
		} else {
			msg = <-t.mailbox
		}
		t.handleMessage(msg)
		if t.pendingFatal != nil {
			t.shutdown(t.pendingFatal)
			return
		}
		if t.isEmpty() {
			t.shutdown(nil)
			return
		}
	}
}

func (t *Tracer) isEmpty() bool {
	return len(t.traced) == 0 && len(t.routes) == 0
}

func (t *Tracer) fatal(err error) {
	t.logger.Printf("%s: fatal: %v", t.id, err)
	t.pendingFatal = err
}

// handleMessage is the top-level dispatch of spec.md §4.2: which handler a
// message goes to depends on both the tracer's own mode and whether the
// message is routed.
func (t *Tracer) handleMessage(msg Message) {
	switch m := msg.(type) {
	case traceEventMsg:
		if !m.Routed {
			if t.mode == ModePriority {
				t.deferred = append(t.deferred, msg)
				return
			}
			t.dispatchEvent(m.Ev, false)
			return
		}
		t.dispatchEvent(m.Ev, t.mode == ModeDirect)
	case detachMsg:
		if !m.Routed {
			if t.mode == ModePriority {
				t.deferred = append(t.deferred, msg)
				return
			}
			t.routeDetach(m)
			return
		}
		if t.mode == ModeDirect {
			t.forwardDetach(m)
			return
		}
		t.handleRoutedDetachPriority(m)
	case probeMsg:
		m.reply <- t.snapshot()
	default:
		t.fatal(fmt.Errorf("%w: %T", ErrUnknownMessage, msg))
	}
}

// dispatchEvent is handle_event (mandatory=false) and forward_event
// (mandatory=true) at once: both forward to an existing route identically
// and only differ in what happens when no route exists. Spawn events
// always update the routing table on the forwarding path regardless of
// mandatory, since topology bookkeeping for a newly spawned process cannot
// wait for whichever descendant eventually owns its parent to get around
// to it.
func (t *Tracer) dispatchEvent(ev event.Event, mandatory bool) {
	child, hasRoute := t.routes[ev.Source]
	if hasRoute {
		child.mailbox <- traceEventMsg{Ev: ev, Routed: true}
		switch ev.Kind {
		case event.Spawn:
			t.routes[ev.Spawn.Child] = child
		case event.Exit:
			delete(t.routes, ev.Source)
		}
		return
	}
	if mandatory {
		t.fatal(fmt.Errorf("%w: process %s", ErrMissingRoute, ev.Source))
		return
	}
	t.analyzeAndHandle(ev)
}

// analyzeAndHandle is the "no next hop exists" branch of spec.md §4.2.1:
// this tracer owns ev.Source directly, so it feeds ev to its monitor and
// then performs whatever kind-specific bookkeeping follows.
func (t *Tracer) analyzeAndHandle(ev event.Event) {
	t.stats.Add(ev)
	t.analyze(ev)
	switch ev.Kind {
	case event.Spawn:
		t.handleSpawnLocal(ev)
	case event.Exit:
		delete(t.traced, ev.Source)
	}
}

func (t *Tracer) handleSpawnLocal(ev event.Event) {
	tgt := ev.Spawn.Child
	mfa := ev.Spawn.Target
	if m, ok := t.predicate(mfa); ok {
		handle := t.spawnChild(tgt, m)
		t.routes[tgt] = handle
		return
	}
	// No predicate match: tgt stays directly owned by this tracer rather
	// than handed to a new descendant, so this tracer must itself become
	// tgt's observer — nothing else has ever called Trace/Preempt naming
	// it.
	if err := t.source.Trace(context.Background(), tgt, t.extEventCh); err != nil {
		t.fatal(err)
		return
	}
	// In priority mode the spawn arrived routed, and the ancestor that
	// routed it also added tgt to its own routing table, so tgt stays
	// priority until this tracer's own detach for it comes back.
	if t.mode == ModePriority {
		t.traced[tgt] = ModePriority
		t.emitDetach(tgt)
		return
	}
	// In direct mode the spawn reached this tracer unrouted, so no ancestor
	// holds a routing entry for tgt; it starts fully, directly owned.
	t.traced[tgt] = ModeDirect
}

// analyze feeds ev through this tracer's monitor, inline or via its
// external agent, and updates the stored term. A no-op whenever this
// tracer has no monitor term to drive — true of the root, and of any
// tracer whose traced process never matched the instrumentation
// predicate (spec.md §4.2: the root's analyzer handle is none).
func (t *Tracer) analyze(ev event.Event) {
	if t.monitorTerm == nil {
		return
	}
	switch {
	case t.inlineAnalyzer != nil:
		entries, m2 := t.inlineAnalyzer.Analyze(ev, t.monitorTerm)
		t.monitorTerm = m2
		t.recordRun(entries)
	case t.extAgent != nil:
		reply := make(chan analyzeResult, 1)
		t.extAgent.reqCh <- analyzeRequest{Ev: ev, Term: t.monitorTerm, Reply: reply}
		result := <-reply
		t.monitorTerm = result.Term
		t.recordRun(result.Log)
	}
}

func (t *Tracer) recordRun(entries analyzer.Log) {
	if t.run != nil {
		t.run.Record(entries)
	}
}

// embedInitial τ-saturates and stores m as this tracer's starting monitor
// term, the way a newly-instrumented tracer's analyzer handle is primed
// before it consumes its first event (spec.md §4.1 embed, §4.2.2 phase 1).
func (t *Tracer) embedInitial(m monitor.Term) {
	switch {
	case t.inlineAnalyzer != nil:
		t.monitorTerm = t.inlineAnalyzer.Embed(m)
	case t.extAgent != nil:
		reply := make(chan analyzeResult, 1)
		t.extAgent.reqCh <- analyzeRequest{Term: m, Embed: true, Reply: reply}
		t.monitorTerm = (<-reply).Term
	default:
		t.monitorTerm = m
	}
}

// spawnChild creates a fresh descendant tracer for target, wired with menv
// free of any parent context — each monitor's binding context starts empty
// (menv.NewContext), since spec.md's binder scoping is per-monitor, not
// inherited across tracer boundaries.
func (t *Tracer) spawnChild(target event.ProcessID, m monitor.Term) childHandle {
	child := newTracer(t.predicate, t.kind, t.source, t, withInheritedOptions(t)...)
	child.parentID = t.id
	child.parentMailbox = t.mailbox
	child.traced[target] = ModePriority
	child.embedInitial(monitor.CopyContext(menv.NewEnv(), m))
	go child.bootstrap(target)
	return childHandle{id: child.id, mailbox: child.mailbox}
}

func withInheritedOptions(parent *Tracer) []Option {
	return []Option{
		WithLogger(parent.logger),
		WithRun(parent.run),
		WithVerdictCallback(parent.onVerdict),
		WithMailboxCapacity(parent.mailboxCap),
	}
}

// bootstrap is a newly-spawned child tracer's first action: preempt direct
// observation of its target, then begin the detach protocol by notifying
// its parent (spec.md §4.2.2 phase 1), before entering its normal loop.
func (t *Tracer) bootstrap(target event.ProcessID) {
	ctx := context.Background()
	if _, err := t.source.Preempt(ctx, target, t.extEventCh); err != nil {
		t.fatal(err)
		t.shutdown(t.pendingFatal)
		return
	}
	t.emitDetach(target)
	t.runLoop()
}

func (t *Tracer) emitDetach(target event.ProcessID) {
	if t.parentMailbox == nil {
		return
	}
	t.parentMailbox <- detachMsg{Sender: t.id, Target: target, Routed: false}
}

// routeDetach handles a non-routed detach from a child (direct mode,
// spec.md §4.2 item 2 / §4.2.2 phase 2). A non-root tracer bubbles it,
// wrapped as routed, up to its own supervisor without touching its routing
// table yet — the table entry for target is still needed to forward the
// same detach back down once it returns from above. The root has no
// supervisor to bubble to, so for it this is exactly forward_detach: use
// the routing table immediately.
func (t *Tracer) routeDetach(m detachMsg) {
	if t.parentMailbox == nil {
		t.forwardDetach(m)
		return
	}
	t.parentMailbox <- detachMsg{Sender: m.Sender, Target: m.Target, Routed: true}
}

// forwardDetach is mandatory-forwarding for a routed detach (direct mode
// item 4, and the "otherwise forward" branch of priority mode item 1): use
// the routing-table entry for the target, forward, and delete the entry —
// this is the hop where each ancestor's stale routing-table entry actually
// gets cleaned up. Missing a route here is tolerated and dropped silently
// (spec.md §4.2.3): the target may already have exited and been removed by
// a concurrent exit event.
func (t *Tracer) forwardDetach(m detachMsg) {
	child, ok := t.routes[m.Target]
	if !ok {
		return
	}
	delete(t.routes, m.Target)
	child.mailbox <- detachMsg{Sender: m.Sender, Target: m.Target, Routed: true}
}

// handleRoutedDetachPriority is priority mode's handling of a routed
// detach (spec.md §4.2 item 1): if addressed to self, this is the tracer
// whose own detach is completing — flip mode. Otherwise it is someone
// else's detach merely passing through; forward it.
func (t *Tracer) handleRoutedDetachPriority(m detachMsg) {
	if m.Sender == t.id {
		t.handleDetach(m.Target)
		return
	}
	t.forwardDetach(m)
}

// handleDetach flips target from priority to direct in this tracer's
// traced set, and promotes the whole tracer to direct mode once every
// entry is direct (spec.md §3 invariant). A missing entry is tolerated
// (§4.2.3): target may have already exited.
func (t *Tracer) handleDetach(target event.ProcessID) {
	if _, ok := t.traced[target]; !ok {
		return
	}
	t.traced[target] = ModeDirect
	for _, mode := range t.traced {
		if mode == ModePriority {
			return
		}
	}
	t.mode = ModeDirect
}

// shutdown is the self-garbage-collection step of spec.md §4.2.4: stop any
// external analyzer agent, unregister from the test-introspection
// registry, and notify the supervisor with accumulated statistics and, if
// non-nil, the fatal error that caused an early termination.
func (t *Tracer) shutdown(fatalErr error) {
	defer close(t.doneCh)
	var errs error
	if t.extAgent != nil {
		errs = multierr.Append(errs, t.extAgent.stop())
	}
	if fatalErr != nil {
		errs = multierr.Append(errs, fatalErr)
	}
	unregister(t.id)
	if t.supervisor != nil {
		t.supervisor.Notify(ExitSignal{ID: t.id, Stats: t.stats, Err: errs})
	}
}

// Notify implements Supervisor so that any tracer can itself act as the
// supervisor of the children it spawns.
func (t *Tracer) Notify(sig ExitSignal) {
	if sig.Err != nil {
		t.logger.Printf("%s: child %s exited: %v", t.id, sig.ID, sig.Err)
		return
	}
	t.logger.Printf("%s: child %s exited (%d events analyzed)", t.id, sig.ID, sig.Stats.Total())
}

// Monitor returns the tracer's current monitor term, for test
// introspection and the bundled example's final-verdict printout.
func (t *Tracer) Monitor() monitor.Term { return t.monitorTerm }

// Stats returns a copy of the tracer's accumulated event counters.
func (t *Tracer) Stats() stats.Counters { return t.stats }

func (t *Tracer) snapshot() Snapshot {
	traced := make(map[event.ProcessID]Mode, len(t.traced))
	for p, m := range t.traced {
		traced[p] = m
	}
	routes := make(map[event.ProcessID]ID, len(t.routes))
	for p, h := range t.routes {
		routes[p] = h.id
	}
	return Snapshot{Mode: t.mode, Traced: traced, Routes: routes}
}

// Inspect returns a consistent snapshot of t's routing state, answered
// from inside t's own loop. If t has already garbage-collected — including
// a shutdown racing this very call — it returns a zero Snapshot instead of
// blocking forever on a mailbox nothing services anymore.
func (t *Tracer) Inspect() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case t.mailbox <- probeMsg{reply: reply}:
	case <-t.doneCh:
		return Snapshot{}
	}
	select {
	case snap := <-reply:
		return snap
	case <-t.doneCh:
		return Snapshot{}
	}
}
