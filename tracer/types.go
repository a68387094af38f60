package tracer

import (
	"fmt"
	"sync/atomic"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/stats"
)

// ID identifies a tracer agent.
type ID struct {
	n uint64
}

var idCounter uint64

func nextID() ID {
	return ID{n: atomic.AddUint64(&idCounter, 1)}
}

func (id ID) String() string {
	return fmt.Sprintf("tracer#%d", id.n)
}

// Mode is a tracer's (or a traced process's) direct/priority state.
type Mode int

const (
	ModePriority Mode = iota
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "priority"
}

// AnalysisKind selects whether a tracer runs its monitor reduction inline,
// in its own goroutine, or dispatches it to a separate analyzer agent with
// its own mailbox (spec.md §5).
type AnalysisKind int

const (
	AnalysisInline AnalysisKind = iota
	AnalysisExternal
)

// childHandle is a routing-table entry: the next-hop tracer a process's
// events should be forwarded to.
type childHandle struct {
	id      ID
	mailbox chan<- Message
}

// Message is any of the two kinds of mailbox traffic a tracer consumes:
// trace events and detach commands, each either routed or not.
type Message interface {
	isMessage()
}

type traceEventMsg struct {
	Ev     event.Event
	Routed bool
}

func (traceEventMsg) isMessage() {}

type detachMsg struct {
	Sender ID
	Target event.ProcessID
	Routed bool
}

func (detachMsg) isMessage() {}

// probeMsg is not part of the tracer choreography; it is a synchronous,
// always-immediate (never deferred) introspection request used only by
// tests, answered from inside the tracer's own loop so that reading its
// state never races with the goroutine that owns it.
type probeMsg struct {
	reply chan<- Snapshot
}

func (probeMsg) isMessage() {}

// Snapshot is a consistent, point-in-time view of a tracer's routing
// state, returned by Tracer.Inspect.
type Snapshot struct {
	Mode   Mode
	Traced map[event.ProcessID]Mode
	Routes map[event.ProcessID]ID
}

// ExitSignal is what a tracer sends its supervisor when it garbage-collects
// itself: its accumulated statistics and, if it terminated because of a
// fatal error, that error.
type ExitSignal struct {
	ID    ID
	Stats stats.Counters
	Err   error
}

// Supervisor receives a tracer's ExitSignal when it terminates.
type Supervisor interface {
	Notify(ExitSignal)
}

// SupervisorFunc adapts a plain function to Supervisor.
type SupervisorFunc func(ExitSignal)

func (f SupervisorFunc) Notify(sig ExitSignal) { f(sig) }
