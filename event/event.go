// Package event defines the canonical representation of an observation of
// a single step of the target program: spawn, exit, send, receive or
// spawned.
package event

import "fmt"

// ProcessID is an opaque, comparable token identifying a traced process.
// It is wrapped in a struct, rather than passed around as a bare string, so
// that a stray string concatenation or slice cannot silently produce a
// value that type-checks as a process identity.
type ProcessID struct {
	id string
}

// NewProcessID wraps id as a process identity.
func NewProcessID(id string) ProcessID {
	return ProcessID{id: id}
}

// Zero reports whether p is the zero ProcessID (no identity assigned).
func (p ProcessID) Zero() bool {
	return p.id == ""
}

func (p ProcessID) String() string {
	if p.id == "" {
		return "<nil-process>"
	}
	return p.id
}

// MFA is a callable descriptor identifying a spawned process's entry point,
// consulted by the instrumentation predicate. The name follows the
// module/function/arity shape common to actor-model entry points.
type MFA struct {
	Module   string
	Function string
	Arity    int
}

func (m MFA) String() string {
	return fmt.Sprintf("%s:%s/%d", m.Module, m.Function, m.Arity)
}

// Kind tags the payload carried by an Event. The five recognized kinds are
// spawn, exit, send, receive and spawned; any other value is legal but
// falls into the "other" statistics bucket (see package stats).
type Kind string

const (
	Spawn   Kind = "spawn"
	Exit    Kind = "exit"
	Send    Kind = "send"
	Receive Kind = "receive"
	Spawned Kind = "spawned"
)

// Recognized reports whether k is one of the five kinds this package's
// payload accessors understand.
func (k Kind) Recognized() bool {
	switch k {
	case Spawn, Exit, Send, Receive, Spawned:
		return true
	}
	return false
}

// SpawnPayload is carried by a Spawn event: the entry-point descriptor of
// the newly created process and its identity.
type SpawnPayload struct {
	Target MFA
	Child  ProcessID
}

// ExitPayload is carried by an Exit event.
type ExitPayload struct {
	Reason string
}

// SendPayload is carried by a Send event: the peer the message was sent to,
// and the message itself. Message is left as interface{} because the
// program under observation, not this module, defines its message shapes;
// monitor guards inspect it structurally.
type SendPayload struct {
	Peer    ProcessID
	Message interface{}
}

// ReceivePayload is carried by a Receive event.
type ReceivePayload struct {
	Peer    ProcessID
	Message interface{}
}

// SpawnedPayload is carried by a Spawned event: the identity of the process
// that performed the spawn observed from the new child's perspective.
type SpawnedPayload struct {
	Parent ProcessID
}

// Event is an immutable observation of one step of the target program.
// Exactly one of the kind-specific payload fields is populated, matching
// Kind; the zero value of the others is simply ignored.
type Event struct {
	Kind    Kind
	Source  ProcessID
	Spawn   SpawnPayload
	Exit    ExitPayload
	Send    SendPayload
	Receive ReceivePayload
	Spawned SpawnedPayload
}

// NewSpawn builds a Spawn event.
func NewSpawn(source ProcessID, target MFA, child ProcessID) Event {
	return Event{Kind: Spawn, Source: source, Spawn: SpawnPayload{Target: target, Child: child}}
}

// NewExit builds an Exit event.
func NewExit(source ProcessID, reason string) Event {
	return Event{Kind: Exit, Source: source, Exit: ExitPayload{Reason: reason}}
}

// NewSend builds a Send event.
func NewSend(source, peer ProcessID, message interface{}) Event {
	return Event{Kind: Send, Source: source, Send: SendPayload{Peer: peer, Message: message}}
}

// NewReceive builds a Receive event.
func NewReceive(source, peer ProcessID, message interface{}) Event {
	return Event{Kind: Receive, Source: source, Receive: ReceivePayload{Peer: peer, Message: message}}
}

// NewSpawned builds a Spawned event.
func NewSpawned(source, parent ProcessID) Event {
	return Event{Kind: Spawned, Source: source, Spawned: SpawnedPayload{Parent: parent}}
}

func (e Event) String() string {
	switch e.Kind {
	case Spawn:
		return fmt.Sprintf("spawn(%s, %s, %s)", e.Source, e.Spawn.Child, e.Spawn.Target)
	case Exit:
		return fmt.Sprintf("exit(%s, %s)", e.Source, e.Exit.Reason)
	case Send:
		return fmt.Sprintf("send(%s, %s, %v)", e.Source, e.Send.Peer, e.Send.Message)
	case Receive:
		return fmt.Sprintf("receive(%s, %s, %v)", e.Source, e.Receive.Peer, e.Receive.Message)
	case Spawned:
		return fmt.Sprintf("spawned(%s, %s)", e.Source, e.Spawned.Parent)
	default:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Source)
	}
}
