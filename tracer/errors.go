package tracer

import "errors"

// ErrMissingRoute is a fatal, unrecoverable condition: a direct-mode tracer
// received a routed message for a process it has no routing-table entry
// for. By the invariants of §4.2, this can only mean the tracer network's
// own bookkeeping is broken — unlike the harmless races of §4.2.3, it is
// never tolerated.
var ErrMissingRoute = errors.New("tracer: no routing-table entry for routed message in direct mode")

// ErrUnknownMessage is returned if a mailbox ever yields a Message value of
// a kind this package does not define.
var ErrUnknownMessage = errors.New("tracer: unrecognized mailbox message")
