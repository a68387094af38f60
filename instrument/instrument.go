// Package instrument defines the instrumentation predicate: the external
// collaborator, produced by the out-of-scope weaving pass, that this
// module consults whenever a directly-traced process spawns a child, to
// decide whether the child should be handed a fresh monitor of its own.
package instrument

import (
	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/monitor"
)

// Predicate maps a spawned process's entry-point descriptor to an optional
// fresh monitor term. It is pure with respect to any tracer that consults
// it — a tracer caches nothing about it.
type Predicate func(mfa event.MFA) (monitor.Term, bool)

// None is a Predicate that never instruments — useful as a default or in
// tests that only exercise routing, not monitor synthesis.
func None(event.MFA) (monitor.Term, bool) {
	return nil, false
}

// MatchModule returns a Predicate that instruments exactly the entry
// points whose module name equals module, producing a fresh term each time
// by calling build.
func MatchModule(module string, build func() monitor.Term) Predicate {
	return func(mfa event.MFA) (monitor.Term, bool) {
		if mfa.Module != module {
			return nil, false
		}
		return build(), true
	}
}
