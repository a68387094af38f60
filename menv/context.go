// Package menv holds the environment and binding-context types carried by
// monitor terms: the small, fixed-shape Env record every term node embeds,
// and the persistent, insertion-ordered Context that accumulates variable
// bindings as an Act node consumes events.
package menv

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/sltsclo/detecter/event"
)

// Global is the namespace tag used when an Env's NS field is unset.
const Global = ""

// bindKey is the (namespace, name) pair a Context maps from. It is hashed
// with the same immutable.Hasher pattern the teacher's tla.Value uses for
// every persistent collection it keeps (see tla/value.go's ValueHasher).
type bindKey struct {
	ns, name string
}

type keyHasher struct{}

func (keyHasher) Hash(k bindKey) uint32 {
	// XOR-combine two fnv1a hashes, same technique the teacher's
	// valueSet.Hash uses to combine unordered members (tla/value.go).
	return fnv1a.HashString32(k.ns) ^ fnv1a.HashString32(k.name)
}

func (keyHasher) Equal(a, b bindKey) bool {
	return a.ns == b.ns && a.name == b.name
}

// Context is a persistent, insertion-ordered mapping from (namespace, name)
// to the event captured when an Act node consumed an event. Every mutating
// operation returns a new Context; the receiver is left untouched, so that
// earlier proof-log entries keep referring to a valid snapshot.
type Context struct {
	m     *immutable.Map[bindKey, event.Event]
	order []bindKey // insertion order; append-only, copied on write
}

// NewContext returns an empty binding context.
func NewContext() Context {
	return Context{m: immutable.NewMap[bindKey, event.Event](keyHasher{})}
}

// Len reports the number of bindings in the context.
func (c Context) Len() int {
	if c.m == nil {
		return 0
	}
	return c.m.Len()
}

// Has reports whether (ns, name) is bound.
func (c Context) Has(ns, name string) bool {
	if c.m == nil {
		return false
	}
	_, ok := c.m.Get(bindKey{ns, name})
	return ok
}

// Lookup returns the event bound to (ns, name), if any.
func (c Context) Lookup(ns, name string) (event.Event, bool) {
	if c.m == nil {
		return event.Event{}, false
	}
	return c.m.Get(bindKey{ns, name})
}

// Bind returns a new Context with (ns, name) bound to ev. If the key is
// already bound, its value is overwritten but its original insertion
// position is preserved.
func (c Context) Bind(ns, name string, ev event.Event) Context {
	if c.m == nil {
		c = NewContext()
	}
	key := bindKey{ns, name}
	_, existed := c.m.Get(key)
	next := Context{m: c.m.Set(key, ev), order: c.order}
	if !existed {
		next.order = append(append([]bindKey(nil), c.order...), key)
	}
	return next
}

// PurgeNamespace returns a new Context with every binding under ns removed.
// Used by the mRec-var rule: unfolding a recursion variable discards
// bindings introduced by the body it is re-entering.
func (c Context) PurgeNamespace(ns string) Context {
	if c.m == nil || c.Len() == 0 {
		return c
	}
	next := NewContext()
	for _, key := range c.order {
		if key.ns == ns {
			continue
		}
		val, _ := c.m.Get(key)
		next = next.Bind(key.ns, key.name, val)
	}
	return next
}

// Merge combines left and right, left-wins on duplicate (ns, name) keys.
// Each side's own relative insertion order is preserved; right's entries
// that collide with left are skipped, not reordered.
func Merge(left, right Context) Context {
	result := left
	for _, key := range right.order {
		if result.Has(key.ns, key.name) {
			continue
		}
		val, _ := right.m.Get(key)
		result = result.Bind(key.ns, key.name, val)
	}
	return result
}

// String renders the context as an ordered list of bindings, useful for
// proof-log display.
func (c Context) String() string {
	if c.Len() == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, key := range c.order {
		if i > 0 {
			b.WriteString(", ")
		}
		val, _ := c.m.Get(key)
		ns := key.ns
		if ns == Global {
			ns = "<global>"
		}
		fmt.Fprintf(&b, "(%s,%s) ↦ %s", ns, key.name, val)
	}
	b.WriteByte('}')
	return b.String()
}
