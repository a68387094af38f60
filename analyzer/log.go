package analyzer

import (
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/fasthash/fnv1a"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/monitor"
)

// Rule names one of the analyzer's small-step reduction rules, exactly the
// names used by spec.md's rule tables.
type Rule string

const (
	RuleDisYL  Rule = "mDisYL"
	RuleDisYR  Rule = "mDisYR"
	RuleConNL  Rule = "mConNL"
	RuleConNR  Rule = "mConNR"
	RuleDisNL  Rule = "mDisNL"
	RuleDisNR  Rule = "mDisNR"
	RuleConYL  Rule = "mConYL"
	RuleConYR  Rule = "mConYR"
	RuleRec    Rule = "mRec"
	RuleRecVar Rule = "mRec-var"
	RuleTauL   Rule = "mTauL"
	RuleTauR   Rule = "mTauR"
	RuleVrd    Rule = "mVrd"
	RuleAct    Rule = "mAct"
	RuleChsL   Rule = "mChsL"
	RuleChsR   Rule = "mChsR"
	RulePar    Rule = "mPar"
)

// Action is either the distinguished τ action or a concrete external event.
type Action struct {
	Tau   bool
	Event event.Event
}

// TauAction is the silent, event-less action.
func TauAction() Action { return Action{Tau: true} }

// EventAction wraps an external event as an Action.
func EventAction(ev event.Event) Action { return Action{Event: ev} }

func (a Action) String() string {
	if a.Tau {
		return "τ"
	}
	return a.Event.String()
}

// Record is one step of the proof derivation: the rule applied, the action
// that drove it, the term it applied to and the term it produced, and
// zero, one or two premise records for binary congruence rules.
type Record struct {
	ID       DerivationID
	Rule     Rule
	Action   Action
	Source   monitor.Term
	Target   monitor.Term
	Premises []*Record
}

func record(id DerivationID, rule Rule, action Action, src, tgt monitor.Term, premises ...*Record) Record {
	return Record{ID: id, Rule: rule, Action: action, Source: src, Target: tgt, Premises: premises}
}

// Log is an ordered sequence of derivation-step records. A single call to
// Analyzer.Analyze returns its records in chronological order: the event
// step first, then every τ step taken after it (see Run for how a whole
// execution's history accumulates across many calls).
type Log []Record

func (l Log) String() string {
	var b strings.Builder
	for _, r := range l {
		fmt.Fprintf(&b, "[%s] %s on %s: %s -> %s\n", r.ID, r.Rule, r.Action, stringOf(r.Source), stringOf(r.Target))
	}
	return b.String()
}

// Render writes a human-readable derivation tree to w, indenting premises
// under the record that used them.
func (l Log) Render(w io.Writer) {
	for _, r := range l {
		renderRecord(w, &r, 0)
	}
}

func renderRecord(w io.Writer, r *Record, depth int) {
	fmt.Fprintf(w, "%s[%s] %s on %s: %s -> %s\n",
		strings.Repeat("  ", depth), r.ID, r.Rule, r.Action, stringOf(r.Source), stringOf(r.Target))
	for _, p := range r.Premises {
		renderRecord(w, p, depth+1)
	}
}

func stringOf(t monitor.Term) string {
	if t == nil {
		return "?"
	}
	if s, ok := t.(fmt.Stringer); ok {
		return s.String()
	}
	return "?"
}

// indexEntry is one slot of a DerivationIndex bucket.
type indexEntry struct {
	key string
	rec *Record
}

// DerivationIndex is a small separate-chaining hashmap from a derivation
// id's dotted string form to the record with that id, built with the same
// fnv1a hash the teacher uses as its immutable.Hasher for tla.Value
// (tla/value.go's ValueHasher) — reused directly here rather than via
// benbjohnson/immutable, since a proof log is indexed once and read many
// times, and a flat bucket slice is the simpler fit for that access
// pattern.
type DerivationIndex struct {
	buckets [][]indexEntry
	mask    uint32
}

func newDerivationIndex(n int) *DerivationIndex {
	size := 16
	for size < n*2 {
		size <<= 1
	}
	return &DerivationIndex{buckets: make([][]indexEntry, size), mask: uint32(size - 1)}
}

func (idx *DerivationIndex) put(id DerivationID, rec *Record) {
	key := id.String()
	h := fnv1a.HashString32(key) & idx.mask
	idx.buckets[h] = append(idx.buckets[h], indexEntry{key: key, rec: rec})
}

// Get looks up the record with derivation id id.
func (idx *DerivationIndex) Get(id DerivationID) (*Record, bool) {
	key := id.String()
	h := fnv1a.HashString32(key) & idx.mask
	for _, e := range idx.buckets[h] {
		if e.key == key {
			return e.rec, true
		}
	}
	return nil, false
}

// Index builds a lookup structure over l's top-level records (premises are
// reachable by walking Record.Premises, not by id lookup, since premise ids
// are only unique within their own top-level record).
func (l Log) Index() *DerivationIndex {
	idx := newDerivationIndex(len(l))
	for i := range l {
		idx.put(l[i].ID, &l[i])
	}
	return idx
}
