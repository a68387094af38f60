// Package monitor defines the seven-shape algebra of monitor terms: the
// formal, reducible representation of a branching-time modal-logic formula
// under evaluation against an observed event stream.
package monitor

import (
	"fmt"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/menv"
)

// Guard is a predicate on events, used by Act and Chs nodes to decide
// whether they can consume a given event.
type Guard func(event.Event) bool

// EventCont is a suspended term-producing function of one event argument,
// the continuation of an Act node.
type EventCont func(event.Event) Term

// ThunkCont is a suspended, zero-argument term-producing function, the
// continuation of a Rec or Var node. Calling it unfolds the recursion body.
type ThunkCont func() Term

// Term is any of the seven monitor-term shapes. Implementations are
// unexported; callers build and inspect terms only through this package's
// constructors and accessor functions — the same "tagged impl behind a
// value type" shape the teacher uses for tla.Value (tla/value.go).
type Term interface {
	Env() menv.Env
	term()
}

// WithEnv returns a copy of t with its environment replaced by env,
// preserving t's own shape and fields. Used by reduction rules that must
// copy a parent's namespace and context into a child term before it is
// reduced further.
func WithEnv(t Term, env menv.Env) Term {
	switch v := t.(type) {
	case verdictTerm:
		v.env = env
		return v
	case actTerm:
		v.env = env
		return v
	case chsTerm:
		v.env = env
		return v
	case junctionTerm:
		v.env = env
		return v
	case recTerm:
		v.env = env
		return v
	default:
		panic(fmt.Errorf("%w: unrecognized term shape %T", ErrMalformedTerm, t))
	}
}

// CopyContext returns t with its environment's namespace and binding
// context replaced by parent's, keeping t's own Str/Var/Pat fields. This is
// the "parent's context and namespace copied in" step several reduction
// rules require.
func CopyContext(parent menv.Env, t Term) Term {
	return WithEnv(t, menv.Propagate(parent, t.Env()))
}

// --- Verdict ---

type verdictTerm struct {
	env menv.Env
	yes bool
}

func (t verdictTerm) Env() menv.Env { return t.env }
func (verdictTerm) term()           {}

// Yes constructs the terminal "satisfied" verdict.
func Yes(env menv.Env) Term { return verdictTerm{env: env, yes: true} }

// No constructs the terminal "violated" verdict.
func No(env menv.Env) Term { return verdictTerm{env: env, yes: false} }

// AsVerdict reports whether t is a verdict term, and if so, whether it is
// "yes".
func AsVerdict(t Term) (yes bool, ok bool) {
	v, isV := t.(verdictTerm)
	if !isV {
		return false, false
	}
	return v.yes, true
}

// --- Act ---

type actTerm struct {
	env   menv.Env
	guard Guard
	cont  EventCont
}

func (t actTerm) Env() menv.Env { return t.env }
func (actTerm) term()           {}

// Act constructs a term that awaits one external event matching guard,
// then continues as cont(event).
func Act(env menv.Env, guard Guard, cont EventCont) Term {
	return actTerm{env: env, guard: guard, cont: cont}
}

// AsAct reports whether t is an Act term.
func AsAct(t Term) (ActView, bool) {
	a, ok := t.(actTerm)
	return ActView{a}, ok
}

// ActView exposes an Act term's fields without exporting the underlying
// struct type.
type ActView struct{ a actTerm }

func (v ActView) Guard() Guard     { return v.a.guard }
func (v ActView) Cont() EventCont  { return v.a.cont }
func (v ActView) Env() menv.Env    { return v.a.env }
func (v ActView) Term() Term       { return v.a }

// --- Chs (external choice) ---

type chsTerm struct {
	env    menv.Env
	m1, m2 Term
}

func (t chsTerm) Env() menv.Env { return t.env }
func (chsTerm) term()           {}

// Choice constructs an external-choice term. Well-formedness (both m1 and
// m2 must be Act nodes with mutually exclusive guards for the next event)
// is checked at reduction time, not at construction time, matching the
// spec's framing of it as a reduction-time programmer error.
func Choice(env menv.Env, m1, m2 Term) Term {
	return chsTerm{env: env, m1: m1, m2: m2}
}

// ChoiceView exposes a Chs term's children.
type ChoiceView struct{ c chsTerm }

func (v ChoiceView) M1() Term     { return v.c.m1 }
func (v ChoiceView) M2() Term     { return v.c.m2 }
func (v ChoiceView) Env() menv.Env { return v.c.env }

// AsChoice reports whether t is a Chs term.
func AsChoice(t Term) (ChoiceView, bool) {
	c, ok := t.(chsTerm)
	return ChoiceView{c}, ok
}

// --- And / Or (parallel conjunction / disjunction) ---

type junctionKind int

const (
	kindAnd junctionKind = iota
	kindOr
)

type junctionTerm struct {
	env    menv.Env
	kind   junctionKind
	m1, m2 Term
}

func (t junctionTerm) Env() menv.Env { return t.env }
func (junctionTerm) term()           {}

// Conjunction constructs an And term.
func Conjunction(env menv.Env, m1, m2 Term) Term {
	return junctionTerm{env: env, kind: kindAnd, m1: m1, m2: m2}
}

// Disjunction constructs an Or term.
func Disjunction(env menv.Env, m1, m2 Term) Term {
	return junctionTerm{env: env, kind: kindOr, m1: m1, m2: m2}
}

// JunctionView exposes an And/Or term's children and kind.
type JunctionView struct{ j junctionTerm }

func (v JunctionView) M1() Term            { return v.j.m1 }
func (v JunctionView) M2() Term            { return v.j.m2 }
func (v JunctionView) Env() menv.Env       { return v.j.env }
func (v JunctionView) IsConjunction() bool { return v.j.kind == kindAnd }

// AsJunction reports whether t is an And or Or term.
func AsJunction(t Term) (JunctionView, bool) {
	j, ok := t.(junctionTerm)
	return JunctionView{j}, ok
}

// Rebuild returns a new And/Or term of the same kind as the one v was
// taken from, with a new environment and children. Used by congruence
// rules (mTauL/mTauR, mPar) to reconstruct the parent node.
func (v JunctionView) Rebuild(env menv.Env, m1, m2 Term) Term {
	if v.j.kind == kindAnd {
		return Conjunction(env, m1, m2)
	}
	return Disjunction(env, m1, m2)
}

// --- Rec / Var (recursion binder / bound recursion variable) ---

type recTerm struct {
	env   menv.Env
	cont  ThunkCont
	isVar bool
}

func (t recTerm) Env() menv.Env { return t.env }
func (recTerm) term()           {}

// Recurse constructs a Rec term: a recursion binder whose body is produced
// by calling cont.
func Recurse(env menv.Env, cont ThunkCont) Term {
	return recTerm{env: env, cont: cont}
}

// Unfold constructs a Var term: a bound recursion variable. Shape-identical
// to Rec, but unfolding it first purges its namespace from the inherited
// context (mRec-var), unlike Rec (mRec).
func Unfold(env menv.Env, cont ThunkCont) Term {
	return recTerm{env: env, cont: cont, isVar: true}
}

// RecView exposes a Rec/Var term's fields.
type RecView struct{ r recTerm }

func (v RecView) Cont() ThunkCont { return v.r.cont }
func (v RecView) Env() menv.Env   { return v.r.env }
func (v RecView) IsVar() bool     { return v.r.isVar }

// AsRec reports whether t is a Rec or Var term.
func AsRec(t Term) (RecView, bool) {
	r, ok := t.(recTerm)
	return RecView{r}, ok
}

// String renders a term shallowly (its own shape, not a full unfolding —
// continuations are opaque closures and cannot be printed further).
func (v ActView) String() string      { return fmt.Sprintf("Act(%s)", v.a.env.Str) }
func (t verdictTerm) String() string {
	if t.yes {
		return "yes"
	}
	return "no"
}
func (t chsTerm) String() string      { return fmt.Sprintf("Chs(%s, %s)", stringOf(t.m1), stringOf(t.m2)) }
func (t junctionTerm) String() string {
	op := "And"
	if t.kind == kindOr {
		op = "Or"
	}
	return fmt.Sprintf("%s(%s, %s)", op, stringOf(t.m1), stringOf(t.m2))
}
func (t recTerm) String() string {
	if t.isVar {
		return fmt.Sprintf("Var(%s)", t.env.Var)
	}
	return fmt.Sprintf("Rec(%s)", t.env.Var)
}
func (t actTerm) String() string { return fmt.Sprintf("Act(%s)", t.env.Str) }

func stringOf(t Term) string {
	if s, ok := t.(fmt.Stringer); ok {
		return s.String()
	}
	return "?"
}
