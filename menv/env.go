package menv

// Env is the fixed-shape environment every monitor term node carries: a
// display string, a binder name, a display pattern, the binding context
// accumulated so far, and a namespace tag. A missing NS means Global.
type Env struct {
	Str string
	Var string
	Pat string
	Ctx Context
	NS  string
}

// NewEnv returns an environment with an empty context in the global
// namespace.
func NewEnv() Env {
	return Env{Ctx: NewContext()}
}

// Namespace returns e.NS, defaulting to Global when unset.
func (e Env) Namespace() string {
	if e.NS == "" {
		return Global
	}
	return e.NS
}

// WithContext returns a copy of e with Ctx replaced.
func (e Env) WithContext(ctx Context) Env {
	e.Ctx = ctx
	return e
}

// WithNamespace returns a copy of e with NS replaced.
func (e Env) WithNamespace(ns string) Env {
	e.NS = ns
	return e
}

// Propagate copies parent's namespace and binding context into child,
// leaving child's Str/Var/Pat untouched. Every branch a reduction takes —
// τ congruence, event congruence, parallel reduction — must do exactly
// this before the child term is reduced further (spec: "context
// propagation").
func Propagate(parent, child Env) Env {
	child.Ctx = parent.Ctx
	child.NS = parent.NS
	return child
}
