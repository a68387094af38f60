package analyzer

import (
	"fmt"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/menv"
	"github.com/sltsclo/detecter/monitor"
)

func malformed(format string, args ...interface{}) {
	panic(fmt.Errorf("%w: %s", monitor.ErrMalformedTerm, fmt.Sprintf(format, args...)))
}

// tauReduce attempts a single τ-rule application at the top of m, trying
// rules in the priority order spec.md's table lists them in. It returns
// the record produced, the resulting term, and whether any rule applied —
// the analyzer's saturation loop calls this repeatedly until it returns
// false.
func tauReduce(id DerivationID, m monitor.Term) (Record, monitor.Term, bool) {
	if j, ok := monitor.AsJunction(m); ok {
		m1, m2 := j.M1(), j.M2()
		yes1, isV1 := monitor.AsVerdict(m1)
		yes2, isV2 := monitor.AsVerdict(m2)

		if j.IsConjunction() {
			if isV1 && !yes1 {
				tgt := monitor.No(m.Env())
				return record(id, RuleConNL, TauAction(), m, tgt), tgt, true
			}
			if isV2 && !yes2 {
				tgt := monitor.No(m.Env())
				return record(id, RuleConNR, TauAction(), m, tgt), tgt, true
			}
			if isV1 && yes1 {
				tgt := monitor.CopyContext(m.Env(), m2)
				return record(id, RuleConYL, TauAction(), m, tgt), tgt, true
			}
			if isV2 && yes2 {
				tgt := monitor.CopyContext(m.Env(), m1)
				return record(id, RuleConYR, TauAction(), m, tgt), tgt, true
			}
		} else {
			if isV1 && yes1 {
				tgt := monitor.Yes(m.Env())
				return record(id, RuleDisYL, TauAction(), m, tgt), tgt, true
			}
			if isV2 && yes2 {
				tgt := monitor.Yes(m.Env())
				return record(id, RuleDisYR, TauAction(), m, tgt), tgt, true
			}
			if isV1 && !yes1 {
				tgt := monitor.CopyContext(m.Env(), m2)
				return record(id, RuleDisNL, TauAction(), m, tgt), tgt, true
			}
			if isV2 && !yes2 {
				tgt := monitor.CopyContext(m.Env(), m1)
				return record(id, RuleDisNR, TauAction(), m, tgt), tgt, true
			}
		}

		// mTauL / mTauR: congruence through And/Or, left first. The
		// parent's namespace and binding context are copied into each
		// child before it is reduced, so bindings introduced higher in
		// the term stay visible in the child's continuation.
		if rec1, m1p, ok := tauReduce(id.FirstPremise(), monitor.CopyContext(j.Env(), m1)); ok {
			tgt := j.Rebuild(m.Env(), m1p, m2)
			return record(id, RuleTauL, TauAction(), m, tgt, &rec1), tgt, true
		}
		if rec2, m2p, ok := tauReduce(id.SecondPremise(), monitor.CopyContext(j.Env(), m2)); ok {
			tgt := j.Rebuild(m.Env(), m1, m2p)
			return record(id, RuleTauR, TauAction(), m, tgt, &rec2), tgt, true
		}
		return Record{}, nil, false
	}

	if r, ok := monitor.AsRec(m); ok {
		if r.IsVar() {
			purged := r.Env().Ctx.PurgeNamespace(r.Env().Namespace())
			parent := r.Env().WithContext(purged)
			body := r.Cont()()
			tgt := monitor.CopyContext(parent, body)
			return record(id, RuleRecVar, TauAction(), m, tgt), tgt, true
		}
		parent := r.Env().WithNamespace(r.Env().Var)
		body := r.Cont()()
		tgt := monitor.CopyContext(parent, body)
		return record(id, RuleRec, TauAction(), m, tgt), tgt, true
	}

	// Verdict, Act, Chs: no τ-rule applies, already saturated.
	return Record{}, nil, false
}

// eventReduce drives m on exactly one external event ev. m must already be
// τ-saturated (callers are expected to check via isReady before
// calling, or to have just finished a saturation loop).
func eventReduce(id DerivationID, ev event.Event, m monitor.Term) (Record, monitor.Term) {
	if _, ok := monitor.AsVerdict(m); ok {
		// mVrd: the event is absorbed; the verdict never changes again.
		return record(id, RuleVrd, EventAction(ev), m, m), m
	}

	if a, ok := monitor.AsAct(m); ok {
		if !a.Guard()(ev) {
			malformed("Act node's guard rejected event %s with no alternative in scope", ev)
		}
		env := a.Env()
		bound := env.Ctx.Bind(env.Namespace(), env.Var, ev)
		childEnv := env.WithContext(bound)
		tgt := a.Cont()(ev)
		tgt = monitor.CopyContext(childEnv, tgt)
		return record(id, RuleAct, EventAction(ev), m, tgt), tgt
	}

	if c, ok := monitor.AsChoice(m); ok {
		a1, ok1 := monitor.AsAct(c.M1())
		a2, ok2 := monitor.AsAct(c.M2())
		if !ok1 || !ok2 {
			malformed("Chs children must both be Act nodes")
		}
		g1, g2 := a1.Guard()(ev), a2.Guard()(ev)
		switch {
		case g1 && !g2:
			child := monitor.CopyContext(c.Env(), c.M1())
			rec, tgt := eventReduce(id.FirstPremise(), ev, child)
			return record(id, RuleChsL, EventAction(ev), m, tgt, &rec), tgt
		case g2 && !g1:
			child := monitor.CopyContext(c.Env(), c.M2())
			rec, tgt := eventReduce(id.SecondPremise(), ev, child)
			return record(id, RuleChsR, EventAction(ev), m, tgt, &rec), tgt
		default:
			malformed("Chs well-formedness violated: exactly one guard must hold for event %s", ev)
		}
	}

	if j, ok := monitor.AsJunction(m); ok {
		// mPar: the parent's context is copied into both children before
		// either is driven on ev, so a binding from above the junction is
		// visible to both branches' continuations. Both branches' results
		// are therefore already supersets of the parent's pre-event
		// context; merging them against each other, children's own update
		// winning, is enough to recover the merged context.
		child1 := monitor.CopyContext(j.Env(), j.M1())
		child2 := monitor.CopyContext(j.Env(), j.M2())
		rec1, m1p := eventReduce(id.FirstPremise(), ev, child1)
		rec2, m2p := eventReduce(id.SecondPremise(), ev, child2)
		merged := menv.Merge(m1p.Env().Ctx, m2p.Env().Ctx)
		newEnv := j.Env().WithContext(merged)
		tgt := j.Rebuild(newEnv, m1p, m2p)
		return record(id, RulePar, EventAction(ev), m, tgt, &rec1, &rec2), tgt
	}

	malformed("term %T is not in ready form (Rec/Var reached an event dispatch)", m)
	panic("unreachable")
}

// isReady reports whether m has no applicable τ-rule.
func isReady(m monitor.Term) bool {
	_, _, ok := tauReduce(Root(), m)
	return !ok
}
