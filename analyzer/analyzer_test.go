package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sltsclo/detecter/analyzer"
	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/menv"
	"github.com/sltsclo/detecter/monitor"
)

func alwaysTrue(event.Event) bool { return true }

func TestDisjunctionShortCircuitsOnYes(t *testing.T) {
	env := menv.NewEnv()
	pending := monitor.Act(env, alwaysTrue, func(event.Event) monitor.Term { return monitor.No(env) })
	m := monitor.Disjunction(env, monitor.Yes(env), pending)

	a := analyzer.NewAnalyzer()
	saturated := a.Embed(m)

	yes, ok := monitor.AsVerdict(saturated)
	require.True(t, ok, "disjunction with a Yes branch must saturate to a verdict")
	assert.True(t, yes)
}

func TestConjunctionShortCircuitsOnNo(t *testing.T) {
	env := menv.NewEnv()
	pending := monitor.Act(env, alwaysTrue, func(event.Event) monitor.Term { return monitor.Yes(env) })
	m := monitor.Conjunction(env, monitor.No(env), pending)

	a := analyzer.NewAnalyzer()
	saturated := a.Embed(m)

	yes, ok := monitor.AsVerdict(saturated)
	require.True(t, ok)
	assert.False(t, yes)
}

func TestActBindsEventIntoContext(t *testing.T) {
	env := menv.NewEnv().WithNamespace("s").WithContext(menv.NewContext())
	env.Var = "e0"
	m := monitor.Act(env, alwaysTrue, func(event.Event) monitor.Term { return monitor.Yes(menv.NewEnv()) })

	a := analyzer.NewAnalyzer()
	saturated := a.Embed(m)

	src := event.NewProcessID("p")
	log, m2 := a.Analyze(event.NewExit(src, "done"), saturated)
	require.Len(t, log, 1)
	assert.Equal(t, analyzer.RuleAct, log[0].Rule)

	bound, ok := m2.Env().Ctx.Lookup("s", "e0")
	require.True(t, ok, "the consumed event must be bound under (namespace, var)")
	assert.Equal(t, src, bound.Source)
}

func TestExternalChoicePicksMatchingBranch(t *testing.T) {
	env := menv.NewEnv()
	isSend := func(ev event.Event) bool { return ev.Kind == event.Send }
	isReceive := func(ev event.Event) bool { return ev.Kind == event.Receive }

	left := monitor.Act(env, isSend, func(event.Event) monitor.Term { return monitor.Yes(env) })
	right := monitor.Act(env, isReceive, func(event.Event) monitor.Term { return monitor.No(env) })
	m := monitor.Choice(env, left, right)

	a := analyzer.NewAnalyzer()
	saturated := a.Embed(m)

	src := event.NewProcessID("p")
	peer := event.NewProcessID("q")
	log, m2 := a.Analyze(event.NewSend(src, peer, "hi"), saturated)
	require.Len(t, log, 1)
	assert.Equal(t, analyzer.RuleChsL, log[0].Rule)

	yes, ok := monitor.AsVerdict(m2)
	require.True(t, ok)
	assert.True(t, yes)
}

func TestRecursionUnfoldsOnEachEvent(t *testing.T) {
	env := menv.NewEnv().WithNamespace("outer")
	env.Var = "X"

	var loop func() monitor.Term
	loop = func() monitor.Term {
		return monitor.Act(env, alwaysTrue, func(event.Event) monitor.Term {
			return monitor.Unfold(env, loop)
		})
	}
	m := monitor.Recurse(env, loop)

	a := analyzer.NewAnalyzer()
	saturated := a.Embed(m)
	_, ok := monitor.AsAct(saturated)
	require.True(t, ok, "unfolding Rec once must yield the Act body")

	src := event.NewProcessID("p")
	log, m2 := a.Analyze(event.NewExit(src, "x"), saturated)
	// One mAct step, then mRec-var re-enters the loop, then it saturates
	// back down to an Act node awaiting the next event.
	require.GreaterOrEqual(t, len(log), 2)
	_, ok = monitor.AsAct(m2)
	assert.True(t, ok)
}

func TestVerdictCallbackFiresOnce(t *testing.T) {
	env := menv.NewEnv()
	calls := 0
	a := analyzer.NewAnalyzer(analyzer.WithVerdictCallback(func(yes bool, m monitor.Term, log analyzer.Log) {
		calls++
	}))

	m := monitor.Act(env, alwaysTrue, func(event.Event) monitor.Term { return monitor.Yes(env) })
	saturated := a.Embed(m)

	src := event.NewProcessID("p")
	_, m2 := a.Analyze(event.NewExit(src, "x"), saturated)
	_, ok := monitor.AsVerdict(m2)
	require.True(t, ok)
	assert.Equal(t, 1, calls)

	// mVrd absorbs further events without ever firing the callback again.
	_, m3 := a.Analyze(event.NewExit(src, "x"), m2)
	_, ok = monitor.AsVerdict(m3)
	require.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestAnalyzePanicsWhenTermNotReady(t *testing.T) {
	env := menv.NewEnv()
	notReady := monitor.Disjunction(env, monitor.Yes(env), monitor.Act(env, alwaysTrue, nil))

	a := analyzer.NewAnalyzer()
	src := event.NewProcessID("p")

	assert.PanicsWithError(t, "monitor term is not in ready (τ-saturated) form: Analyze called on a term with a pending τ-rule", func() {
		a.Analyze(event.NewExit(src, "x"), notReady)
	})
}

func TestRunAccumulatesReverseChronologically(t *testing.T) {
	run := analyzer.NewRun()
	first := analyzer.Log{{ID: analyzer.Root(), Rule: analyzer.RuleVrd}}
	second := analyzer.Log{{ID: analyzer.Root(), Rule: analyzer.RuleAct}}

	run.Record(first)
	run.Record(second)

	got := run.Log()
	require.Len(t, got, 2)
	assert.Equal(t, analyzer.RuleAct, got[0].Rule, "most recent call's records come first")
	assert.Equal(t, analyzer.RuleVrd, got[1].Rule)
}

func TestDerivationIndex(t *testing.T) {
	l := analyzer.Log{
		{ID: analyzer.Root(), Rule: analyzer.RuleAct},
		{ID: analyzer.Root().FirstPremise(), Rule: analyzer.RuleTauL},
	}
	idx := l.Index()

	rec, ok := idx.Get(analyzer.Root())
	require.True(t, ok)
	assert.Equal(t, analyzer.RuleAct, rec.Rule)

	_, ok = idx.Get(analyzer.DerivationID{9, 9})
	assert.False(t, ok)
}
