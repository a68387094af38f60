package tracer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/instrument"
	"github.com/sltsclo/detecter/menv"
	"github.com/sltsclo/detecter/monitor"
	"github.com/sltsclo/detecter/observe"
	"github.com/sltsclo/detecter/tracer"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func alwaysTrue(event.Event) bool { return true }

func simpleMonitor() monitor.Term {
	env := menv.NewEnv()
	return monitor.Act(env, alwaysTrue, func(event.Event) monitor.Term { return monitor.Yes(env) })
}

func TestSpawnWithoutMonitorStaysInSameTracer(t *testing.T) {
	defer tracer.Stop()
	source := observe.NewRegistry()
	root := event.NewProcessID("root")
	child := event.NewProcessID("child")

	done := make(chan tracer.ExitSignal, 1)
	supervisor := tracer.SupervisorFunc(func(sig tracer.ExitSignal) { done <- sig })

	rootID, err := tracer.Start(source, instrument.None, tracer.AnalysisInline, root, supervisor)
	require.NoError(t, err)

	require.NoError(t, source.Deliver(event.NewSpawn(root, event.MFA{Module: "m", Function: "f"}, child)))

	require.Eventually(t, func() bool {
		rt, ok := tracer.Lookup(rootID)
		if !ok {
			return false
		}
		snap := rt.Inspect()
		_, inTraced := snap.Traced[child]
		return inTraced
	}, waitFor, tick, "child should join the same tracer's traced set, not get a new routing entry")

	rt, ok := tracer.Lookup(rootID)
	require.True(t, ok)
	snap := rt.Inspect()
	assert.Empty(t, snap.Routes, "no predicate match means no routing-table entry is created")

	require.NoError(t, source.Deliver(event.NewExit(child, "normal")))
	require.NoError(t, source.Deliver(event.NewExit(root, "normal")))

	select {
	case sig := <-done:
		assert.NoError(t, sig.Err)
		assert.Equal(t, uint64(3), sig.Stats.Total(), "spawn + 2 exits, all analyzed directly by the root")
	case <-time.After(waitFor):
		t.Fatal("root tracer never reported its exit signal")
	}
}

func TestSpawnWithMonitorDetachesAndTransitionsToDirect(t *testing.T) {
	defer tracer.Stop()
	source := observe.NewRegistry()
	root := event.NewProcessID("root")
	worker := event.NewProcessID("worker-1")

	done := make(chan tracer.ExitSignal, 1)
	supervisor := tracer.SupervisorFunc(func(sig tracer.ExitSignal) { done <- sig })
	predicate := instrument.MatchModule("worker", simpleMonitor)

	rootID, err := tracer.Start(source, predicate, tracer.AnalysisInline, root, supervisor)
	require.NoError(t, err)

	require.NoError(t, source.Deliver(event.NewSpawn(root, event.MFA{Module: "worker", Function: "loop"}, worker)))

	// The routing-table entry itself is a poor thing to poll for: a
	// non-root's detach round trip can create and delete it faster than
	// any poll tick could observe. worker's membership in its own new
	// tracer's traced set, by contrast, is set before that tracer's loop
	// starts answering Inspect, so it is safe to wait on.
	var childID tracer.ID
	require.Eventually(t, func() bool {
		ct, ok := tracer.LookupTraced(worker)
		if !ok {
			return false
		}
		childID = ct.ID()
		return true
	}, waitFor, tick, "the newly spawned worker should be traced by a fresh descendant tracer")

	require.Eventually(t, func() bool {
		ct, ok := tracer.Lookup(childID)
		if !ok {
			return false
		}
		snap := ct.Inspect()
		return snap.Mode == tracer.ModeDirect
	}, waitFor, tick, "the new tracer should complete its detach and become direct")

	require.Eventually(t, func() bool {
		rt, ok := tracer.Lookup(rootID)
		if !ok {
			return false
		}
		_, stillRouted := rt.Inspect().Routes[worker]
		return !stillRouted
	}, waitFor, tick, "every ancestor's stale routing entry must be cleaned up once detach completes")

	require.NoError(t, source.Deliver(event.NewExit(worker, "normal")))
	require.NoError(t, source.Deliver(event.NewExit(root, "normal")))

	select {
	case sig := <-done:
		assert.NoError(t, sig.Err)
	case <-time.After(waitFor):
		t.Fatal("root tracer never reported its exit signal")
	}

	require.Eventually(t, func() bool {
		_, ok := tracer.Lookup(childID)
		return !ok
	}, waitFor, tick, "the worker's tracer should garbage-collect itself once its sole traced process exits")
}

func TestDetachRaceAfterExitIsHarmless(t *testing.T) {
	defer tracer.Stop()
	source := observe.NewRegistry()
	root := event.NewProcessID("root")
	worker := event.NewProcessID("worker-1")

	done := make(chan tracer.ExitSignal, 1)
	supervisor := tracer.SupervisorFunc(func(sig tracer.ExitSignal) { done <- sig })
	predicate := instrument.MatchModule("worker", simpleMonitor)

	_, err := tracer.Start(source, predicate, tracer.AnalysisInline, root, supervisor)
	require.NoError(t, err)

	require.NoError(t, source.Deliver(event.NewSpawn(root, event.MFA{Module: "worker", Function: "loop"}, worker)))

	// Wait only for the ownership handoff to register a sink for worker at
	// all — not for the detach protocol that follows it to finish. The
	// exit below is meant to race whatever of that protocol is still
	// in-flight (§4.2.3: this must be tolerated, not fatal).
	require.Eventually(t, func() bool {
		return source.Observed(worker)
	}, waitFor, tick, "worker's ownership handoff must register some observer for it")

	require.NoError(t, source.Deliver(event.NewExit(worker, "normal")))
	require.NoError(t, source.Deliver(event.NewExit(root, "normal")))

	select {
	case sig := <-done:
		assert.NoError(t, sig.Err, "an exit racing the detach protocol must never be fatal")
	case <-time.After(waitFor):
		t.Fatal("root tracer never reported its exit signal")
	}
}
