// Command detecter is a minimal bootstrapper wiring the runtime
// verification pipeline end to end: an in-memory observe.Registry standing
// in for the real trace primitive, one instrumentation predicate, a root
// tracer, and a synthetic event stream for a single instrumented worker.
//
// Grounded on the teacher's cmd/ wiring style (a thin main that builds
// collaborators with functional options and hands them to a long-running
// coordinator), with errgroup coordinating the wait for the root tracer.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sltsclo/detecter/analyzer"
	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/instrument"
	"github.com/sltsclo/detecter/menv"
	"github.com/sltsclo/detecter/monitor"
	"github.com/sltsclo/detecter/observe"
	"github.com/sltsclo/detecter/tracer"
)

func isKind(k event.Kind) monitor.Guard {
	return func(ev event.Event) bool { return ev.Kind == k }
}

// sessionMonitor rejects a worker whose send is not answered by a receive
// as its very next event: Rec X. (send -> (receive -> X | other -> no) |
// other -> X).
func sessionMonitor() monitor.Term {
	env := menv.NewEnv().WithNamespace("session")
	var loop func() monitor.Term
	loop = func() monitor.Term {
		return monitor.Choice(env,
			monitor.Act(env, isKind(event.Send), func(event.Event) monitor.Term {
				return monitor.Choice(env,
					monitor.Act(env, isKind(event.Receive), func(event.Event) monitor.Term { return monitor.Unfold(env, loop) }),
					monitor.Act(env, func(ev event.Event) bool { return ev.Kind != event.Receive }, func(event.Event) monitor.Term { return monitor.No(env) }))
			}),
			monitor.Act(env, func(ev event.Event) bool { return ev.Kind != event.Send }, func(event.Event) monitor.Term { return monitor.Unfold(env, loop) }))
	}
	return monitor.Recurse(env, loop)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	logger := log.New(os.Stderr, "detecter: ", log.LstdFlags)
	source := observe.NewRegistry()
	history := analyzer.NewRun()
	predicate := instrument.MatchModule("worker", sessionMonitor)

	root := event.NewProcessID("root")
	done := make(chan tracer.ExitSignal, 1)
	supervisor := tracer.SupervisorFunc(func(sig tracer.ExitSignal) { done <- sig })

	rootID, err := tracer.Start(source, predicate, tracer.AnalysisInline, root, supervisor,
		tracer.WithLogger(logger), tracer.WithRun(history))
	if err != nil {
		return fmt.Errorf("start root tracer: %w", err)
	}
	logger.Printf("root tracer %s watching %s", rootID, root)

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(baseCtx)
	g.Go(func() error {
		select {
		case sig := <-done:
			return sig.Err
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	worker := event.NewProcessID("worker-1")
	deliver := func(ev event.Event) error {
		if err := source.Deliver(ev); err != nil {
			return fmt.Errorf("deliver %s: %w", ev, err)
		}
		return nil
	}

	if err := deliver(event.NewSpawn(root, event.MFA{Module: "worker", Function: "loop", Arity: 0}, worker)); err != nil {
		return err
	}
	// The real trace primitive would never emit worker's next event until
	// its owning tracer has preempted delivery; the in-memory Registry has
	// no such ordering guarantee on its own, so the demo waits for the
	// newly-spawned child tracer to complete that handoff.
	time.Sleep(10 * time.Millisecond)

	for _, ev := range []event.Event{
		event.NewSend(worker, root, "req"),
		event.NewReceive(worker, root, "ack"),
		event.NewExit(worker, "normal"),
		event.NewExit(root, "normal"),
	} {
		if err := deliver(ev); err != nil {
			return err
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("tracer tree: %w", err)
	}

	fmt.Print(history.Log().String())
	return nil
}
