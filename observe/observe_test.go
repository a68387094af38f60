package observe_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/observe"
)

func TestTraceThenDeliver(t *testing.T) {
	r := observe.NewRegistry()
	p := event.NewProcessID("p")
	sink := make(chan event.Event, 4)

	require.NoError(t, r.Trace(context.Background(), p, sink))
	ev := event.NewExit(p, "normal")
	require.NoError(t, r.Deliver(ev))

	got := <-sink
	assert.Equal(t, ev, got)
}

func TestPreemptTransfersDelivery(t *testing.T) {
	r := observe.NewRegistry()
	p := event.NewProcessID("p")
	old := make(chan event.Event, 4)
	newSink := make(chan event.Event, 4)

	require.NoError(t, r.Trace(context.Background(), p, old))
	ok, err := r.Preempt(context.Background(), p, newSink)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.Deliver(event.NewSend(p, p, "x")))
	select {
	case <-old:
		t.Fatal("old sink should no longer receive events")
	default:
	}
	assert.Len(t, newSink, 1)
}

func TestPreemptAfterExitIsNonFatal(t *testing.T) {
	r := observe.NewRegistry()
	p := event.NewProcessID("p")
	sink := make(chan event.Event, 4)

	require.NoError(t, r.Trace(context.Background(), p, sink))
	require.NoError(t, r.Deliver(event.NewExit(p, "normal")))

	ok, err := r.Preempt(context.Background(), p, make(chan event.Event, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeliverUnknownProcessErrors(t *testing.T) {
	r := observe.NewRegistry()
	err := r.Deliver(event.NewExit(event.NewProcessID("ghost"), "x"))
	assert.Error(t, err)
}
