package menv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/menv"
)

func ev(src string) event.Event {
	return event.NewExit(event.NewProcessID(src), "x")
}

func TestContextBindLookup(t *testing.T) {
	c := menv.NewContext()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Has("ns", "x"))

	c2 := c.Bind("ns", "x", ev("a"))
	assert.Equal(t, 0, c.Len(), "original context must not mutate")
	require.Equal(t, 1, c2.Len())
	got, ok := c2.Lookup("ns", "x")
	require.True(t, ok)
	assert.Equal(t, "a", got.Source.String())
}

func TestContextBindPreservesInsertionOrderOnOverwrite(t *testing.T) {
	c := menv.NewContext().
		Bind("ns", "x", ev("a")).
		Bind("ns", "y", ev("b")).
		Bind("ns", "x", ev("c"))

	require.Equal(t, 2, c.Len())
	got, _ := c.Lookup("ns", "x")
	assert.Equal(t, "c", got.Source.String(), "overwrite replaces the value")
	assert.Contains(t, c.String(), "(ns,x) ↦ exit(c, x)")
	assert.Equal(t, "{(ns,x) ↦ exit(c, x), (ns,y) ↦ exit(b, x)}", c.String(), "x keeps its original first position")
}

func TestPurgeNamespace(t *testing.T) {
	c := menv.NewContext().
		Bind("a", "x", ev("1")).
		Bind("b", "y", ev("2")).
		Bind("a", "z", ev("3"))

	purged := c.PurgeNamespace("a")
	assert.Equal(t, 1, purged.Len())
	assert.False(t, purged.Has("a", "x"))
	assert.False(t, purged.Has("a", "z"))
	assert.True(t, purged.Has("b", "y"))
}

func TestMergeLeftWins(t *testing.T) {
	left := menv.NewContext().Bind("ns", "x", ev("left"))
	right := menv.NewContext().Bind("ns", "x", ev("right")).Bind("ns", "y", ev("only-right"))

	merged := menv.Merge(left, right)
	require.Equal(t, 2, merged.Len())

	got, _ := merged.Lookup("ns", "x")
	assert.Equal(t, "left", got.Source.String(), "left wins on collision")

	got2, ok := merged.Lookup("ns", "y")
	require.True(t, ok)
	assert.Equal(t, "only-right", got2.Source.String())
}
