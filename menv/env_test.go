package menv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/menv"
)

func TestEnvNamespaceDefaultsToGlobal(t *testing.T) {
	e := menv.NewEnv()
	assert.Equal(t, menv.Global, e.Namespace())

	e = e.WithNamespace("session")
	assert.Equal(t, "session", e.Namespace())
}

func TestPropagateKeepsChildDisplayFields(t *testing.T) {
	bound := event.NewExit(event.NewProcessID("p"), "x")
	parent := menv.NewEnv().WithNamespace("p").WithContext(menv.NewContext().Bind("p", "x", bound))
	child := menv.Env{Str: "child-display", Var: "X", Pat: "pat"}

	got := menv.Propagate(parent, child)
	assert.Equal(t, "p", got.NS)
	assert.Equal(t, 1, got.Ctx.Len())
	assert.Equal(t, "child-display", got.Str)
	assert.Equal(t, "X", got.Var)
	assert.Equal(t, "pat", got.Pat)
}
