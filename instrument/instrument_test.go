package instrument_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/instrument"
	"github.com/sltsclo/detecter/menv"
	"github.com/sltsclo/detecter/monitor"
)

func TestNoneNeverInstruments(t *testing.T) {
	_, ok := instrument.None(event.MFA{Module: "anything"})
	assert.False(t, ok)
}

func TestMatchModuleBuildsFreshTermEachTime(t *testing.T) {
	built := 0
	predicate := instrument.MatchModule("worker", func() monitor.Term {
		built++
		return monitor.Yes(menv.NewEnv())
	})

	_, ok := predicate(event.MFA{Module: "other", Function: "f"})
	assert.False(t, ok)
	assert.Equal(t, 0, built)

	m1, ok := predicate(event.MFA{Module: "worker", Function: "f"})
	require.True(t, ok)
	m2, ok := predicate(event.MFA{Module: "worker", Function: "g"})
	require.True(t, ok)

	assert.Equal(t, 2, built)
	assert.NotNil(t, m1)
	assert.NotNil(t, m2)
}
