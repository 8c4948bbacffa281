package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMermaid(t *testing.T) {
	t.Parallel()

	topo, err := New(
		[]StateID{"WaitForLaunch", "Launch", "HandleFault"},
		[]Edge{
			{From: "WaitForLaunch", To: "Launch"},
			{From: "HandleFault", To: "WaitForLaunch"},
		},
		"WaitForLaunch",
		WithErrorState("HandleFault"),
	)
	require.NoError(t, err)

	out := topo.Mermaid()

	assert.Contains(t, out, "stateDiagram-v2")
	assert.Contains(t, out, "[*] --> WaitForLaunch")
	assert.Contains(t, out, "HandleFault: HandleFault (error state)")
	assert.Contains(t, out, "WaitForLaunch --> Launch")
	assert.Contains(t, out, "HandleFault --> WaitForLaunch")

	// Launch has no outgoing edge; it is rendered as terminal.
	assert.Contains(t, out, "Launch --> [*]")
}
