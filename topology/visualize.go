package topology

import (
	"fmt"
	"strings"
)

// Mermaid renders the topology as a Mermaid state diagram. The initial
// state is marked with the [*] entry arrow and the error state, if any,
// is annotated.
func (t *Topology) Mermaid() string {
	var sb strings.Builder

	sb.WriteString("stateDiagram-v2\n")
	sb.WriteString(fmt.Sprintf("    [*] --> %s\n", t.initial))

	for _, s := range t.states {
		if t.hasErrorState && s == t.errorState {
			sb.WriteString(fmt.Sprintf("    %s: %s (error state)\n", s, s))

			continue
		}

		sb.WriteString(fmt.Sprintf("    %s: %s\n", s, s))
	}

	for _, e := range t.edges {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", e.From, e.To))
	}

	// States with no outgoing edges are terminal.
	for _, s := range t.states {
		if len(t.Outgoing(s)) == 0 {
			sb.WriteString(fmt.Sprintf("    %s --> [*]\n", s))
		}
	}

	return sb.String()
}
