package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Descriptor is the serialized shape of a topology, as emitted by an
// external generator or front end. It carries identifiers only; behaviors
// (entry/execute/exit implementations, guards, conversions) are bound in
// code when the machine is constructed.
type Descriptor struct {
	Name       string           `json:"name,omitempty"       yaml:"name,omitempty"`
	Initial    StateID          `json:"initial"              yaml:"initial"`
	ErrorState StateID          `json:"errorState,omitempty" yaml:"errorState,omitempty"`
	States     []StateID        `json:"states"               yaml:"states"`
	Edges      []EdgeDescriptor `json:"edges"                yaml:"edges"`
}

// EdgeDescriptor is the serialized form of a directed edge.
type EdgeDescriptor struct {
	From StateID `json:"from" yaml:"from"`
	To   StateID `json:"to"   yaml:"to"`
}

// ParseDescriptor decodes a YAML topology descriptor.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor

	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse topology descriptor: %w", err)
	}

	return &d, nil
}

// LoadDescriptor reads and decodes a YAML topology descriptor from a file.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Intentional path-based loading
	if err != nil {
		return nil, fmt.Errorf("failed to read topology descriptor %q: %w", path, err)
	}

	return ParseDescriptor(data)
}

// Build validates the descriptor and returns the resulting Topology.
func (d *Descriptor) Build() (*Topology, error) {
	var opts []Option

	if d.Name != "" {
		opts = append(opts, WithName(d.Name))
	}

	if d.ErrorState != "" {
		opts = append(opts, WithErrorState(d.ErrorState))
	}

	edges := make([]Edge, 0, len(d.Edges))
	for _, e := range d.Edges {
		edges = append(edges, Edge{From: e.From, To: e.To})
	}

	return New(d.States, edges, d.Initial, opts...)
}

// Descriptor exports the topology back into its serialized shape.
func (t *Topology) Descriptor() Descriptor {
	edges := make([]EdgeDescriptor, 0, len(t.edges))
	for _, e := range t.edges {
		edges = append(edges, EdgeDescriptor{From: e.From, To: e.To})
	}

	d := Descriptor{
		Name:    t.name,
		Initial: t.initial,
		States:  t.States(),
		Edges:   edges,
	}

	if t.hasErrorState {
		d.ErrorState = t.errorState
	}

	return d
}
