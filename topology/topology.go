// Package topology describes and validates the static transition graph of a
// machine: the declared state set, the directed edges in declaration order,
// the initial state, and an optional designated error state.
//
// A Topology is checked once, before any machine built on it starts
// running. Validation is pure; a failed New leaves no observable state
// behind.
package topology

import (
	"errors"
	"fmt"
)

// StateID identifies one state of the declared, finite state set.
type StateID string

// Edge is a directed transition between two declared states.
type Edge struct {
	From StateID
	To   StateID
}

// Validation errors. Each is wrapped with the offending identifier.
var (
	ErrUnknownState      = errors.New("state is not declared in the topology")
	ErrDuplicateState    = errors.New("state declared more than once")
	ErrDuplicateEdge     = errors.New("edge declared more than once")
	ErrInvalidErrorState = errors.New("error state is not declared in the topology")
)

// Topology is a validated transition graph. It is immutable after New.
type Topology struct {
	name          string
	states        []StateID
	members       map[StateID]struct{}
	edges         []Edge
	edgeSet       map[Edge]struct{}
	initial       StateID
	errorState    StateID
	hasErrorState bool
}

// Option configures optional topology attributes before validation.
type Option func(*Topology)

// WithName sets the machine name used in trace events and metric labels.
func WithName(name string) Option {
	return func(t *Topology) {
		t.name = name
	}
}

// WithErrorState designates the state that fault recovery transitions
// into. The state must be declared; it may coincide with a normal state
// and may have outgoing edges.
func WithErrorState(id StateID) Option {
	return func(t *Topology) {
		t.errorState = id
		t.hasErrorState = true
	}
}

// New validates the declared states, edges, and initial state and returns
// an immutable Topology. Edge declaration order is preserved; it is the
// guard evaluation order at runtime.
func New(states []StateID, edges []Edge, initial StateID, opts ...Option) (*Topology, error) {
	t := &Topology{
		name:    "machine",
		members: make(map[StateID]struct{}, len(states)),
		edgeSet: make(map[Edge]struct{}, len(edges)),
	}

	for _, opt := range opts {
		opt(t)
	}

	for _, s := range states {
		if _, dup := t.members[s]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateState, s)
		}

		t.members[s] = struct{}{}
		t.states = append(t.states, s)
	}

	if !t.Contains(initial) {
		return nil, fmt.Errorf("%w: initial state %q", ErrUnknownState, initial)
	}

	t.initial = initial

	for _, e := range edges {
		if !t.Contains(e.From) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownState, e.From)
		}

		if !t.Contains(e.To) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownState, e.To)
		}

		if _, dup := t.edgeSet[e]; dup {
			return nil, fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, e.From, e.To)
		}

		t.edgeSet[e] = struct{}{}
		t.edges = append(t.edges, e)
	}

	if t.hasErrorState && !t.Contains(t.errorState) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidErrorState, t.errorState)
	}

	return t, nil
}

// Name returns the machine name.
func (t *Topology) Name() string {
	return t.name
}

// States returns the declared states in declaration order.
func (t *Topology) States() []StateID {
	out := make([]StateID, len(t.states))
	copy(out, t.states)

	return out
}

// Edges returns the declared edges in declaration order.
func (t *Topology) Edges() []Edge {
	out := make([]Edge, len(t.edges))
	copy(out, t.edges)

	return out
}

// Initial returns the declared initial state.
func (t *Topology) Initial() StateID {
	return t.initial
}

// ErrorState returns the designated error state, if one was declared.
func (t *Topology) ErrorState() (StateID, bool) {
	return t.errorState, t.hasErrorState
}

// Contains reports whether id is a declared state.
func (t *Topology) Contains(id StateID) bool {
	_, ok := t.members[id]

	return ok
}

// HasEdge reports whether e is a declared edge.
func (t *Topology) HasEdge(e Edge) bool {
	_, ok := t.edgeSet[e]

	return ok
}

// Outgoing returns the edges leaving from, preserving declaration order.
func (t *Topology) Outgoing(from StateID) []Edge {
	var out []Edge

	for _, e := range t.edges {
		if e.From == from {
			out = append(out, e)
		}
	}

	return out
}
