// Package machine executes validated state machine topologies one tick
// at a time. A machine owns exactly one live state object, delivers
// mailbox values to it, runs its execute behavior, and fires at most one
// transition per tick, choosing the first ready guard in edge
// declaration order.
//
// Machine is the infallible variant; state operations cannot fail.
// FallibleMachine intercepts operation failures and forces an
// unconditional transition into the topology's designated error state.
//
// A machine is synchronous and single-threaded by contract. No operation
// blocks, spawns goroutines, or suspends; the caller fully serializes
// access and controls timing by choosing when to call Step.
package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/amp-labs/tickfsm/mailbox"
	"github.com/amp-labs/tickfsm/topology"
	"github.com/amp-labs/tickfsm/trace"
)

// State is the capability set a state object implements. Exactly one
// state object is alive inside a running machine; during a transition
// the outgoing object is consumed by the edge's Convert to produce the
// incoming one.
type State interface {
	ID() topology.StateID
	OnEntry(ctx context.Context)
	Execute(ctx context.Context)
	OnExit(ctx context.Context)
}

// Receiver is implemented by states that accept inbound mailbox values.
// Delivery happens at the top of a tick, only while the state is active.
type Receiver interface {
	OnMessage(msg any)
}

// Producer is implemented by states that emit outbound mailbox values.
// Produce is consulted after Execute each tick; returning false latches
// nothing.
type Producer interface {
	Produce() (any, bool)
}

// Guard decides whether an edge is ready to fire this tick. A nil Guard
// is always ready.
type Guard func(ctx context.Context, current State) bool

// Convert consumes the exited outgoing state object and produces the
// incoming one. It must return a state identifying as the edge's target.
// Callers hand over ownership; the machine drops its reference to the
// outgoing object immediately after the call.
type Convert func(from State) State

// Transition binds behavior to one declared edge.
type Transition struct {
	From    topology.StateID
	To      topology.StateID
	Guard   Guard
	Convert Convert
}

func (t Transition) edge() topology.Edge { return topology.Edge{From: t.From, To: t.To} }

func (t Transition) hasConvert() bool { return t.Convert != nil }

// Machine drives an infallible state machine over a validated topology.
type Machine struct {
	topo     *topology.Topology
	outgoing map[topology.StateID][]Transition
	exchange *mailbox.Exchange
	instance string

	current   State
	currentID topology.StateID
	status    Status
}

// Option configures a machine at construction time.
type Option func(*options)

type options struct {
	exchange *mailbox.Exchange
}

// WithMailbox attaches a mailbox exchange. Without one, Push and Poll
// report unknown targets and states never receive or latch values.
func WithMailbox(ex *mailbox.Exchange) Option {
	return func(o *options) {
		o.exchange = ex
	}
}

type edgeBound interface {
	edge() topology.Edge
	hasConvert() bool
}

// bindEdges checks the supplied transitions against the topology: every
// transition sits on a declared edge, carries a conversion, and every
// declared edge is bound exactly once. The returned map is keyed by edge.
func bindEdges[T edgeBound](topo *topology.Topology, transitions []T) (map[topology.Edge]T, error) {
	bound := make(map[topology.Edge]T, len(transitions))

	for _, tr := range transitions {
		e := tr.edge()

		if !topo.HasEdge(e) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownEdge, e.From, e.To)
		}

		if _, dup := bound[e]; dup {
			return nil, fmt.Errorf("%w: %s -> %s", ErrDuplicateTransition, e.From, e.To)
		}

		if !tr.hasConvert() {
			return nil, fmt.Errorf("%w: %s -> %s", ErrMissingConvert, e.From, e.To)
		}

		bound[e] = tr
	}

	for _, e := range topo.Edges() {
		if _, ok := bound[e]; !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrUnboundEdge, e.From, e.To)
		}
	}

	return bound, nil
}

// orderOutgoing arranges bound transitions per source state in the
// topology's edge declaration order. That order is the guard evaluation
// order at runtime, regardless of the order bindings were supplied.
func orderOutgoing[T edgeBound](topo *topology.Topology, bound map[topology.Edge]T) map[topology.StateID][]T {
	out := make(map[topology.StateID][]T)

	for _, s := range topo.States() {
		for _, e := range topo.Outgoing(s) {
			out[s] = append(out[s], bound[e])
		}
	}

	return out
}

// New builds an infallible machine over a validated topology, binding
// exactly one transition per declared edge. The machine starts
// Uninitialized; call Start with the initial state object.
func New(topo *topology.Topology, transitions []Transition, opts ...Option) (*Machine, error) {
	bound, err := bindEdges(topo, transitions)
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &Machine{
		topo:      topo,
		outgoing:  orderOutgoing(topo, bound),
		exchange:  o.exchange,
		instance:  newInstanceHash(),
		currentID: topo.Initial(),
	}, nil
}

// Start makes the machine Running with the supplied initial state
// object. Allowed from any status except Running. The object must
// identify as the topology's declared initial state.
func (m *Machine) Start(ctx context.Context, initial State) error {
	if m.status == StatusRunning {
		return ErrAlreadyRunning
	}

	if initial.ID() != m.topo.Initial() {
		return fmt.Errorf("%w: got %q, declared %q", ErrInitialStateMismatch, initial.ID(), m.topo.Initial())
	}

	ctx, span := startLifecycleSpan(ctx, "start", m.topo.Name(), initial.ID())
	defer span.End()

	trace.Emit(trace.CategoryLifecycle, trace.Eventf(m.topo.Name(), "Start", ""))

	m.current = initial
	m.currentID = initial.ID()
	m.status = StatusRunning

	trace.Emit(trace.CategoryLifecycle, trace.Eventf(m.topo.Name(), "Entry", string(m.currentID)))
	m.current.OnEntry(ctx)

	return nil
}

// Step runs one tick: deliver any pending inbound value to the active
// state, run its Execute, latch its produced outbound value, then
// evaluate the outgoing guards in declaration order and fire the first
// ready transition. No ready guard leaves the state unchanged; a state
// with no outgoing edges is simply terminal.
func (m *Machine) Step(ctx context.Context) error {
	if m.status != StatusRunning {
		return ErrNotRunning
	}

	ctx, span := startStepSpan(ctx, m.topo.Name(), m.currentID)
	defer span.End()

	started := time.Now()
	ticked := m.currentID

	m.deliverInbound()

	trace.Emit(trace.CategoryExecute, trace.Eventf(m.topo.Name(), "Execute", string(m.currentID)))
	m.current.Execute(ctx)

	m.latchOutbound()

	transited := false

	for _, tr := range m.outgoing[m.currentID] {
		if tr.Guard != nil && !tr.Guard(ctx, m.current) {
			continue
		}

		m.transit(ctx, tr)

		transited = true

		break
	}

	observeStep(m.topo.Name(), ticked, m.instance, outcomeSuccess, transited, time.Since(started))

	return nil
}

// Stop takes the machine out of Running: the active state exits and the
// status becomes Stopped. The active identifier remains observable via
// CurrentState.
func (m *Machine) Stop(ctx context.Context) error {
	if m.status != StatusRunning {
		return ErrNotRunning
	}

	ctx, span := startLifecycleSpan(ctx, "stop", m.topo.Name(), m.currentID)
	defer span.End()

	trace.Emit(trace.CategoryLifecycle, trace.Eventf(m.topo.Name(), "Exit", string(m.currentID)))
	m.current.OnExit(ctx)

	trace.Emit(trace.CategoryLifecycle, trace.Eventf(m.topo.Name(), "Stop", ""))

	m.current = nil
	m.status = StatusStopped

	return nil
}

// CurrentState returns the active state identifier. It has no side
// effects and is valid in any status; before the first Start it is the
// declared initial state.
func (m *Machine) CurrentState() topology.StateID {
	return m.currentID
}

// Status returns the machine's lifecycle status.
func (m *Machine) Status() Status {
	return m.status
}

// Push places msg in the inbound mailbox slot of the target state. The
// target does not need to be active.
func (m *Machine) Push(target topology.StateID, msg any) error {
	if m.exchange == nil {
		return fmt.Errorf("%w: inbound %q", mailbox.ErrUnknownTarget, target)
	}

	if err := m.exchange.Push(target, msg); err != nil {
		return err
	}

	trace.Emit(trace.CategoryMessages, trace.Eventf(m.topo.Name(), "Push", string(target)))

	return nil
}

// Poll reads the latched outbound value of the given state without
// clearing it.
func (m *Machine) Poll(source topology.StateID) (any, bool, error) {
	if m.exchange == nil {
		return nil, false, fmt.Errorf("%w: outbound %q", mailbox.ErrUnknownTarget, source)
	}

	v, ok, err := m.exchange.Poll(source)
	if err != nil {
		return nil, false, err
	}

	trace.Emit(trace.CategoryMessages, trace.Eventf(m.topo.Name(), "Poll", string(source)))

	return v, ok, nil
}

// deliverInbound hands the pending inbound value, if any, to the active
// state. States that do not implement Receiver leave the value pending.
func (m *Machine) deliverInbound() {
	if m.exchange == nil {
		return
	}

	r, ok := m.current.(Receiver)
	if !ok {
		return
	}

	v, ok := m.exchange.TakeInbound(m.currentID)
	if !ok {
		return
	}

	trace.Emit(trace.CategoryMessages, trace.Eventf(m.topo.Name(), "Deliver", string(m.currentID)))
	r.OnMessage(v)
}

// latchOutbound stores the active state's produced value, if any, in its
// outbound slot.
func (m *Machine) latchOutbound() {
	if m.exchange == nil {
		return
	}

	p, ok := m.current.(Producer)
	if !ok {
		return
	}

	v, ok := p.Produce()
	if !ok {
		return
	}

	trace.Emit(trace.CategoryMessages, trace.Eventf(m.topo.Name(), "Latch", string(m.currentID)))
	m.exchange.Latch(m.currentID, v)
}

// transit fires one transition: the outgoing state exits and is consumed
// by the edge's conversion to build the incoming state, which then
// enters. The active identifier is the edge's declared target.
func (m *Machine) transit(ctx context.Context, tr Transition) {
	trace.Emit(trace.CategoryTransitions, trace.Eventf(m.topo.Name(), "Exit", string(m.currentID)))
	m.current.OnExit(ctx)

	next := tr.Convert(m.current)

	m.current = next
	m.currentID = tr.To

	trace.Emit(trace.CategoryTransitions,
		trace.Eventf(m.topo.Name(), "Transit", fmt.Sprintf("%s -> %s", tr.From, tr.To)))

	observeTransition(m.topo.Name(), tr.From, tr.To, m.instance)

	trace.Emit(trace.CategoryTransitions, trace.Eventf(m.topo.Name(), "Entry", string(m.currentID)))
	m.current.OnEntry(ctx)
}
