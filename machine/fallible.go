package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/amp-labs/tickfsm/mailbox"
	"github.com/amp-labs/tickfsm/topology"
	"github.com/amp-labs/tickfsm/trace"
)

// FallibleState is the capability set of a state whose operations may
// fail with a domain error. Failures never surface from Step directly;
// they are intercepted by fault recovery and routed into the topology's
// designated error state.
type FallibleState interface {
	ID() topology.StateID
	OnEntry(ctx context.Context) error
	Execute(ctx context.Context) error
	OnExit(ctx context.Context) error
}

// FallibleGuard decides whether an edge is ready to fire this tick. A
// guard failure triggers fault recovery. A nil FallibleGuard is always
// ready.
type FallibleGuard func(ctx context.Context, current FallibleState) (bool, error)

// FallibleConvert consumes the exited outgoing state object and produces
// the incoming one. A conversion failure triggers fault recovery; the
// outgoing object is already consumed at that point.
type FallibleConvert func(from FallibleState) (FallibleState, error)

// RecoverFunc builds the error state object from a captured failure
// value. It is the error state's construction path, distinct from the
// per-edge conversions, and must return a state identifying as the
// topology's designated error state.
type RecoverFunc func(cause error) FallibleState

// FallibleTransition binds fallible behavior to one declared edge.
type FallibleTransition struct {
	From    topology.StateID
	To      topology.StateID
	Guard   FallibleGuard
	Convert FallibleConvert
}

func (t FallibleTransition) edge() topology.Edge { return topology.Edge{From: t.From, To: t.To} }

func (t FallibleTransition) hasConvert() bool { return t.Convert != nil }

// FallibleMachine drives a state machine whose operations may fail.
// Any entry, execute, exit, guard, or conversion failure forces an
// unconditional transition into the designated error state, bypassing
// guard evaluation. Only a failure of the error state itself escapes
// Step, as ErrErrorStateFailed, leaving the machine Errored.
type FallibleMachine struct {
	topo      *topology.Topology
	outgoing  map[topology.StateID][]FallibleTransition
	recoverFn RecoverFunc
	errState  topology.StateID
	exchange  *mailbox.Exchange
	instance  string

	current   FallibleState
	currentID topology.StateID
	status    Status
}

// NewFallible builds a fallible machine over a validated topology. The
// topology must designate an error state and recoverFn must be non-nil.
func NewFallible(
	topo *topology.Topology,
	transitions []FallibleTransition,
	recoverFn RecoverFunc,
	opts ...Option,
) (*FallibleMachine, error) {
	errState, ok := topo.ErrorState()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoErrorState, topo.Name())
	}

	if recoverFn == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingRecover, topo.Name())
	}

	bound, err := bindEdges(topo, transitions)
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &FallibleMachine{
		topo:      topo,
		outgoing:  orderOutgoing(topo, bound),
		recoverFn: recoverFn,
		errState:  errState,
		exchange:  o.exchange,
		instance:  newInstanceHash(),
		currentID: topo.Initial(),
	}, nil
}

// Start makes the machine Running with the supplied initial state
// object. Allowed from any status except Running; restarting an Errored
// machine is the external recovery path. An entry failure of the initial
// state triggers fault recovery before Start returns.
func (m *FallibleMachine) Start(ctx context.Context, initial FallibleState) error {
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

	if err := m.current.OnEntry(ctx); err != nil {
		if ferr := m.recoverFrom(ctx, err, false); ferr != nil {
			recordSpanError(span, ferr)

			return ferr
		}
	}

	return nil
}

// Step runs one tick, exactly like the infallible variant except that
// any operation failure is captured and routed through fault recovery,
// terminating the tick. A recovered fault is not an error from the
// caller's perspective; only ErrErrorStateFailed is.
func (m *FallibleMachine) Step(ctx context.Context) error {
	if m.status != StatusRunning {
		return ErrNotRunning
	}

	ctx, span := startStepSpan(ctx, m.topo.Name(), m.currentID)
	defer span.End()

	started := time.Now()
	ticked := m.currentID

	m.deliverInbound()

	trace.Emit(trace.CategoryExecute, trace.Eventf(m.topo.Name(), "Execute", string(m.currentID)))

	if err := m.current.Execute(ctx); err != nil {
		ferr := m.recoverFrom(ctx, err, true)

		observeStep(m.topo.Name(), ticked, m.instance, outcomeError, false, time.Since(started))

		if ferr != nil {
			recordSpanError(span, ferr)
		}

		return ferr
	}

	m.latchOutbound()

	transited := false

	for _, tr := range m.outgoing[m.currentID] {
		if tr.Guard != nil {
			ready, err := tr.Guard(ctx, m.current)
			if err != nil {
				ferr := m.recoverFrom(ctx, err, true)

				observeStep(m.topo.Name(), ticked, m.instance, outcomeError, false, time.Since(started))

				if ferr != nil {
					recordSpanError(span, ferr)
				}

				return ferr
			}

			if !ready {
				continue
			}
		}

		if ferr := m.transit(ctx, tr); ferr != nil {
			observeStep(m.topo.Name(), ticked, m.instance, outcomeError, false, time.Since(started))
			recordSpanError(span, ferr)

			return ferr
		}

		transited = true

		break
	}

	observeStep(m.topo.Name(), ticked, m.instance, outcomeSuccess, transited, time.Since(started))

	return nil
}

// Stop takes the machine out of Running. The active state's exit is
// best-effort; its failure is traced and discarded, and the machine
// still becomes Stopped.
func (m *FallibleMachine) Stop(ctx context.Context) error {
	if m.status != StatusRunning {
		return ErrNotRunning
	}

	ctx, span := startLifecycleSpan(ctx, "stop", m.topo.Name(), m.currentID)
	defer span.End()

	trace.Emit(trace.CategoryLifecycle, trace.Eventf(m.topo.Name(), "Exit", string(m.currentID)))

	if err := m.current.OnExit(ctx); err != nil {
		trace.Emit(trace.CategoryLifecycle, trace.Eventf(m.topo.Name(), "Exit failed", err.Error()))
		recordSpanError(span, err)
	}

	trace.Emit(trace.CategoryLifecycle, trace.Eventf(m.topo.Name(), "Stop", ""))

	m.current = nil
	m.status = StatusStopped

	return nil
}

// CurrentState returns the active state identifier. It has no side
// effects and is valid in any status.
func (m *FallibleMachine) CurrentState() topology.StateID {
	return m.currentID
}

// Status returns the machine's lifecycle status.
func (m *FallibleMachine) Status() Status {
	return m.status
}

// Push places msg in the inbound mailbox slot of the target state.
func (m *FallibleMachine) Push(target topology.StateID, msg any) error {
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
func (m *FallibleMachine) Poll(source topology.StateID) (any, bool, error) {
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

func (m *FallibleMachine) deliverInbound() {
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

func (m *FallibleMachine) latchOutbound() {
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

// transit fires one transition. Any failure along the way is routed
// through fault recovery; the returned error is non-nil only when
// recovery itself failed.
func (m *FallibleMachine) transit(ctx context.Context, tr FallibleTransition) error {
	trace.Emit(trace.CategoryTransitions, trace.Eventf(m.topo.Name(), "Exit", string(m.currentID)))

	if err := m.current.OnExit(ctx); err != nil {
		// The exit already failed; recovery must not attempt it again.
		return m.recoverFrom(ctx, err, false)
	}

	next, err := tr.Convert(m.current)
	if err != nil {
		// The outgoing object was consumed by the failed conversion.
		m.current = nil

		return m.recoverFrom(ctx, err, false)
	}

	m.current = next
	m.currentID = tr.To

	trace.Emit(trace.CategoryTransitions,
		trace.Eventf(m.topo.Name(), "Transit", fmt.Sprintf("%s -> %s", tr.From, tr.To)))

	observeTransition(m.topo.Name(), tr.From, tr.To, m.instance)

	trace.Emit(trace.CategoryTransitions, trace.Eventf(m.topo.Name(), "Entry", string(m.currentID)))

	if err := m.current.OnEntry(ctx); err != nil {
		// The state never completed its entry; nothing to exit.
		return m.recoverFrom(ctx, err, false)
	}

	return nil
}

// recoverFrom performs the unconditional emergency transition into the
// designated error state, carrying cause into its construction path.
// Guard evaluation is bypassed entirely. The fault is fatal when the
// error state is already active, when the recover function does not
// produce it, or when its own entry fails; the machine then becomes
// Errored and ErrErrorStateFailed is returned.
func (m *FallibleMachine) recoverFrom(ctx context.Context, cause error, exitActive bool) error {
	faulted := m.currentID

	if m.currentID == m.errState {
		m.status = StatusErrored
		observeFaultRecovery(m.topo.Name(), faulted, m.instance, true)

		return fmt.Errorf("%w: fault in active error state: %w", ErrErrorStateFailed, cause)
	}

	if exitActive && m.current != nil {
		if err := m.current.OnExit(ctx); err != nil {
			// Best-effort cleanup; the emergency transition proceeds.
			trace.Emit(trace.CategoryTransitions, trace.Eventf(m.topo.Name(), "Exit failed", err.Error()))
		}
	}

	next := m.recoverFn(cause)
	if next == nil || next.ID() != m.errState {
		m.status = StatusErrored
		observeFaultRecovery(m.topo.Name(), faulted, m.instance, true)

		return fmt.Errorf("%w: recover did not produce error state %q", ErrErrorStateFailed, m.errState)
	}

	m.current = next
	m.currentID = m.errState

	trace.Emit(trace.CategoryTransitions,
		trace.Eventf(m.topo.Name(), "Error transit", fmt.Sprintf("%s -> %s (%s)", faulted, m.errState, cause)))

	if err := m.current.OnEntry(ctx); err != nil {
		m.status = StatusErrored
		observeFaultRecovery(m.topo.Name(), faulted, m.instance, true)

		return fmt.Errorf("%w: entry failed: %w", ErrErrorStateFailed, err)
	}

	observeFaultRecovery(m.topo.Name(), faulted, m.instance, false)

	return nil
}
