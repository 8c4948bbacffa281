// Package mailbox implements single-slot message exchange between a
// running machine and its environment. Each declared slot holds at most
// one value.
//
// Inbound slots buffer the latest value pushed toward a state; a later
// push overwrites an undelivered one, and delivery clears the slot.
// Outbound slots latch the most recent value a state produced; polling
// reads the latch without clearing it.
package mailbox

import (
	"errors"
	"fmt"

	"github.com/amp-labs/tickfsm/topology"
)

var (
	// ErrUnknownTarget is returned when no slot is declared for the
	// addressed state in the addressed direction.
	ErrUnknownTarget = errors.New("no mailbox slot declared for state")

	// ErrTypeMismatch is returned by the typed accessors when the slot
	// value is not of the requested type.
	ErrTypeMismatch = errors.New("mailbox value has unexpected type")
)

type slot struct {
	value   any
	present bool
}

// Exchange owns the declared mailbox slots of one machine instance.
// It is not safe for concurrent use; like the machine it serves, it is
// driven from a single goroutine.
type Exchange struct {
	inbound  map[topology.StateID]*slot
	outbound map[topology.StateID]*slot
}

// ExchangeOption declares slots on a new Exchange.
type ExchangeOption func(*Exchange)

// WithInbound declares an inbound slot for each given state.
func WithInbound(ids ...topology.StateID) ExchangeOption {
	return func(e *Exchange) {
		for _, id := range ids {
			e.inbound[id] = &slot{}
		}
	}
}

// WithOutbound declares an outbound slot for each given state.
func WithOutbound(ids ...topology.StateID) ExchangeOption {
	return func(e *Exchange) {
		for _, id := range ids {
			e.outbound[id] = &slot{}
		}
	}
}

// NewExchange builds an Exchange with the declared slots.
func NewExchange(opts ...ExchangeOption) *Exchange {
	e := &Exchange{
		inbound:  make(map[topology.StateID]*slot),
		outbound: make(map[topology.StateID]*slot),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// HasInbound reports whether an inbound slot is declared for id.
func (e *Exchange) HasInbound(id topology.StateID) bool {
	_, ok := e.inbound[id]

	return ok
}

// HasOutbound reports whether an outbound slot is declared for id.
func (e *Exchange) HasOutbound(id topology.StateID) bool {
	_, ok := e.outbound[id]

	return ok
}

// Push places msg in the inbound slot of the target state, overwriting
// any undelivered value. The target does not need to be active; the
// value waits until the target becomes active, or is overwritten first.
func (e *Exchange) Push(target topology.StateID, msg any) error {
	s, ok := e.inbound[target]
	if !ok {
		return fmt.Errorf("%w: inbound %q", ErrUnknownTarget, target)
	}

	s.value = msg
	s.present = true

	return nil
}

// Poll reads the latched outbound value of the given state without
// clearing it. Before the state first produces a value, Poll returns
// (nil, false, nil).
func (e *Exchange) Poll(source topology.StateID) (any, bool, error) {
	s, ok := e.outbound[source]
	if !ok {
		return nil, false, fmt.Errorf("%w: outbound %q", ErrUnknownTarget, source)
	}

	return s.value, s.present, nil
}

// TakeInbound removes and returns the pending inbound value for id, if
// any. The machine calls this when delivering to the active state.
func (e *Exchange) TakeInbound(id topology.StateID) (any, bool) {
	s, ok := e.inbound[id]
	if !ok || !s.present {
		return nil, false
	}

	v := s.value
	s.value = nil
	s.present = false

	return v, true
}

// Latch stores msg as the outbound value of id, replacing any previous
// value. Latching into an undeclared slot is a silent no-op; production
// by states without a declared outbound slot is simply not observable.
func (e *Exchange) Latch(id topology.StateID, msg any) {
	s, ok := e.outbound[id]
	if !ok {
		return
	}

	s.value = msg
	s.present = true
}

// PushAs pushes a value of a known type. It exists for symmetry with
// PollAs; Push accepts any value directly.
func PushAs[T any](e *Exchange, target topology.StateID, msg T) error {
	return e.Push(target, msg)
}

// PollAs reads the latched outbound value of the given state as type T.
// A latched value of a different type yields ErrTypeMismatch.
func PollAs[T any](e *Exchange, source topology.StateID) (T, bool, error) {
	var zero T

	v, ok, err := e.Poll(source)
	if err != nil || !ok {
		return zero, false, err
	}

	typed, isT := v.(T)
	if !isT {
		return zero, false, fmt.Errorf("%w: outbound %q holds %T", ErrTypeMismatch, source, v)
	}

	return typed, true, nil
}
