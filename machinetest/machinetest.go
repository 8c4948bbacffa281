// Package machinetest provides doubles and helpers for testing state
// machines: a trace event recorder, counting state implementations, and
// a step-until driver.
package machinetest

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amp-labs/tickfsm/topology"
	"github.com/amp-labs/tickfsm/trace"
)

// Recorder captures emitted trace events for assertions.
type Recorder struct {
	Events []string
}

// Hook returns a trace hook appending every event to the recorder.
func (r *Recorder) Hook() trace.Hook {
	return func(event string) {
		r.Events = append(r.Events, event)
	}
}

// Install registers the recorder as the process-wide trace hook for the
// given categories and removes it when the test finishes.
func (r *Recorder) Install(t *testing.T, categories trace.Category) {
	t.Helper()

	trace.SetHook(r.Hook(), categories)
	t.Cleanup(trace.ClearHook)
}

// Contains reports whether an event was recorded.
func (r *Recorder) Contains(event string) bool {
	return slices.Contains(r.Events, event)
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.Events = nil
}

// CountingState is an infallible state double counting its lifecycle
// calls. It receives inbound values into Received and, when Output is
// set, produces outbound values from it.
type CountingState struct {
	StateID topology.StateID

	EntryCalls   int
	ExecuteCalls int
	ExitCalls    int

	// OnExecute, when set, runs on every Execute after the counter is
	// bumped.
	OnExecute func()

	Received []any

	// Output, when set, is consulted after every Execute for an outbound
	// value to latch.
	Output func() (any, bool)
}

func (s *CountingState) ID() topology.StateID { return s.StateID }

func (s *CountingState) OnEntry(context.Context) { s.EntryCalls++ }

func (s *CountingState) Execute(context.Context) {
	s.ExecuteCalls++

	if s.OnExecute != nil {
		s.OnExecute()
	}
}

func (s *CountingState) OnExit(context.Context) { s.ExitCalls++ }

func (s *CountingState) OnMessage(msg any) { s.Received = append(s.Received, msg) }

func (s *CountingState) Produce() (any, bool) {
	if s.Output == nil {
		return nil, false
	}

	return s.Output()
}

// FallibleScript is a fallible state double. Each operation counts its
// calls and fails with the corresponding error field when set.
type FallibleScript struct {
	StateID topology.StateID

	EntryErr   error
	ExecuteErr error
	ExitErr    error

	EntryCalls   int
	ExecuteCalls int
	ExitCalls    int

	// OnExecute, when set, runs on every Execute and its result replaces
	// ExecuteErr for that call.
	OnExecute func() error
}

func (s *FallibleScript) ID() topology.StateID { return s.StateID }

func (s *FallibleScript) OnEntry(context.Context) error {
	s.EntryCalls++

	return s.EntryErr
}

func (s *FallibleScript) Execute(context.Context) error {
	s.ExecuteCalls++

	if s.OnExecute != nil {
		return s.OnExecute()
	}

	return s.ExecuteErr
}

func (s *FallibleScript) OnExit(context.Context) error {
	s.ExitCalls++

	return s.ExitErr
}

// Stepper is the machine surface StepUntil drives.
type Stepper interface {
	Step(ctx context.Context) error
	CurrentState() topology.StateID
}

// StepUntil steps the machine until the wanted state is active, failing
// the test if it does not happen within maxSteps ticks or a step errors.
func StepUntil(t *testing.T, ctx context.Context, m Stepper, want topology.StateID, maxSteps int) {
	t.Helper()

	for i := 0; i < maxSteps; i++ {
		if m.CurrentState() == want {
			return
		}

		require.NoError(t, m.Step(ctx))
	}

	require.Equal(t, want, m.CurrentState(), "state not reached within %d steps", maxSteps)
}
