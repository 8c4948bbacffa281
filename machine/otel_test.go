package machine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/amp-labs/tickfsm/machine"
	"github.com/amp-labs/tickfsm/machinetest"
	"github.com/amp-labs/tickfsm/topology"
)

// installExporter swaps in an in-memory span exporter for the duration
// of the test.
func installExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()

	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
	})

	return exporter
}

//nolint:paralleltest // Swaps the global tracer provider.
func TestLifecycleSpans(t *testing.T) {
	ctx := context.Background()
	exporter := installExporter(t)

	topo, err := topology.New(
		[]topology.StateID{"a", "b"},
		[]topology.Edge{{From: "a", To: "b"}},
		"a",
		topology.WithName("spans"),
	)
	require.NoError(t, err)

	m, err := machine.New(topo, []machine.Transition{
		{
			From:    "a",
			To:      "b",
			Guard:   func(context.Context, machine.State) bool { return false },
			Convert: identityConvert(&machinetest.CountingState{StateID: "b"}),
		},
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx, &machinetest.CountingState{StateID: "a"}))
	require.NoError(t, m.Step(ctx))
	require.NoError(t, m.Stop(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	assert.Equal(t, "machine.start", spans[0].Name)
	assert.Equal(t, "machine.step", spans[1].Name)
	assert.Equal(t, "machine.stop", spans[2].Name)

	assert.Contains(t, spans[0].Attributes, attribute.String("machine", "spans"))
	assert.Contains(t, spans[1].Attributes, attribute.String("state", "a"))
}

//nolint:paralleltest // Swaps the global tracer provider.
func TestFatalStepSpanRecordsError(t *testing.T) {
	ctx := context.Background()
	exporter := installExporter(t)

	active := &machinetest.FallibleScript{StateID: "a", ExecuteErr: errTestBoom}

	m, err := machine.NewFallible(faultTopo(t), []machine.FallibleTransition{
		{From: "a", To: "b", Guard: neverReady, Convert: fConvert(&machinetest.FallibleScript{StateID: "b"})},
		{From: "fault", To: "a", Guard: neverReady, Convert: fConvert(active)},
	}, func(error) machine.FallibleState {
		return &machinetest.FallibleScript{StateID: "fault", EntryErr: errTestEntryFail}
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx, active))
	require.ErrorIs(t, m.Step(ctx), machine.ErrErrorStateFailed)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	step := spans[1]
	assert.Equal(t, "machine.step", step.Name)
	assert.Equal(t, codes.Error, step.Status.Code)
	require.Len(t, step.Events, 1)
	assert.Equal(t, "exception", step.Events[0].Name)
}
