package machine

import (
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceHash(t *testing.T) {
	t.Parallel()

	hexShort := regexp.MustCompile(`^[0-9a-f]{8}$`)

	a := newInstanceHash()
	b := newInstanceHash()

	assert.Regexp(t, hexShort, a)
	assert.Regexp(t, hexShort, b)
	assert.NotEqual(t, a, b)
}

func TestObserveStep(t *testing.T) {
	t.Parallel()

	// Unique instance label keeps this test isolated on the global
	// collectors.
	inst := newInstanceHash()

	observeStep("metrics_test", "a", inst, outcomeSuccess, true, time.Millisecond)
	observeStep("metrics_test", "a", inst, outcomeSuccess, true, time.Millisecond)
	observeStep("metrics_test", "a", inst, outcomeError, false, time.Millisecond)

	counter, err := stepsTotal.GetMetricWithLabelValues("metrics_test", "a", outcomeSuccess, "true", inst)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, testutil.ToFloat64(counter), 0)

	counter, err = stepsTotal.GetMetricWithLabelValues("metrics_test", "a", outcomeError, "false", inst)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, testutil.ToFloat64(counter), 0)
}

func TestObserveTransitionAndFaultRecovery(t *testing.T) {
	t.Parallel()

	inst := newInstanceHash()

	observeTransition("metrics_test", "a", "b", inst)
	observeFaultRecovery("metrics_test", "a", inst, false)
	observeFaultRecovery("metrics_test", "fault", inst, true)

	counter, err := transitionsTotal.GetMetricWithLabelValues("metrics_test", "a", "b", inst)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, testutil.ToFloat64(counter), 0)

	counter, err = faultRecoveriesTotal.GetMetricWithLabelValues("metrics_test", "fault", "true", inst)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, testutil.ToFloat64(counter), 0)
}
