package machine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/amp-labs/tickfsm/topology"
)

// Metric outcome constants.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metric definitions with appropriate labels. The instance_hash label is
// a short hash of a per-instance UUID so concurrent instances of the
// same machine name remain distinguishable without unbounded
// cardinality.
var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickfsm_steps_total",
		Help: "Total number of ticks by machine, state, outcome, and whether a transition fired",
	}, []string{"machine", "state", "outcome", "transited", "instance_hash"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickfsm_transitions_total",
		Help: "Total number of fired transitions by machine, from_state, and to_state",
	}, []string{"machine", "from_state", "to_state", "instance_hash"})

	faultRecoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickfsm_fault_recoveries_total",
		Help: "Total number of intercepted faults by machine, faulting state, and whether recovery was fatal",
	}, []string{"machine", "state", "fatal", "instance_hash"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tickfsm_step_duration_seconds",
		Help:    "Duration of a single tick by machine and outcome",
		Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"machine", "outcome", "instance_hash"})
)

// newInstanceHash derives the per-instance metric label: the first 8 hex
// chars of an xxhash over a fresh UUID.
func newInstanceHash() string {
	sum := xxhash.ChecksumString64(uuid.NewString())

	return fmt.Sprintf("%016x", sum)[:8]
}

func observeStep(
	machine string,
	state topology.StateID,
	instance string,
	outcome string,
	transited bool,
	elapsed time.Duration,
) {
	stepsTotal.WithLabelValues(
		machine,
		string(state),
		outcome,
		strconv.FormatBool(transited),
		instance,
	).Inc()

	stepDuration.WithLabelValues(machine, outcome, instance).Observe(elapsed.Seconds())
}

func observeTransition(machine string, from, to topology.StateID, instance string) {
	transitionsTotal.WithLabelValues(machine, string(from), string(to), instance).Inc()
}

func observeFaultRecovery(machine string, state topology.StateID, instance string, fatal bool) {
	faultRecoveriesTotal.WithLabelValues(
		machine,
		string(state),
		strconv.FormatBool(fatal),
		instance,
	).Inc()
}
