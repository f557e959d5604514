// Package metrics exposes experiment measurements as Prometheus collectors.
//
// The CLI is short-lived, so nothing is served over HTTP. After a run the
// registry is written once in the text exposition format (--metrics-file),
// ready for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/txiso/internal/store"
)

const namespace = "txiso"

// Recorder implements experiment.Recorder on a private registry.
type Recorder struct {
	registry     *prometheus.Registry
	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	workspaces   prometheus.Counter
	trials       *prometheus.CounterVec
	lostUpdates  *prometheus.CounterVec
}

// New creates a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Read-modify-write units finished, by lock mode and outcome.",
		}, []string{"lock", "outcome"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Wall time of one unit from begin to commit or failure, lock waits included.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"lock"}),
		workspaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workspaces_allocated_total",
			Help:      "Workspaces handed out by the allocator.",
		}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Concurrent experiments observed, by lock mode and whether updates were lost.",
		}, []string{"lock", "anomalous"}),
		lostUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lost_updates_total",
			Help:      "Increments missing from final balances, by lock mode.",
		}, []string{"lock"}),
	}
	r.registry.MustRegister(r.units, r.unitDuration, r.workspaces, r.trials, r.lostUpdates)
	return r
}

// Registry returns the registry holding every collector.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// UnitFinished counts one unit and observes its duration.
func (r *Recorder) UnitFinished(lock store.LockMode, committed bool, elapsed time.Duration) {
	outcome := "committed"
	if !committed {
		outcome = "failed"
	}
	r.units.WithLabelValues(lock.String(), outcome).Inc()
	r.unitDuration.WithLabelValues(lock.String()).Observe(elapsed.Seconds())
}

// WorkspaceAllocated counts one allocation.
func (r *Recorder) WorkspaceAllocated() {
	r.workspaces.Inc()
}

// TrialObserved counts one experiment and adds its lost updates. Negative
// values (more increments than expected) are not counted as lost.
func (r *Recorder) TrialObserved(lock store.LockMode, lost int64) {
	r.trials.WithLabelValues(lock.String(), strconv.FormatBool(lost > 0)).Inc()
	if lost > 0 {
		r.lostUpdates.WithLabelValues(lock.String()).Add(float64(lost))
	}
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
