package lifecycle

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts sweep activity. A nil *Metrics records nothing.
type Metrics struct {
	sweeps        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	failures      *prometheus.CounterVec
	refreshErrors prometheus.Counter
	duration      prometheus.Histogram
}

// NewMetrics registers the sweep collectors on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordrefab",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Auto-sweep runs by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordrefab",
			Subsystem: "sweep",
			Name:      "transitions_total",
			Help:      "Status transitions confirmed by the backend.",
		}, []string{"from", "to"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordrefab",
			Subsystem: "sweep",
			Name:      "failures_total",
			Help:      "Status patches that failed, by target status.",
		}, []string{"to"}),
		refreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordrefab",
			Subsystem: "sweep",
			Name:      "refresh_errors_total",
			Help:      "Order list fetches that failed.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ordrefab",
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Wall time of a sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{m.sweeps, m.transitions, m.failures, m.refreshErrors, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeSweep(r SweepReport) {
	if m == nil {
		return
	}
	if r.Skipped {
		m.sweeps.WithLabelValues("skipped").Inc()
		return
	}
	outcome := "ok"
	if len(r.Failures) > 0 {
		outcome = "partial"
	}
	m.sweeps.WithLabelValues(outcome).Inc()
	m.duration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
}

func (m *Metrics) observeTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) observeFailure(to string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(to).Inc()
}

func (m *Metrics) observeRefreshError() {
	if m == nil {
		return
	}
	m.refreshErrors.Inc()
}
