package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels calls that completed normally.
	OutcomeSuccess = "success"
	// OutcomeError labels failed calls (transport or remote application errors).
	OutcomeError = "error"
	// OutcomeStale labels dashboard responses discarded because a newer snapshot superseded them.
	OutcomeStale = "stale"
	// OutcomeRejected labels submissions refused locally (busy gate, duplicate feedback).
	OutcomeRejected = "rejected"
)

const namespace = "log_console"

var (
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Calls made to the log backend, partitioned by call and outcome.",
		},
		[]string{"call", "outcome"},
	)

	backendRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_seconds",
			Help:      "Log backend call latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"call"},
	)

	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Assistant analysis submissions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_seconds",
			Help:      "Assistant analysis round-trip latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		},
	)

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_pane_updates_total",
			Help:      "Dashboard pane fetch results, partitioned by pane and outcome.",
		},
		[]string{"pane", "outcome"},
	)

	feedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Feedback submissions on assistant turns, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_cache_lookups_total",
			Help:      "Aggregation cache lookups, partitioned by result (hit or miss).",
		},
		[]string{"result"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open operator sessions.",
		},
	)
)

// Register attaches log-console collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		backendRequestsTotal,
		backendRequestSeconds,
		analysisTotal,
		analysisSeconds,
		refreshTotal,
		feedbackTotal,
		cacheLookupsTotal,
		activeSessions,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveBackendCall records one log backend call.
func ObserveBackendCall(call string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	backendRequestsTotal.WithLabelValues(call, outcome).Inc()
	backendRequestSeconds.WithLabelValues(call).Observe(seconds(duration))
}

// ObserveAnalysis records an analysis submission. Rejected submissions carry no latency.
func ObserveAnalysis(duration time.Duration, outcome string) {
	analysisTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeRejected {
		return
	}
	analysisSeconds.Observe(seconds(duration))
}

// ObservePaneUpdate records whether a dashboard pane fetch was applied, failed, or discarded.
func ObservePaneUpdate(pane, outcome string) {
	refreshTotal.WithLabelValues(pane, outcome).Inc()
}

// ObserveFeedback records a feedback submission outcome.
func ObserveFeedback(outcome string) {
	feedbackTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheLookup records an aggregation cache hit or miss.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { activeSessions.Dec() }

func seconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
