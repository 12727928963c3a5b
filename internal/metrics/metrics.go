package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abusehawk_events_total",
			Help: "Total number of events consumed",
		},
	)

	EventsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abusehawk_events_malformed_total",
			Help: "Total number of events rejected at parse time",
		},
	)

	EventsLate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abusehawk_events_late_total",
			Help: "Total number of events dropped as late for their window",
		},
	)

	// Windowing metrics
	PanesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abusehawk_panes_total",
			Help: "Total number of panes fired",
		},
		[]string{"detector"},
	)

	// Alerting metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abusehawk_alerts_total",
			Help: "Total number of alerts emitted",
		},
		[]string{"category"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abusehawk_alerts_suppressed_total",
			Help: "Total number of alerts dropped by suppression",
		},
	)

	// State backend metrics
	StateErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abusehawk_state_errors_total",
			Help: "Total number of state backend failures after retry",
		},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abusehawk_detector_errors_total",
			Help: "Total number of detector pane failures",
		},
		[]string{"detector"},
	)
)
