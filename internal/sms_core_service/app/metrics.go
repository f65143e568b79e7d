package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_core",
			Name:      "submissions_total",
			Help:      "Total submit calls by result.",
		},
		[]string{"result"}, // accepted, invalid, duplicate, store_error
	)

	segmentsPerRequestHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sms_core",
			Name:      "segments_per_request",
			Help:      "Number of segments a submitted body was split into.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12},
		},
	)

	transitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_core",
			Name:      "state_transitions_total",
			Help:      "Total aggregate state transitions by target state.",
		},
		[]string{"state"},
	)

	callbacksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_core",
			Name:      "transport_callbacks_total",
			Help:      "Total transport callbacks by kind and handling result.",
		},
		[]string{"kind", "result"}, // result: recorded, duplicate, conflict, stale, unknown, invalid_token, error
	)

	dispatchErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sms_core",
			Name:      "dispatch_errors_total",
			Help:      "Segments the transport refused synchronously.",
		},
	)

	redrivenCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_core",
			Name:      "redriven_requests_total",
			Help:      "Requests re-driven by recovery passes, by source state.",
		},
		[]string{"from_state"},
	)

	recoveryDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sms_core",
			Name:      "recovery_pass_duration_seconds",
			Help:      "Duration of recovery passes.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	inboundCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_core",
			Name:      "inbound_messages_total",
			Help:      "Inbound assembled messages by marker match.",
		},
		[]string{"matched"},
	)

	eventsDroppedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_core",
			Name:      "events_dropped_total",
			Help:      "Events discarded because no consumer could take them.",
		},
		[]string{"kind", "reason"}, // reason: no_listener, buffer_full
	)
)
