// Package metrics exposes Prometheus counters for the login pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "secure_access"

var (
	// LoginOutcomesTotal counts finished login attempts by the stage they ended at.
	LoginOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_outcomes_total",
			Help:      "Login attempts by terminal stage and result.",
		},
		[]string{"stage", "result"},
	)

	DeviceDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_decisions_total",
			Help:      "Device registry decisions by kind.",
		},
		[]string{"decision"},
	)

	// DeviceRegistryErrorsTotal counts device checks skipped because the registry failed.
	DeviceRegistryErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_registry_errors_total",
			Help:      "Device checks skipped due to registry errors.",
		},
	)

	AuditEntriesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_dropped_total",
			Help:      "Audit entries dropped because the queue was full.",
		},
	)

	AuditWriteErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_errors_total",
			Help:      "Audit entries that failed to persist.",
		},
	)

	DevicesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "devices_swept_total",
			Help:      "Devices revoked by the inactivity sweep.",
		},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "path", "status"},
	)
)
