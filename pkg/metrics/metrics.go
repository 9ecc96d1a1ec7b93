package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolegate_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// PermissionCache counts cache lookups by outcome (hit|miss).
	PermissionCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolegate_permission_cache_total",
			Help: "Permission cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// RoleChanges counts processed role transitions by outcome (executed|pending|approved|denied|invalid).
	RoleChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolegate_role_changes_total",
			Help: "Total number of role change operations",
		},
		[]string{"outcome"},
	)

	// SuspiciousActivities counts suspicious activity detections by type and severity.
	SuspiciousActivities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolegate_suspicious_activities_total",
			Help: "Suspicious activity detections",
		},
		[]string{"type", "severity"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rolegate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
