// Package metrics provides Prometheus metrics for Wellspring.
// Counters and histograms for XP grants, optimistic-update conflicts,
// badges, streaks, dispatcher failures and redeliveries, notifications
// and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// XPGranted tracks the total XP granted by reason.
var XPGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "xp_granted_total",
	Help:      "Total XP granted.",
}, []string{"reason"})

// XPGrants tracks the number of XP events appended by reason.
var XPGrants = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "xp_grants_total",
	Help:      "Total XP events appended to the ledger.",
}, []string{"reason"})

// ─── Progress Updates ───────────────────────────────────────────────────────

// ProgressConflicts tracks optimistic commits that lost a version race.
var ProgressConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "progress_conflicts_total",
	Help:      "Progress commits rejected because the record changed concurrently.",
}, []string{"op"})

// ProgressRetriesExhausted tracks updates abandoned after the retry budget.
var ProgressRetriesExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "progress_retries_exhausted_total",
	Help:      "Progress updates abandoned after exhausting retries.",
}, []string{"op"})

// ProgressUpdateLatency tracks the duration of a full load-compute-commit cycle.
var ProgressUpdateLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "wellspring",
	Name:      "progress_update_seconds",
	Help:      "Duration of progress updates including retries.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
}, []string{"op"})

// ─── Badges & Streaks ───────────────────────────────────────────────────────

// BadgesGranted tracks earned badges by id.
var BadgesGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "badges_granted_total",
	Help:      "Total badges granted.",
}, []string{"badge"})

// StreakBonuses tracks streak milestone bonuses.
var StreakBonuses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "streak_bonuses_total",
	Help:      "Total streak bonuses granted.",
})

// ─── Dispatcher ─────────────────────────────────────────────────────────────

// TriggerFailures tracks failed dispatcher steps by step name.
var TriggerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "trigger_failures_total",
	Help:      "Gamification steps that failed after a domain action.",
}, []string{"step"})

// Redeliveries tracks background retries of failed dispatches by result.
var Redeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "redeliveries_total",
	Help:      "Dispatch redeliveries by result (succeeded, failed, exhausted).",
}, []string{"result"})

// RedeliveryPending tracks dispatches waiting for a retry.
var RedeliveryPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "wellspring",
	Name:      "redelivery_pending",
	Help:      "Dispatches waiting in the retry queue.",
})

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationsCreated tracks milestone notifications by outcome.
var NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "notifications_total",
	Help:      "Milestone notifications by outcome (created, suppressed).",
}, []string{"outcome"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "wellspring",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wellspring",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
