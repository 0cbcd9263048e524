// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting Podhawk runtime metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Internal state (source of truth for the JSON snapshot)
var (
	commits           int64
	rollbacks         int64
	startFailures     int64
	imagePullsSuccess int64
	imagePullsFailure int64
	precheckSkips     int64
	lastRun           int64
)

const counterInc int64 = 1

// Prometheus collectors
var (
	promCommits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "podhawk_commits_total",
			Help: "Total container swaps committed (old container removed)",
		},
	)
	promRollbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "podhawk_rollbacks_total",
			Help: "Total container swaps rolled back after failed validation",
		},
	)
	promStartFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "podhawk_start_failures_total",
			Help: "Total replacement containers that failed to start",
		},
	)
	promImagePulls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podhawk_image_pulls_total",
			Help: "Total image pull attempts",
		},
		[]string{"status"},
	)
	promPrecheckSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "podhawk_digest_precheck_skips_total",
			Help: "Total pulls skipped because the remote digest was unchanged",
		},
	)
	promSwapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "podhawk_swap_duration_seconds",
			Help: "Duration of container recreate-validate operations",
			Buckets: []float64{
				0.5,
				1,
				2,
				5,
				10,
				30,
				60,
				120,
				300,
			},
		},
	)
	promLastRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "podhawk_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last reconciliation pass",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promCommits,
		promRollbacks,
		promStartFailures,
		promImagePulls,
		promPrecheckSkips,
		promSwapDuration,
		promLastRun,
	)
}

// IncCommit increments the counter for committed container swaps.
func IncCommit() {
	atomic.AddInt64(&commits, counterInc)
	promCommits.Inc()
}

// IncRollback increments the counter for performed rollbacks.
func IncRollback() {
	atomic.AddInt64(&rollbacks, counterInc)
	promRollbacks.Inc()
}

// IncStartFailure increments the counter for replacement containers that
// never started.
func IncStartFailure() {
	atomic.AddInt64(&startFailures, counterInc)
	promStartFailures.Inc()
}

// IncImagePullSuccess increments the counter for successful image pulls.
func IncImagePullSuccess() {
	atomic.AddInt64(&imagePullsSuccess, counterInc)
	promImagePulls.WithLabelValues("success").Inc()
}

// IncImagePullFailure increments the counter for failed image pulls.
func IncImagePullFailure() {
	atomic.AddInt64(&imagePullsFailure, counterInc)
	promImagePulls.WithLabelValues("failure").Inc()
}

// IncPrecheckSkip increments the counter for pulls skipped by the remote
// digest pre-check.
func IncPrecheckSkip() {
	atomic.AddInt64(&precheckSkips, counterInc)
	promPrecheckSkips.Inc()
}

// ObserveSwapDuration records the duration (in seconds) of a container
// recreate-validate operation.
func ObserveSwapDuration(seconds float64) {
	promSwapDuration.Observe(seconds)
}

// SetLastRun stores the provided time as the last run timestamp and
// updates the corresponding Prometheus gauge.
func SetLastRun(t time.Time) {
	atomic.StoreInt64(&lastRun, t.Unix())
	promLastRun.Set(float64(t.Unix()))
}

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	Commits           int64  `json:"commits"`
	Rollbacks         int64  `json:"rollbacks"`
	StartFailures     int64  `json:"start_failures"`
	ImagePullsSuccess int64  `json:"image_pulls_success"`
	ImagePullsFailure int64  `json:"image_pulls_failure"`
	PrecheckSkips     int64  `json:"digest_precheck_skips"`
	LastRun           int64  `json:"last_run_timestamp"`
	LastRunHuman      string `json:"last_run_human"`
}

// GetSnapshot returns a StatsSnapshot with the current values of all
// internal counters and timestamps.
func GetSnapshot() StatsSnapshot {
	ts := atomic.LoadInt64(&lastRun)
	return StatsSnapshot{
		Commits:           atomic.LoadInt64(&commits),
		Rollbacks:         atomic.LoadInt64(&rollbacks),
		StartFailures:     atomic.LoadInt64(&startFailures),
		ImagePullsSuccess: atomic.LoadInt64(&imagePullsSuccess),
		ImagePullsFailure: atomic.LoadInt64(&imagePullsFailure),
		PrecheckSkips:     atomic.LoadInt64(&precheckSkips),
		LastRun:           ts,
		LastRunHuman:      time.Unix(ts, 0).Format(time.RFC3339),
	}
}

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler returns an HTTP handler that serves the current metrics as
// a JSON-encoded StatsSnapshot.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
