package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gitSyncFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_git_sync_failed_total",
			Help: "Total number of failed git sync operations",
		},
		[]string{"workspace"},
	)

	gitSyncCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conveyor_git_sync_count_total",
			Help: "Total number of git sync operations",
		},
	)

	gitSyncConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_git_sync_conflicts_total",
			Help: "Total number of sync operations that ended in a merge conflict",
		},
		[]string{"workspace"},
	)

	gitSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conveyor_git_sync_duration_seconds",
			Help:    "Git sync duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"workspace"},
	)

	lastGitSyncStart = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conveyor_last_git_sync_start_timestamp",
			Help: "Unix timestamp of when the last git sync started",
		},
		[]string{"workspace"},
	)

	lastGitSyncEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conveyor_last_git_sync_end_timestamp",
			Help: "Unix timestamp of when the last git sync ended",
		},
		[]string{"workspace"},
	)
)

func GitSyncStarted(workspace string) {
	gitSyncCount.Inc()
	lastGitSyncStart.WithLabelValues(workspace).SetToCurrentTime()
}

func GitSyncFailed(workspace string) {
	gitSyncFailed.WithLabelValues(workspace).Inc()
	lastGitSyncEnd.WithLabelValues(workspace).SetToCurrentTime()
}

func GitSyncConflicted(workspace string) {
	gitSyncConflicts.WithLabelValues(workspace).Inc()
	lastGitSyncEnd.WithLabelValues(workspace).SetToCurrentTime()
}

func GitSyncSucceeded(workspace string, startTime time.Time) {
	gitSyncDuration.WithLabelValues(workspace).Observe(time.Since(startTime).Seconds())
	lastGitSyncEnd.WithLabelValues(workspace).SetToCurrentTime()
}
