package services

import (
	"time"

	"DistroApp/app/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics exposes remote sync activity to Prometheus. A nil *SyncMetrics records nothing.
type SyncMetrics struct {
	rows        *prometheus.CounterVec
	runs        *prometheus.CounterVec
	probes      *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewSyncMetrics registers the sync collectors on reg
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)
	prefix := "distroapp"

	return &SyncMetrics{
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_sync_rows_total",
				Help: "Rows pushed to the remote store by entity and outcome",
			},
			[]string{"entity", "outcome"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_sync_runs_total",
				Help: "Full sync passes by outcome",
			},
			[]string{"outcome"},
		),
		probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_sync_probes_total",
				Help: "Remote connectivity probes by result",
			},
			[]string{"result"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    prefix + "_sync_duration_seconds",
				Help:    "Duration of full sync passes",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: prefix + "_sync_last_success_timestamp_seconds",
				Help: "Unix time of the last sync pass without errors",
			},
		),
	}
}

func (m *SyncMetrics) observeProbe(online bool) {
	if m == nil {
		return
	}
	if online {
		m.probes.WithLabelValues("online").Inc()
	} else {
		m.probes.WithLabelValues("offline").Inc()
	}
}

func (m *SyncMetrics) observeEntity(entity models.Collection, result SyncResult) {
	if m == nil || !result.Attempted() {
		return
	}
	m.rows.WithLabelValues(entity.String(), "synced").Add(float64(result.SyncedCount))
	m.rows.WithLabelValues(entity.String(), "failed").Add(float64(result.ErrorCount))
}

func (m *SyncMetrics) observeRun(report SyncReport, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := report.Status()
	m.runs.WithLabelValues(string(status)).Inc()
	if status == SyncNotAttempted {
		return
	}
	m.duration.Observe(elapsed.Seconds())
	if status == SyncSucceeded {
		m.lastSuccess.SetToCurrentTime()
	}
}
