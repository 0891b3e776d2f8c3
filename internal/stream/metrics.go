package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pgresults",
		Name:      "sessions_started_total",
		Help:      "Query executions that got a session.",
	})
	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgresults",
		Name:      "sessions_finished_total",
		Help:      "Sessions that stopped streaming, by final state.",
	}, []string{"state"})
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pgresults",
		Name:      "sessions_streaming",
		Help:      "Sessions currently holding a connection.",
	})
	batchesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pgresults",
		Name:      "batches_fetched_total",
		Help:      "Batches read from cursors.",
	})
	rowsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pgresults",
		Name:      "rows_fetched_total",
		Help:      "Rows read from cursors.",
	})
	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pgresults",
		Name:      "fetch_duration_seconds",
		Help:      "Time spent in a single cursor read.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
)
