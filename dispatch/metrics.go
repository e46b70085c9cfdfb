package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crawlindex",
		Subsystem: "dispatch",
		Name:      "batches_total",
		Help:      "The total number of batches sent to the search backend",
	})

	actionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crawlindex",
		Subsystem: "dispatch",
		Name:      "actions_total",
		Help:      "The total number of index actions included in sent batches",
	})

	failedBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crawlindex",
		Subsystem: "dispatch",
		Name:      "failed_batches_total",
		Help:      "The total number of batches rejected by the search backend",
	})

	flushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crawlindex",
		Subsystem: "dispatch",
		Name:      "flush_duration_seconds",
		Help:      "The time spent sending a batch to the search backend",
		Buckets:   prometheus.DefBuckets,
	})
)
