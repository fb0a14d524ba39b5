// Package metrics exposes Prometheus collectors for the batching engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	KudosSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kudobot",
		Name:      "kudos_sent_total",
		Help:      "Individually successful kudos sends.",
	})
	KudosSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kudobot",
		Name:      "kudos_send_failures_total",
		Help:      "Failed kudos sends (dropped, never retried).",
	})
	Flushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kudobot",
		Name:      "flushes_total",
		Help:      "Flushes that drained at least one id.",
	})
	PendingBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kudobot",
		Name:      "pending_batch_size",
		Help:      "Current pending batch cardinality.",
	})
	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kudobot",
		Name:      "flush_duration_seconds",
		Help:      "Wall time of a flush including inter-send pacing.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	IngestedIDs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kudobot",
		Name:      "ingested_ids_total",
		Help:      "Activity ids routed into the pending batch, by source.",
	}, []string{"source"})
)
