package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var backlogGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "ingestion_backlog",
	Help: "gauge of pending (symbol, trading-day) work units per symbol",
}, []string{"symbol"})

var dataQualityTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "data_quality_total",
	Help: "counter of rows rejected or flagged for data-quality issues",
}, []string{"symbol", "issue_type"})

var jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ingestion_job_duration_seconds",
	Help:    "histogram of end-to-end ingestion job latency",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
}, []string{"provider", "feed"})
