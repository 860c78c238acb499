package vendors

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "requests_total",
	Help: "counter of HTTP request attempts made against market-data vendors",
}, []string{"vendor", "provider", "feed"})

var errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "errors_total",
	Help: "counter of failed vendor HTTP attempts, by numeric status or timeout/exception",
}, []string{"vendor", "provider", "feed", "status"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "request_duration_seconds",
	Help:    "histogram of vendor HTTP request latency",
	Buckets: prometheus.DefBuckets,
}, []string{"vendor", "provider", "feed"})
