package validate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var barsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "validation_bars_processed",
	Help: "counter of bars examined by the validation engine",
}, []string{"provider", "feed"})

var errorsFound = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "validation_errors_found",
	Help: "counter of rule violations found by the validation engine",
}, []string{"provider", "feed"})

var validationSuccess = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "validation_success",
	Help: "counter of symbol audits that found no violations",
}, []string{"provider", "feed"})

var validationFailure = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "validation_failure",
	Help: "counter of symbol audits that found at least one violation",
}, []string{"provider", "feed"})
