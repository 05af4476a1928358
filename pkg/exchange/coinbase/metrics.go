package coinbase

import "github.com/zeromicro/go-zero/core/metric"

const metricNamespace = "gdax_client"

var (
	metricRequestTotal = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricNamespace,
		Subsystem: "requests",
		Name:      "total",
		Help:      "exchange requests by endpoint class, method and outcome.",
		Labels:    []string{"class", "method", "outcome"},
	})

	metricRequestDuration = metric.NewHistogramVec(&metric.HistogramVecOpts{
		Namespace: metricNamespace,
		Subsystem: "requests",
		Name:      "duration_ms",
		Help:      "exchange request latency in milliseconds, throttle wait included.",
		Labels:    []string{"class", "method"},
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
)
