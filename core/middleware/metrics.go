package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miladsoleymani/mqrequest/core"
)

// MetricsCollector is the interface that metrics backends must implement.
type MetricsCollector interface {
	// RoundTrip records one iteration: its outcome and how long the
	// submit-then-wait took.
	RoundTrip(out core.Outcome, duration time.Duration)
}

// Metrics returns middleware that reports round trips to the given collector.
func Metrics(collector MetricsCollector) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)
			collector.RoundTrip(c.Outcome(), time.Since(start))
			return err
		}
	}
}

// PrometheusCollector exports round-trip counts, latencies and reply bytes.
type PrometheusCollector struct {
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
	bytes    prometheus.Counter
}

// NewPrometheusCollector creates the collector and registers its metrics
// with reg.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	c := &PrometheusCollector{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mqrequest",
			Name:      "round_trips_total",
			Help:      "Request/reply round trips by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mqrequest",
			Name:      "round_trip_seconds",
			Help:      "Time from submitting a request to receiving its reply.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mqrequest",
			Name:      "reply_bytes_total",
			Help:      "Bytes received in replies.",
		}),
	}
	for _, m := range []prometheus.Collector{c.outcomes, c.latency, c.bytes} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusCollector) RoundTrip(out core.Outcome, d time.Duration) {
	c.outcomes.WithLabelValues(out.Kind.String()).Inc()
	if out.Kind == core.OutcomeDelivered {
		c.latency.Observe(d.Seconds())
		c.bytes.Add(float64(out.Length))
	}
}
