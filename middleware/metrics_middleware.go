package middleware

import (
	"context"
	"time"

	"fgp-rpc/message"
	"fgp-rpc/rpcerr"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the instruments behind the Metrics middleware.
type Collectors struct {
	Calls    *prometheus.CounterVec   // labels: method, outcome
	Duration *prometheus.HistogramVec // labels: method
}

// NewCollectors creates and registers the call counter and latency histogram under namespace.
// A nil registerer skips registration, which is convenient in tests.
func NewCollectors(reg prometheus.Registerer, namespace string) (*Collectors, error) {
	c := &Collectors{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Daemon RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Latency of daemon RPC calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"method"}),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range []prometheus.Collector{c.Calls, c.Duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Outcome is the metric label for a finished call: "ok", "operation", or an rpcerr kind.
func Outcome(resp *message.Response, err error) string {
	if err != nil {
		return rpcerr.KindOf(err).String()
	}
	if resp != nil && !resp.OK {
		return rpcerr.KindOperation.String()
	}
	return "ok"
}

// Metrics counts every call and observes its latency.
func Metrics(c *Collectors) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			c.Duration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
			c.Calls.WithLabelValues(req.Method, Outcome(resp, err)).Inc()
			return resp, err
		}
	}
}
