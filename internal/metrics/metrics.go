// Package metrics exports registration workflow counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the set of workflow metrics. A nil *Recorder records nothing.
type Recorder struct {
	checkouts      *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
	checkIns       *prometheus.CounterVec
	commitDuration prometheus.Histogram
}

// New registers the workflow collectors on reg (the default registerer when nil).
func New(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if namespace == "" {
		namespace = "campus_events"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	r := &Recorder{}
	if r.checkouts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_requests_total",
		Help:      "Checkout session requests by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if r.webhooks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Payment webhook deliveries by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if r.checkIns, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkins_total",
		Help:      "Attendance check-in attempts by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if r.commitDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_commit_duration_seconds",
		Help:      "Latency of the registration commit transaction.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	return r, nil
}

// register reuses an identical collector that is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

// Checkout counts one checkout request.
func (r *Recorder) Checkout(result string) {
	if r == nil {
		return
	}
	r.checkouts.WithLabelValues(result).Inc()
}

// Webhook counts one webhook delivery.
func (r *Recorder) Webhook(outcome string) {
	if r == nil {
		return
	}
	r.webhooks.WithLabelValues(outcome).Inc()
}

// CheckIn counts one check-in attempt.
func (r *Recorder) CheckIn(result string) {
	if r == nil {
		return
	}
	r.checkIns.WithLabelValues(result).Inc()
}

// ObserveCommit records how long a registration commit took.
func (r *Recorder) ObserveCommit(d time.Duration) {
	if r == nil {
		return
	}
	r.commitDuration.Observe(d.Seconds())
}
