// Package telemetry exposes the agent's self-metrics in Prometheus
// format. Init must run once at startup; the helpers are safe to call
// from any goroutine and are no-ops until then.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const prefix = "simplemon_"

var (
	registerOnce sync.Once

	ticksTotal    prometheus.Counter
	tickDuration  prometheus.Histogram
	samplerErrors *prometheus.CounterVec
	notifications *prometheus.CounterVec
)

// Init registers the agent's metrics with the default registry.
// activeAlarms, when non-nil, is exported as a gauge sampled at scrape
// time.
func Init(activeAlarms func() float64) {
	registerOnce.Do(func() {
		ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "ticks_total",
			Help: "Completed sample loop ticks.",
		})
		tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "tick_duration_seconds",
			Help:    "Duration of one tick across all monitors.",
			Buckets: prometheus.DefBuckets,
		})
		samplerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "sampler_errors_total",
			Help: "Degraded sampler reads, by monitor.",
		}, []string{"monitor"})
		notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "notifications_total",
			Help: "Alarm notifications, by channel and lifecycle event.",
		}, []string{"channel", "event"})

		prometheus.MustRegister(ticksTotal, tickDuration, samplerErrors, notifications)

		if activeAlarms != nil {
			prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: prefix + "active_alarms",
				Help: "Monitors currently in an alarmed state.",
			}, activeAlarms))
		}
	})
}

// ObserveTick records one completed tick across all monitors.
func ObserveTick(d time.Duration) {
	if ticksTotal != nil {
		ticksTotal.Inc()
	}
	if tickDuration != nil {
		tickDuration.Observe(d.Seconds())
	}
}

// IncSamplerError counts a degraded sampler read.
func IncSamplerError(monitor string) {
	if samplerErrors != nil {
		samplerErrors.WithLabelValues(monitor).Inc()
	}
}

// IncNotification counts one notification handed to a channel.
func IncNotification(channel, event string) {
	if notifications != nil {
		notifications.WithLabelValues(channel, event).Inc()
	}
}
