// Package metrics exposes Prometheus collectors for the alert pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dockwatch"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	AlertsEnqueued      *prometheus.CounterVec
	AlertsDelivered     prometheus.Counter
	AlertsFailed        prometheus.Counter
	PollFailures        prometheus.Counter
	InboundRejected     *prometheus.CounterVec
	ContainersObserved  prometheus.Gauge
	ContainersUnhealthy prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector(namespace),
	)
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		AlertsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_enqueued_total",
			Help:      "Alert events pushed onto the queue, by producer.",
		}, []string{"source"}),
		AlertsDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_delivered_total",
			Help:      "Alert events delivered to the chat channel.",
		}),
		AlertsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_failed_total",
			Help:      "Alert events dropped after a failed delivery.",
		}),
		PollFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Monitor ticks skipped because the container list could not be fetched.",
		}),
		InboundRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_rejected_total",
			Help:      "Inbound chat messages discarded, by reason.",
		}, []string{"reason"}),
		ContainersObserved: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "containers_observed",
			Help:      "Containers returned by the last successful poll.",
		}),
		ContainersUnhealthy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "containers_unhealthy",
			Help:      "Containers from the last successful poll that are unhealthy.",
		}),
	}
}

// WatchRuntime registers gauges that read the queue depth and the activity
// counter at scrape time.
func (m *Metrics) WatchRuntime(pending, activity func() float64) {
	f := promauto.With(m.Registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "alert_queue_depth",
		Help:      "Alert events waiting for the dispatcher.",
	}, pending)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "activity",
		Help:      "Observed container count plus inbound operator messages.",
	}, activity)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
