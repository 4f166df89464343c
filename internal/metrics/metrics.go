// Package metrics holds the Prometheus collectors for publishing,
// notification delivery and store fallbacks. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters exported on /metrics.
type Metrics struct {
	registry      *prometheus.Registry
	postsSaved    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		postsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "posts_saved_total",
			Help:      "Posts saved, by resulting status.",
		}, []string{"status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "notifications_total",
			Help:      "Notification send attempts, by category and outcome.",
		}, []string{"category", "status"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "store_fallbacks_total",
			Help:      "Store operations served by the local fallback after a remote failure.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(m.postsSaved, m.notifications, m.fallbacks)
	return m
}

// PostSaved counts a post persisted with the given status.
func (m *Metrics) PostSaved(status string) {
	if m == nil {
		return
	}
	m.postsSaved.WithLabelValues(status).Inc()
}

// Notification counts one send attempt.
func (m *Metrics) Notification(category, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(category, status).Inc()
}

// StoreFallback counts an operation retried on the fallback store.
func (m *Metrics) StoreFallback(op string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(op).Inc()
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
