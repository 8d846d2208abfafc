// Package metrics manages the Prometheus registry for httprange.
//
// Metrics are opt-in: call InitRegistry once at startup, then pass the
// collector from pkg/metrics/prometheus to rangereader.Config.Metrics.
// When InitRegistry is never called, constructors return nil and the
// reader skips collection with zero overhead.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection. Safe to call more than once;
// subsequent calls keep the existing registry.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Handler returns an HTTP handler exposing the registry in Prometheus
// exposition format. Returns http.NotFoundHandler when metrics are
// disabled.
func Handler() http.Handler {
	mu.RLock()
	reg := registry
	mu.RUnlock()

	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
