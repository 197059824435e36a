// Package status tracks whether each backend is idle (healthy) or busy
// delivering. Actors write it; health reporting reads it.
package status

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alertrelay/alertrelay/internal/bus"
)

var backendHealthy = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "alertrelay_backend_healthy",
		Help: "1 while the backend is idle, 0 while a delivery is in flight.",
	},
	[]string{"backend"},
)

// Registry maps backend identity to its health flag. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	healthy map[bus.Backend]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{healthy: make(map[bus.Backend]bool)}
}

// Set records the health flag for backend, creating the entry if needed.
func (r *Registry) Set(backend bus.Backend, healthy bool) {
	r.mu.Lock()
	r.healthy[backend] = healthy
	r.mu.Unlock()

	v := 0.0
	if healthy {
		v = 1
	}
	backendHealthy.WithLabelValues(string(backend)).Set(v)
}

// Get returns the health flag for backend and whether an entry exists.
func (r *Registry) Get(backend bus.Backend) (healthy, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	healthy, ok = r.healthy[backend]
	return healthy, ok
}

// Snapshot returns a copy of every entry.
func (r *Registry) Snapshot() map[bus.Backend]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[bus.Backend]bool, len(r.healthy))
	for k, v := range r.healthy {
		out[k] = v
	}
	return out
}

// Backends returns the registered backends sorted by name.
func (r *Registry) Backends() []bus.Backend {
	r.mu.RLock()
	out := make([]bus.Backend, 0, len(r.healthy))
	for k := range r.healthy {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
