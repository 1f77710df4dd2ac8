// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dirsearch"

// group registers its collectors on the default registry at most once.
type group struct {
	once       sync.Once
	collectors []prometheus.Collector
}

func (g *group) register() {
	g.once.Do(func() {
		prometheus.MustRegister(g.collectors...)
	})
}
