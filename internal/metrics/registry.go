// internal/metrics/registry.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "esplit"

var globalRegistry = prometheus.NewRegistry()

func init() {
	globalRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry is where packages register their collectors.
func Registry() *prometheus.Registry {
	return globalRegistry
}

func Handler() http.Handler {
	return promhttp.HandlerFor(globalRegistry, promhttp.HandlerOpts{})
}
