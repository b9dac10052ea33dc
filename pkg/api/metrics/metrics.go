// Package metrics serves the registry-cleaner metrics over the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path is the endpoint of the metrics handler.
const Path = "/v1/metrics"

// Handler exposes a gatherer in the Prometheus exposition format.
type Handler struct {
	Path   string
	Handle http.Handler
}

// New creates a metrics handler for gatherer.
func New(gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		Path:   Path,
		Handle: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}
