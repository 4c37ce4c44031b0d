package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client metrics, registered on the default Prometheus registry under
// the bsdtools_client namespace. Scraping them is optional; nothing here
// affects request behavior.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsdtools_client",
		Name:      "requests_total",
		Help:      "API calls issued, labeled by HTTP method and final outcome.",
	}, []string{"method", "outcome"})

	deferredResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bsdtools_client",
		Name:      "deferred_results_total",
		Help:      "Responses that arrived deferred and required polling.",
	})

	deferredPollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bsdtools_client",
		Name:      "deferred_polls_total",
		Help:      "Deferred-result polls issued.",
	})
)

// outcomeLabel classifies a call result for the requests_total metric.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsDeferredTimeout(err):
		return "deferred_timeout"
	case IsTransportError(err):
		return "transport_error"
	default:
		return "error"
	}
}
