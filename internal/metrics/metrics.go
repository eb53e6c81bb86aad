// Package metrics records Prometheus counters and histograms for request
// dispatch, tool results and backend calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "repo_mcp"

// Outcome label values
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder holds the server's collectors. A nil *Recorder discards every
// observation.
type Recorder struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	toolResults     *prometheus.CounterVec
	backendRequests *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg. A nil reg
// leaves the collectors unregistered.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "JSON-RPC requests handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent handling a JSON-RPC request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		toolResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_results_total",
			Help:      "Tool call results, by tool and isError flag.",
		}, []string{"tool", "is_error"}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Repository backend calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(r.requests, r.requestDuration, r.toolResults, r.backendRequests)
	}
	return r
}

// ObserveRequest records one handled request. outcome is OutcomeOK or the
// protocol error code name.
func (r *Recorder) ObserveRequest(method, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, outcome).Inc()
	r.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveToolResult records one completed tool call
func (r *Recorder) ObserveToolResult(tool string, isError bool) {
	if r == nil {
		return
	}
	r.toolResults.WithLabelValues(tool, strconv.FormatBool(isError)).Inc()
}

// ObserveBackend records one backend call
func (r *Recorder) ObserveBackend(operation string, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.backendRequests.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
