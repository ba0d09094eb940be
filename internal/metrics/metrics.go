// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

const namespace = "sleepboard"

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	OAuthExchangeTotal    *prometheus.CounterVec
	TokenDecryptFailures  prometheus.Counter
	SyncRunsTotal         *prometheus.CounterVec
	SyncProfilesTotal     *prometheus.CounterVec
	UpstreamRequestsTotal *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		OAuthExchangeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oauth",
				Name:      "exchange_total",
				Help:      "Authorization code exchanges by outcome",
			},
			[]string{"result"},
		),
		TokenDecryptFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "decrypt_failures_total",
				Help:      "Stored token records that could not be decrypted",
			},
		),
		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "runs_total",
				Help:      "Background metric sync runs by outcome",
			},
			[]string{"result"},
		),
		SyncProfilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "profiles_total",
				Help:      "Profiles processed by the metric sync by outcome",
			},
			[]string{"result"},
		),
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Requests to the Oura API by endpoint and outcome",
			},
			[]string{"endpoint", "result"},
		),
	}
	reg.MustRegister(
		m.OAuthExchangeTotal,
		m.TokenDecryptFailures,
		m.SyncRunsTotal,
		m.SyncProfilesTotal,
		m.UpstreamRequestsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveExchange records one authorization code exchange.
func (m *Metrics) ObserveExchange(result string) {
	if m == nil {
		return
	}
	m.OAuthExchangeTotal.WithLabelValues(result).Inc()
}

// ObserveDecryptFailure records an unreadable token record.
func (m *Metrics) ObserveDecryptFailure() {
	if m == nil {
		return
	}
	m.TokenDecryptFailures.Inc()
}

// ObserveSyncRun records one sync pass.
func (m *Metrics) ObserveSyncRun(err error) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(resultOf(err)).Inc()
}

// ObserveSyncProfile records the outcome for one profile in a sync pass.
func (m *Metrics) ObserveSyncProfile(err error) {
	if m == nil {
		return
	}
	m.SyncProfilesTotal.WithLabelValues(resultOf(err)).Inc()
}

// ObserveUpstream records one Oura API request.
func (m *Metrics) ObserveUpstream(endpoint string, err error) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(endpoint, resultOf(err)).Inc()
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
