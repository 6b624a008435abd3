// Package metrics exposes Prometheus counters for the auth bootstrap and the
// role gate.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the session owner and the gate middleware report to.
type Recorder interface {
	RecordBootstrap(outcome string, duration time.Duration)
	RecordProfileFetch(source, outcome string)
	RecordAuthEvent(kind string)
	RecordDecision(view, decision string)
}

type Collector struct {
	bootstrap        *prometheus.CounterVec
	bootstrapLatency prometheus.Histogram
	profileFetch     *prometheus.CounterVec
	authEvents       *prometheus.CounterVec
	decisions        *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bootstrap: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_auth_bootstrap_total",
			Help: "Bootstrap completions by outcome (settled, safety_valve).",
		}, []string{"outcome"}),
		bootstrapLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portal_auth_bootstrap_duration_seconds",
			Help:    "Time from Initialize to readiness.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		profileFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_profile_fetch_total",
			Help: "Profile fetches by trigger and outcome.",
		}, []string{"source", "outcome"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_auth_events_total",
			Help: "Identity provider events reconciled.",
		}, []string{"kind"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_role_gate_decisions_total",
			Help: "Role gate decisions by view.",
		}, []string{"view", "decision"}),
	}

	reg.MustRegister(c.bootstrap, c.bootstrapLatency, c.profileFetch, c.authEvents, c.decisions)
	return c
}

func (c *Collector) RecordBootstrap(outcome string, duration time.Duration) {
	c.bootstrap.WithLabelValues(outcome).Inc()
	c.bootstrapLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordProfileFetch(source, outcome string) {
	c.profileFetch.WithLabelValues(source, outcome).Inc()
}

func (c *Collector) RecordAuthEvent(kind string) {
	c.authEvents.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordDecision(view, decision string) {
	c.decisions.WithLabelValues(view, decision).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordBootstrap(string, time.Duration) {}
func (Nop) RecordProfileFetch(string, string)     {}
func (Nop) RecordAuthEvent(string)                {}
func (Nop) RecordDecision(string, string)         {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
