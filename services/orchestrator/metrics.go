package orchestrator

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"fabricclaim/services/claim"
)

const metricsJob = "fabricclaim"

// Metrics counts claim outcomes and, when a Pushgateway URL is set, pushes
// them when the run finishes.
type Metrics struct {
	registry *prometheus.Registry
	claims   *prometheus.CounterVec
	duration prometheus.Gauge
	pushURL  string
}

// NewMetrics registers the claim collectors on a private registry.
func NewMetrics(pushURL string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fabricclaim_claims_total",
			Help: "Device claim attempts by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fabricclaim_run_duration_seconds",
			Help: "Wall time of the last claim run.",
		}),
		pushURL: pushURL,
	}
	reg.MustRegister(m.claims, m.duration)
	return m
}

func (m *Metrics) RunStarted(context.Context, Run) error { return nil }

func (m *Metrics) DeviceFinished(_ context.Context, _ Run, outcome claim.Outcome) error {
	m.claims.WithLabelValues(string(outcome.Kind)).Inc()
	return nil
}

func (m *Metrics) RunFinished(ctx context.Context, run Run, _ claim.Summary) error {
	m.duration.Set(run.FinishedAt.Sub(run.StartedAt).Seconds())
	if m.pushURL == "" {
		return nil
	}
	pusher := push.New(m.pushURL, metricsJob).Gatherer(m.registry)
	if run.Account != "" {
		pusher = pusher.Grouping("account", run.Account)
	}
	return pusher.PushContext(ctx)
}
