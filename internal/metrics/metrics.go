// Package metrics exposes giveaway counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"giveaway/internal/domain"
	"giveaway/internal/extract"
)

type Metrics struct {
	// Draws by method: "random", "weighted"
	Draws *prometheus.CounterVec

	// Failed draws by taxonomy kind
	DrawFailures *prometheus.CounterVec

	Iterations *prometheus.CounterVec
	Harvested  *prometheus.CounterVec

	ExtractionDuration *prometheus.HistogramVec
}

// New registers the giveaway metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Draws: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giveaway_draws_total",
			Help: "Completed lottery draws by method",
		}, []string{"method"}),
		DrawFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giveaway_draw_failures_total",
			Help: "Failed lottery draws by error kind",
		}, []string{"kind"}),
		Iterations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giveaway_extraction_iterations_total",
			Help: "Extraction read cycles by interaction kind",
		}, []string{"kind"}),
		Harvested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "giveaway_identifiers_harvested_total",
			Help: "Unique identifiers harvested by interaction kind",
		}, []string{"kind"}),
		ExtractionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "giveaway_extraction_duration_seconds",
			Help:    "Duration of one extraction run by interaction kind",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementDraw(method string) {
	if m != nil {
		m.Draws.WithLabelValues(method).Inc()
	}
}

// IncrementFailure records a failed draw under its taxonomy label.
func (m *Metrics) IncrementFailure(err error) {
	if m != nil {
		m.DrawFailures.WithLabelValues(domain.KindName(err)).Inc()
	}
}

func (m *Metrics) ObserveExtraction(kind domain.InteractionKind, res extract.Result) {
	if m != nil {
		m.ExtractionDuration.WithLabelValues(string(kind)).Observe(res.Elapsed.Seconds())
	}
}

type observer struct {
	m    *Metrics
	kind string
}

// Observer counts extraction progress for kind. A nil Metrics yields nil.
func (m *Metrics) Observer(kind domain.InteractionKind) extract.Observer {
	if m == nil {
		return nil
	}
	return observer{m: m, kind: string(kind)}
}

func (o observer) IdentifierFound(extract.IdentifierEvent) {
	o.m.Harvested.WithLabelValues(o.kind).Inc()
}

func (o observer) IterationDone(extract.IterationEvent) {
	o.m.Iterations.WithLabelValues(o.kind).Inc()
}
