package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document generation. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Generation outcomes: ok, fetch_error, parse_error
	Generations *prometheus.CounterVec

	// Widget writes by result: written, skipped
	WidgetWrites *prometheus.CounterVec

	// Template fetch latency
	FetchLatency prometheus.Histogram

	// Documents returned without flattening
	FinalizeFailures prometheus.Counter

	// Delivery failures by sink: storage, audit
	DeliveryFailures *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formfill_generations_total",
			Help: "Document generations by outcome",
		}, []string{"outcome"}),

		WidgetWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formfill_widget_writes_total",
			Help: "Widget writes attempted by result",
		}, []string{"result"}),

		FetchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "formfill_template_fetch_duration_seconds",
			Help:    "Duration of template downloads",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		FinalizeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "formfill_finalize_failures_total",
			Help: "Documents returned populated but not flattened",
		}),

		DeliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formfill_delivery_failures_total",
			Help: "Best-effort delivery failures by sink",
		}, []string{"sink"}),
	}
}

func (m *Metrics) IncGeneration(outcome string) {
	if m != nil {
		m.Generations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AddWidgetWrites(result string, n int) {
	if m != nil && n > 0 {
		m.WidgetWrites.WithLabelValues(result).Add(float64(n))
	}
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m != nil {
		m.FetchLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncFinalizeFailure() {
	if m != nil {
		m.FinalizeFailures.Inc()
	}
}

func (m *Metrics) IncDeliveryFailure(sink string) {
	if m != nil {
		m.DeliveryFailures.WithLabelValues(sink).Inc()
	}
}
