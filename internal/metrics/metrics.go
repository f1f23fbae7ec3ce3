package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ariss"

// Comment outcomes.
const (
	OutcomeScored    = "scored"
	OutcomeMalformed = "malformed"
	OutcomeExcluded  = "excluded"
	OutcomeInvalid   = "invalid"
)

// Run outcomes.
const (
	RunSaved         = "saved"
	RunCollectError  = "collect_error"
	RunClassifyError = "classify_error"
	RunPersistError  = "persist_error"
)

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	CommentsCollected *prometheus.CounterVec
	CommentsProcessed *prometheus.CounterVec
	ClassifyDuration  prometheus.Histogram
	ScoreRuns         *prometheus.CounterVec
	LatestScore       *prometheus.GaugeVec
	WebSocketClients  prometheus.Gauge
}

// New creates and registers the metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommentsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_collected_total",
			Help:      "Comments returned by collectors, by source.",
		}, []string{"source"}),
		CommentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_processed_total",
			Help:      "Comments through the pipeline, by source and outcome.",
		}, []string{"source", "outcome"}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Duration of a single classifier call in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ScoreRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_runs_total",
			Help:      "Score computations, by outcome.",
		}, []string{"outcome"}),
		LatestScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_score",
			Help:      "Most recently computed score per subject.",
		}, []string{"subject"}),
		WebSocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected live score WebSocket clients.",
		}),
	}

	reg.MustRegister(m.CommentsCollected, m.CommentsProcessed, m.ClassifyDuration,
		m.ScoreRuns, m.LatestScore, m.WebSocketClients)
	return m
}

func (m *Metrics) Collected(source string, n int) {
	if m == nil {
		return
	}
	m.CommentsCollected.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Comment(source, outcome string) {
	if m == nil {
		return
	}
	m.CommentsProcessed.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Classified(d time.Duration) {
	if m == nil {
		return
	}
	m.ClassifyDuration.Observe(d.Seconds())
}

func (m *Metrics) Run(outcome string) {
	if m == nil {
		return
	}
	m.ScoreRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Score(subject string, score float64) {
	if m == nil {
		return
	}
	m.LatestScore.WithLabelValues(subject).Set(score)
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.WebSocketClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.WebSocketClients.Dec()
}
