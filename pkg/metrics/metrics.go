package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Generation outcomes
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

type Recorder interface {
	ObserveGeneration(spread, outcome string, duration time.Duration)
	IncChunks(spread string)
	IncHistoryWrites(result string)
	IncRequests(route string, status int)
}

type Prometheus struct {
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	chunksTotal        *prometheus.CounterVec
	historyWrites      *prometheus.CounterVec
	requestsTotal      *prometheus.CounterVec
}

var _ Recorder = (*Prometheus)(nil)

// New registers collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Prometheus{
		generationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcana_generations_total",
			Help: "Total number of reading generations by outcome",
		}, []string{"spread", "outcome"}),

		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arcana_generation_duration_seconds",
			Help:    "Time from request to terminal chunk",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"spread", "outcome"}),

		chunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcana_stream_chunks_total",
			Help: "Total number of interpretation chunks received",
		}, []string{"spread"}),

		historyWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcana_history_writes_total",
			Help: "Total number of history appends by result",
		}, []string{"result"}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcana_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),
	}
}

func (m *Prometheus) ObserveGeneration(spread, outcome string, duration time.Duration) {
	m.generationsTotal.WithLabelValues(spread, outcome).Inc()
	m.generationDuration.WithLabelValues(spread, outcome).Observe(duration.Seconds())
}

func (m *Prometheus) IncChunks(spread string) {
	m.chunksTotal.WithLabelValues(spread).Inc()
}

func (m *Prometheus) IncHistoryWrites(result string) {
	m.historyWrites.WithLabelValues(result).Inc()
}

func (m *Prometheus) IncRequests(route string, status int) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Noop discards every observation
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) ObserveGeneration(string, string, time.Duration) {}
func (Noop) IncChunks(string)                                {}
func (Noop) IncHistoryWrites(string)                         {}
func (Noop) IncRequests(string, int)                         {}
