package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/backend"
	"github.com/babelforce/tutor-go/connectivity"
)

const namespace = "tutor"

var connectivityStates = []connectivity.State{
	connectivity.StateConnecting,
	connectivity.StateConnected,
	connectivity.StateDisconnected,
}

// Metrics holds the collectors of one host process. Each instance owns its own
// registry so tests and multiple hosts do not collide.
type Metrics struct {
	registry *prometheus.Registry

	Transitions     *prometheus.CounterVec
	Errors          *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Connectivity    *prometheus.GaugeVec
	Live            prometheus.Gauge
	Viewers         prometheus.Gauge

	mu   sync.Mutex
	last tutor.State
}

// Observe counts state transitions and failures. It is meant to be registered
// as a tutor.Observer.
func (m *Metrics) Observe(s tutor.Snapshot) {
	m.mu.Lock()
	changed := s.State != m.last
	m.last = s.State
	m.mu.Unlock()

	m.SetConnectivity(s.Connectivity)

	if !changed {
		return
	}

	m.Transitions.WithLabelValues(string(s.State)).Inc()
	if s.State == tutor.StateErrored && s.Error != nil {
		m.Errors.WithLabelValues(string(s.Error.Kind)).Inc()
	}
	if s.Renderable {
		m.Live.Set(1)
	} else {
		m.Live.Set(0)
	}
}

// ObserveRequest records one backend call. It satisfies backend.RequestObserver.
func (m *Metrics) ObserveRequest(op string, took time.Duration, err error) {
	m.RequestDuration.WithLabelValues(op, outcome(err)).Observe(took.Seconds())
}

func (m *Metrics) SetConnectivity(state connectivity.State) {
	for _, s := range connectivityStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.Connectivity.WithLabelValues(string(s)).Set(v)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var re *backend.RequestError
	if errors.As(err, &re) {
		return string(re.Kind)
	}
	return "error"
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics of this instance only.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Number of times the controller entered a state",
		},
		[]string{"state"},
	)

	m.Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Number of failed session actions by kind",
		},
		[]string{"kind"},
	)

	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of backend requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)

	m.Connectivity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_connectivity",
			Help:      "Current backend connectivity (1 for the active state)",
		},
		[]string{"state"},
	)

	m.Live = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_live",
			Help:      "Whether a session is currently renderable",
		},
	)

	m.Viewers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewers",
			Help:      "Number of connected browser views",
		},
	)

	m.registry.MustRegister(
		m.Transitions,
		m.Errors,
		m.RequestDuration,
		m.Connectivity,
		m.Live,
		m.Viewers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}
