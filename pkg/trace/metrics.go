package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a Sink exporting transition activity as Prometheus metrics.
type Metrics struct {
	started     *prometheus.CounterVec
	failed      *prometheus.CounterVec
	stateWrites *prometheus.CounterVec
	dispatched  *prometheus.CounterVec
	duration    *prometheus.HistogramVec

	mu     sync.Mutex
	starts map[uuid.UUID]time.Time
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "started_total",
			Help:      "Number of transition invocations started.",
		}, []string{"process", "action"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "failed_total",
			Help:      "Number of transition invocations that failed.",
		}, []string{"process", "action"}),
		stateWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "state_changes_total",
			Help:      "Number of state writes performed by transitions.",
		}, []string{"process", "action"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "background_dispatched_total",
			Help:      "Number of invocations handed off to background execution.",
		}, []string{"process", "action"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "duration_seconds",
			Help:      "Time an invocation held the state lock in this process.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"process", "action"}),
		starts: make(map[uuid.UUID]time.Time),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// MustNewMetrics is like NewMetrics but panics on registration errors.
func MustNewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m, err := NewMetrics(reg, namespace)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.started, m.failed, m.stateWrites, m.dispatched, m.duration}
}

func (m *Metrics) Record(_ context.Context, e Event) {
	labels := prometheus.Labels{"process": e.Process, "action": e.Action}

	switch e.Kind {
	case KindStart:
		m.started.With(labels).Inc()
		if e.Payload == PayloadResumed {
			m.remember(e)
		}
	case KindLock:
		m.remember(e)
	case KindFail:
		m.failed.With(labels).Inc()
	case KindSetState:
		m.stateWrites.With(labels).Inc()
	case KindBackgroundMode:
		m.dispatched.With(labels).Inc()
		m.forget(e.TrID)
	case KindUnlock:
		m.mu.Lock()
		started, ok := m.starts[e.TrID]
		delete(m.starts, e.TrID)
		m.mu.Unlock()
		if ok {
			m.duration.With(labels).Observe(e.Time.Sub(started).Seconds())
		}
	}
}

func (m *Metrics) remember(e Event) {
	m.mu.Lock()
	m.starts[e.TrID] = e.Time
	m.mu.Unlock()
}

func (m *Metrics) forget(id uuid.UUID) {
	m.mu.Lock()
	delete(m.starts, id)
	m.mu.Unlock()
}
