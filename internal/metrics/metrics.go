// Package metrics exports server metrics in the Prometheus format.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace   = "codetogether"
	reasonLabel = "reason"
	resultLabel = "result"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds every collector the server updates. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	roomsActive        prometheus.Gauge
	participantsActive prometheus.Gauge
	editsAppliedTotal  prometheus.Counter
	messagesRejected   *prometheus.CounterVec
	savesTotal         *prometheus.CounterVec
	sweepFlushesTotal  *prometheus.CounterVec
}

// New creates a new instance of Metrics with its own registry.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Metrics{
		registry: reg,
		roomsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "The number of rooms with a cached document.",
		}),
		participantsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_active",
			Help:      "The number of joined connections across all rooms.",
		}),
		editsAppliedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_applied_total",
			Help:      "The total count of edit batches applied to documents.",
		}),
		messagesRejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "The total count of inbound messages rejected.",
		}, []string{reasonLabel}),
		savesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "The total count of explicit saves by result.",
		}, []string{resultLabel}),
		sweepFlushesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_flushes_total",
			Help:      "The total count of idle documents flushed by the sweeper, by result.",
		}, []string{resultLabel}),
	}, nil
}

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetRoomsActive sets the number of cached documents.
func (m *Metrics) SetRoomsActive(n int) {
	if m == nil {
		return
	}
	m.roomsActive.Set(float64(n))
}

// AddParticipants adjusts the number of joined connections by delta.
func (m *Metrics) AddParticipants(delta int) {
	if m == nil {
		return
	}
	m.participantsActive.Add(float64(delta))
}

// AddEditsApplied counts an applied edit batch.
func (m *Metrics) AddEditsApplied() {
	if m == nil {
		return
	}
	m.editsAppliedTotal.Inc()
}

// AddMessageRejected counts a rejected inbound message.
func (m *Metrics) AddMessageRejected(reason string) {
	if m == nil {
		return
	}
	m.messagesRejected.WithLabelValues(reason).Inc()
}

// AddSave counts an explicit save.
func (m *Metrics) AddSave(result string) {
	if m == nil {
		return
	}
	m.savesTotal.WithLabelValues(result).Inc()
}

// AddSweepFlush counts a sweeper flush.
func (m *Metrics) AddSweepFlush(result string) {
	if m == nil {
		return
	}
	m.sweepFlushesTotal.WithLabelValues(result).Inc()
}
