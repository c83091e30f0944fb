package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service counters. All methods are safe on a nil
// receiver so engines can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	transitions      *prometheus.CounterVec
	commandErrors    *prometheus.CounterVec
	ledgerRecords    *prometheus.CounterVec
	outboxDeliveries *prometheus.CounterVec
	integrityRepairs prometheus.Counter
	projectionBuild  prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "housekeeping",
			Name:      "transitions_total",
			Help:      "Committed status transitions by entity.",
		}, []string{"entity", "from", "to"}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "housekeeping",
			Name:      "command_errors_total",
			Help:      "Rejected commands by operation and error kind.",
		}, []string{"operation", "kind"}),
		ledgerRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "housekeeping",
			Name:      "ledger_transactions_total",
			Help:      "Appended stock transactions by item kind and type.",
		}, []string{"kind", "type"}),
		outboxDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "housekeeping",
			Name:      "outbox_deliveries_total",
			Help:      "Outbox delivery attempts by event kind and result.",
		}, []string{"kind", "result"}),
		integrityRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "housekeeping",
			Name:      "ledger_integrity_repairs_total",
			Help:      "Cached quantities rebuilt from the transaction log.",
		}),
		projectionBuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "housekeeping",
			Name:      "projection_build_seconds",
			Help:      "Dashboard projection build duration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.transitions,
		m.commandErrors,
		m.ledgerRecords,
		m.outboxDeliveries,
		m.integrityRepairs,
		m.projectionBuild,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Transition(entity, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, from, to).Inc()
}

func (m *Metrics) CommandError(operation, kind string) {
	if m == nil {
		return
	}
	m.commandErrors.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) LedgerRecord(kind, txType string) {
	if m == nil {
		return
	}
	m.ledgerRecords.WithLabelValues(kind, txType).Inc()
}

func (m *Metrics) OutboxDelivery(kind, result string) {
	if m == nil {
		return
	}
	m.outboxDeliveries.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) IntegrityRepair() {
	if m == nil {
		return
	}
	m.integrityRepairs.Inc()
}

func (m *Metrics) ProjectionBuilt(d time.Duration) {
	if m == nil {
		return
	}
	m.projectionBuild.Observe(d.Seconds())
}
