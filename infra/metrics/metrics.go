// Package metrics exposes the sequencer's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sequencer/domain/orderbook"
)

const namespace = "sequencer"

// Metrics implements service.Recorder and the broadcaster's delivery
// counters.
type Metrics struct {
	requests     *prometheus.CounterVec
	apply        prometheus.Histogram
	trades       prometheus.Counter
	orderChanges *prometheus.CounterVec
	checkpoints  *prometheus.CounterVec
	lastSequence prometheus.Gauge
	published    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests applied, by type and outcome.",
		}, []string{"type", "error"}),
		apply: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_seconds",
			Help:      "Time spent applying one request.",
			Buckets:   prometheus.ExponentialBuckets(0.000005, 4, 10),
		}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades created.",
		}),
		orderChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_changes_total",
			Help:      "Order changes reported, by disposition.",
		}, []string{"disposition"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoint attempts, by result.",
		}, []string{"result"}),
		lastSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sequence",
			Help:      "Last sequence number applied.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_published_total",
			Help:      "Response deliveries, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.requests, m.apply, m.trades, m.orderChanges, m.checkpoints, m.lastSequence, m.published)
	return m
}

func (m *Metrics) ObserveRequest(requestType, code string, elapsed time.Duration) {
	m.requests.WithLabelValues(requestType, code).Inc()
	m.apply.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTrades(n int) {
	m.trades.Add(float64(n))
}

func (m *Metrics) ObserveOrderChanges(changes []orderbook.OrderChanged) {
	for _, c := range changes {
		m.orderChanges.WithLabelValues(c.Disposition.String()).Inc()
	}
}

func (m *Metrics) ObserveCheckpoint(ok bool) {
	m.checkpoints.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) SetLastSequence(seq uint64) {
	m.lastSequence.Set(float64(seq))
}

func (m *Metrics) ObservePublish(ok bool) {
	m.published.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
