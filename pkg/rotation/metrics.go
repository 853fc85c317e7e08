package rotation

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes engine counters. A nil *Metrics disables collection,
// which tests rely on.
type Metrics struct {
	DecisionsTotal      *prometheus.CounterVec // action=apply|noop|error, reason
	AcksTotal           *prometheus.CounterVec // result=consumed|failed|replay|error
	ReportsTotal        *prometheus.CounterVec // result=recorded|duplicate|error
	StockExhaustedTotal prometheus.Counter
	ReplenishedTotal    prometheus.Counter
	DecisionLatencyMS   prometheus.Histogram
	StockAvailable      *prometheus.GaugeVec // campaign
}

// NewMetrics builds and registers the engine metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotor_decisions_total",
				Help: "Assignment decisions by action and reason",
			},
			[]string{"action", "reason"},
		),
		AcksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotor_acks_total",
				Help: "Lease acknowledgments by result",
			},
			[]string{"result"},
		),
		ReportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotor_reports_total",
				Help: "Downstream write reports by result",
			},
			[]string{"result"},
		),
		StockExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rotor_stock_exhausted_total",
			Help: "Decisions that found no available stock item",
		}),
		ReplenishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rotor_replenished_items_total",
			Help: "Stock items created by replenishment",
		}),
		DecisionLatencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rotor_decision_latency_ms",
			Help:    "Latency of single assignment decisions (ms)",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		StockAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rotor_stock_available",
				Help: "Available stock items per campaign",
			},
			[]string{"campaign"},
		),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.AcksTotal,
		m.ReportsTotal,
		m.StockExhaustedTotal,
		m.ReplenishedTotal,
		m.DecisionLatencyMS,
		m.StockAvailable,
	)

	return m
}
