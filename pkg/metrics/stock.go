package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Allocation outcomes used as the "outcome" label.
const (
	OutcomeSuccess      = "success"
	OutcomeOutOfStock   = "out_of_stock"
	OutcomeInsufficient = "insufficient_stock"
	OutcomeInvalid      = "invalid_input"
	OutcomeError        = "error"
)

// StockMetrics tracks allocation traffic and inventory lifecycle movements.
type StockMetrics struct {
	allocations   *prometheus.CounterVec
	unitsSold     prometheus.Counter
	allocLatency  prometheus.Histogram
	migrated      prometheus.Counter
	expired       prometheus.Counter
	alerts        *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewStockMetrics registers the stock metrics on reg. A nil registerer yields a no-op recorder.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	m := &StockMetrics{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Allocation requests by outcome.",
		}, []string{"outcome"}),
		unitsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_sold_total",
			Help:      "Products handed out by successful allocations.",
		}),
		allocLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_duration_seconds",
			Help:      "Time spent inside the allocation transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		migrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_migrated_total",
			Help:      "Products moved from the source to the destination inventory.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_expired_total",
			Help:      "Unsold products deleted from the destination inventory.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_alerts_total",
			Help:      "Stock alerts emitted by kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications by kind and result.",
		}, []string{"kind", "result"}),
	}
	reg.MustRegister(m.allocations, m.unitsSold, m.allocLatency, m.migrated, m.expired, m.alerts, m.notifications)
	return m
}

// ObserveAllocation records one allocation attempt.
func (m *StockMetrics) ObserveAllocation(outcome string, units int, elapsed time.Duration) {
	if m == nil || m.allocations == nil {
		return
	}
	m.allocations.WithLabelValues(outcome).Inc()
	m.allocLatency.Observe(elapsed.Seconds())
	if outcome == OutcomeSuccess && units > 0 {
		m.unitsSold.Add(float64(units))
	}
}

func (m *StockMetrics) AddMigrated(n int64) {
	if m == nil || m.migrated == nil || n <= 0 {
		return
	}
	m.migrated.Add(float64(n))
}

func (m *StockMetrics) AddExpired(n int64) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *StockMetrics) IncAlert(kind string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncNotification counts a notification attempt; result is "sent", "failed" or "skipped".
func (m *StockMetrics) IncNotification(kind, result string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(kind), result).Inc()
}
