package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VendingMetrics tracks grant outcomes and the execution of the blocks that
// carry them.
type VendingMetrics struct {
	grants       prometheus.Counter
	refusals     prometheus.Counter
	transactions *prometheus.CounterVec
	gasUsed      prometheus.Histogram
	headHeight   prometheus.Gauge
	indexErrors  prometheus.Counter
}

var (
	vendingMetricsOnce sync.Once
	vendingRegistry    *VendingMetrics
)

// Vending returns the lazily-initialised metrics registry shared by the node
// and the RPC server.
func Vending() *VendingMetrics {
	vendingMetricsOnce.Do(func() {
		vendingRegistry = NewVendingMetrics(prometheus.DefaultRegisterer)
	})
	return vendingRegistry
}

// NewVendingMetrics builds the collectors and registers them with reg. Tests
// pass a private registry.
func NewVendingMetrics(reg prometheus.Registerer) *VendingMetrics {
	m := &VendingMetrics{
		grants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cupcake",
			Subsystem: "vending",
			Name:      "grants_total",
			Help:      "Count of cupcakes handed out.",
		}),
		refusals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cupcake",
			Subsystem: "vending",
			Name:      "refusals_total",
			Help:      "Count of grant requests refused because the cooldown had not elapsed.",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cupcake",
			Subsystem: "chain",
			Name:      "transactions_total",
			Help:      "Executed transactions segmented by receipt status.",
		}, []string{"status"}),
		gasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cupcake",
			Subsystem: "chain",
			Name:      "gas_used",
			Help:      "Gas consumed per transaction.",
			Buckets:   prometheus.ExponentialBuckets(21_000, 1.5, 8),
		}),
		headHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cupcake",
			Subsystem: "chain",
			Name:      "head_block",
			Help:      "Height of the latest committed block.",
		}),
		indexErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cupcake",
			Subsystem: "indexer",
			Name:      "errors_total",
			Help:      "Count of blocks whose grants could not be indexed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.grants, m.refusals, m.transactions, m.gasUsed, m.headHeight, m.indexErrors)
	}
	return m
}

// RecordGrant records the outcome of a successful giveCupcakeTo call.
func (m *VendingMetrics) RecordGrant(granted bool) {
	if m == nil {
		return
	}
	if granted {
		m.grants.Inc()
		return
	}
	m.refusals.Inc()
}

// RecordTransaction records a receipt's status and gas.
func (m *VendingMetrics) RecordTransaction(succeeded bool, gasUsed uint64) {
	if m == nil {
		return
	}
	status := "failed"
	if succeeded {
		status = "success"
	}
	m.transactions.WithLabelValues(status).Inc()
	m.gasUsed.Observe(float64(gasUsed))
}

// SetHead records the latest committed block height.
func (m *VendingMetrics) SetHead(height uint64) {
	if m == nil {
		return
	}
	m.headHeight.Set(float64(height))
}

// RecordIndexError counts a failed indexer write.
func (m *VendingMetrics) RecordIndexError() {
	if m == nil {
		return
	}
	m.indexErrors.Inc()
}
