package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"loanledger/native/lending"
)

// LendingMetrics tracks the operation counters and pool aggregates exported
// by the service.
type LendingMetrics struct {
	opsCommitted *prometheus.CounterVec
	opsRejected  *prometheus.CounterVec

	totalCollateral prometheus.Gauge
	totalSupplied   prometheus.Gauge
	totalBorrowed   prometheus.Gauge
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process-wide lending metric set, registering it on
// first use.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			opsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_committed_total",
				Help: "Count of committed ledger operations by kind.",
			}, []string{"op"}),
			opsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_rejected_total",
				Help: "Count of rejected ledger operations by kind.",
			}, []string{"op"}),
			totalCollateral: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_pool_total_collateral_wei",
				Help: "Collateral pledged across all active positions.",
			}),
			totalSupplied: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_pool_total_supplied_wei",
				Help: "Aggregate principal liquidity deposited by suppliers.",
			}),
			totalBorrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_pool_total_borrowed_wei",
				Help: "Outstanding principal borrowed across all positions.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.opsCommitted,
			lendingRegistry.opsRejected,
			lendingRegistry.totalCollateral,
			lendingRegistry.totalSupplied,
			lendingRegistry.totalBorrowed,
		)
	})
	return lendingRegistry
}

// ObserveCommit records a committed operation of the given kind.
func (m *LendingMetrics) ObserveCommit(op string) {
	if m == nil {
		return
	}
	m.opsCommitted.WithLabelValues(op).Inc()
}

// ObserveReject records a rejected operation of the given kind.
func (m *LendingMetrics) ObserveReject(op string) {
	if m == nil {
		return
	}
	m.opsRejected.WithLabelValues(op).Inc()
}

// SetAggregates mirrors the pool totals into the exported gauges. Precision
// loss past float64 is acceptable for monitoring.
func (m *LendingMetrics) SetAggregates(pool *lending.Pool) {
	if m == nil || pool == nil {
		return
	}
	setGauge(m.totalCollateral, pool.TotalCollateral)
	setGauge(m.totalSupplied, pool.TotalSupplied)
	setGauge(m.totalBorrowed, pool.TotalBorrowed)
}

func setGauge(gauge prometheus.Gauge, value *big.Int) {
	if value == nil {
		gauge.Set(0)
		return
	}
	approx, _ := new(big.Float).SetInt(value).Float64()
	gauge.Set(approx)
}
