// Package observability collects the prometheus instrumentation and the event
// plumbing shared by the staking service.
package observability

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the prometheus collectors exported by the staking service.
type Metrics struct {
	Operations *prometheus.CounterVec
	Events     *prometheus.CounterVec

	TotalStaked prometheus.Gauge
	TokenPool   prometheus.Gauge
}

// NewMetrics registers the staking collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "staking",
			Name:      "operations_total",
			Help:      "Staking ledger operations by name and result.",
		}, []string{"op", "result"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "staking",
			Name:      "events_total",
			Help:      "Ledger events emitted by type.",
		}, []string{"type"}),
		TotalStaked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "staking",
			Name:      "total_staked",
			Help:      "Sum of all active accounts' staked principal.",
		}),
		TokenPool: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "staking",
			Name:      "token_pool",
			Help:      "Tokens held in reserve to cover rewards and principal.",
		}),
	}
}

// ObserveOperation records the outcome of a ledger operation.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

// SetLedgerGauges refreshes the pool and stake gauges from big.Int amounts.
// Values beyond float64 precision are reported approximately; the gauges are
// operational signals, not the accounting source of truth.
func (m *Metrics) SetLedgerGauges(totalStaked, tokenPool *big.Int) {
	if m == nil {
		return
	}
	if totalStaked != nil {
		staked, _ := new(big.Float).SetInt(totalStaked).Float64()
		m.TotalStaked.Set(staked)
	}
	if tokenPool != nil {
		pool, _ := new(big.Float).SetInt(tokenPool).Float64()
		m.TokenPool.Set(pool)
	}
}
