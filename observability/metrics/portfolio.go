package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type PortfolioMetrics struct {
	totalAssets *prometheus.GaugeVec
	liquidity   *prometheus.GaugeVec
	sharePrice  *prometheus.GaugeVec
	unpaidFees  *prometheus.GaugeVec
	calls       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	keeperRuns  *prometheus.CounterVec
}

var (
	portfolioOnce     sync.Once
	portfolioRegistry *PortfolioMetrics
)

// Portfolio returns the lazily registered portfolio metrics.
func Portfolio() *PortfolioMetrics {
	portfolioOnce.Do(func() {
		portfolioRegistry = &PortfolioMetrics{
			totalAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditvault",
				Subsystem: "portfolio",
				Name:      "total_assets",
				Help:      "Net asset value of the vault in whole asset units.",
			}, []string{"vault"}),
			liquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditvault",
				Subsystem: "portfolio",
				Name:      "virtual_liquidity",
				Help:      "Liquid balance tracked by the vault in whole asset units.",
			}, []string{"vault"}),
			sharePrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditvault",
				Subsystem: "portfolio",
				Name:      "share_price",
				Help:      "Assets redeemable for one whole share.",
			}, []string{"vault"}),
			unpaidFees: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditvault",
				Subsystem: "portfolio",
				Name:      "accrued_fees",
				Help:      "Continuous fees owed but not yet paid, by recipient.",
			}, []string{"vault", "recipient"}),
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditvault",
				Subsystem: "portfolio",
				Name:      "calls_total",
				Help:      "Portfolio operations segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "creditvault",
				Subsystem: "portfolio",
				Name:      "call_duration_seconds",
				Help:      "Latency of portfolio operations including the state commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			keeperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditvault",
				Subsystem: "keeper",
				Name:      "runs_total",
				Help:      "Fee keeper runs per vault and outcome.",
			}, []string{"vault", "outcome"}),
		}
		prometheus.MustRegister(
			portfolioRegistry.totalAssets,
			portfolioRegistry.liquidity,
			portfolioRegistry.sharePrice,
			portfolioRegistry.unpaidFees,
			portfolioRegistry.calls,
			portfolioRegistry.latency,
			portfolioRegistry.keeperRuns,
		)
	})
	return portfolioRegistry
}

// Units converts a base-unit amount into a float of whole units.
func Units(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).InexactFloat64()
}

// Snapshot carries the values published per vault after a state change.
type Snapshot struct {
	Vault          string
	Decimals       uint8
	TotalAssets    *big.Int
	Liquidity      *big.Int
	SharePrice     *big.Int
	ProtocolFeeDue *big.Int
	ManagerFeeDue  *big.Int
}

func (m *PortfolioMetrics) Publish(s Snapshot) {
	if m == nil {
		return
	}
	m.totalAssets.WithLabelValues(s.Vault).Set(Units(s.TotalAssets, s.Decimals))
	m.liquidity.WithLabelValues(s.Vault).Set(Units(s.Liquidity, s.Decimals))
	m.sharePrice.WithLabelValues(s.Vault).Set(Units(s.SharePrice, s.Decimals))
	m.unpaidFees.WithLabelValues(s.Vault, "protocol").Set(Units(s.ProtocolFeeDue, s.Decimals))
	m.unpaidFees.WithLabelValues(s.Vault, "manager").Set(Units(s.ManagerFeeDue, s.Decimals))
}

func (m *PortfolioMetrics) ObserveCall(method string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *PortfolioMetrics) ObserveKeeperRun(vault string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.keeperRuns.WithLabelValues(vault, outcome).Inc()
}

func (m *PortfolioMetrics) TotalAssetsGaugeVec() *prometheus.GaugeVec { return m.totalAssets }
func (m *PortfolioMetrics) CallsCounterVec() *prometheus.CounterVec   { return m.calls }
func (m *PortfolioMetrics) KeeperRunsCounterVec() *prometheus.CounterVec {
	return m.keeperRuns
}
