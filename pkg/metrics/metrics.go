// Package metrics exposes marketplace telemetry for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blockwatch.cc/oracle-market/pkg/ledger"
	"blockwatch.cc/oracle-market/pkg/market"
)

// Collector owns a private registry so several hosts (e.g. in tests) can
// run side by side. All methods are safe on a nil receiver.
type Collector struct {
	registry *prometheus.Registry

	txTotal          *prometheus.CounterVec
	txLatency        *prometheus.HistogramVec
	feesTotal        *prometheus.CounterVec
	collateralLocked prometheus.Gauge
	treasuryBalance  prometheus.Gauge
	persistFailures  *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "oracle_market"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.txTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "total",
			Help:      "Transactions by operation and outcome (ok or error kind)",
		},
		[]string{"op", "outcome"},
	)
	c.txLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "duration_seconds",
			Help:      "Transaction execution time including lock wait",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"op"},
	)
	c.feesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "fees_total",
			Help:      "Settled fees in subunits by recipient (platform or provider)",
		},
		[]string{"recipient"},
	)
	c.collateralLocked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "collateral",
		Name:      "locked",
		Help:      "Collateral locked in the pool in subunits",
	})
	c.treasuryBalance = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "treasury",
		Name:      "balance",
		Help:      "Treasury balance in subunits",
	})
	c.persistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "failures_total",
			Help:      "Failed object writes by kind",
		},
		[]string{"kind"},
	)

	c.registry.MustRegister(
		c.txTotal,
		c.txLatency,
		c.feesTotal,
		c.collateralLocked,
		c.treasuryBalance,
		c.persistFailures,
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTx counts one transaction. The outcome label is the error kind
// name, or "ok".
func (c *Collector) ObserveTx(op string, err error, d time.Duration) {
	if c == nil {
		return
	}
	c.txTotal.WithLabelValues(op, market.KindName(err)).Inc()
	c.txLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (c *Collector) ObserveFees(platform, provider ledger.Money) {
	if c == nil {
		return
	}
	c.feesTotal.WithLabelValues("platform").Add(float64(platform))
	c.feesTotal.WithLabelValues("provider").Add(float64(provider))
}

func (c *Collector) SetCollateral(m ledger.Money) {
	if c == nil {
		return
	}
	c.collateralLocked.Set(float64(m))
}

func (c *Collector) SetTreasury(m ledger.Money) {
	if c == nil {
		return
	}
	c.treasuryBalance.Set(float64(m))
}

func (c *Collector) PersistFailed(kind string) {
	if c == nil {
		return
	}
	c.persistFailures.WithLabelValues(kind).Inc()
}
