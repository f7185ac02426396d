// Package metrics exposes the engine's counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "updown"

// Observer implements engine.Observer on a dedicated registry.
type Observer struct {
	registry *prometheus.Registry

	ticks        prometheus.Counter
	decisions    *prometheus.CounterVec
	orders       *prometheus.CounterVec
	trades       *prometheus.CounterVec
	realizedPnL  prometheus.Counter
	sessionPnL   prometheus.Gauge
	breakerTrips prometheus.Counter
	basis        prometheus.Gauge
	balance      prometheus.Gauge
}

// New creates an Observer with the Go and process collectors registered
// alongside the bot's own metrics.
func New() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Spot ticks ingested from the exchange feed.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decisions_total",
			Help: "Signal evaluations by outcome.",
		}, []string{"outcome"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total",
			Help: "Orders submitted by side and result.",
		}, []string{"side", "result"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_total",
			Help: "Realized trades by result.",
		}, []string{"result"}),
		realizedPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "realized_profit_usdc_total",
			Help: "Sum of positive realized PnL in USDC.",
		}),
		sessionPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "session_pnl_usdc",
			Help: "Net realized PnL of this session in USDC.",
		}),
		breakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuit_breaker_trips_total",
			Help: "Times the circuit breaker tripped.",
		}),
		basis: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "basis_offset_usd",
			Help: "Current exchange-to-oracle basis offset.",
		}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "balance_usdc",
			Help: "Last observed collateral balance.",
		}),
	}
	o.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		o.ticks, o.decisions, o.orders, o.trades, o.realizedPnL,
		o.sessionPnL, o.breakerTrips, o.basis, o.balance,
	)
	return o
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}

// Registry returns the underlying registry.
func (o *Observer) Registry() *prometheus.Registry { return o.registry }

func (o *Observer) Tick()                     { o.ticks.Inc() }
func (o *Observer) Decision(outcome string)   { o.decisions.WithLabelValues(outcome).Inc() }
func (o *Observer) Order(side, result string) { o.orders.WithLabelValues(side, result).Inc() }
func (o *Observer) SessionPnL(v float64)      { o.sessionPnL.Set(v) }
func (o *Observer) BreakerTrip()              { o.breakerTrips.Inc() }
func (o *Observer) Basis(v float64)           { o.basis.Set(v) }
func (o *Observer) Balance(v float64)         { o.balance.Set(v) }

// Trade counts a realized trade. Only gains feed the profit counter since
// counters cannot go down; the session gauge carries the net.
func (o *Observer) Trade(result string, pnl float64) {
	o.trades.WithLabelValues(result).Inc()
	if pnl > 0 {
		o.realizedPnL.Add(pnl)
	}
}
