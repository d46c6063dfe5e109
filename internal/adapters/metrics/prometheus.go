// Package metrics expone el núcleo de decisión como métricas Prometheus.
//
//	autobet_decisions_total{strategy,side}        apuestas aprobadas
//	autobet_stake_amount{strategy}                importe por apuesta
//	autobet_rejections_total{reason}              candidatos descartados
//	autobet_settlements_total{strategy,outcome}   liquidaciones por resultado
//	autobet_realized_pnl{strategy}                PnL acumulado
//	autobet_risk_events_total{scope,action}       niveles de riesgo disparados
//	autobet_lines, autobet_frozen_lines, autobet_pending_positions, autobet_exposure
package metrics

import (
	"context"
	"net/http"

	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autobet"

// Metrics implementa ports.EventSink sobre un registro Prometheus.
type Metrics struct {
	gatherer prometheus.Gatherer

	decisions   *prometheus.CounterVec
	stake       *prometheus.HistogramVec
	rejections  *prometheus.CounterVec
	settlements *prometheus.CounterVec
	pnl         *prometheus.GaugeVec
	riskEvents  *prometheus.CounterVec

	lines    prometheus.Gauge
	frozen   prometheus.Gauge
	pending  prometheus.Gauge
	exposure prometheus.Gauge
}

// New registra las métricas en reg. Con reg nil usa un registro propio,
// útil en tests para no chocar con el registro global.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Approved bet decisions",
		}, []string{"strategy", "side"}),
		stake: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stake_amount",
			Help:      "Amount of each approved bet",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"strategy"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Candidates rejected by the conflict resolver",
		}, []string{"reason"}),
		settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settled positions by outcome",
		}, []string{"strategy", "outcome"}),
		pnl: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realized_pnl",
			Help:      "Realized PnL since start",
		}, []string{"strategy"}),
		riskEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_events_total",
			Help:      "Risk levels triggered",
		}, []string{"scope", "action"}),
		lines: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lines",
			Help:      "Attached (table, strategy) lines",
		}),
		frozen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frozen_lines",
			Help:      "Lines currently frozen by a risk action",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_positions",
			Help:      "Open positions waiting for a result",
		}),
		exposure: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exposure",
			Help:      "Total amount in pending positions",
		}),
	}
}

// Handler devuelve el handler HTTP para /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Decisions(_ context.Context, decisions []domain.BetDecision) {
	for _, d := range decisions {
		m.decisions.WithLabelValues(d.StrategyKey, d.Direction.Name()).Inc()
		m.stake.WithLabelValues(d.StrategyKey).Observe(d.Amount)
	}
}

func (m *Metrics) Rejections(_ context.Context, rejections []domain.Rejection) {
	for _, r := range rejections {
		m.rejections.WithLabelValues(string(r.Reason)).Inc()
	}
}

func (m *Metrics) Settlements(_ context.Context, settlements []domain.Settlement) {
	for _, s := range settlements {
		m.settlements.WithLabelValues(s.Position.StrategyKey, string(s.Outcome)).Inc()
		m.pnl.WithLabelValues(s.Position.StrategyKey).Add(s.PnL)
	}
}

func (m *Metrics) RiskEvents(_ context.Context, events []domain.RiskEvent) {
	for _, e := range events {
		m.riskEvents.WithLabelValues(string(e.Scope.Kind), string(e.Action)).Inc()
	}
}

// ObserveStatus actualiza los gauges de estado; se llama en cada snapshot periódico.
func (m *Metrics) ObserveStatus(lines, frozen, pending int, exposure float64) {
	m.lines.Set(float64(lines))
	m.frozen.Set(float64(frozen))
	m.pending.Set(float64(pending))
	m.exposure.Set(exposure)
}

// DecisionsFor devuelve el contador de decisiones de una estrategia y lado.
func (m *Metrics) DecisionsFor(strategy string, side domain.Side) prometheus.Counter {
	return m.decisions.WithLabelValues(strategy, side.Name())
}

// RejectionsFor devuelve el contador de rechazos por motivo.
func (m *Metrics) RejectionsFor(reason domain.RejectReason) prometheus.Counter {
	return m.rejections.WithLabelValues(string(reason))
}

// SettlementsFor devuelve el contador de liquidaciones de una estrategia.
func (m *Metrics) SettlementsFor(strategy string, outcome domain.LayerOutcome) prometheus.Counter {
	return m.settlements.WithLabelValues(strategy, string(outcome))
}

// PnLFor devuelve el gauge de PnL realizado de una estrategia.
func (m *Metrics) PnLFor(strategy string) prometheus.Gauge {
	return m.pnl.WithLabelValues(strategy)
}
