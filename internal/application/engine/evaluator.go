package engine

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// RiskGate es lo que el evaluador necesita del Risk Coordinator.
type RiskGate interface {
	IsBlocked(strategyKey, tableID string, at time.Time) bool
}

// EvalResult es el resultado de evaluar una línea. "No entrar" es un valor,
// no un error: Candidate es nil y Reason dice por qué.
type EvalResult struct {
	Candidate *domain.Candidate
	Reason    string
}

// Evaluator decide si una línea (mesa, estrategia) entra en la ronda actual.
type Evaluator struct {
	risk RiskGate
}

// NewEvaluator crea un evaluador con el gate de riesgo dado.
func NewEvaluator(risk RiskGate) *Evaluator {
	return &Evaluator{risk: risk}
}

// Evaluate recorre las comprobaciones en orden fijo y corta en la primera que
// falla. Armar la línea (fase y contador) queda aplicado aunque el candidato se
// rechace después.
func (e *Evaluator) Evaluate(
	def domain.StrategyDefinition,
	line *domain.LineState,
	hist *History,
	ladder *domain.LayerProgression,
	roundID string,
	at time.Time,
) EvalResult {
	if line.Waiting() {
		return EvalResult{Reason: "waiting_result"}
	}
	if line.FrozenAt(at) {
		return EvalResult{Reason: "frozen"}
	}
	if e.risk != nil && e.risk.IsBlocked(def.Key, line.TableID, at) {
		return EvalResult{Reason: "risk_blocked"}
	}

	trig := hist.Evaluate(def.Entry, roundID, at)
	if !trig.Matched {
		line.Disarm()
		return EvalResult{Reason: trig.Reason}
	}
	if !trig.Fired {
		return EvalResult{Reason: trig.Reason}
	}

	armed := line.Arm()
	if need := def.Entry.FirstTrigger.RequiredArms(); armed < need {
		return EvalResult{Reason: fmt.Sprintf("armed %d/%d", armed, need)}
	}

	stake, layer := ladder.Stake()
	if stake == 0 {
		return EvalResult{Reason: "zero_stake"}
	}
	dir, amount := ResolveStake(def.Entry.Pattern.Bet, stake)
	if limit := def.Staking.PerHandCap; limit > 0 && amount > limit {
		amount = limit
	}

	return EvalResult{Candidate: &domain.Candidate{
		TableID:     line.TableID,
		RoundID:     roundID,
		StrategyKey: def.Key,
		Direction:   dir,
		Amount:      amount,
		LayerIndex:  layer,
		CreatedAt:   at,
	}}
}

// ResolveStake convierte una apuesta con signo en lado y cantidad positiva.
// Una apuesta negativa va al lado contrario del configurado.
func ResolveStake(bet domain.Side, stake int) (domain.Side, float64) {
	if stake < 0 {
		return bet.Opposite(), float64(-stake)
	}
	return bet, float64(stake)
}
