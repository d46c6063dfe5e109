package domain

import "time"

// Candidate es una decisión candidata del Entry Evaluator, aún sin arbitrar.
type Candidate struct {
	TableID     string
	RoundID     string
	StrategyKey string
	Direction   Side
	Amount      float64 // siempre >= 0, el signo ya está resuelto en Direction
	LayerIndex  int
	CreatedAt   time.Time
}

// RejectReason explica por qué el Conflict Resolver descartó un candidato.
type RejectReason string

const (
	RejectOppositeDirection RejectReason = "opposite_direction"
	RejectLowerPriority     RejectReason = "lower_priority"
)

// Rejection es un candidato descartado con su motivo.
type Rejection struct {
	Candidate Candidate
	Reason    RejectReason
	Score     float64
	Detail    string
}

// BetDecision es la instrucción para la capa de actuación: "apuesta esto".
// La capa de actuación convierte Amount en fichas y clicks.
type BetDecision struct {
	PositionID  string
	TableID     string
	RoundID     string
	StrategyKey string
	Direction   Side
	Amount      float64
	LayerIndex  int
	CreatedAt   time.Time
}

// PositionKey identifica una posición pendiente: como mucho una por estrategia y ronda.
type PositionKey struct {
	TableID     string
	RoundID     string
	StrategyKey string
}

// PendingPosition es una apuesta aprobada que todavía no tiene resultado.
type PendingPosition struct {
	ID          string
	TableID     string
	RoundID     string
	StrategyKey string
	Direction   Side
	Amount      float64
	LayerIndex  int
	CreatedAt   time.Time
}

// Key devuelve la clave (mesa, ronda, estrategia).
func (p PendingPosition) Key() PositionKey {
	return PositionKey{TableID: p.TableID, RoundID: p.RoundID, StrategyKey: p.StrategyKey}
}

// Decision convierte la posición en la instrucción para la actuación.
func (p PendingPosition) Decision() BetDecision {
	return BetDecision{
		PositionID:  p.ID,
		TableID:     p.TableID,
		RoundID:     p.RoundID,
		StrategyKey: p.StrategyKey,
		Direction:   p.Direction,
		Amount:      p.Amount,
		LayerIndex:  p.LayerIndex,
		CreatedAt:   p.CreatedAt,
	}
}

// Settlement es el resultado de liquidar una posición.
type Settlement struct {
	Position   PendingPosition
	Winner     Side
	Outcome    LayerOutcome
	PnL        float64
	LayerAfter int
	SettledAt  time.Time
	Risk       []RiskEvent
}

// Payout son los multiplicadores de ganancia por lado. Con el default (1.0)
// un WIN suma +amount y un LOSS resta -amount.
type Payout struct {
	Banker float64
	Player float64
	Tie    float64
}

// DefaultPayout paga 1:1 en todos los lados.
func DefaultPayout() Payout {
	return Payout{Banker: 1, Player: 1, Tie: 1}
}

// PnL calcula el delta de profit/loss de una apuesta liquidada.
func (p Payout) PnL(direction Side, amount float64, outcome LayerOutcome) float64 {
	switch outcome {
	case OutcomeWin:
		return amount * p.multiplier(direction)
	case OutcomeLoss:
		return -amount
	default:
		return 0
	}
}

func (p Payout) multiplier(s Side) float64 {
	var m float64
	switch s {
	case SideBanker:
		m = p.Banker
	case SidePlayer:
		m = p.Player
	case SideTie:
		m = p.Tie
	}
	if m <= 0 {
		return 1
	}
	return m
}
