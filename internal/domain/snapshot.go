package domain

import "time"

// Snapshot es el estado mutable serializable del núcleo. Restaurarlo no
// requiere reproducir la historia de resultados.
type Snapshot struct {
	TakenAt time.Time       `json:"taken_at"`
	Lines   []LineSnapshot  `json:"lines"`
	Scopes  []ScopeSnapshot `json:"scopes"`
}

// LineSnapshot es el estado persistido de una línea (mesa, estrategia).
type LineSnapshot struct {
	TableID     string    `json:"table_id"`
	StrategyKey string    `json:"strategy_key"`
	Phase       LinePhase `json:"phase"`
	ArmedCount  int       `json:"armed_count"`
	LayerIndex  int       `json:"layer_index"`
	Stake       int       `json:"stake"`
	PnL         float64   `json:"pnl"`
	Frozen      bool      `json:"frozen"`
	FrozenUntil time.Time `json:"frozen_until"`
	LastRoundID string    `json:"last_round_id"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Skips       int       `json:"skips"`
}

// ScopeSnapshot es el estado persistido de un ScopeTracker de riesgo.
type ScopeSnapshot struct {
	Scope       ScopeKey   `json:"scope"`
	PnL         float64    `json:"pnl"`
	LossStreak  int        `json:"loss_streak"`
	Frozen      bool       `json:"frozen"`
	FrozenUntil time.Time  `json:"frozen_until"`
	Action      RiskAction `json:"action,omitempty"`
}
