package domain

import "time"

// LinePhase es la fase de una línea (mesa, estrategia).
type LinePhase string

const (
	PhaseIdle          LinePhase = "idle"
	PhaseArmed         LinePhase = "armed"
	PhaseEntered       LinePhase = "entered"
	PhaseWaitingResult LinePhase = "waiting_result"
	PhaseFrozen        LinePhase = "frozen"
)

// LineState es el estado mutable de una línea. Se crea la primera vez que se
// referencia el par (mesa, estrategia) y nunca se borra, solo se resetea.
type LineState struct {
	TableID     string
	StrategyKey string
	Phase       LinePhase
	ArmedCount  int
	LayerIndex  int // última capa conocida de la escalera de esta línea
	LastRoundID string
	Frozen      bool
	FrozenUntil time.Time // cero + Frozen = congelada indefinidamente
	PnL         float64

	Wins   int
	Losses int
	Skips  int
}

// NewLineState crea una línea en idle.
func NewLineState(tableID, strategyKey string) *LineState {
	return &LineState{TableID: tableID, StrategyKey: strategyKey, Phase: PhaseIdle}
}

// Arm registra una observación con el patrón satisfecho.
func (l *LineState) Arm() int {
	l.ArmedCount++
	l.Phase = PhaseArmed
	return l.ArmedCount
}

// Disarm vuelve a idle y pone el contador de armado a cero.
func (l *LineState) Disarm() {
	l.ArmedCount = 0
	if l.Phase == PhaseArmed || l.Phase == PhaseEntered {
		l.Phase = PhaseIdle
	}
}

// Enter marca la entrada aprobada y pasa directamente a esperar resultado.
func (l *LineState) Enter(roundID string, layer int) {
	l.Phase = PhaseEntered
	l.LayerIndex = layer
	l.LastRoundID = roundID
	l.Phase = PhaseWaitingResult
}

// Waiting devuelve true si la línea tiene una apuesta pendiente.
func (l *LineState) Waiting() bool {
	return l.Phase == PhaseWaitingResult
}

// RecordOutcome aplica una liquidación y vuelve a idle.
// Si la línea fue congelada mientras esperaba, se queda congelada.
func (l *LineState) RecordOutcome(outcome LayerOutcome, pnl float64, layerAfter int) {
	l.PnL += pnl
	l.LayerIndex = layerAfter
	switch outcome {
	case OutcomeWin:
		l.Wins++
	case OutcomeLoss:
		l.Losses++
	case OutcomeSkipped:
		l.Skips++
	}
	if l.Frozen {
		l.Phase = PhaseFrozen
		return
	}
	l.Phase = PhaseIdle
}

// Freeze congela la línea hasta until (cero = indefinido). Un freeze más largo
// nunca se acorta por otro más corto.
func (l *LineState) Freeze(until time.Time) {
	if l.Frozen && (l.FrozenUntil.IsZero() || (!until.IsZero() && until.Before(l.FrozenUntil))) {
		return
	}
	l.Frozen = true
	l.FrozenUntil = until
	l.ArmedCount = 0
	if l.Phase != PhaseWaitingResult {
		l.Phase = PhaseFrozen
	}
}

// Unfreeze descongela y vuelve a idle.
func (l *LineState) Unfreeze() {
	l.Frozen = false
	l.FrozenUntil = time.Time{}
	if l.Phase == PhaseFrozen {
		l.Phase = PhaseIdle
	}
}

// FrozenAt devuelve true si la línea sigue congelada en now.
// Un freeze vencido se levanta aquí mismo: la expiración es perezosa.
func (l *LineState) FrozenAt(now time.Time) bool {
	if !l.Frozen {
		return false
	}
	if !l.FrozenUntil.IsZero() && !now.Before(l.FrozenUntil) {
		l.Unfreeze()
		return false
	}
	return true
}

// Cancel abandona la apuesta pendiente sin resultado: vuelve a idle, o a
// frozen si se congeló mientras esperaba. No toca pnl ni escalera.
func (l *LineState) Cancel() {
	if l.Phase != PhaseWaitingResult && l.Phase != PhaseEntered {
		return
	}
	if l.Frozen {
		l.Phase = PhaseFrozen
		return
	}
	l.Phase = PhaseIdle
}

// Snapshot copia el estado persistible de la línea.
func (l *LineState) Snapshot() LineSnapshot {
	return LineSnapshot{
		TableID:     l.TableID,
		StrategyKey: l.StrategyKey,
		Phase:       l.Phase,
		ArmedCount:  l.ArmedCount,
		LayerIndex:  l.LayerIndex,
		PnL:         l.PnL,
		Frozen:      l.Frozen,
		FrozenUntil: l.FrozenUntil,
		LastRoundID: l.LastRoundID,
		Wins:        l.Wins,
		Losses:      l.Losses,
		Skips:       l.Skips,
	}
}

// RestoreLine reconstruye una línea desde un snapshot. Las fases intermedias
// (armed, entered, waiting_result) vuelven a idle: las posiciones pendientes
// se abandonan al parar.
func RestoreLine(s LineSnapshot) *LineState {
	l := &LineState{
		TableID:     s.TableID,
		StrategyKey: s.StrategyKey,
		Phase:       PhaseIdle,
		LayerIndex:  s.LayerIndex,
		LastRoundID: s.LastRoundID,
		PnL:         s.PnL,
		Wins:        s.Wins,
		Losses:      s.Losses,
		Skips:       s.Skips,
	}
	if s.Frozen {
		l.Frozen = true
		l.FrozenUntil = s.FrozenUntil
		l.Phase = PhaseFrozen
	}
	return l
}
