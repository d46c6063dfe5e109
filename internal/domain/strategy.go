package domain

import (
	"fmt"
	"strconv"
	"time"
)

// DedupMode controla si un patrón puede volver a dispararse sobre historia solapada.
type DedupMode string

const (
	// DedupStrict exige que la ventana que dispara no solape la ventana del disparo anterior.
	DedupStrict DedupMode = "strict"
	// DedupOverlap permite que cada ventana dispare, aunque comparta resultados con la anterior.
	DedupOverlap DedupMode = "overlap"
)

// FirstTrigger decide si la primera coincidencia apuesta o solo arma la línea.
type FirstTrigger string

const (
	FirstTriggerImmediate FirstTrigger = "immediate"
	FirstTriggerConfirm   FirstTrigger = "confirm"
)

// RequiredArms devuelve cuántas observaciones armadas consecutivas hacen falta antes de apostar.
func (f FirstTrigger) RequiredArms() int {
	if f == FirstTriggerConfirm {
		return 2
	}
	return 1
}

// AdvanceRule indica con qué resultado sube la escalera.
type AdvanceRule string

const (
	AdvanceOnWin  AdvanceRule = "win"
	AdvanceOnLoss AdvanceRule = "loss"
)

// CrossTableMode decide si cada mesa tiene su escalera o si se comparte una por estrategia.
type CrossTableMode string

const (
	CrossTableReset      CrossTableMode = "reset"
	CrossTableAccumulate CrossTableMode = "accumulate"
)

// EntryConfig describe cuándo entra una estrategia.
type EntryConfig struct {
	Pattern      Pattern
	Raw          string
	Dedup        DedupMode
	FirstTrigger FirstTrigger
	// ValidWindow > 0 descarta ventanas cuyo primer resultado es más antiguo que esto.
	ValidWindow time.Duration
}

// StakingConfig describe la escalera de apuestas.
type StakingConfig struct {
	Sequence    []int
	AdvanceOn   AdvanceRule
	ResetOnWin  bool
	ResetOnLoss bool
	MaxLayers   int     // 0 = toda la secuencia
	PerHandCap  float64 // 0 = sin tope
}

// LastLayer devuelve el índice máximo utilizable de la secuencia.
func (s StakingConfig) LastLayer() int {
	n := len(s.Sequence)
	if s.MaxLayers > 0 && s.MaxLayers < n {
		n = s.MaxLayers
	}
	return n - 1
}

// StakeAt devuelve la apuesta con signo para un índice, acotado a LastLayer.
func (s StakingConfig) StakeAt(index int) int {
	if len(s.Sequence) == 0 {
		return 0
	}
	if index < 0 {
		index = 0
	}
	if last := s.LastLayer(); index > last {
		index = last
	}
	return s.Sequence[index]
}

// RiskLevel es un nivel de control de riesgo sobre un scope.
type RiskLevel struct {
	Scope                RiskScopeKind
	StopLoss             *float64 // dispara si pnl <= StopLoss
	TakeProfit           *float64 // dispara si pnl >= TakeProfit
	MaxConsecutiveLosses int      // 0 = desactivado
	Action               RiskAction
	Cooldown             time.Duration // 0 = congelado indefinidamente
}

// Metadata es la metadata libre de una estrategia.
type Metadata map[string]string

const (
	MetaEVWeight  = "ev_weight"
	MetaRiskGroup = "risk_group"
)

// EVWeight devuelve el peso EV personalizado si existe y es numérico.
func (m Metadata) EVWeight() (float64, bool) {
	raw, ok := m[MetaEVWeight]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// RiskGroup devuelve el grupo multi-estrategia. Sin tag, el grupo es la propia key.
func (m Metadata) RiskGroup(strategyKey string) string {
	if g := m[MetaRiskGroup]; g != "" {
		return g
	}
	return strategyKey
}

// StrategyDefinition es la configuración inmutable de una estrategia.
type StrategyDefinition struct {
	Key        string
	Entry      EntryConfig
	Staking    StakingConfig
	CrossTable CrossTableMode
	Risk       []RiskLevel
	Metadata   Metadata
}

// RiskGroup atajo para Metadata.RiskGroup(Key).
func (d StrategyDefinition) RiskGroup() string {
	return d.Metadata.RiskGroup(d.Key)
}

// Validate comprueba la definición y completa los valores por defecto.
// Cualquier error aquí es un error de configuración.
func (d *StrategyDefinition) Validate() error {
	if d.Key == "" {
		return fmt.Errorf("strategy: empty key")
	}
	if len(d.Entry.Pattern.Expect) == 0 {
		p, err := ParsePattern(d.Entry.Raw)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", d.Key, err)
		}
		d.Entry.Pattern = p
	}
	if !d.Entry.Pattern.Bet.Valid() {
		return fmt.Errorf("strategy %s: %w: bet side %q", d.Key, ErrInvalidPattern, d.Entry.Pattern.Bet)
	}
	for _, s := range d.Entry.Pattern.Expect {
		if !s.Valid() {
			return fmt.Errorf("strategy %s: %w: side %q", d.Key, ErrInvalidPattern, s)
		}
	}

	if d.Entry.Dedup == "" {
		d.Entry.Dedup = DedupStrict
	}
	if d.Entry.Dedup != DedupStrict && d.Entry.Dedup != DedupOverlap {
		return fmt.Errorf("strategy %s: %w: dedup %q", d.Key, ErrInvalidEnum, d.Entry.Dedup)
	}
	if d.Entry.FirstTrigger == "" {
		d.Entry.FirstTrigger = FirstTriggerImmediate
	}
	if d.Entry.FirstTrigger != FirstTriggerImmediate && d.Entry.FirstTrigger != FirstTriggerConfirm {
		return fmt.Errorf("strategy %s: %w: first_trigger %q", d.Key, ErrInvalidEnum, d.Entry.FirstTrigger)
	}

	if len(d.Staking.Sequence) == 0 {
		return fmt.Errorf("strategy %s: %w", d.Key, ErrEmptySequence)
	}
	if d.Staking.AdvanceOn == "" {
		d.Staking.AdvanceOn = AdvanceOnLoss
	}
	if d.Staking.AdvanceOn != AdvanceOnWin && d.Staking.AdvanceOn != AdvanceOnLoss {
		return fmt.Errorf("strategy %s: %w: advance_on %q", d.Key, ErrInvalidEnum, d.Staking.AdvanceOn)
	}
	if d.Staking.MaxLayers < 0 || d.Staking.PerHandCap < 0 {
		return fmt.Errorf("strategy %s: negative max_layers or per_hand_cap", d.Key)
	}

	if d.CrossTable == "" {
		d.CrossTable = CrossTableReset
	}
	if d.CrossTable != CrossTableReset && d.CrossTable != CrossTableAccumulate {
		return fmt.Errorf("strategy %s: %w: cross_table %q", d.Key, ErrInvalidEnum, d.CrossTable)
	}

	for i := range d.Risk {
		lvl := &d.Risk[i]
		if !lvl.Scope.Valid() {
			return fmt.Errorf("strategy %s: %w: level %d scope %q", d.Key, ErrInvalidRiskLevel, i, lvl.Scope)
		}
		if lvl.Action == "" {
			lvl.Action = ActionPause
		}
		if !lvl.Action.Valid() {
			return fmt.Errorf("strategy %s: %w: level %d action %q", d.Key, ErrInvalidRiskLevel, i, lvl.Action)
		}
		if lvl.MaxConsecutiveLosses < 0 || lvl.Cooldown < 0 {
			return fmt.Errorf("strategy %s: %w: level %d has negative limits", d.Key, ErrInvalidRiskLevel, i)
		}
	}
	if d.Metadata == nil {
		d.Metadata = Metadata{}
	}
	return nil
}
