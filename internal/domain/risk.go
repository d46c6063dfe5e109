package domain

import (
	"fmt"
	"time"
)

// RiskScopeKind es el tipo de frontera de agregación de un nivel de riesgo.
type RiskScopeKind string

const (
	ScopeTable             RiskScopeKind = "table"
	ScopeTableStrategy     RiskScopeKind = "table_strategy"
	ScopeAllTablesStrategy RiskScopeKind = "all_tables_strategy"
	ScopeMultiStrategy     RiskScopeKind = "multi_strategy"
	ScopeGlobalDay         RiskScopeKind = "global_day"
)

// Valid devuelve true para los cinco tipos conocidos.
func (k RiskScopeKind) Valid() bool {
	switch k {
	case ScopeTable, ScopeTableStrategy, ScopeAllTablesStrategy, ScopeMultiStrategy, ScopeGlobalDay:
		return true
	}
	return false
}

// RiskAction es lo que ocurre cuando un nivel dispara.
type RiskAction string

const (
	ActionStopAll RiskAction = "stop_all"
	ActionPause   RiskAction = "pause"
	ActionNotify  RiskAction = "notify"
)

// Valid devuelve true para las acciones conocidas.
func (a RiskAction) Valid() bool {
	return a == ActionStopAll || a == ActionPause || a == ActionNotify
}

// Freezes devuelve true si la acción congela el scope.
func (a RiskAction) Freezes() bool {
	return a == ActionStopAll || a == ActionPause
}

// ScopeKey identifica un scope de riesgo. Es una unión etiquetada: Kind decide
// qué campos son significativos (Table, Strategy, Group o Day).
type ScopeKey struct {
	Kind     RiskScopeKind
	Table    string
	Strategy string
	Group    string
	Day      string // YYYY-MM-DD en UTC, solo para GlobalDay
}

// TableScope etc. construyen cada variante de la unión.
func TableScope(table string) ScopeKey { return ScopeKey{Kind: ScopeTable, Table: table} }

func TableStrategyScope(table, strategy string) ScopeKey {
	return ScopeKey{Kind: ScopeTableStrategy, Table: table, Strategy: strategy}
}

func AllTablesStrategyScope(strategy string) ScopeKey {
	return ScopeKey{Kind: ScopeAllTablesStrategy, Strategy: strategy}
}

func MultiStrategyScope(group string) ScopeKey {
	return ScopeKey{Kind: ScopeMultiStrategy, Group: group}
}

func GlobalDayScope(at time.Time) ScopeKey {
	return ScopeKey{Kind: ScopeGlobalDay, Day: at.UTC().Format(time.DateOnly)}
}

// ScopeFor deriva la clave de scope de un nivel para (mesa, estrategia).
func ScopeFor(kind RiskScopeKind, table string, def StrategyDefinition, at time.Time) ScopeKey {
	switch kind {
	case ScopeTable:
		return TableScope(table)
	case ScopeTableStrategy:
		return TableStrategyScope(table, def.Key)
	case ScopeAllTablesStrategy:
		return AllTablesStrategyScope(def.Key)
	case ScopeMultiStrategy:
		return MultiStrategyScope(def.RiskGroup())
	default:
		return GlobalDayScope(at)
	}
}

// SpansTables devuelve true si el scope agrega PnL de varias mesas.
func (k ScopeKey) SpansTables() bool {
	return k.Kind == ScopeAllTablesStrategy || k.Kind == ScopeMultiStrategy || k.Kind == ScopeGlobalDay
}

// Covers devuelve true si una línea (mesa, estrategia, grupo) cae dentro del scope.
func (k ScopeKey) Covers(table, strategy, group string) bool {
	switch k.Kind {
	case ScopeTable:
		return k.Table == table
	case ScopeTableStrategy:
		return k.Table == table && k.Strategy == strategy
	case ScopeAllTablesStrategy:
		return k.Strategy == strategy
	case ScopeMultiStrategy:
		return k.Group == group
	case ScopeGlobalDay:
		return true
	}
	return false
}

func (k ScopeKey) String() string {
	switch k.Kind {
	case ScopeTable:
		return fmt.Sprintf("table:%s", k.Table)
	case ScopeTableStrategy:
		return fmt.Sprintf("table_strategy:%s:%s", k.Table, k.Strategy)
	case ScopeAllTablesStrategy:
		return fmt.Sprintf("all_tables_strategy:%s", k.Strategy)
	case ScopeMultiStrategy:
		return fmt.Sprintf("multi_strategy:%s", k.Group)
	case ScopeGlobalDay:
		return fmt.Sprintf("global_day:%s", k.Day)
	}
	return string(k.Kind)
}

// RiskEvent se emite cuando un nivel de riesgo dispara.
type RiskEvent struct {
	Scope       ScopeKey
	Action      RiskAction
	Reason      string
	StrategyKey string
	TableID     string
	PnL         float64
	LossStreak  int
	At          time.Time
	FrozenUntil time.Time // cero con Action que congela = indefinido
}

// Freezes devuelve true si el evento congela líneas.
func (e RiskEvent) Freezes() bool { return e.Action.Freezes() }
