package domain

import (
	"fmt"
	"strings"
	"time"
)

// TablePhase es la fase de la mesa tal como la reporta la capa de detección.
// El ciclo es idle → open → bettable → locked → resulting → settled → idle.
type TablePhase string

const (
	TableIdle      TablePhase = "idle"
	TableOpen      TablePhase = "open"
	TableBettable  TablePhase = "bettable"
	TableLocked    TablePhase = "locked"
	TableResulting TablePhase = "resulting"
	TableSettled   TablePhase = "settled"
)

// Valid devuelve true para las fases conocidas.
func (p TablePhase) Valid() bool {
	switch p {
	case TableIdle, TableOpen, TableBettable, TableLocked, TableResulting, TableSettled:
		return true
	}
	return false
}

// ParseTablePhase acepta el nombre de la fase sin distinguir mayúsculas.
func ParseTablePhase(s string) (TablePhase, error) {
	p := TablePhase(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: table phase %q", ErrInvalidEnum, s)
	}
	return p, nil
}

// EventKind distingue los dos eventos que entrega la capa de detección.
type EventKind string

const (
	EventPhase  EventKind = "phase"
	EventResult EventKind = "result"
)

// TableEvent es un cambio de fase o un resultado de ronda de una mesa.
type TableEvent struct {
	Kind    EventKind
	TableID string
	RoundID string
	Phase   TablePhase // solo EventPhase
	Winner  Side       // solo EventResult; WinnerNone = ronda anulada
	At      time.Time
}
