package domain

import (
	"fmt"
	"strings"
)

// Side es un lado apostable de la mesa: banca, jugador o empate.
type Side string

const (
	SideBanker Side = "B"
	SidePlayer Side = "P"
	SideTie    Side = "T"

	// WinnerNone marca una ronda anulada o cancelada (sin ganador).
	WinnerNone Side = ""
)

// Valid devuelve true si el lado es B, P o T.
func (s Side) Valid() bool {
	return s == SideBanker || s == SidePlayer || s == SideTie
}

// Opposite devuelve el lado contrario. El empate no tiene contrario.
func (s Side) Opposite() Side {
	switch s {
	case SideBanker:
		return SidePlayer
	case SidePlayer:
		return SideBanker
	default:
		return s
	}
}

// Opposes devuelve true si s y other son banca contra jugador.
func (s Side) Opposes(other Side) bool {
	return (s == SideBanker && other == SidePlayer) || (s == SidePlayer && other == SideBanker)
}

func (s Side) String() string {
	if s == WinnerNone {
		return "none"
	}
	return string(s)
}

// Name devuelve el nombre largo del lado, usado en logs y tablas.
func (s Side) Name() string {
	switch s {
	case SideBanker:
		return "banker"
	case SidePlayer:
		return "player"
	case SideTie:
		return "tie"
	default:
		return "none"
	}
}

// ParseWinner convierte el ganador reportado por la capa de detección.
// Acepta "B"/"P"/"T", los nombres largos, y "" o "none" para rondas anuladas.
func ParseWinner(s string) (Side, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch v {
	case "", "NONE", "VOID", "CANCELLED":
		return WinnerNone, nil
	case "B", "BANKER":
		return SideBanker, nil
	case "P", "PLAYER":
		return SidePlayer, nil
	case "T", "TIE":
		return SideTie, nil
	}
	return WinnerNone, fmt.Errorf("%w: winner %q", ErrInvalidEnum, s)
}

// LayerOutcome es el resultado de una posición liquidada.
type LayerOutcome string

const (
	OutcomeWin       LayerOutcome = "win"
	OutcomeLoss      LayerOutcome = "loss"
	OutcomeSkipped   LayerOutcome = "skipped"
	OutcomeCancelled LayerOutcome = "cancelled"
)

// MovesLadder devuelve true solo para WIN y LOSS.
func (o LayerOutcome) MovesLadder() bool {
	return o == OutcomeWin || o == OutcomeLoss
}

// Classify determina el resultado de una apuesta a bet cuando sale winner.
//
//	winner vacío            → CANCELLED
//	winner == bet           → WIN
//	winner T, bet no es T   → SKIPPED (push, se devuelve la apuesta)
//	resto                   → LOSS
func Classify(bet, winner Side) LayerOutcome {
	switch {
	case winner == WinnerNone:
		return OutcomeCancelled
	case winner == bet:
		return OutcomeWin
	case winner == SideTie:
		return OutcomeSkipped
	default:
		return OutcomeLoss
	}
}
