package engine

import (
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// DefaultHistoryLen es el mínimo de resultados que guarda cada tracker.
const DefaultHistoryLen = 20

type observation struct {
	seq     int64
	roundID string
	side    domain.Side
	at      time.Time
}

// Trigger es la respuesta del tracker a una evaluación.
type Trigger struct {
	Matched bool   // la ventana reciente coincide con el patrón
	Fired   bool   // y además pasa la política de dedup
	Reason  string // vacío si Fired
}

// History es la historia acotada de resultados que ve una línea (mesa, estrategia).
// Solo las rondas en las que la estrategia observó sin apostar llegan aquí.
type History struct {
	limit   int
	seq     int64
	entries []observation

	// último disparo, para la política de dedup
	fired       bool
	lastEnd     int64
	lastRoundID string
}

// NewHistory crea un tracker que guarda como mínimo limit resultados.
func NewHistory(limit int) *History {
	if limit < DefaultHistoryLen {
		limit = DefaultHistoryLen
	}
	return &History{limit: limit}
}

// Record añade un resultado. Las rondas anuladas no aportan resultado.
func (h *History) Record(roundID string, winner domain.Side, at time.Time) {
	if !winner.Valid() {
		return
	}
	h.seq++
	h.entries = append(h.entries, observation{seq: h.seq, roundID: roundID, side: winner, at: at})
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
}

// Len devuelve cuántos resultados hay guardados.
func (h *History) Len() int { return len(h.entries) }

// Recent devuelve los últimos n resultados, del más antiguo al más reciente.
func (h *History) Recent(n int) []domain.Side {
	if n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]domain.Side, 0, n)
	for _, o := range h.entries[len(h.entries)-n:] {
		out = append(out, o.side)
	}
	return out
}

// Evaluate compara la ventana de los últimos K resultados con el patrón.
//
// strict: la ventana no puede solapar la del disparo anterior.
// overlap: cada ventana puede disparar, pero nunca dos veces en la misma ronda.
// Un disparo queda registrado aunque después el gating o el resolver lo descarten.
func (h *History) Evaluate(entry domain.EntryConfig, roundID string, at time.Time) Trigger {
	k := entry.Pattern.Len()
	if k == 0 || len(h.entries) < k {
		return Trigger{Reason: "insufficient_history"}
	}
	window := h.entries[len(h.entries)-k:]
	sides := make([]domain.Side, k)
	for i, o := range window {
		sides[i] = o.side
	}
	if !entry.Pattern.Matches(sides) {
		return Trigger{Reason: "no_match"}
	}
	if entry.ValidWindow > 0 && at.Sub(window[0].at) > entry.ValidWindow {
		return Trigger{Reason: "window_expired"}
	}

	end := window[k-1].seq
	if h.fired {
		if roundID == h.lastRoundID {
			return Trigger{Matched: true, Reason: "already_fired_this_round"}
		}
		if entry.Dedup == domain.DedupStrict && end < h.lastEnd+int64(k) {
			return Trigger{Matched: true, Reason: "overlapping_window"}
		}
	}

	h.fired = true
	h.lastEnd = end
	h.lastRoundID = roundID
	return Trigger{Matched: true, Fired: true}
}
