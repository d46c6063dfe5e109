package engine

import (
	"sync"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// tableState es todo el estado de una mesa. Cada tick de la mesa se serializa
// con mu; mesas distintas no comparten nada aquí.
type tableState struct {
	mu             sync.Mutex
	id             string
	phase          domain.TablePhase
	roundID        string
	evaluatedRound string
	lines          map[string]*domain.LineState
	history        map[string]*History
	ladders        map[string]*domain.LayerProgression // solo modo reset
}

func newTableState(id string) *tableState {
	return &tableState{
		id:      id,
		phase:   domain.TableIdle,
		lines:   make(map[string]*domain.LineState),
		history: make(map[string]*History),
		ladders: make(map[string]*domain.LayerProgression),
	}
}

// line devuelve la línea de la estrategia, creándola si hace falta.
func (t *tableState) line(key string) *domain.LineState {
	l, ok := t.lines[key]
	if !ok {
		l = domain.NewLineState(t.id, key)
		t.lines[key] = l
	}
	return l
}

func (t *tableState) historyFor(def domain.StrategyDefinition) *History {
	h, ok := t.history[def.Key]
	if !ok {
		h = NewHistory(def.Entry.Pattern.Len())
		t.history[def.Key] = h
	}
	return h
}
