package engine

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const maxSettlementHistory = 100

// PositionBook guarda las posiciones pendientes por (mesa, ronda, estrategia)
// y las últimas liquidaciones.
type PositionBook struct {
	mu      sync.Mutex
	pending map[domain.PositionKey]domain.PendingPosition
	settled []domain.Settlement
}

// NewPositionBook crea un libro vacío.
func NewPositionBook() *PositionBook {
	return &PositionBook{pending: make(map[domain.PositionKey]domain.PendingPosition)}
}

// Add registra una posición. Una estrategia no puede tener dos posiciones en la misma ronda.
func (b *PositionBook) Add(p domain.PendingPosition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[p.Key()]; ok {
		return fmt.Errorf("engine.PositionBook.Add: %w: %s/%s/%s", domain.ErrDuplicatePosition, p.TableID, p.RoundID, p.StrategyKey)
	}
	for _, other := range b.pending {
		if other.TableID == p.TableID && other.StrategyKey == p.StrategyKey {
			return fmt.Errorf("engine.PositionBook.Add: %w: %s/%s still pending on round %s",
				domain.ErrDuplicatePosition, p.TableID, p.StrategyKey, other.RoundID)
		}
	}
	b.pending[p.Key()] = p
	return nil
}

// Take saca la posición de la clave dada. ok=false si no había ninguna.
func (b *PositionBook) Take(key domain.PositionKey) (domain.PendingPosition, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[key]
	if ok {
		delete(b.pending, key)
	}
	return p, ok
}

// Get devuelve la posición sin sacarla.
func (b *PositionBook) Get(key domain.PositionKey) (domain.PendingPosition, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[key]
	return p, ok
}

// Pending devuelve las posiciones pendientes ordenadas por mesa, ronda y estrategia.
func (b *PositionBook) Pending() []domain.PendingPosition {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.PendingPosition, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, c domain.PendingPosition) int {
		if n := strings.Compare(a.TableID, c.TableID); n != 0 {
			return n
		}
		if n := strings.Compare(a.RoundID, c.RoundID); n != 0 {
			return n
		}
		return strings.Compare(a.StrategyKey, c.StrategyKey)
	})
	return out
}

// Exposure suma el importe de todas las posiciones pendientes.
func (b *PositionBook) Exposure() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total float64
	for _, p := range b.pending {
		total += p.Amount
	}
	return total
}

// Clear abandona todas las posiciones pendientes.
func (b *PositionBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.pending)
}

// RecordSettlement añade una liquidación al histórico acotado.
func (b *PositionBook) RecordSettlement(s domain.Settlement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settled = append(b.settled, s)
	if over := len(b.settled) - maxSettlementHistory; over > 0 {
		b.settled = append(b.settled[:0], b.settled[over:]...)
	}
}

// Settlements devuelve las últimas liquidaciones, de la más antigua a la más reciente.
func (b *PositionBook) Settlements() []domain.Settlement {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.settled)
}
