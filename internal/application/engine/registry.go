package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// Registry guarda las definiciones de estrategia y qué estrategias están
// adjuntas a cada mesa. El orden de registro es el orden de evaluación.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]domain.StrategyDefinition
	order  []string
	tables map[string][]string // mesa → keys adjuntas
}

// NewRegistry crea un registro vacío.
func NewRegistry() *Registry {
	return &Registry{
		defs:   make(map[string]domain.StrategyDefinition),
		tables: make(map[string][]string),
	}
}

// Register valida y guarda una definición. Los errores de configuración se
// detectan aquí y nunca durante la evaluación.
func (r *Registry) Register(def domain.StrategyDefinition) (domain.StrategyDefinition, error) {
	if err := def.Validate(); err != nil {
		return def, fmt.Errorf("engine.Register: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Key]; ok {
		return def, fmt.Errorf("engine.Register: %w: %s", domain.ErrDuplicateStrategy, def.Key)
	}
	r.defs[def.Key] = def
	r.order = append(r.order, def.Key)
	return def, nil
}

// Attach adjunta una estrategia registrada a una mesa. Adjuntar dos veces no hace nada.
func (r *Registry) Attach(tableID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[key]; !ok {
		return fmt.Errorf("engine.Attach: %w: %s", domain.ErrUnknownStrategy, key)
	}
	if slices.Contains(r.tables[tableID], key) {
		return nil
	}
	keys := append(r.tables[tableID], key)
	// mantener orden de registro aunque se adjunten en otro orden
	slices.SortStableFunc(keys, func(a, b string) int {
		return slices.Index(r.order, a) - slices.Index(r.order, b)
	})
	r.tables[tableID] = keys
	return nil
}

// Detach quita una estrategia de una mesa. Devuelve false si no estaba adjunta.
func (r *Registry) Detach(tableID, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.tables[tableID]
	i := slices.Index(keys, key)
	if i < 0 {
		return false
	}
	r.tables[tableID] = slices.Delete(slices.Clone(keys), i, i+1)
	return true
}

// Get devuelve la definición de una estrategia.
func (r *Registry) Get(key string) (domain.StrategyDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[key]
	return def, ok
}

// ForTable devuelve las estrategias adjuntas a una mesa en orden de registro.
func (r *Registry) ForTable(tableID string) []domain.StrategyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := r.tables[tableID]
	out := make([]domain.StrategyDefinition, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.defs[k])
	}
	return out
}

// TablesFor devuelve las mesas a las que está adjunta una estrategia.
func (r *Registry) TablesFor(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for table, keys := range r.tables {
		if slices.Contains(keys, key) {
			out = append(out, table)
		}
	}
	slices.Sort(out)
	return out
}

// Tables devuelve todas las mesas con alguna estrategia adjunta.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tables))
	for table, keys := range r.tables {
		if len(keys) > 0 {
			out = append(out, table)
		}
	}
	slices.Sort(out)
	return out
}

// All devuelve todas las definiciones en orden de registro.
func (r *Registry) All() []domain.StrategyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.StrategyDefinition, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.defs[k])
	}
	return out
}
