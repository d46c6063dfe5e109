package risk

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// tracker acumula pnl y racha de pérdidas de un scope.
type tracker struct {
	pnl    float64
	streak int
	frozen bool
	until  time.Time // cero + frozen = indefinido
	action domain.RiskAction
}

func (t *tracker) activeAt(at time.Time) bool {
	return t.frozen && (t.until.IsZero() || at.Before(t.until))
}

// Coordinator mantiene los trackers de riesgo por scope y decide los freezes.
//
// Los scopes que abarcan varias mesas reciben PnL de mesas que liquidan en
// paralelo, así que todo el estado va bajo un único mutex.
type Coordinator struct {
	mu         sync.Mutex
	strategies map[string]domain.StrategyDefinition
	trackers   map[domain.ScopeKey]*tracker
}

// New crea un Coordinator vacío.
func New() *Coordinator {
	return &Coordinator{
		strategies: make(map[string]domain.StrategyDefinition),
		trackers:   make(map[domain.ScopeKey]*tracker),
	}
}

// Register guarda los niveles de riesgo de una estrategia. Los trackers se
// crean la primera vez que se liquida algo en su scope.
func (c *Coordinator) Register(def domain.StrategyDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategies[def.Key] = def
}

// Record suma pnl al scope de cada nivel de la estrategia, actualiza la racha
// y devuelve los eventos de los niveles que disparan.
// Si varios niveles comparten scope, el PnL se suma una sola vez.
func (c *Coordinator) Record(strategyKey, tableID string, pnl float64, outcome domain.LayerOutcome, at time.Time) []domain.RiskEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	def, ok := c.strategies[strategyKey]
	if !ok {
		slog.Warn("risk: record for unregistered strategy", "strategy", strategyKey, "table", tableID)
		return nil
	}

	touched := make(map[domain.ScopeKey]bool, len(def.Risk))
	var events []domain.RiskEvent
	for _, lvl := range def.Risk {
		key := domain.ScopeFor(lvl.Scope, tableID, def, at)
		t := c.trackerFor(key)
		if !touched[key] {
			touched[key] = true
			t.pnl += pnl
			switch outcome {
			case domain.OutcomeLoss:
				t.streak++
			case domain.OutcomeWin:
				t.streak = 0
			}
		}

		reason, fired := evaluate(lvl, t)
		if lvl.Action == domain.ActionNotify {
			if reason == "" {
				reason = "notify"
			}
			events = append(events, c.event(key, lvl, reason, strategyKey, tableID, t, at, time.Time{}))
			continue
		}
		if !fired || t.activeAt(at) {
			continue
		}

		var until time.Time
		if lvl.Cooldown > 0 {
			until = at.Add(lvl.Cooldown)
		}
		t.frozen = true
		t.until = until
		t.action = lvl.Action
		ev := c.event(key, lvl, reason, strategyKey, tableID, t, at, until)
		events = append(events, ev)

		slog.Info("risk: scope frozen",
			"scope", key.String(),
			"reason", reason,
			"action", lvl.Action,
			"pnl", t.pnl,
			"loss_streak", t.streak,
			"until", until,
		)
	}
	return events
}

func (c *Coordinator) event(key domain.ScopeKey, lvl domain.RiskLevel, reason, strategyKey, tableID string, t *tracker, at, until time.Time) domain.RiskEvent {
	return domain.RiskEvent{
		Scope:       key,
		Action:      lvl.Action,
		Reason:      reason,
		StrategyKey: strategyKey,
		TableID:     tableID,
		PnL:         t.pnl,
		LossStreak:  t.streak,
		At:          at,
		FrozenUntil: until,
	}
}

// evaluate devuelve el motivo del primer umbral cruzado.
func evaluate(lvl domain.RiskLevel, t *tracker) (string, bool) {
	switch {
	case lvl.TakeProfit != nil && t.pnl >= *lvl.TakeProfit:
		return "take_profit", true
	case lvl.StopLoss != nil && t.pnl <= *lvl.StopLoss:
		return "stop_loss", true
	case lvl.MaxConsecutiveLosses > 0 && t.streak >= lvl.MaxConsecutiveLosses:
		return "max_consecutive_losses", true
	}
	return "", false
}

func (c *Coordinator) trackerFor(key domain.ScopeKey) *tracker {
	t, ok := c.trackers[key]
	if !ok {
		t = &tracker{}
		c.trackers[key] = t
	}
	return t
}

// IsBlocked devuelve true si algún scope relevante para (estrategia, mesa)
// tiene un freeze activo en at.
func (c *Coordinator) IsBlocked(strategyKey, tableID string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	def, ok := c.strategies[strategyKey]
	if !ok {
		return false
	}
	for _, lvl := range def.Risk {
		if t, ok := c.trackers[domain.ScopeFor(lvl.Scope, tableID, def, at)]; ok && t.activeAt(at) {
			return true
		}
	}
	return false
}

// Refresh levanta los freezes cuyo cooldown venció y devuelve sus scopes.
// Un scope descongelado empieza de cero: pnl y racha se resetean.
func (c *Coordinator) Refresh(at time.Time) []domain.ScopeKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []domain.ScopeKey
	for key, t := range c.trackers {
		if !t.frozen || t.until.IsZero() || at.Before(t.until) {
			continue
		}
		*t = tracker{}
		expired = append(expired, key)
	}
	if len(expired) > 0 {
		slog.Info("risk: freezes expired", "scopes", len(expired))
	}
	return expired
}

// Release levanta manualmente el freeze de un scope (p.ej. uno indefinido).
func (c *Coordinator) Release(key domain.ScopeKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.trackers[key]
	if !ok || !t.frozen {
		return false
	}
	*t = tracker{}
	return true
}

// Snapshot devuelve el estado de todos los trackers, ordenado por scope.
func (c *Coordinator) Snapshot() []domain.ScopeSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.ScopeSnapshot, 0, len(c.trackers))
	for key, t := range c.trackers {
		out = append(out, domain.ScopeSnapshot{
			Scope:       key,
			PnL:         t.pnl,
			LossStreak:  t.streak,
			Frozen:      t.frozen,
			FrozenUntil: t.until,
			Action:      t.action,
		})
	}
	slices.SortFunc(out, func(a, b domain.ScopeSnapshot) int {
		return strings.Compare(a.Scope.String(), b.Scope.String())
	})
	return out
}

// Restore reemplaza los trackers por los del snapshot.
func (c *Coordinator) Restore(scopes []domain.ScopeSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.trackers = make(map[domain.ScopeKey]*tracker, len(scopes))
	for _, s := range scopes {
		c.trackers[s.Scope] = &tracker{
			pnl:    s.PnL,
			streak: s.LossStreak,
			frozen: s.Frozen,
			until:  s.FrozenUntil,
			action: s.Action,
		}
	}
}
