package actuator

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// DryRun no coloca nada: solo loguea la apuesta que se habría hecho.
type DryRun struct{}

// PlaceBet implementa ports.Actuator.
func (DryRun) PlaceBet(_ context.Context, d domain.BetDecision) error {
	slog.Info("actuator: dry-run bet",
		"position", d.PositionID,
		"table", d.TableID,
		"round", d.RoundID,
		"strategy", d.StrategyKey,
		"direction", d.Direction.Name(),
		"amount", d.Amount,
	)
	return nil
}
