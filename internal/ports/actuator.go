package ports

import (
	"context"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// Actuator coloca en la mesa las apuestas aprobadas.
// Convertir Amount en fichas y clicks es responsabilidad de la implementación.
type Actuator interface {
	// PlaceBet instruye la apuesta. Un error significa que la apuesta no llegó a
	// colocarse y la posición debe cancelarse.
	PlaceBet(ctx context.Context, decision domain.BetDecision) error
}
