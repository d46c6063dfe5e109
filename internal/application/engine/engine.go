// Package engine contiene el núcleo de decisión: registro de estrategias,
// historia de resultados, evaluación de entradas, posiciones y el orquestador.
package engine

import (
	"context"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// Submitter recibe las apuestas aprobadas para colocarlas de forma asíncrona.
// Desacopla el bucle de mesas del dispatcher concreto.
type Submitter interface {
	Submit(ctx context.Context, decisions []domain.BetDecision)
}
