package ports

import (
	"context"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// EventSource entrega cambios de fase y resultados de las mesas.
type EventSource interface {
	// Next bloquea hasta el siguiente evento. Devuelve io.EOF cuando la fuente se agota.
	Next(ctx context.Context) (domain.TableEvent, error)
}
