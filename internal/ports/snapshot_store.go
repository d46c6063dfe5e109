package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// SnapshotStore persiste el estado del núcleo y el diario de liquidaciones.
type SnapshotStore interface {
	// SaveSnapshot guarda el snapshot como el más reciente.
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error

	// LoadSnapshot devuelve el último snapshot. ok=false si no hay ninguno.
	LoadSnapshot(ctx context.Context) (snap domain.Snapshot, ok bool, err error)

	// RecordSettlement añade una liquidación al diario.
	RecordSettlement(ctx context.Context, s domain.Settlement) error

	// Settlements devuelve las liquidaciones registradas en el rango de tiempo dado.
	Settlements(ctx context.Context, from, to time.Time) ([]domain.Settlement, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
