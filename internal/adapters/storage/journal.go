package storage

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// Journal es un ports.EventSink que persiste liquidaciones y disparos de riesgo.
type Journal struct {
	store *SQLiteStore
}

// NewJournal crea un Journal sobre store.
func NewJournal(store *SQLiteStore) *Journal {
	return &Journal{store: store}
}

func (j *Journal) Decisions(context.Context, []domain.BetDecision) {}

func (j *Journal) Rejections(context.Context, []domain.Rejection) {}

func (j *Journal) Settlements(ctx context.Context, settlements []domain.Settlement) {
	for _, st := range settlements {
		if err := j.store.RecordSettlement(ctx, st); err != nil {
			slog.Warn("storage: journal settlement", "position", st.Position.ID, "err", err)
		}
	}
}

func (j *Journal) RiskEvents(ctx context.Context, events []domain.RiskEvent) {
	for _, ev := range events {
		if err := j.store.RecordRiskEvent(ctx, ev); err != nil {
			slog.Warn("storage: journal risk event", "scope", ev.Scope.String(), "err", err)
		}
	}
}
