package ports

import (
	"context"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// EventSink recibe los eventos estructurados que emite el núcleo.
// Las implementaciones no deben bloquear: se llaman dentro del tick de la mesa.
type EventSink interface {
	Decisions(ctx context.Context, decisions []domain.BetDecision)
	Rejections(ctx context.Context, rejections []domain.Rejection)
	Settlements(ctx context.Context, settlements []domain.Settlement)
	RiskEvents(ctx context.Context, events []domain.RiskEvent)
}

// MultiSink reparte cada evento a varios sinks.
type MultiSink []EventSink

func (m MultiSink) Decisions(ctx context.Context, d []domain.BetDecision) {
	for _, s := range m {
		s.Decisions(ctx, d)
	}
}

func (m MultiSink) Rejections(ctx context.Context, r []domain.Rejection) {
	for _, s := range m {
		s.Rejections(ctx, r)
	}
}

func (m MultiSink) Settlements(ctx context.Context, st []domain.Settlement) {
	for _, s := range m {
		s.Settlements(ctx, st)
	}
}

func (m MultiSink) RiskEvents(ctx context.Context, ev []domain.RiskEvent) {
	for _, s := range m {
		s.RiskEvents(ctx, ev)
	}
}
