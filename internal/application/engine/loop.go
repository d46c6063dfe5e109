package engine

// loop.go — un worker por mesa.
//
// Los eventos de una mesa se procesan en orden en su propio goroutine; mesas
// distintas avanzan en paralelo.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/alejandrodnm/autobet/internal/ports"
)

const defaultTableBuffer = 64

// Loop reparte los eventos de una fuente entre workers por mesa.
type Loop struct {
	orch   *Orchestrator
	submit Submitter
	buffer int
}

// NewLoop crea un Loop. submit puede ser nil (las decisiones solo se loguean).
func NewLoop(orch *Orchestrator, submit Submitter) *Loop {
	return &Loop{orch: orch, submit: submit, buffer: defaultTableBuffer}
}

// Run consume eventos hasta que la fuente se agote o el contexto se cancele.
// Antes de volver espera a que cada mesa termine los eventos ya encolados.
func (l *Loop) Run(ctx context.Context, src ports.EventSource) error {
	workers := make(map[string]chan domain.TableEvent)
	var wg sync.WaitGroup
	defer func() {
		for _, ch := range workers {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			slog.Info("engine: event source exhausted")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("engine.Loop.Run: %w", err)
		}

		ch, ok := workers[ev.TableID]
		if !ok {
			ch = make(chan domain.TableEvent, l.buffer)
			workers[ev.TableID] = ch
			wg.Add(1)
			go func() {
				defer wg.Done()
				for ev := range ch {
					l.Handle(ctx, ev)
				}
			}()
		}

		select {
		case ch <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

// Handle procesa un único evento de mesa.
func (l *Loop) Handle(ctx context.Context, ev domain.TableEvent) {
	switch ev.Kind {
	case domain.EventPhase:
		decisions, err := l.orch.UpdateTablePhase(ctx, ev.TableID, ev.RoundID, ev.Phase, ev.At)
		if err != nil {
			slog.Warn("engine: phase update failed", "table", ev.TableID, "round", ev.RoundID, "err", err)
			return
		}
		if len(decisions) > 0 && l.submit != nil {
			l.submit.Submit(ctx, decisions)
		}
	case domain.EventResult:
		l.orch.HandleResult(ctx, ev.TableID, ev.RoundID, ev.Winner, ev.At)
	default:
		slog.Warn("engine: unknown event kind", "kind", ev.Kind, "table", ev.TableID)
	}
}
