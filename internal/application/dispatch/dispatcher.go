package dispatch

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/alejandrodnm/autobet/internal/ports"
)

const (
	defaultQueueSize = 64
	defaultRate      = 5
	defaultBurst     = 2
)

// Canceller abandona una posición cuya apuesta no llegó a colocarse.
type Canceller interface {
	CancelPosition(tableID, roundID, strategyKey string) bool
}

// Config contiene la configuración del dispatcher.
type Config struct {
	RatePerSec float64 // apuestas por segundo hacia la capa de actuación
	Burst      int
	QueueSize  int
}

// Dispatcher coloca las apuestas aprobadas fuera del bucle de decisión.
// Si la actuación falla o la cola está llena, la posición se cancela para que
// la línea vuelva a idle sin mover la escalera.
type Dispatcher struct {
	actuator ports.Actuator
	cancel   Canceller
	limiter  *rate.Limiter
	queue    chan domain.BetDecision
}

// New crea un Dispatcher.
func New(cfg Config, actuator ports.Actuator, cancel Canceller) *Dispatcher {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Dispatcher{
		actuator: actuator,
		cancel:   cancel,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		queue:    make(chan domain.BetDecision, cfg.QueueSize),
	}
}

// Submit encola las decisiones sin bloquear. Implementa engine.Submitter.
func (d *Dispatcher) Submit(ctx context.Context, decisions []domain.BetDecision) {
	for _, dec := range decisions {
		select {
		case d.queue <- dec:
		default:
			slog.Warn("dispatch: queue full, cancelling position",
				"table", dec.TableID,
				"round", dec.RoundID,
				"strategy", dec.StrategyKey,
			)
			d.fail(dec)
		}
	}
}

// Run coloca las apuestas encoladas hasta que el contexto se cancele.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case dec := <-d.queue:
			d.place(ctx, dec)
		}
	}
}

func (d *Dispatcher) place(ctx context.Context, dec domain.BetDecision) {
	if err := d.limiter.Wait(ctx); err != nil {
		slog.Warn("dispatch: rate limiter", "position", dec.PositionID, "err", err)
		d.fail(dec)
		return
	}
	if err := d.actuator.PlaceBet(ctx, dec); err != nil {
		slog.Warn("dispatch: bet not placed",
			"table", dec.TableID,
			"round", dec.RoundID,
			"strategy", dec.StrategyKey,
			"err", err,
		)
		d.fail(dec)
		return
	}
	slog.Debug("dispatch: bet placed", "position", dec.PositionID, "table", dec.TableID)
}

func (d *Dispatcher) fail(dec domain.BetDecision) {
	if d.cancel != nil {
		d.cancel.CancelPosition(dec.TableID, dec.RoundID, dec.StrategyKey)
	}
}
