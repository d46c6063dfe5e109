package domain

import "sync"

// NextLayer calcula el índice siguiente de la escalera tras un resultado.
// SKIPPED y CANCELLED nunca mueven la escalera.
func NextLayer(cfg StakingConfig, from int, outcome LayerOutcome) int {
	last := cfg.LastLayer()
	next := from
	switch outcome {
	case OutcomeWin:
		if cfg.AdvanceOn == AdvanceOnWin {
			next = min(from+1, last)
		}
		if cfg.ResetOnWin {
			next = 0
		}
	case OutcomeLoss:
		if cfg.AdvanceOn == AdvanceOnLoss {
			next = min(from+1, last)
		}
		if cfg.ResetOnLoss {
			next = 0
		}
	}
	return next
}

// LayerProgression es el índice mutable dentro de la secuencia de apuestas.
//
// En modo reset pertenece a una sola línea (mesa, estrategia). En modo
// accumulate se comparte por referencia entre todas las mesas de la estrategia,
// y varias mesas pueden liquidar a la vez: por eso los avances son
// compare-and-raise y los resets solo aplican si nadie avanzó desde que se apostó.
type LayerProgression struct {
	mu    sync.Mutex
	cfg   StakingConfig
	index int
}

// NewLayerProgression crea una escalera en la capa 0.
func NewLayerProgression(cfg StakingConfig) *LayerProgression {
	return &LayerProgression{cfg: cfg}
}

// Index devuelve la capa actual.
func (p *LayerProgression) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Stake devuelve la apuesta con signo de la capa actual y el índice leído.
func (p *LayerProgression) Stake() (stake, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.StakeAt(p.index), p.index
}

// Settle aplica el resultado de una apuesta hecha en la capa from y devuelve la capa resultante.
//
//	avance (next >= from): index = max(index, next)
//	reset  (next <  from): index = next solo si index == from
func (p *LayerProgression) Settle(from int, outcome LayerOutcome) int {
	next := NextLayer(p.cfg, from, outcome)

	p.mu.Lock()
	defer p.mu.Unlock()
	if next >= from {
		if next > p.index {
			p.index = next
		}
		return p.index
	}
	if p.index == from {
		p.index = next
	}
	return p.index
}

// Raise sube la capa a index si es mayor que la actual. Usado al restaurar.
func (p *LayerProgression) Raise(index int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last := p.cfg.LastLayer(); index > last {
		index = last
	}
	if index > p.index {
		p.index = index
	}
	return p.index
}

// Reset vuelve a la capa 0.
func (p *LayerProgression) Reset() {
	p.mu.Lock()
	p.index = 0
	p.mu.Unlock()
}
