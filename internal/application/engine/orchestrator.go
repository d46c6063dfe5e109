package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/autobet/internal/application/conflict"
	"github.com/alejandrodnm/autobet/internal/application/risk"
	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/alejandrodnm/autobet/internal/ports"
)

const maxConflictHistory = 100

// Config contiene la configuración del orquestador.
type Config struct {
	Conflict conflict.Config
	Payout   domain.Payout
	// Clock es el reloj del resolver y de los snapshots. nil = time.Now.
	Clock func() time.Time
}

// ConflictRecord guarda una ronda en la que hubo más de un candidato.
type ConflictRecord struct {
	TableID    string
	RoundID    string
	At         time.Time
	Candidates []domain.Candidate
	Approved   []domain.Candidate
	Rejected   []domain.Rejection
}

// Stats agrega el estado de todas las líneas.
type Stats struct {
	Tables   int
	Lines    int
	Frozen   int
	Pending  int
	Exposure float64
	PnL      float64
	Wins     int
	Losses   int
	Skips    int
}

// Orchestrator es el bucle de decisión: evalúa las estrategias de cada mesa
// cuando se puede apostar, arbitra los candidatos, abre posiciones y las
// liquida cuando llega el resultado.
type Orchestrator struct {
	registry  *Registry
	evaluator *Evaluator
	resolver  *conflict.Resolver
	risk      *risk.Coordinator
	positions *PositionBook
	payout    domain.Payout
	sink      ports.EventSink
	now       func() time.Time

	mu     sync.RWMutex
	tables map[string]*tableState
	shared map[string]*domain.LayerProgression // escaleras compartidas (accumulate)

	conflictMu sync.Mutex
	conflicts  []ConflictRecord
}

// New crea un Orchestrator. sink puede ser nil.
func New(cfg Config, sink ports.EventSink) *Orchestrator {
	if cfg.Payout == (domain.Payout{}) {
		cfg.Payout = domain.DefaultPayout()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if sink == nil {
		sink = nopSink{}
	}
	rc := risk.New()
	return &Orchestrator{
		registry:  NewRegistry(),
		evaluator: NewEvaluator(rc),
		resolver:  conflict.New(cfg.Conflict).WithClock(cfg.Clock),
		risk:      rc,
		positions: NewPositionBook(),
		payout:    cfg.Payout,
		sink:      sink,
		now:       cfg.Clock,
		tables:    make(map[string]*tableState),
		shared:    make(map[string]*domain.LayerProgression),
	}
}

// Registry expone el registro de estrategias.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Risk expone el Risk Coordinator.
func (o *Orchestrator) Risk() *risk.Coordinator { return o.risk }

// Positions expone el libro de posiciones.
func (o *Orchestrator) Positions() *PositionBook { return o.positions }

// RegisterStrategy valida y registra una estrategia.
func (o *Orchestrator) RegisterStrategy(def domain.StrategyDefinition) error {
	def, err := o.registry.Register(def)
	if err != nil {
		return err
	}
	o.risk.Register(def)
	if def.CrossTable == domain.CrossTableAccumulate {
		o.mu.Lock()
		o.shared[def.Key] = domain.NewLayerProgression(def.Staking)
		o.mu.Unlock()
	}
	slog.Info("engine: strategy registered",
		"strategy", def.Key,
		"pattern", def.Entry.Pattern.String(),
		"dedup", def.Entry.Dedup,
		"cross_table", def.CrossTable,
		"risk_levels", len(def.Risk),
	)
	return nil
}

// Attach adjunta una estrategia registrada a una mesa.
func (o *Orchestrator) Attach(tableID, key string) error {
	if err := o.registry.Attach(tableID, key); err != nil {
		return err
	}
	ts := o.table(tableID)
	ts.mu.Lock()
	ts.line(key)
	ts.mu.Unlock()
	return nil
}

// Detach quita una estrategia de una mesa. Su línea se conserva.
func (o *Orchestrator) Detach(tableID, key string) bool {
	return o.registry.Detach(tableID, key)
}

func (o *Orchestrator) table(id string) *tableState {
	o.mu.RLock()
	ts, ok := o.tables[id]
	o.mu.RUnlock()
	if ok {
		return ts
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if ts, ok = o.tables[id]; !ok {
		ts = newTableState(id)
		o.tables[id] = ts
	}
	return ts
}

// ladderFor devuelve la escalera de la línea. El llamador tiene ts.mu.
func (o *Orchestrator) ladderFor(ts *tableState, def domain.StrategyDefinition) *domain.LayerProgression {
	if def.CrossTable == domain.CrossTableAccumulate {
		o.mu.RLock()
		lp, ok := o.shared[def.Key]
		o.mu.RUnlock()
		if ok {
			return lp
		}
	}
	lp, ok := ts.ladders[def.Key]
	if !ok {
		lp = domain.NewLayerProgression(def.Staking)
		ts.ladders[def.Key] = lp
	}
	return lp
}

// UpdateTablePhase registra la fase de la mesa. Al entrar en bettable con una
// ronda nueva evalúa todas las estrategias adjuntas y devuelve las apuestas
// aprobadas; la capa de actuación debe colocarlas.
func (o *Orchestrator) UpdateTablePhase(ctx context.Context, tableID, roundID string, phase domain.TablePhase, at time.Time) ([]domain.BetDecision, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("engine.UpdateTablePhase: %w: table phase %q", domain.ErrInvalidEnum, phase)
	}

	ts := o.table(tableID)
	ts.mu.Lock()
	ts.phase = phase
	if roundID != "" {
		ts.roundID = roundID
	}
	if phase != domain.TableBettable || roundID == "" || ts.evaluatedRound == roundID {
		ts.mu.Unlock()
		return nil, nil
	}
	ts.evaluatedRound = roundID

	o.risk.Refresh(at)

	var candidates []domain.Candidate
	metadata := make(map[string]domain.Metadata)
	for _, def := range o.registry.ForTable(tableID) {
		res := o.evaluate(ts, def, roundID, at)
		if res.Candidate == nil {
			slog.Debug("engine: no entry",
				"table", tableID,
				"round", roundID,
				"strategy", def.Key,
				"reason", res.Reason,
			)
			continue
		}
		candidates = append(candidates, *res.Candidate)
		metadata[def.Key] = def.Metadata
	}

	result := o.resolver.Resolve(candidates, metadata)
	for _, rej := range result.Rejected {
		ts.line(rej.Candidate.StrategyKey).Disarm()
		slog.Info("engine: candidate rejected",
			"table", tableID,
			"round", roundID,
			"strategy", rej.Candidate.StrategyKey,
			"reason", rej.Reason,
			"detail", rej.Detail,
		)
	}

	var decisions []domain.BetDecision
	for _, c := range result.Approved {
		pos := domain.PendingPosition{
			ID:          uuid.New().String(),
			TableID:     c.TableID,
			RoundID:     c.RoundID,
			StrategyKey: c.StrategyKey,
			Direction:   c.Direction,
			Amount:      c.Amount,
			LayerIndex:  c.LayerIndex,
			CreatedAt:   c.CreatedAt,
		}
		if err := o.positions.Add(pos); err != nil {
			slog.Warn("engine: position not opened", "strategy", c.StrategyKey, "err", err)
			ts.line(c.StrategyKey).Disarm()
			continue
		}
		ts.line(c.StrategyKey).Enter(roundID, c.LayerIndex)
		decisions = append(decisions, pos.Decision())

		slog.Info("engine: bet approved",
			"position", domain.Truncate(pos.ID, 11),
			"table", tableID,
			"round", roundID,
			"strategy", c.StrategyKey,
			"direction", c.Direction.Name(),
			"amount", c.Amount,
			"layer", c.LayerIndex,
		)
	}

	if len(candidates) > 1 {
		o.recordConflict(ConflictRecord{
			TableID:    tableID,
			RoundID:    roundID,
			At:         at,
			Candidates: candidates,
			Approved:   result.Approved,
			Rejected:   result.Rejected,
		})
	}
	ts.mu.Unlock()

	if len(result.Rejected) > 0 {
		o.sink.Rejections(ctx, result.Rejected)
	}
	if len(decisions) > 0 {
		o.sink.Decisions(ctx, decisions)
	}
	return decisions, nil
}

// evaluate aísla los fallos de una estrategia para que no bloqueen a las demás.
func (o *Orchestrator) evaluate(ts *tableState, def domain.StrategyDefinition, roundID string, at time.Time) (res EvalResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: strategy evaluation panicked",
				"table", ts.id,
				"strategy", def.Key,
				"panic", r,
			)
			res = EvalResult{Reason: "evaluation_failed"}
		}
	}()
	return o.evaluator.Evaluate(def, ts.line(def.Key), ts.historyFor(def), o.ladderFor(ts, def), roundID, at)
}

// HandleResult liquida las posiciones de la ronda. Las estrategias que no
// apostaron solo añaden el resultado a su historia. Liquidar dos veces la
// misma ronda no vuelve a aplicar pnl ni escalera.
func (o *Orchestrator) HandleResult(ctx context.Context, tableID, roundID string, winner domain.Side, at time.Time) []domain.Settlement {
	ts := o.table(tableID)
	ts.mu.Lock()
	ts.phase = domain.TableSettled

	keys := make([]string, 0)
	for _, def := range o.registry.ForTable(tableID) {
		keys = append(keys, def.Key)
	}
	// estrategias que apostaron y se desadjuntaron antes del resultado
	for _, p := range o.positions.Pending() {
		if p.TableID == tableID && p.RoundID == roundID && !slices.Contains(keys, p.StrategyKey) {
			keys = append(keys, p.StrategyKey)
		}
	}

	var settlements []domain.Settlement
	var events []domain.RiskEvent
	for _, key := range keys {
		def, ok := o.registry.Get(key)
		if !ok {
			continue
		}
		s := o.settle(ts, def, roundID, winner, at)
		if s == nil {
			continue
		}
		settlements = append(settlements, *s)
		events = append(events, s.Risk...)
	}

	var spanning []domain.RiskEvent
	for _, ev := range events {
		if !ev.Freezes() {
			continue
		}
		o.freezeLines(ts, ev)
		if ev.Scope.SpansTables() {
			spanning = append(spanning, ev)
		}
	}
	ts.mu.Unlock()

	// Propagar a otras mesas fuera del lock de esta: nunca se tienen dos locks de mesa a la vez.
	for _, ev := range spanning {
		o.mu.RLock()
		others := slices.Collect(maps.Values(o.tables))
		o.mu.RUnlock()
		for _, other := range others {
			if other.id == tableID {
				continue
			}
			other.mu.Lock()
			o.freezeLines(other, ev)
			other.mu.Unlock()
		}
	}

	for _, s := range settlements {
		o.positions.RecordSettlement(s)
	}
	if len(settlements) > 0 {
		o.sink.Settlements(ctx, settlements)
	}
	if len(events) > 0 {
		o.sink.RiskEvents(ctx, events)
	}
	return settlements
}

// settle liquida la posición de una estrategia o, si no apostó, registra la
// observación. Devuelve nil para las observaciones.
func (o *Orchestrator) settle(ts *tableState, def domain.StrategyDefinition, roundID string, winner domain.Side, at time.Time) (res *domain.Settlement) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: settlement panicked",
				"table", ts.id,
				"round", roundID,
				"strategy", def.Key,
				"panic", r,
			)
			res = nil
		}
	}()

	line := ts.line(def.Key)
	pos, ok := o.positions.Take(domain.PositionKey{TableID: ts.id, RoundID: roundID, StrategyKey: def.Key})
	if !ok {
		switch {
		case line.Waiting() && line.LastRoundID == roundID:
			slog.Warn("engine: missing position for waiting line, recording as observation",
				"table", ts.id,
				"round", roundID,
				"strategy", def.Key,
			)
			line.Cancel()
		case line.Waiting() && roundID == ts.roundID:
			// La mesa ya abrió otra ronda, así que el resultado de la apostada
			// se perdió. Un resultado tardío de una ronda anterior no entra aquí.
			_, dropped := o.positions.Take(domain.PositionKey{TableID: ts.id, RoundID: line.LastRoundID, StrategyKey: def.Key})
			slog.Warn("engine: result for bet round never arrived, abandoning position",
				"table", ts.id,
				"bet_round", line.LastRoundID,
				"round", roundID,
				"strategy", def.Key,
				"dropped", dropped,
			)
			line.Cancel()
		}
		ts.historyFor(def).Record(roundID, winner, at)
		return nil
	}

	outcome := domain.Classify(pos.Direction, winner)
	pnl := o.payout.PnL(pos.Direction, pos.Amount, outcome)

	ladder := o.ladderFor(ts, def)
	layerAfter := ladder.Index()
	if outcome.MovesLadder() {
		layerAfter = ladder.Settle(pos.LayerIndex, outcome)
	}
	line.RecordOutcome(outcome, pnl, layerAfter)
	events := o.risk.Record(def.Key, ts.id, pnl, outcome, at)

	slog.Info("engine: position settled",
		"position", domain.Truncate(pos.ID, 11),
		"table", ts.id,
		"round", roundID,
		"strategy", def.Key,
		"winner", winner.String(),
		"outcome", outcome,
		"pnl", pnl,
		"layer", fmt.Sprintf("%d→%d", pos.LayerIndex, layerAfter),
	)

	return &domain.Settlement{
		Position:   pos,
		Winner:     winner,
		Outcome:    outcome,
		PnL:        pnl,
		LayerAfter: layerAfter,
		SettledAt:  at,
		Risk:       events,
	}
}

// freezeLines congela las líneas de la mesa cubiertas por el scope del evento.
// El llamador tiene ts.mu.
func (o *Orchestrator) freezeLines(ts *tableState, ev domain.RiskEvent) {
	for key, line := range ts.lines {
		group := key
		if def, ok := o.registry.Get(key); ok {
			group = def.RiskGroup()
		}
		if ev.Scope.Covers(ts.id, key, group) {
			line.Freeze(ev.FrozenUntil)
			slog.Info("engine: line frozen",
				"table", ts.id,
				"strategy", key,
				"scope", ev.Scope.String(),
				"until", ev.FrozenUntil,
			)
		}
	}
}

// CancelPosition abandona una posición cuya apuesta no llegó a colocarse.
// No mueve la escalera ni el riesgo.
func (o *Orchestrator) CancelPosition(tableID, roundID, strategyKey string) bool {
	ts := o.table(tableID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, ok := o.positions.Take(domain.PositionKey{TableID: tableID, RoundID: roundID, StrategyKey: strategyKey}); !ok {
		return false
	}
	ts.line(strategyKey).Cancel()
	slog.Warn("engine: position cancelled",
		"table", tableID,
		"round", roundID,
		"strategy", strategyKey,
	)
	return true
}

// ReleaseScope levanta a mano el freeze de un scope de riesgo y descongela
// las líneas que cubre en todas las mesas. Devuelve cuántas líneas se liberaron.
func (o *Orchestrator) ReleaseScope(key domain.ScopeKey) int {
	if !o.risk.Release(key) {
		return 0
	}
	released := 0
	for _, ts := range o.sortedTables() {
		ts.mu.Lock()
		for strategy, line := range ts.lines {
			group := strategy
			if def, ok := o.registry.Get(strategy); ok {
				group = def.RiskGroup()
			}
			if line.Frozen && key.Covers(ts.id, strategy, group) {
				line.Unfreeze()
				released++
			}
		}
		ts.mu.Unlock()
	}
	slog.Info("engine: risk scope released", "scope", key.String(), "lines", released)
	return released
}

func (o *Orchestrator) recordConflict(rec ConflictRecord) {
	o.conflictMu.Lock()
	defer o.conflictMu.Unlock()
	o.conflicts = append(o.conflicts, rec)
	if over := len(o.conflicts) - maxConflictHistory; over > 0 {
		o.conflicts = append(o.conflicts[:0], o.conflicts[over:]...)
	}
}

// ConflictHistory devuelve las últimas rondas con conflicto.
func (o *Orchestrator) ConflictHistory() []ConflictRecord {
	o.conflictMu.Lock()
	defer o.conflictMu.Unlock()
	return slices.Clone(o.conflicts)
}

func (o *Orchestrator) sortedTables() []*tableState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := slices.Collect(maps.Values(o.tables))
	slices.SortFunc(out, func(a, b *tableState) int {
		return strings.Compare(a.id, b.id)
	})
	return out
}

// Snapshot copia el estado mutable: líneas, escaleras y scopes de riesgo.
func (o *Orchestrator) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{TakenAt: o.now()}
	for _, ts := range o.sortedTables() {
		ts.mu.Lock()
		for _, key := range slices.Sorted(maps.Keys(ts.lines)) {
			ls := ts.lines[key].Snapshot()
			if def, ok := o.registry.Get(key); ok {
				ls.LayerIndex = o.ladderFor(ts, def).Index()
				ls.Stake = def.Staking.StakeAt(ls.LayerIndex)
			}
			snap.Lines = append(snap.Lines, ls)
		}
		ts.mu.Unlock()
	}
	snap.Scopes = o.risk.Snapshot()
	return snap
}

// Restore rehidrata líneas, escaleras y scopes sin reproducir historia.
// Las posiciones pendientes se abandonan. La escalera compartida de una
// estrategia accumulate queda en la capa máxima de sus líneas restauradas.
func (o *Orchestrator) Restore(snap domain.Snapshot) error {
	for _, ls := range snap.Lines {
		if ls.LayerIndex < 0 {
			return fmt.Errorf("engine.Restore: line %s/%s has negative layer %d", ls.TableID, ls.StrategyKey, ls.LayerIndex)
		}
	}

	o.positions.Clear()
	o.mu.RLock()
	for _, lp := range o.shared {
		lp.Reset()
	}
	o.mu.RUnlock()

	restored := 0
	for _, ls := range snap.Lines {
		def, ok := o.registry.Get(ls.StrategyKey)
		if !ok {
			slog.Warn("engine: snapshot line for unknown strategy skipped",
				"table", ls.TableID,
				"strategy", ls.StrategyKey,
			)
			continue
		}
		ts := o.table(ls.TableID)
		ts.mu.Lock()
		ts.lines[def.Key] = domain.RestoreLine(ls)
		lp := o.ladderFor(ts, def)
		if def.CrossTable != domain.CrossTableAccumulate {
			lp.Reset()
		}
		lp.Raise(ls.LayerIndex)
		ts.mu.Unlock()
		restored++
	}
	o.risk.Restore(snap.Scopes)

	slog.Info("engine: state restored",
		"lines", restored,
		"scopes", len(snap.Scopes),
		"taken_at", snap.TakenAt,
	)
	return nil
}

// Stats agrega contadores de todas las líneas y la exposición pendiente.
func (o *Orchestrator) Stats() Stats {
	snap := o.Snapshot()
	st := Stats{
		Lines:    len(snap.Lines),
		Pending:  len(o.positions.Pending()),
		Exposure: o.positions.Exposure(),
	}
	tables := make(map[string]bool)
	for _, l := range snap.Lines {
		tables[l.TableID] = true
		st.PnL += l.PnL
		st.Wins += l.Wins
		st.Losses += l.Losses
		st.Skips += l.Skips
		if l.Frozen {
			st.Frozen++
		}
	}
	st.Tables = len(tables)
	return st
}

type nopSink struct{}

func (nopSink) Decisions(context.Context, []domain.BetDecision) {}
func (nopSink) Rejections(context.Context, []domain.Rejection) {}
func (nopSink) Settlements(context.Context, []domain.Settlement) {}
func (nopSink) RiskEvents(context.Context, []domain.RiskEvent) {}
