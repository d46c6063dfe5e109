package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/autobet/internal/application/conflict"
	"github.com/alejandrodnm/autobet/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, cfg Config, defs ...domain.StrategyDefinition) *Orchestrator {
	t.Helper()
	cfg.Clock = func() time.Time { return t0 }
	o := New(cfg, nil)
	for _, def := range defs {
		require.NoError(t, o.RegisterStrategy(def))
	}
	return o
}

func martingale(key, pattern string, seq ...int) domain.StrategyDefinition {
	return domain.StrategyDefinition{
		Key:   key,
		Entry: domain.EntryConfig{Raw: pattern, Dedup: domain.DedupOverlap},
		Staking: domain.StakingConfig{
			Sequence:   seq,
			AdvanceOn:  domain.AdvanceOnLoss,
			ResetOnWin: true,
		},
	}
}

func bettable(t *testing.T, o *Orchestrator, table, round string) []domain.BetDecision {
	t.Helper()
	ds, err := o.UpdateTablePhase(context.Background(), table, round, domain.TableBettable, t0)
	require.NoError(t, err)
	return ds
}

func result(o *Orchestrator, table, round string, winner domain.Side) []domain.Settlement {
	return o.HandleResult(context.Background(), table, round, winner, t0)
}

func lineOf(o *Orchestrator, table, key string) *domain.LineState {
	return o.table(table).lines[key]
}

func TestOrchestrator_LadderRoundTrip(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("mart", "BB then P", 10, 20, 40))
	require.NoError(t, o.Attach("t1", "mart"))

	result(o, "t1", "r1", domain.SideBanker)
	result(o, "t1", "r2", domain.SideBanker)

	var stakes []float64
	var layers []int
	for i, winner := range []domain.Side{domain.SideBanker, domain.SideBanker, domain.SidePlayer} {
		round := []string{"r3", "r4", "r5"}[i]
		ds := bettable(t, o, "t1", round)
		require.Len(t, ds, 1, round)
		assert.Equal(t, domain.SidePlayer, ds[0].Direction)
		stakes = append(stakes, ds[0].Amount)

		st := result(o, "t1", round, winner)
		require.Len(t, st, 1)
		layers = append(layers, st[0].LayerAfter)
	}

	assert.Equal(t, []float64{10, 20, 40}, stakes)
	assert.Equal(t, []int{1, 2, 0}, layers)

	line := lineOf(o, "t1", "mart")
	assert.InDelta(t, 10, line.PnL, 1e-9)
	assert.Equal(t, domain.PhaseIdle, line.Phase)
}

func TestOrchestrator_NegativeStakeBetsOppositeSide(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("contra", "B then B", -10))
	require.NoError(t, o.Attach("t1", "contra"))

	result(o, "t1", "r1", domain.SideBanker)
	ds := bettable(t, o, "t1", "r2")
	require.Len(t, ds, 1)
	assert.Equal(t, domain.SidePlayer, ds[0].Direction)
	assert.Equal(t, 10.0, ds[0].Amount)
	assert.NotEmpty(t, ds[0].PositionID)
}

func TestOrchestrator_ZeroStakeNeverTriggers(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("zero", "B then P", 0))
	require.NoError(t, o.Attach("t1", "zero"))

	result(o, "t1", "r1", domain.SideBanker)
	assert.Empty(t, bettable(t, o, "t1", "r2"))
}

func TestOrchestrator_PerHandCap(t *testing.T) {
	def := martingale("capped", "B then P", 100)
	def.Staking.PerHandCap = 25
	o := newTestOrchestrator(t, Config{}, def)
	require.NoError(t, o.Attach("t1", "capped"))

	result(o, "t1", "r1", domain.SideBanker)
	ds := bettable(t, o, "t1", "r2")
	require.Len(t, ds, 1)
	assert.Equal(t, 25.0, ds[0].Amount)
}

func TestOrchestrator_SettleTwiceIsIdempotent(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("s1", "B then P", 10, 20))
	require.NoError(t, o.Attach("t1", "s1"))

	result(o, "t1", "r0", domain.SideBanker)
	require.Len(t, bettable(t, o, "t1", "r1"), 1)

	first := result(o, "t1", "r1", domain.SidePlayer)
	require.Len(t, first, 1)
	assert.Equal(t, domain.OutcomeWin, first[0].Outcome)
	assert.Equal(t, 10.0, first[0].PnL)

	histBefore := o.table("t1").history["s1"].Len()
	second := result(o, "t1", "r1", domain.SidePlayer)
	assert.Empty(t, second)

	line := lineOf(o, "t1", "s1")
	assert.Equal(t, 10.0, line.PnL)
	assert.Equal(t, 1, line.Wins)
	assert.Equal(t, 0, o.Snapshot().Lines[0].LayerIndex)
	assert.Equal(t, histBefore+1, o.table("t1").history["s1"].Len(), "second settlement only records history")

	st := o.Stats()
	assert.Equal(t, 1, st.Wins)
	assert.Equal(t, 10.0, st.PnL)
	assert.Zero(t, st.Pending)
}

func TestOrchestrator_ObserverVsParticipantHistory(t *testing.T) {
	o := newTestOrchestrator(t, Config{},
		martingale("bettor", "B then P", 10),
		martingale("watcher", "PP then B", 10),
	)
	require.NoError(t, o.Attach("t1", "bettor"))
	require.NoError(t, o.Attach("t1", "watcher"))

	result(o, "t1", "r0", domain.SideBanker)
	ds := bettable(t, o, "t1", "r1")
	require.Len(t, ds, 1)
	assert.Equal(t, "bettor", ds[0].StrategyKey)

	result(o, "t1", "r1", domain.SidePlayer)

	hist := o.table("t1").history
	assert.Equal(t, []domain.Side{domain.SideBanker}, hist["bettor"].Recent(10))
	assert.Equal(t, []domain.Side{domain.SideBanker, domain.SidePlayer}, hist["watcher"].Recent(10))
}

func TestOrchestrator_CrossTableAccumulate(t *testing.T) {
	def := martingale("acc", "B then P", 10, 20, 40)
	def.CrossTable = domain.CrossTableAccumulate
	o := newTestOrchestrator(t, Config{}, def)
	require.NoError(t, o.Attach("tA", "acc"))
	require.NoError(t, o.Attach("tB", "acc"))

	result(o, "tA", "a0", domain.SideBanker)
	require.Len(t, bettable(t, o, "tA", "a1"), 1)
	result(o, "tA", "a1", domain.SideBanker)

	ds := bettable(t, o, "tA", "a2")
	require.Len(t, ds, 1)
	assert.Equal(t, 1, ds[0].LayerIndex)
	st := result(o, "tA", "a2", domain.SideBanker)
	require.Len(t, st, 1)
	assert.Equal(t, 2, st[0].LayerAfter)

	result(o, "tB", "b0", domain.SideBanker)
	ds = bettable(t, o, "tB", "b1")
	require.Len(t, ds, 1)
	assert.Equal(t, 2, ds[0].LayerIndex)
	assert.Equal(t, 40.0, ds[0].Amount)

	// Restaurar en un proceso nuevo recupera la capa compartida.
	snap := o.Snapshot()
	o2 := newTestOrchestrator(t, Config{}, def)
	require.NoError(t, o2.Attach("tA", "acc"))
	require.NoError(t, o2.Attach("tB", "acc"))
	require.NoError(t, o2.Restore(snap))

	for _, l := range o2.Snapshot().Lines {
		assert.Equal(t, 2, l.LayerIndex, l.TableID)
		assert.Equal(t, 40, l.Stake, l.TableID)
		assert.Equal(t, domain.PhaseIdle, l.Phase, "pending bet is abandoned on restore")
	}
	assert.Empty(t, o2.Positions().Pending())
}

func TestOrchestrator_ResetModeLaddersAreIndependent(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("ind", "B then P", 10, 20, 40))
	require.NoError(t, o.Attach("tA", "ind"))
	require.NoError(t, o.Attach("tB", "ind"))

	result(o, "tA", "a0", domain.SideBanker)
	require.Len(t, bettable(t, o, "tA", "a1"), 1)
	result(o, "tA", "a1", domain.SideBanker)

	result(o, "tB", "b0", domain.SideBanker)
	ds := bettable(t, o, "tB", "b1")
	require.Len(t, ds, 1)
	assert.Equal(t, 0, ds[0].LayerIndex)
}

func TestOrchestrator_RiskFreezeAfterStopLoss(t *testing.T) {
	stop := -50.0
	def := martingale("flat", "B then P", 10)
	def.Risk = []domain.RiskLevel{{
		Scope:    domain.ScopeTable,
		StopLoss: &stop,
		Action:   domain.ActionPause,
		Cooldown: 10 * time.Minute,
	}}
	o := newTestOrchestrator(t, Config{}, def)
	require.NoError(t, o.Attach("t1", "flat"))

	result(o, "t1", "r0", domain.SideBanker)
	var last []domain.Settlement
	for _, round := range []string{"r1", "r2", "r3", "r4", "r5"} {
		require.Len(t, bettable(t, o, "t1", round), 1, round)
		last = result(o, "t1", round, domain.SideBanker)
		require.Len(t, last, 1)
	}

	require.Len(t, last[0].Risk, 1)
	assert.Equal(t, "stop_loss", last[0].Risk[0].Reason)
	assert.True(t, o.Risk().IsBlocked("flat", "t1", t0))
	assert.Equal(t, domain.PhaseFrozen, lineOf(o, "t1", "flat").Phase)

	// el patrón sigue satisfecho, pero la línea está congelada
	assert.Empty(t, bettable(t, o, "t1", "r6"))

	later := t0.Add(11 * time.Minute)
	ds, err := o.UpdateTablePhase(context.Background(), "t1", "r7", domain.TableBettable, later)
	require.NoError(t, err)
	assert.Len(t, ds, 1, "cooldown expired")
}

func TestOrchestrator_SpanningFreezePropagatesToOtherTables(t *testing.T) {
	stop := -10.0
	def := martingale("wide", "B then P", 10)
	def.Risk = []domain.RiskLevel{{Scope: domain.ScopeAllTablesStrategy, StopLoss: &stop}}
	o := newTestOrchestrator(t, Config{}, def, martingale("other", "P then P", 10))
	require.NoError(t, o.Attach("tA", "wide"))
	require.NoError(t, o.Attach("tB", "wide"))
	require.NoError(t, o.Attach("tB", "other"))

	result(o, "tA", "a0", domain.SideBanker)
	require.Len(t, bettable(t, o, "tA", "a1"), 1)
	result(o, "tA", "a1", domain.SideBanker)

	assert.True(t, lineOf(o, "tB", "wide").Frozen)
	assert.False(t, lineOf(o, "tB", "other").Frozen)
}

func TestOrchestrator_ReleaseScope(t *testing.T) {
	stop := -10.0
	def := martingale("wide", "B then P", 10)
	def.Risk = []domain.RiskLevel{{Scope: domain.ScopeAllTablesStrategy, StopLoss: &stop}}
	o := newTestOrchestrator(t, Config{}, def)
	require.NoError(t, o.Attach("tA", "wide"))
	require.NoError(t, o.Attach("tB", "wide"))

	result(o, "tA", "a0", domain.SideBanker)
	require.Len(t, bettable(t, o, "tA", "a1"), 1)
	result(o, "tA", "a1", domain.SideBanker)
	require.True(t, o.Risk().IsBlocked("wide", "tB", t0.Add(24*time.Hour)), "no cooldown freezes indefinitely")

	scope := domain.AllTablesStrategyScope("wide")
	assert.Equal(t, 2, o.ReleaseScope(scope))
	assert.False(t, lineOf(o, "tA", "wide").Frozen)
	assert.Equal(t, domain.PhaseIdle, lineOf(o, "tB", "wide").Phase)
	assert.False(t, o.Risk().IsBlocked("wide", "tB", t0))
	assert.Equal(t, 0, o.ReleaseScope(scope), "already released")
}

func TestOrchestrator_FirstTriggerConfirm(t *testing.T) {
	def := martingale("confirm", "B then P", 10)
	def.Entry.FirstTrigger = domain.FirstTriggerConfirm
	o := newTestOrchestrator(t, Config{}, def)
	require.NoError(t, o.Attach("t1", "confirm"))

	result(o, "t1", "r0", domain.SideBanker)
	assert.Empty(t, bettable(t, o, "t1", "r1"))
	line := lineOf(o, "t1", "confirm")
	assert.Equal(t, domain.PhaseArmed, line.Phase)
	assert.Equal(t, 1, line.ArmedCount)

	result(o, "t1", "r1", domain.SideBanker)
	assert.Len(t, bettable(t, o, "t1", "r2"), 1)
}

func TestOrchestrator_PatternMissDisarms(t *testing.T) {
	def := martingale("confirm", "B then P", 10)
	def.Entry.FirstTrigger = domain.FirstTriggerConfirm
	o := newTestOrchestrator(t, Config{}, def)
	require.NoError(t, o.Attach("t1", "confirm"))

	result(o, "t1", "r0", domain.SideBanker)
	assert.Empty(t, bettable(t, o, "t1", "r1"))
	result(o, "t1", "r1", domain.SidePlayer)
	assert.Empty(t, bettable(t, o, "t1", "r2"))
	assert.Equal(t, 0, lineOf(o, "t1", "confirm").ArmedCount)
}

func TestOrchestrator_RejectedLineResets(t *testing.T) {
	o := newTestOrchestrator(t,
		Config{Conflict: conflict.Config{FixedPriority: map[string]int{"follow": 1}}},
		martingale("follow", "B then P", 10),
		martingale("streak", "B then B", 10),
	)
	require.NoError(t, o.Attach("t1", "follow"))
	require.NoError(t, o.Attach("t1", "streak"))

	result(o, "t1", "r0", domain.SideBanker)
	ds := bettable(t, o, "t1", "r1")
	require.Len(t, ds, 1)
	assert.Equal(t, "follow", ds[0].StrategyKey)

	rejected := lineOf(o, "t1", "streak")
	assert.Equal(t, domain.PhaseIdle, rejected.Phase)
	assert.Equal(t, 0, rejected.ArmedCount)

	hist := o.ConflictHistory()
	require.Len(t, hist, 1)
	require.Len(t, hist[0].Rejected, 1)
	assert.Equal(t, domain.RejectOppositeDirection, hist[0].Rejected[0].Reason)
}

func TestOrchestrator_WaitingLineIsNotEvaluated(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("s1", "B then P", 10))
	require.NoError(t, o.Attach("t1", "s1"))

	result(o, "t1", "r0", domain.SideBanker)
	require.Len(t, bettable(t, o, "t1", "r1"), 1)
	assert.Empty(t, bettable(t, o, "t1", "r1"), "same round is evaluated once")
	assert.Empty(t, bettable(t, o, "t1", "r2"), "previous bet still waiting")
}

func TestOrchestrator_VoidRoundCancels(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("s1", "B then P", 10, 20))
	require.NoError(t, o.Attach("t1", "s1"))

	result(o, "t1", "r0", domain.SideBanker)
	require.Len(t, bettable(t, o, "t1", "r1"), 1)
	st := result(o, "t1", "r1", domain.WinnerNone)
	require.Len(t, st, 1)
	assert.Equal(t, domain.OutcomeCancelled, st[0].Outcome)
	assert.Zero(t, st[0].PnL)
	assert.Equal(t, 0, st[0].LayerAfter)
	assert.Equal(t, domain.PhaseIdle, lineOf(o, "t1", "s1").Phase)
}

func TestOrchestrator_TiePushIsSkipped(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("s1", "B then P", 10, 20))
	require.NoError(t, o.Attach("t1", "s1"))

	result(o, "t1", "r0", domain.SideBanker)
	require.Len(t, bettable(t, o, "t1", "r1"), 1)
	st := result(o, "t1", "r1", domain.SideTie)
	require.Len(t, st, 1)
	assert.Equal(t, domain.OutcomeSkipped, st[0].Outcome)
	assert.Equal(t, 0, st[0].LayerAfter)
}

func TestOrchestrator_CancelPosition(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("s1", "B then P", 10, 20))
	require.NoError(t, o.Attach("t1", "s1"))

	result(o, "t1", "r0", domain.SideBanker)
	require.Len(t, bettable(t, o, "t1", "r1"), 1)

	assert.True(t, o.CancelPosition("t1", "r1", "s1"))
	assert.False(t, o.CancelPosition("t1", "r1", "s1"))
	assert.Equal(t, domain.PhaseIdle, lineOf(o, "t1", "s1").Phase)

	assert.Empty(t, result(o, "t1", "r1", domain.SideBanker))
	assert.Equal(t, 2, o.table("t1").history["s1"].Len())
}

func TestOrchestrator_RegistrationErrors(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("s1", "B then P", 10))

	assert.ErrorIs(t, o.RegisterStrategy(martingale("s1", "B then P", 10)), domain.ErrDuplicateStrategy)
	assert.ErrorIs(t, o.RegisterStrategy(martingale("s2", "B then P")), domain.ErrEmptySequence)
	assert.ErrorIs(t, o.RegisterStrategy(martingale("s3", "BQ then P", 1)), domain.ErrInvalidPattern)
	assert.ErrorIs(t, o.Attach("t1", "missing"), domain.ErrUnknownStrategy)

	_, err := o.UpdateTablePhase(context.Background(), "t1", "r1", "dealing", t0)
	assert.ErrorIs(t, err, domain.ErrInvalidEnum)
}

type recordingSink struct {
	mu          sync.Mutex
	decisions   int
	rejections  int
	settlements int
	risk        int
}

func (s *recordingSink) Decisions(_ context.Context, d []domain.BetDecision) {
	s.mu.Lock()
	s.decisions += len(d)
	s.mu.Unlock()
}

func (s *recordingSink) Rejections(_ context.Context, r []domain.Rejection) {
	s.mu.Lock()
	s.rejections += len(r)
	s.mu.Unlock()
}

func (s *recordingSink) Settlements(_ context.Context, st []domain.Settlement) {
	s.mu.Lock()
	s.settlements += len(st)
	s.mu.Unlock()
}

func (s *recordingSink) RiskEvents(_ context.Context, ev []domain.RiskEvent) {
	s.mu.Lock()
	s.risk += len(ev)
	s.mu.Unlock()
}

func TestOrchestrator_EmitsToSink(t *testing.T) {
	sink := &recordingSink{}
	o := New(Config{Clock: func() time.Time { return t0 }}, sink)
	require.NoError(t, o.RegisterStrategy(martingale("a", "B then P", 10)))
	require.NoError(t, o.RegisterStrategy(martingale("b", "B then P", 10)))
	require.NoError(t, o.Attach("t1", "a"))
	require.NoError(t, o.Attach("t1", "b"))

	result(o, "t1", "r0", domain.SideBanker)
	bettable(t, o, "t1", "r1")
	result(o, "t1", "r1", domain.SidePlayer)

	assert.Equal(t, 1, sink.decisions)
	assert.Equal(t, 1, sink.rejections)
	assert.Equal(t, 1, sink.settlements)
	assert.Zero(t, sink.risk)
}

func TestOrchestrator_LostResultFreesLineOnNextRound(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("s1", "B then P", 10))
	require.NoError(t, o.Attach("t1", "s1"))

	result(o, "t1", "r0", domain.SideBanker)
	require.Len(t, bettable(t, o, "t1", "r1"), 1)

	// resultado tardío de una ronda anterior: la apuesta de r1 sigue viva
	assert.Empty(t, result(o, "t1", "r0", domain.SideBanker))
	assert.True(t, lineOf(o, "t1", "s1").Waiting())
	assert.Equal(t, 1, o.Stats().Pending)

	// el resultado de r1 no llega nunca
	assert.Empty(t, bettable(t, o, "t1", "r2"))
	assert.Empty(t, result(o, "t1", "r2", domain.SideBanker))

	line := lineOf(o, "t1", "s1")
	assert.Equal(t, domain.PhaseIdle, line.Phase)
	assert.Zero(t, line.Losses)
	assert.Zero(t, o.Stats().Pending)

	require.Len(t, bettable(t, o, "t1", "r3"), 1)
}

func TestOrchestrator_ConfirmKeepsArmedCountAcrossEntries(t *testing.T) {
	def := martingale("streak", "B then B", 10)
	def.Entry.FirstTrigger = domain.FirstTriggerConfirm
	o := newTestOrchestrator(t, Config{}, def)
	require.NoError(t, o.Attach("t1", "streak"))

	result(o, "t1", "r0", domain.SideBanker)
	assert.Empty(t, bettable(t, o, "t1", "r1"))
	result(o, "t1", "r1", domain.SideBanker)
	require.Len(t, bettable(t, o, "t1", "r2"), 1)
	require.Len(t, result(o, "t1", "r2", domain.SideBanker), 1)

	// sin fallo del patrón entre medias, la siguiente entrada no pide otra confirmación
	require.Len(t, bettable(t, o, "t1", "r3"), 1)
	assert.Equal(t, 3, lineOf(o, "t1", "streak").ArmedCount)

	require.Len(t, result(o, "t1", "r3", domain.SidePlayer), 1)
	assert.Empty(t, bettable(t, o, "t1", "r4"))
	assert.Equal(t, 0, lineOf(o, "t1", "streak").ArmedCount)
}
