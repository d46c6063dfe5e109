package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Pattern ---

func TestParsePattern_Forms(t *testing.T) {
	cases := []struct {
		raw    string
		expect []Side
		bet    Side
	}{
		{"BB then P", []Side{SideBanker, SideBanker}, SidePlayer},
		{"BBTHENP", []Side{SideBanker, SideBanker}, SidePlayer},
		{"PB BET P", []Side{SidePlayer, SideBanker}, SidePlayer},
		{"p-t-b then b", []Side{SidePlayer, SideTie, SideBanker}, SideBanker},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			p, err := ParsePattern(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, p.Expect)
			assert.Equal(t, tc.bet, p.Bet)
		})
	}
}

func TestParsePattern_Invalid(t *testing.T) {
	for _, raw := range []string{"", "BBP", "BXB then P", "then P", "BB then", "BB then Q"} {
		_, err := ParsePattern(raw)
		assert.ErrorIs(t, err, ErrInvalidPattern, raw)
	}
}

func TestPattern_Matches(t *testing.T) {
	p, err := ParsePattern("BB then P")
	require.NoError(t, err)
	assert.True(t, p.Matches([]Side{SideBanker, SideBanker}))
	assert.False(t, p.Matches([]Side{SidePlayer, SideBanker}))
	assert.False(t, p.Matches([]Side{SideBanker}))
}

// --- Classify / Payout ---

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeWin, Classify(SideBanker, SideBanker))
	assert.Equal(t, OutcomeLoss, Classify(SideBanker, SidePlayer))
	assert.Equal(t, OutcomeSkipped, Classify(SidePlayer, SideTie))
	assert.Equal(t, OutcomeWin, Classify(SideTie, SideTie))
	assert.Equal(t, OutcomeLoss, Classify(SideTie, SideBanker))
	assert.Equal(t, OutcomeCancelled, Classify(SideBanker, WinnerNone))
}

func TestPayout_PnL(t *testing.T) {
	p := DefaultPayout()
	assert.Equal(t, 10.0, p.PnL(SideBanker, 10, OutcomeWin))
	assert.Equal(t, -10.0, p.PnL(SideBanker, 10, OutcomeLoss))
	assert.Equal(t, 0.0, p.PnL(SideBanker, 10, OutcomeSkipped))
	assert.Equal(t, 0.0, p.PnL(SideBanker, 10, OutcomeCancelled))

	p.Banker = 0.95
	assert.InDelta(t, 9.5, p.PnL(SideBanker, 10, OutcomeWin), 1e-9)
}

func TestParseWinner(t *testing.T) {
	w, err := ParseWinner("banker")
	require.NoError(t, err)
	assert.Equal(t, SideBanker, w)
	w, err = ParseWinner("")
	require.NoError(t, err)
	assert.Equal(t, WinnerNone, w)
	_, err = ParseWinner("X")
	assert.ErrorIs(t, err, ErrInvalidEnum)
}

// --- Ladder ---

func TestLayerProgression_RoundTrip(t *testing.T) {
	cfg := StakingConfig{Sequence: []int{10, 20, 40}, AdvanceOn: AdvanceOnLoss, ResetOnWin: true}
	lp := NewLayerProgression(cfg)

	var stakes, layers []int
	for _, o := range []LayerOutcome{OutcomeLoss, OutcomeLoss, OutcomeWin} {
		stake, idx := lp.Stake()
		stakes = append(stakes, stake)
		layers = append(layers, idx)
		lp.Settle(idx, o)
	}
	layers = append(layers, lp.Index())

	assert.Equal(t, []int{10, 20, 40}, stakes)
	assert.Equal(t, []int{0, 1, 2, 0}, layers)
}

func TestLayerProgression_CapsAtLastLayer(t *testing.T) {
	lp := NewLayerProgression(StakingConfig{Sequence: []int{1, 2}, AdvanceOn: AdvanceOnLoss})
	lp.Settle(0, OutcomeLoss)
	lp.Settle(1, OutcomeLoss)
	assert.Equal(t, 1, lp.Index())
}

func TestLayerProgression_SkipDoesNotMove(t *testing.T) {
	lp := NewLayerProgression(StakingConfig{Sequence: []int{1, 2, 3}, AdvanceOn: AdvanceOnLoss})
	lp.Settle(0, OutcomeLoss)
	lp.Settle(1, OutcomeSkipped)
	lp.Settle(1, OutcomeCancelled)
	assert.Equal(t, 1, lp.Index())
}

func TestLayerProgression_CompareAndRaise(t *testing.T) {
	// dos mesas apostaron en capa 0 y 1; liquidan fuera de orden
	lp := NewLayerProgression(StakingConfig{Sequence: []int{10, 20, 40}, AdvanceOn: AdvanceOnLoss, ResetOnWin: true})
	lp.Raise(1)
	assert.Equal(t, 2, lp.Settle(1, OutcomeLoss))
	assert.Equal(t, 2, lp.Settle(0, OutcomeLoss), "stale advance must not lower the index")
	assert.Equal(t, 2, lp.Settle(0, OutcomeWin), "stale reset must not clobber a newer layer")
	assert.Equal(t, 0, lp.Settle(2, OutcomeWin))
}

func TestStakingConfig_MaxLayers(t *testing.T) {
	cfg := StakingConfig{Sequence: []int{1, 2, 4, 8}, MaxLayers: 2}
	assert.Equal(t, 1, cfg.LastLayer())
	assert.Equal(t, 2, cfg.StakeAt(3))
}

// --- LineState ---

func TestLineState_FreezeNeverShortens(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLineState("t1", "s1")
	l.Freeze(now.Add(time.Hour))
	l.Freeze(now.Add(time.Minute))
	assert.Equal(t, now.Add(time.Hour), l.FrozenUntil)

	assert.True(t, l.FrozenAt(now.Add(30*time.Minute)))
	assert.False(t, l.FrozenAt(now.Add(time.Hour)))
	assert.Equal(t, PhaseIdle, l.Phase)
}

func TestLineState_FreezeWhileWaiting(t *testing.T) {
	l := NewLineState("t1", "s1")
	l.Enter("r1", 0)
	l.Freeze(time.Time{})
	assert.Equal(t, PhaseWaitingResult, l.Phase)

	l.RecordOutcome(OutcomeLoss, -10, 1)
	assert.Equal(t, PhaseFrozen, l.Phase)
	assert.True(t, l.FrozenAt(time.Now()), "zero expiry freezes indefinitely")
}

// --- Validate ---

func TestStrategyDefinition_ValidateDefaults(t *testing.T) {
	def := StrategyDefinition{
		Key:     "bb-p",
		Entry:   EntryConfig{Raw: "BB then P"},
		Staking: StakingConfig{Sequence: []int{10}},
		Risk:    []RiskLevel{{Scope: ScopeTable}},
	}
	require.NoError(t, def.Validate())
	assert.Equal(t, DedupStrict, def.Entry.Dedup)
	assert.Equal(t, FirstTriggerImmediate, def.Entry.FirstTrigger)
	assert.Equal(t, AdvanceOnLoss, def.Staking.AdvanceOn)
	assert.Equal(t, CrossTableReset, def.CrossTable)
	assert.Equal(t, ActionPause, def.Risk[0].Action)
	assert.Equal(t, "bb-p", def.RiskGroup())
}

func TestStrategyDefinition_ValidateErrors(t *testing.T) {
	def := StrategyDefinition{Key: "x", Entry: EntryConfig{Raw: "BB then P"}}
	assert.ErrorIs(t, def.Validate(), ErrEmptySequence)

	def = StrategyDefinition{Key: "x", Entry: EntryConfig{Raw: "BZ then P"}, Staking: StakingConfig{Sequence: []int{1}}}
	assert.ErrorIs(t, def.Validate(), ErrInvalidPattern)

	def = StrategyDefinition{
		Key: "x", Entry: EntryConfig{Raw: "B then P"}, Staking: StakingConfig{Sequence: []int{1}},
		Risk: []RiskLevel{{Scope: "galaxy"}},
	}
	assert.ErrorIs(t, def.Validate(), ErrInvalidRiskLevel)
}

// --- ScopeKey ---

func TestScopeKey_Covers(t *testing.T) {
	at := time.Date(2025, 3, 4, 23, 0, 0, 0, time.UTC)
	def := StrategyDefinition{Key: "s1", Metadata: Metadata{MetaRiskGroup: "g"}}

	assert.True(t, ScopeFor(ScopeTable, "t1", def, at).Covers("t1", "other", ""))
	assert.False(t, ScopeFor(ScopeTableStrategy, "t1", def, at).Covers("t1", "other", ""))
	assert.True(t, ScopeFor(ScopeAllTablesStrategy, "t1", def, at).Covers("t9", "s1", ""))
	assert.True(t, ScopeFor(ScopeMultiStrategy, "t1", def, at).Covers("t9", "s2", "g"))
	assert.True(t, ScopeFor(ScopeGlobalDay, "t1", def, at).Covers("t9", "s2", "x"))
	assert.Equal(t, "global_day:2025-03-04", ScopeFor(ScopeGlobalDay, "t1", def, at).String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdefgh", 5))
	assert.Equal(t, "ab", Truncate("abcdefgh", 2))
}
