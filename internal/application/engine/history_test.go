package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/autobet/internal/domain"
)

func entry(t *testing.T, raw string, dedup domain.DedupMode) domain.EntryConfig {
	t.Helper()
	p, err := domain.ParsePattern(raw)
	require.NoError(t, err)
	return domain.EntryConfig{Pattern: p, Raw: raw, Dedup: dedup}
}

func TestHistory_StrictRequiresDisjointWindow(t *testing.T) {
	h := NewHistory(2)
	e := entry(t, "BB then P", domain.DedupStrict)

	h.Record("r1", domain.SideBanker, t0)
	assert.False(t, h.Evaluate(e, "r2", t0).Matched)

	h.Record("r2", domain.SideBanker, t0)
	assert.True(t, h.Evaluate(e, "r3", t0).Fired)

	h.Record("r3", domain.SideBanker, t0)
	trig := h.Evaluate(e, "r4", t0)
	assert.True(t, trig.Matched)
	assert.False(t, trig.Fired)
	assert.Equal(t, "overlapping_window", trig.Reason)

	h.Record("r4", domain.SideBanker, t0)
	assert.True(t, h.Evaluate(e, "r5", t0).Fired)
}

func TestHistory_OverlapRefiresEveryRound(t *testing.T) {
	h := NewHistory(2)
	e := entry(t, "BB then P", domain.DedupOverlap)
	h.Record("r1", domain.SideBanker, t0)
	h.Record("r2", domain.SideBanker, t0)

	assert.True(t, h.Evaluate(e, "r3", t0).Fired)
	assert.False(t, h.Evaluate(e, "r3", t0).Fired, "same round")
	assert.True(t, h.Evaluate(e, "r4", t0).Fired)
}

func TestHistory_ValidWindow(t *testing.T) {
	h := NewHistory(1)
	e := entry(t, "B then P", domain.DedupOverlap)
	e.ValidWindow = time.Minute
	h.Record("r1", domain.SideBanker, t0)

	assert.True(t, h.Evaluate(e, "r2", t0.Add(30*time.Second)).Fired)
	trig := h.Evaluate(e, "r3", t0.Add(2*time.Minute))
	assert.False(t, trig.Matched)
	assert.Equal(t, "window_expired", trig.Reason)
}

func TestHistory_BoundedAndSkipsVoid(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 30; i++ {
		h.Record("r", domain.SidePlayer, t0)
	}
	h.Record("void", domain.WinnerNone, t0)
	assert.Equal(t, DefaultHistoryLen, h.Len())

	long := NewHistory(25)
	for i := 0; i < 30; i++ {
		long.Record("r", domain.SideTie, t0)
	}
	assert.Equal(t, 25, long.Len())
}
