package engine

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/autobet/internal/domain"
)

type sliceSource struct {
	mu     sync.Mutex
	events []domain.TableEvent
}

func (s *sliceSource) Next(ctx context.Context) (domain.TableEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return domain.TableEvent{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

type collectingSubmitter struct {
	mu        sync.Mutex
	decisions []domain.BetDecision
}

func (c *collectingSubmitter) Submit(_ context.Context, ds []domain.BetDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, ds...)
}

func tableRound(table, round string, winner domain.Side) []domain.TableEvent {
	return []domain.TableEvent{
		{Kind: domain.EventPhase, TableID: table, RoundID: round, Phase: domain.TableOpen, At: t0},
		{Kind: domain.EventPhase, TableID: table, RoundID: round, Phase: domain.TableBettable, At: t0},
		{Kind: domain.EventPhase, TableID: table, RoundID: round, Phase: domain.TableLocked, At: t0},
		{Kind: domain.EventResult, TableID: table, RoundID: round, Winner: winner, At: t0},
	}
}

func TestLoop_ProcessesTablesInParallel(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, martingale("s1", "B then P", 10))
	require.NoError(t, o.Attach("t1", "s1"))
	require.NoError(t, o.Attach("t2", "s1"))

	src := &sliceSource{}
	for _, table := range []string{"t1", "t2"} {
		src.events = append(src.events, tableRound(table, table+"-r1", domain.SideBanker)...)
		src.events = append(src.events, tableRound(table, table+"-r2", domain.SidePlayer)...)
	}

	sub := &collectingSubmitter{}
	require.NoError(t, NewLoop(o, sub).Run(context.Background(), src))

	assert.Len(t, sub.decisions, 2)
	st := o.Stats()
	assert.Equal(t, 2, st.Tables)
	assert.Equal(t, 2, st.Wins)
	assert.Equal(t, 20.0, st.PnL)
}
