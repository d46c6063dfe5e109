package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.EventSink escribiendo a stdout.
// En modo compacto cada evento es una línea; en modo tabla las decisiones y
// liquidaciones de un mismo tick se agrupan en una tabla.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Decisions imprime las apuestas aprobadas.
func (c *Console) Decisions(_ context.Context, decisions []domain.BetDecision) {
	if len(decisions) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.table {
		for _, d := range decisions {
			fmt.Fprintf(c.out, "[%s] BET   %s r%s %s %s $%.2f L%d\n",
				clock(d.CreatedAt), d.TableID, d.RoundID, d.StrategyKey,
				d.Direction.Name(), d.Amount, d.LayerIndex+1)
		}
		return
	}

	fmt.Fprintf(c.out, "\n[%s] %d bets\n", clock(decisions[0].CreatedAt), len(decisions))
	table := tablewriter.NewWriter(c.out)
	table.Header("Table", "Round", "Strategy", "Side", "Amount", "Layer", "Position")
	for _, d := range decisions {
		table.Append(
			d.TableID,
			d.RoundID,
			domain.Truncate(d.StrategyKey, 24),
			d.Direction.Name(),
			fmt.Sprintf("$%.2f", d.Amount),
			fmt.Sprintf("%d", d.LayerIndex+1),
			domain.Truncate(d.PositionID, 11),
		)
	}
	table.Render()
}

// Rejections imprime los candidatos descartados por el árbitro.
func (c *Console) Rejections(_ context.Context, rejections []domain.Rejection) {
	if len(rejections) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range rejections {
		cand := r.Candidate
		fmt.Fprintf(c.out, "[%s] SKIP  %s r%s %s %s $%.2f %s (score %.1f)\n",
			clock(cand.CreatedAt), cand.TableID, cand.RoundID, cand.StrategyKey,
			cand.Direction.Name(), cand.Amount, r.Reason, r.Score)
	}
}

// Settlements imprime las posiciones liquidadas.
func (c *Console) Settlements(_ context.Context, settlements []domain.Settlement) {
	if len(settlements) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.table {
		for _, s := range settlements {
			p := s.Position
			fmt.Fprintf(c.out, "[%s] %-5s %s r%s %s %s→%s %+.2f next L%d\n",
				clock(s.SettledAt), outcomeLabel(s.Outcome), p.TableID, p.RoundID,
				p.StrategyKey, p.Direction, s.Winner, s.PnL, s.LayerAfter+1)
		}
		return
	}

	var total float64
	table := tablewriter.NewWriter(c.out)
	table.Header("Table", "Round", "Strategy", "Bet", "Winner", "Outcome", "PnL", "Next")
	for _, s := range settlements {
		p := s.Position
		total += s.PnL
		table.Append(
			p.TableID,
			p.RoundID,
			domain.Truncate(p.StrategyKey, 24),
			fmt.Sprintf("%s $%.2f", p.Direction.Name(), p.Amount),
			s.Winner.Name(),
			string(s.Outcome),
			fmt.Sprintf("%+.2f", s.PnL),
			fmt.Sprintf("L%d", s.LayerAfter+1),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  tick PnL: %+.2f\n", total)
}

// RiskEvents imprime los niveles de riesgo que dispararon.
func (c *Console) RiskEvents(_ context.Context, events []domain.RiskEvent) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range events {
		until := ""
		if e.Freezes() {
			until = " until manual release"
			if !e.FrozenUntil.IsZero() {
				until = " until " + e.FrozenUntil.Format("15:04:05")
			}
		}
		fmt.Fprintf(c.out, "[%s] RISK  %s %s: %s (pnl %+.2f, streak %d)%s\n",
			clock(e.At), strings.ToUpper(string(e.Action)), e.Scope, e.Reason,
			e.PnL, e.LossStreak, until)
	}
}

// StatusInput agrupa lo que necesita PrintStatus.
type StatusInput struct {
	Snapshot domain.Snapshot
	Tables   int
	Pending  int
	Exposure float64
	PnL      float64
	Wins     int
	Losses   int
	Skips    int
}

// PrintStatus imprime el estado de cada línea y de los scopes de riesgo.
func (c *Console) PrintStatus(in StatusInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n[%s] %d tables, %d lines, %d pending ($%.2f exposed)\n",
		clock(in.Snapshot.TakenAt), in.Tables, len(in.Snapshot.Lines), in.Pending, in.Exposure)
	fmt.Fprintf(c.out, "  PnL %+.2f | W:%d L:%d S:%d\n", in.PnL, in.Wins, in.Losses, in.Skips)

	if len(in.Snapshot.Lines) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Table", "Strategy", "Phase", "Armed", "Layer", "Stake", "PnL", "W/L/S", "Last")
		for _, l := range in.Snapshot.Lines {
			phase := string(l.Phase)
			if l.Frozen {
				phase = frozenLabel(l.FrozenUntil)
			}
			table.Append(
				l.TableID,
				domain.Truncate(l.StrategyKey, 24),
				phase,
				fmt.Sprintf("%d", l.ArmedCount),
				fmt.Sprintf("%d", l.LayerIndex+1),
				fmt.Sprintf("%d", l.Stake),
				fmt.Sprintf("%+.2f", l.PnL),
				fmt.Sprintf("%d/%d/%d", l.Wins, l.Losses, l.Skips),
				orDash(l.LastRoundID),
			)
		}
		table.Render()
	}

	if len(in.Snapshot.Scopes) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Risk scope", "PnL", "Streak", "State")
		for _, s := range in.Snapshot.Scopes {
			state := "ok"
			if s.Frozen {
				state = string(s.Action) + " " + frozenLabel(s.FrozenUntil)
			}
			table.Append(
				s.Scope.String(),
				fmt.Sprintf("%+.2f", s.PnL),
				fmt.Sprintf("%d", s.LossStreak),
				state,
			)
		}
		table.Render()
	}
}

// PrintReport imprime el resumen del journal de liquidaciones por estrategia.
func (c *Console) PrintReport(settlements []domain.Settlement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(settlements) == 0 {
		fmt.Fprintln(c.out, "\n  No settlements recorded.")
		return
	}

	type row struct {
		bets, wins, losses, skips int
		staked, pnl               float64
		maxLayer                  int
	}
	rows := make(map[string]*row)
	var total float64
	for _, s := range settlements {
		r, ok := rows[s.Position.StrategyKey]
		if !ok {
			r = &row{}
			rows[s.Position.StrategyKey] = r
		}
		r.bets++
		r.staked += s.Position.Amount
		r.pnl += s.PnL
		if s.Position.LayerIndex > r.maxLayer {
			r.maxLayer = s.Position.LayerIndex
		}
		switch s.Outcome {
		case domain.OutcomeWin:
			r.wins++
		case domain.OutcomeLoss:
			r.losses++
		default:
			r.skips++
		}
		total += s.PnL
	}

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	first, last := settlements[0].SettledAt, settlements[len(settlements)-1].SettledAt
	fmt.Fprintf(c.out, "\n  Settlements %s → %s\n",
		first.Format("2006-01-02 15:04"), last.Format("2006-01-02 15:04"))

	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Bets", "W", "L", "S", "Win%", "Staked", "PnL", "Max L")
	for _, k := range keys {
		r := rows[k]
		winRate := 0.0
		if decided := r.wins + r.losses; decided > 0 {
			winRate = float64(r.wins) / float64(decided) * 100
		}
		table.Append(
			domain.Truncate(k, 24),
			fmt.Sprintf("%d", r.bets),
			fmt.Sprintf("%d", r.wins),
			fmt.Sprintf("%d", r.losses),
			fmt.Sprintf("%d", r.skips),
			fmt.Sprintf("%.1f%%", winRate),
			fmt.Sprintf("$%.2f", r.staked),
			fmt.Sprintf("%+.2f", r.pnl),
			fmt.Sprintf("%d", r.maxLayer+1),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  TOTAL PnL: %+.2f over %d settlements\n\n", total, len(settlements))
}

// PrintStrategies imprime las estrategias validadas y las mesas a las que se asocian.
func (c *Console) PrintStrategies(defs []domain.StrategyDefinition, tables map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attached := make(map[string][]string)
	for table, keys := range tables {
		for _, k := range keys {
			attached[k] = append(attached[k], table)
		}
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Pattern", "Trigger", "Sequence", "Cross", "Risk", "Tables")
	for _, d := range defs {
		seq := make([]string, len(d.Staking.Sequence))
		for i, v := range d.Staking.Sequence {
			seq[i] = fmt.Sprintf("%d", v)
		}
		tablesFor := attached[d.Key]
		sort.Strings(tablesFor)
		table.Append(
			domain.Truncate(d.Key, 24),
			d.Entry.Pattern.String(),
			fmt.Sprintf("%s/%s", d.Entry.FirstTrigger, d.Entry.Dedup),
			strings.Join(seq, ","),
			string(d.CrossTable),
			fmt.Sprintf("%d", len(d.Risk)),
			orDash(strings.Join(tablesFor, ",")),
		)
	}
	table.Render()
}

// --- helpers ---

func clock(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("15:04:05")
}

func outcomeLabel(o domain.LayerOutcome) string {
	switch o {
	case domain.OutcomeWin:
		return "WIN"
	case domain.OutcomeLoss:
		return "LOSS"
	case domain.OutcomeSkipped:
		return "PUSH"
	default:
		return "VOID"
	}
}

func frozenLabel(until time.Time) string {
	if until.IsZero() {
		return "frozen"
	}
	return "frozen→" + until.Format("15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
