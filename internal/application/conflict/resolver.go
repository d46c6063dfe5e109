package conflict

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const (
	defaultEV   = 0.5
	defaultRank = 999
)

// Config contiene la configuración del resolver. Se fija al arrancar.
type Config struct {
	// FixedPriority asigna a cada estrategia un rango; menor rango, más prioridad.
	// Las estrategias ausentes usan el rango 999.
	FixedPriority map[string]int
	// EnableEV activa el término EV del score.
	EnableEV bool
}

// Result es el resultado de arbitrar los candidatos de una ronda.
type Result struct {
	Approved []domain.Candidate
	Rejected []domain.Rejection
}

// Resolver arbitra los candidatos de varias estrategias para que haya como
// mucho una apuesta por mesa y ronda.
type Resolver struct {
	cfg Config
	now func() time.Time
}

// New crea un Resolver con el reloj del sistema.
func New(cfg Config) *Resolver {
	return &Resolver{cfg: cfg, now: time.Now}
}

// WithClock sustituye el reloj usado para el recency score.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

type scored struct {
	c     domain.Candidate
	score float64
}

// Resolve arbitra candidates. Los candidatos se agrupan por (mesa, ronda) y cada
// grupo se resuelve por separado; dentro de un grupo el orden de entrada solo
// decide empates exactos de score.
func (r *Resolver) Resolve(candidates []domain.Candidate, metadata map[string]domain.Metadata) Result {
	var res Result
	if len(candidates) == 0 {
		return res
	}
	now := r.now()

	type groupKey struct{ table, round string }
	var order []groupKey
	groups := make(map[groupKey][]scored)
	for _, c := range candidates {
		k := groupKey{c.TableID, c.RoundID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], scored{c: c, score: r.Score(c, metadata[c.StrategyKey], now)})
	}

	for _, k := range order {
		approved, rejected := resolveGroup(groups[k])
		if approved != nil {
			res.Approved = append(res.Approved, *approved)
		}
		res.Rejected = append(res.Rejected, rejected...)
		if len(rejected) > 0 {
			slog.Debug("conflict: resolved",
				"table", k.table,
				"round", k.round,
				"candidates", len(groups[k]),
				"rejected", len(rejected),
			)
		}
	}
	return res
}

func resolveGroup(group []scored) (*domain.Candidate, []domain.Rejection) {
	ranked := slices.Clone(group)
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	var rejected []domain.Rejection

	// Paso 1: banca contra jugador. Gana el lado con el mejor candidato, aunque
	// el primero del ranking sea un empate.
	var survivors []scored
	loser, beaten := losingSide(ranked)
	for _, s := range ranked {
		if beaten && s.c.Direction == loser {
			rejected = append(rejected, domain.Rejection{
				Candidate: s.c,
				Reason:    domain.RejectOppositeDirection,
				Score:     s.score,
				Detail:    fmt.Sprintf("%s beats %s", loser.Opposite().Name(), loser.Name()),
			})
			continue
		}
		survivors = append(survivors, s)
	}

	// Paso 2: entre los supervivientes, empate incluido, solo queda el primero.
	winner := survivors[0]
	for _, s := range survivors[1:] {
		rejected = append(rejected, domain.Rejection{
			Candidate: s.c,
			Reason:    domain.RejectLowerPriority,
			Score:     s.score,
			Detail:    fmt.Sprintf("%s scored %.2f vs %.2f", winner.c.StrategyKey, winner.score, s.score),
		})
	}
	return &winner.c, rejected
}

// losingSide devuelve el lado que pierde el choque banca/jugador. ranked viene
// ordenado por score de forma estable, así que el primer candidato de banca o
// jugador decide el lado ganador, también con scores iguales.
func losingSide(ranked []scored) (domain.Side, bool) {
	var best domain.Side
	hasBanker, hasPlayer := false, false
	for _, s := range ranked {
		switch s.c.Direction {
		case domain.SideBanker:
			hasBanker = true
		case domain.SidePlayer:
			hasPlayer = true
		default:
			continue
		}
		if best == "" {
			best = s.c.Direction
		}
	}
	if !hasBanker || !hasPlayer {
		return "", false
	}
	return best.Opposite(), true
}

// Score calcula EV*1000 + recency + fixed priority para un candidato.
func (r *Resolver) Score(c domain.Candidate, meta domain.Metadata, now time.Time) float64 {
	var score float64
	if r.cfg.EnableEV {
		score += EV(c.LayerIndex, meta) * 1000
	}
	score += RecencyScore(now.Sub(c.CreatedAt))
	score += FixedPriorityScore(r.rank(c.StrategyKey))
	return score
}

func (r *Resolver) rank(strategyKey string) int {
	if rank, ok := r.cfg.FixedPriority[strategyKey]; ok {
		return rank
	}
	return defaultRank
}

// EV devuelve el valor esperado heurístico en [0,1]. El peso de metadata, si
// existe, sustituye por completo al cálculo por capa.
func EV(layer int, meta domain.Metadata) float64 {
	if w, ok := meta.EVWeight(); ok {
		return clamp01(w)
	}
	ev := defaultEV
	switch {
	case layer == 0:
		ev += 0.10
	case layer == 1:
		ev += 0.05
	case layer > 3:
		ev -= 0.05 * float64(layer-3)
	}
	return clamp01(ev)
}

// RecencyScore pierde 10 puntos por segundo de antigüedad del candidato.
func RecencyScore(age time.Duration) float64 {
	return math.Max(0, 100-10*age.Seconds())
}

// FixedPriorityScore convierte el rango fijo en score.
func FixedPriorityScore(rank int) float64 {
	return math.Max(0, 10-0.1*float64(rank))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
