package storage

// sqlite.go — persistencia del estado del núcleo.
//
// Estrategia:
//   - `snapshots` + `snapshot_lines` + `snapshot_scopes`: el estado mutable
//     completo (líneas, capas, scopes de riesgo). Solo se conservan los últimos
//     keepSnapshots; restaurar solo necesita el más reciente.
//   - `settlements`: diario de liquidaciones, una fila por posición.
//   - `risk_events`: diario de disparos de riesgo.
//   - Los tiempos se guardan como unix nanos (0 = sin tiempo) para poder
//     filtrar por rango sin depender del formato de texto del driver.
//   - Prune automático al arrancar: diarios > 30d.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    taken_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_lines (
    snapshot_id   INTEGER NOT NULL,
    table_id      TEXT    NOT NULL,
    strategy_key  TEXT    NOT NULL,
    phase         TEXT    NOT NULL,
    armed_count   INTEGER NOT NULL DEFAULT 0,
    layer_index   INTEGER NOT NULL DEFAULT 0,
    stake         INTEGER NOT NULL DEFAULT 0,
    pnl           REAL    NOT NULL DEFAULT 0,
    frozen        INTEGER NOT NULL DEFAULT 0,
    frozen_until  INTEGER NOT NULL DEFAULT 0,
    last_round_id TEXT    NOT NULL DEFAULT '',
    wins          INTEGER NOT NULL DEFAULT 0,
    losses        INTEGER NOT NULL DEFAULT 0,
    skips         INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (snapshot_id, table_id, strategy_key)
);

CREATE TABLE IF NOT EXISTS snapshot_scopes (
    snapshot_id  INTEGER NOT NULL,
    kind         TEXT    NOT NULL,
    table_id     TEXT    NOT NULL DEFAULT '',
    strategy_key TEXT    NOT NULL DEFAULT '',
    group_name   TEXT    NOT NULL DEFAULT '',
    day          TEXT    NOT NULL DEFAULT '',
    pnl          REAL    NOT NULL DEFAULT 0,
    loss_streak  INTEGER NOT NULL DEFAULT 0,
    frozen       INTEGER NOT NULL DEFAULT 0,
    frozen_until INTEGER NOT NULL DEFAULT 0,
    action       TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settlements (
    position_id  TEXT PRIMARY KEY,
    table_id     TEXT    NOT NULL,
    round_id     TEXT    NOT NULL,
    strategy_key TEXT    NOT NULL,
    direction    TEXT    NOT NULL,
    amount       REAL    NOT NULL,
    layer_index  INTEGER NOT NULL,
    winner       TEXT    NOT NULL,
    outcome      TEXT    NOT NULL,
    pnl          REAL    NOT NULL,
    layer_after  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    settled_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    scope        TEXT    NOT NULL,
    action       TEXT    NOT NULL,
    reason       TEXT    NOT NULL,
    strategy_key TEXT    NOT NULL,
    table_id     TEXT    NOT NULL,
    pnl          REAL    NOT NULL,
    loss_streak  INTEGER NOT NULL,
    at           INTEGER NOT NULL,
    frozen_until INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_settlements_at ON settlements(settled_at);
CREATE INDEX IF NOT EXISTS idx_scopes_snap    ON snapshot_scopes(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_risk_at        ON risk_events(at);
`

const (
	keepSnapshots    = 10
	retentionJournal = 30 * 24 * time.Hour
)

// SQLiteStore implementa ports.SnapshotStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia los diarios antiguos.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveSnapshot guarda el snapshot completo en una transacción.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO snapshots (taken_at) VALUES (?)`, nanos(snap.TakenAt))
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: snapshot id: %w", err)
	}

	lineStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_lines
			(snapshot_id, table_id, strategy_key, phase, armed_count, layer_index, stake,
			 pnl, frozen, frozen_until, last_round_id, wins, losses, skips)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: prepare lines: %w", err)
	}
	defer lineStmt.Close()

	for _, l := range snap.Lines {
		if _, err := lineStmt.ExecContext(ctx,
			id, l.TableID, l.StrategyKey, string(l.Phase), l.ArmedCount, l.LayerIndex, l.Stake,
			l.PnL, boolInt(l.Frozen), nanos(l.FrozenUntil), l.LastRoundID, l.Wins, l.Losses, l.Skips,
		); err != nil {
			return fmt.Errorf("storage.SaveSnapshot: line %s/%s: %w", l.TableID, l.StrategyKey, err)
		}
	}

	scopeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_scopes
			(snapshot_id, kind, table_id, strategy_key, group_name, day,
			 pnl, loss_streak, frozen, frozen_until, action)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: prepare scopes: %w", err)
	}
	defer scopeStmt.Close()

	for _, sc := range snap.Scopes {
		k := sc.Scope
		if _, err := scopeStmt.ExecContext(ctx,
			id, string(k.Kind), k.Table, k.Strategy, k.Group, k.Day,
			sc.PnL, sc.LossStreak, boolInt(sc.Frozen), nanos(sc.FrozenUntil), string(sc.Action),
		); err != nil {
			return fmt.Errorf("storage.SaveSnapshot: scope %s: %w", k, err)
		}
	}

	cutoff := id - keepSnapshots
	for _, q := range []string{
		`DELETE FROM snapshot_lines WHERE snapshot_id <= ?`,
		`DELETE FROM snapshot_scopes WHERE snapshot_id <= ?`,
		`DELETE FROM snapshots WHERE id <= ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, cutoff); err != nil {
			return fmt.Errorf("storage.SaveSnapshot: prune: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: commit: %w", err)
	}
	return nil
}

// LoadSnapshot devuelve el snapshot más reciente. ok=false si no hay ninguno.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (domain.Snapshot, bool, error) {
	var snap domain.Snapshot
	var id, takenAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, taken_at FROM snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&id, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("storage.LoadSnapshot: latest: %w", err)
	}
	snap.TakenAt = fromNanos(takenAt)

	lines, err := s.db.QueryContext(ctx, `
		SELECT table_id, strategy_key, phase, armed_count, layer_index, stake,
		       pnl, frozen, frozen_until, last_round_id, wins, losses, skips
		FROM snapshot_lines WHERE snapshot_id = ?
		ORDER BY table_id, strategy_key
	`, id)
	if err != nil {
		return snap, false, fmt.Errorf("storage.LoadSnapshot: query lines: %w", err)
	}
	defer lines.Close()

	for lines.Next() {
		var l domain.LineSnapshot
		var phase string
		var frozen int
		var frozenUntil int64
		if err := lines.Scan(
			&l.TableID, &l.StrategyKey, &phase, &l.ArmedCount, &l.LayerIndex, &l.Stake,
			&l.PnL, &frozen, &frozenUntil, &l.LastRoundID, &l.Wins, &l.Losses, &l.Skips,
		); err != nil {
			return snap, false, fmt.Errorf("storage.LoadSnapshot: scan line: %w", err)
		}
		l.Phase = domain.LinePhase(phase)
		l.Frozen = frozen == 1
		l.FrozenUntil = fromNanos(frozenUntil)
		snap.Lines = append(snap.Lines, l)
	}
	if err := lines.Err(); err != nil {
		return snap, false, fmt.Errorf("storage.LoadSnapshot: lines: %w", err)
	}

	scopes, err := s.db.QueryContext(ctx, `
		SELECT kind, table_id, strategy_key, group_name, day,
		       pnl, loss_streak, frozen, frozen_until, action
		FROM snapshot_scopes WHERE snapshot_id = ?
		ORDER BY rowid
	`, id)
	if err != nil {
		return snap, false, fmt.Errorf("storage.LoadSnapshot: query scopes: %w", err)
	}
	defer scopes.Close()

	for scopes.Next() {
		var sc domain.ScopeSnapshot
		var kind, action string
		var frozen int
		var frozenUntil int64
		if err := scopes.Scan(
			&kind, &sc.Scope.Table, &sc.Scope.Strategy, &sc.Scope.Group, &sc.Scope.Day,
			&sc.PnL, &sc.LossStreak, &frozen, &frozenUntil, &action,
		); err != nil {
			return snap, false, fmt.Errorf("storage.LoadSnapshot: scan scope: %w", err)
		}
		sc.Scope.Kind = domain.RiskScopeKind(kind)
		sc.Frozen = frozen == 1
		sc.FrozenUntil = fromNanos(frozenUntil)
		sc.Action = domain.RiskAction(action)
		snap.Scopes = append(snap.Scopes, sc)
	}
	if err := scopes.Err(); err != nil {
		return snap, false, fmt.Errorf("storage.LoadSnapshot: scopes: %w", err)
	}
	return snap, true, nil
}

// RecordSettlement añade una liquidación al diario. Registrar dos veces la
// misma posición no duplica la fila.
func (s *SQLiteStore) RecordSettlement(ctx context.Context, st domain.Settlement) error {
	p := st.Position
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlements
			(position_id, table_id, round_id, strategy_key, direction, amount, layer_index,
			 winner, outcome, pnl, layer_after, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id) DO NOTHING
	`,
		p.ID, p.TableID, p.RoundID, p.StrategyKey, string(p.Direction), p.Amount, p.LayerIndex,
		string(st.Winner), string(st.Outcome), st.PnL, st.LayerAfter, nanos(p.CreatedAt), nanos(st.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordSettlement: %s: %w", p.ID, err)
	}
	return nil
}

// Settlements devuelve las liquidaciones con settled_at en [from, to], de la más antigua a la más reciente.
func (s *SQLiteStore) Settlements(ctx context.Context, from, to time.Time) ([]domain.Settlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, table_id, round_id, strategy_key, direction, amount, layer_index,
		       winner, outcome, pnl, layer_after, created_at, settled_at
		FROM settlements
		WHERE settled_at BETWEEN ? AND ?
		ORDER BY settled_at, position_id
	`, nanos(from), nanos(to))
	if err != nil {
		return nil, fmt.Errorf("storage.Settlements: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var st domain.Settlement
		var direction, winner, outcome string
		var createdAt, settledAt int64
		if err := rows.Scan(
			&st.Position.ID, &st.Position.TableID, &st.Position.RoundID, &st.Position.StrategyKey,
			&direction, &st.Position.Amount, &st.Position.LayerIndex,
			&winner, &outcome, &st.PnL, &st.LayerAfter, &createdAt, &settledAt,
		); err != nil {
			return nil, fmt.Errorf("storage.Settlements: scan row: %w", err)
		}
		st.Position.Direction = domain.Side(direction)
		st.Position.CreatedAt = fromNanos(createdAt)
		st.Winner = domain.Side(winner)
		st.Outcome = domain.LayerOutcome(outcome)
		st.SettledAt = fromNanos(settledAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecordRiskEvent añade un disparo de riesgo al diario.
func (s *SQLiteStore) RecordRiskEvent(ctx context.Context, ev domain.RiskEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_events
			(scope, action, reason, strategy_key, table_id, pnl, loss_streak, at, frozen_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.Scope.String(), string(ev.Action), ev.Reason, ev.StrategyKey, ev.TableID,
		ev.PnL, ev.LossStreak, nanos(ev.At), nanos(ev.FrozenUntil),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordRiskEvent: %w", err)
	}
	return nil
}

// CountRiskEvents devuelve cuántos disparos de riesgo hay en [from, to].
func (s *SQLiteStore) CountRiskEvents(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM risk_events WHERE at BETWEEN ? AND ?`, nanos(from), nanos(to),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.CountRiskEvents: %w", err)
	}
	return n, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina diarios antiguos para mantener la DB ligera.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	cutoff := nanos(time.Now().Add(-retentionJournal))
	s.db.ExecContext(ctx, `DELETE FROM settlements WHERE settled_at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM risk_events WHERE at < ?`, cutoff)
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
