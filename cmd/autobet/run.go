package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/autobet/config"
	"github.com/alejandrodnm/autobet/internal/adapters/actuator"
	"github.com/alejandrodnm/autobet/internal/adapters/feed"
	"github.com/alejandrodnm/autobet/internal/adapters/metrics"
	"github.com/alejandrodnm/autobet/internal/adapters/notify"
	"github.com/alejandrodnm/autobet/internal/adapters/storage"
	"github.com/alejandrodnm/autobet/internal/application/conflict"
	"github.com/alejandrodnm/autobet/internal/application/dispatch"
	"github.com/alejandrodnm/autobet/internal/application/engine"
	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/alejandrodnm/autobet/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// runEngine conecta el orquestador con la fuente de eventos, la actuación y
// los sinks, y procesa eventos hasta que la fuente se agota o llega una señal.
func runEngine(ctx context.Context, cfg *config.Config, store *storage.SQLiteStore, console *notify.Console, fresh bool) error {
	m := metrics.New(prometheus.NewRegistry())
	sink := ports.MultiSink{console, m, storage.NewJournal(store)}

	orch := engine.New(engine.Config{
		Conflict: conflict.Config{
			FixedPriority: cfg.Conflict.FixedPriority,
			EnableEV:      cfg.Conflict.EVEnabled(),
		},
		Payout: cfg.PayoutTable(),
	}, sink)

	if err := registerAll(cfg, orch); err != nil {
		return err
	}

	if !fresh {
		snap, ok, err := store.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if ok {
			if err := orch.Restore(snap); err != nil {
				return fmt.Errorf("restore snapshot: %w", err)
			}
		}
	}

	var act ports.Actuator = actuator.DryRun{}
	if cfg.Actuation.Endpoint != "" {
		act = actuator.NewClient(cfg.Actuation.Endpoint, cfg.ActuationTimeout())
	}
	disp := dispatch.New(dispatch.Config{
		RatePerSec: cfg.Actuation.RatePerSec,
		Burst:      cfg.Actuation.Burst,
		QueueSize:  cfg.Actuation.QueueSize,
	}, act, orch)

	src, err := feed.Open(cfg.Engine.Feed)
	if err != nil {
		return err
	}
	defer src.Close()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	go func() {
		if err := disp.Run(bgCtx); err != nil {
			slog.Error("dispatch: stopped", "err", err)
		}
	}()
	go snapshotLoop(bgCtx, orch, store, m, cfg.SnapshotInterval())
	if cfg.Metrics.Addr != "" {
		go serveMetrics(bgCtx, cfg.Metrics.Addr, m.Handler())
	}

	loop := engine.NewLoop(orch, disp)
	runErr := loop.Run(ctx, src)
	stopBackground()

	if skipped := src.Skipped(); skipped > 0 {
		slog.Warn("feed: malformed events skipped", "count", skipped)
	}

	// El contexto de la señal puede estar cancelado: el último snapshot usa uno propio.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap := saveSnapshot(saveCtx, orch, store, m)

	stats := orch.Stats()
	console.PrintStatus(notify.StatusInput{
		Snapshot: snap,
		Tables:   stats.Tables,
		Pending:  stats.Pending,
		Exposure: stats.Exposure,
		PnL:      stats.PnL,
		Wins:     stats.Wins,
		Losses:   stats.Losses,
		Skips:    stats.Skips,
	})
	return runErr
}

// registerAll registra las estrategias y las asocia a sus mesas.
func registerAll(cfg *config.Config, orch *engine.Orchestrator) error {
	defs, err := cfg.Definitions()
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := orch.RegisterStrategy(def); err != nil {
			return err
		}
	}
	for _, table := range cfg.TableIDs() {
		for _, key := range cfg.Tables[table] {
			if err := orch.Attach(table, key); err != nil {
				return err
			}
		}
	}
	slog.Info("engine: strategies attached", "strategies", len(defs), "tables", len(cfg.Tables))
	return nil
}

func snapshotLoop(ctx context.Context, orch *engine.Orchestrator, store ports.SnapshotStore, m *metrics.Metrics, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveSnapshot(ctx, orch, store, m)
		}
	}
}

func saveSnapshot(ctx context.Context, orch *engine.Orchestrator, store ports.SnapshotStore, m *metrics.Metrics) domain.Snapshot {
	snap := orch.Snapshot()
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		slog.Warn("storage: snapshot not saved", "err", err)
	}
	stats := orch.Stats()
	m.ObserveStatus(stats.Lines, stats.Frozen, stats.Pending, stats.Exposure)
	slog.Debug("engine: snapshot saved", "lines", len(snap.Lines), "scopes", len(snap.Scopes))
	return snap
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics: server failed", "err", err)
	}
}
