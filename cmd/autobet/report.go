package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/autobet/config"
	"github.com/alejandrodnm/autobet/internal/adapters/notify"
	"github.com/alejandrodnm/autobet/internal/adapters/storage"
)

// runStatus imprime el último snapshot persistido sin arrancar el motor.
func runStatus(ctx context.Context, store *storage.SQLiteStore, console *notify.Console) {
	snap, ok, err := store.LoadSnapshot(ctx)
	if err != nil {
		slog.Error("failed to load snapshot", "err", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("no snapshot stored yet")
		return
	}

	in := notify.StatusInput{Snapshot: snap}
	tables := make(map[string]bool)
	for _, l := range snap.Lines {
		tables[l.TableID] = true
		in.PnL += l.PnL
		in.Wins += l.Wins
		in.Losses += l.Losses
		in.Skips += l.Skips
	}
	in.Tables = len(tables)
	console.PrintStatus(in)
}

// runReport imprime el journal de liquidaciones de la ventana pedida.
func runReport(ctx context.Context, store *storage.SQLiteStore, console *notify.Console, since time.Duration) {
	to := time.Now()
	settlements, err := store.Settlements(ctx, to.Add(-since), to)
	if err != nil {
		slog.Error("failed to read settlements", "err", err)
		os.Exit(1)
	}
	console.PrintReport(settlements)

	events, err := store.CountRiskEvents(ctx, to.Add(-since), to)
	if err != nil {
		slog.Warn("failed to count risk events", "err", err)
		return
	}
	fmt.Printf("  Risk events journaled: %d\n", events)
}

// printValidation imprime las estrategias ya validadas y sus mesas.
func printValidation(cfg *config.Config) {
	defs, err := cfg.Definitions()
	if err != nil {
		slog.Error("invalid strategies", "err", err)
		os.Exit(1)
	}
	notify.NewConsole(true).PrintStrategies(defs, cfg.Tables)
	slog.Info("configuration valid", "strategies", len(defs), "tables", len(cfg.Tables))
}
