package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/khaata-app/khaata/internal/match"
	"github.com/khaata-app/khaata/internal/recon"
	"github.com/khaata-app/khaata/internal/service"
	"github.com/khaata-app/khaata/internal/storage"
)

// openStorage opens the configured database and brings the schema up to
// date. The caller owns the returned storage and must Close it.
func openStorage(ctx context.Context) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", cfg.DBPath, err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// buildRecon wires the group manager and reconciliation engine from config.
func buildRecon(store service.Storage, autoConfirm bool) (*match.GroupManager, *recon.Engine, error) {
	tolerance, err := cfg.BalanceTolerance()
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.ReconOptions()
	if err != nil {
		return nil, nil, err
	}
	opts.AutoConfirmStrong = autoConfirm

	groups := match.NewGroupManager(store, tolerance)
	engine := recon.NewEngine(store, groups, opts)
	return groups, engine, nil
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
