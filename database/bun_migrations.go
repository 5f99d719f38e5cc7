package database

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// runMigrations runs all Bun migrations
func runMigrations(ctx context.Context, db *bun.DB) error {
	// Create a simple migrations tracking table
	_, err := db.NewCreateTable().
		Model((*BunMigration)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Check which migrations have been applied
	var applied []BunMigration
	if err := db.NewSelect().Model(&applied).Scan(ctx); err != nil {
		return fmt.Errorf("failed to check applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool)
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	// Run migrations in order
	migrations := []struct {
		version string
		name    string
		up      func(context.Context, *bun.DB) error
	}{
		{"001", "create_jobs_table", init001CreateJobsTable},
	}

	for _, m := range migrations {
		if appliedMap[m.version] {
			continue
		}

		Logger.Info("Running migration", "version", m.version, "name", m.name)
		if err := m.up(ctx, db); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}

		// Mark as applied
		_, err = db.NewInsert().
			Model(&BunMigration{Version: m.version, AppliedAt: time.Now()}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", m.version, err)
		}
	}

	Logger.Debug("All migrations completed successfully")
	return nil
}

// Migration 001: jobs table and its indexes
func init001CreateJobsTable(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*BunJob)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	indexes := []struct {
		name   string
		column string
	}{
		{"idx_jobs_status", "status"},
		{"idx_jobs_type", "type"},
		{"idx_jobs_created_at", "created_at"},
		{"idx_jobs_completed_at", "completed_at"},
	}

	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model((*BunJob)(nil)).
			Index(idx.name).
			IfNotExists().
			Column(idx.column).
			Exec(ctx)
		if err != nil {
			Logger.Warn("Could not create index", "index", idx.name, "error", err)
		}
	}

	return nil
}
