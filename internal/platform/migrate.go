// Package platform holds process-boot infrastructure wiring: schema
// migrations and the Redis client (redis.go). Adapted from
// internal/platform (wisbric-nightowl), trimmed to the single-schema
// shape this system needs — no per-tenant search_path migrations.
package platform

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies every migration under migrationsDir to the schema
// named in databaseURL (spec §6's customer_capabilities/customer_secrets/
// customer_mapping/latency_raw/latency_aggregate/monitors/events tables).
func RunMigrations(databaseURL, migrationsDir string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsDir), databaseURL)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
