// Package backend picks the store.Gateway implementation from configuration.
package backend

import (
	"context"
	"fmt"
	"log"

	"possystem/backend/internal/config"
	"possystem/backend/internal/store"
	"possystem/backend/internal/store/memory"
	pgstore "possystem/backend/internal/store/postgres"
	sqlitestore "possystem/backend/internal/store/sqlite"
)

// Open prefers postgres, then sqlite, then the seeded in-memory store.
// A configured database that cannot be reached is fatal rather than silently
// replaced by memory.
func Open(ctx context.Context, cfg config.Config) (store.Gateway, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		log.Println("repository: postgres")
		return pg, nil
	case cfg.SQLitePath != "":
		lite, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite unavailable at %s: %w", cfg.SQLitePath, err)
		}
		log.Printf("repository: sqlite (%s)", cfg.SQLitePath)
		return lite, nil
	}
	log.Println("repository: in-memory")
	return memory.NewSeeded(), nil
}
