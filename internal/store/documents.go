package store

import (
	"fmt"

	"collegeattend/internal/config"
	"collegeattend/internal/docstore"
)

// OpenDocuments builds the configured document store backend wrapped in a docstore.Guard.
func OpenDocuments(cfg config.App) (docstore.Store, error) {
	var backend docstore.Store
	switch cfg.StoreBackend {
	case "memory":
		backend = docstore.NewMemory()
	case "badger":
		b, err := docstore.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		backend = b
	case "postgres":
		db, err := NewDB(cfg.DatabaseURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		backend = docstore.NewPostgres(db.Client)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return docstore.NewGuard(backend, cfg.StoreBackend, cfg.StoreTimeout), nil
}
