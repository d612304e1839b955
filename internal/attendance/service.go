package attendance

import (
	"collegeattend/internal/docstore"
)

// Options configures a Service.
type Options struct {
	Limits Limits
	Now    Clock
	Events Publisher
}

// Service bundles the attendance components over one store.
type Service struct {
	*Registry
	*Engine
	*Marker
	*Stats
}

// NewService wires the registry, redemption engine, manual marker and statistics over store.
func NewService(store docstore.Store, opts Options) *Service {
	repo := NewRepository(store)
	return &Service{
		Registry: NewRegistry(repo, opts.Limits, opts.Now),
		Engine:   NewEngine(repo, opts.Now, opts.Events),
		Marker:   NewMarker(repo, opts.Now),
		Stats:    NewStats(repo),
	}
}
