// Package source defines the contract external content providers implement
// and the registry the sync pipeline resolves them from.
package source

import (
	"context"
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Adapter fetches catalog, episode, and schedule data from one external
// provider. Implementations return provider data already mapped to the
// staging input shapes; they never touch storage.
type Adapter interface {
	// ID returns the numeric source identifier used in staging identities.
	ID() int

	// Name returns a human-readable provider name.
	Name() string

	// FetchCatalog returns the provider's full title catalog.
	FetchCatalog(ctx context.Context) ([]models.ExternalAnimeInput, error)

	// FetchEpisodes returns the episode lists for the given provider title ids.
	FetchEpisodes(ctx context.Context, externalIDs []string) ([]models.ExternalEpisodeInput, error)

	// FetchSchedule returns upcoming air slots for the provider's titles.
	FetchSchedule(ctx context.Context) ([]models.ExternalScheduleInput, error)
}

// Registry resolves adapters by source id.
type Registry struct {
	adapters map[int]Adapter
}

// NewRegistry creates a registry from the given adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[int]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if _, exists := r.adapters[adapter.ID()]; exists {
			return nil, fmt.Errorf("duplicate source adapter id %d", adapter.ID())
		}
		r.adapters[adapter.ID()] = adapter
	}
	return r, nil
}

// Get returns the adapter for the given source id.
func (r *Registry) Get(sourceID int) (Adapter, error) {
	adapter, ok := r.adapters[sourceID]
	if !ok {
		return nil, fmt.Errorf("unknown source id %d", sourceID)
	}
	return adapter, nil
}

// All returns every registered adapter ordered by id.
func (r *Registry) All() []Adapter {
	all := make([]Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		all = append(all, adapter)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })
	return all
}
