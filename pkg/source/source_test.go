package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type stubAdapter struct {
	id   int
	name string
}

func (s *stubAdapter) ID() int      { return s.id }
func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) FetchCatalog(context.Context) ([]models.ExternalAnimeInput, error) {
	return nil, nil
}
func (s *stubAdapter) FetchEpisodes(context.Context, []string) ([]models.ExternalEpisodeInput, error) {
	return nil, nil
}
func (s *stubAdapter) FetchSchedule(context.Context) ([]models.ExternalScheduleInput, error) {
	return nil, nil
}

func TestRegistry_GetAndAll(t *testing.T) {
	registry, err := NewRegistry(&stubAdapter{id: 2, name: "b"}, &stubAdapter{id: 1, name: "a"})
	require.NoError(t, err)

	adapter, err := registry.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "a", adapter.Name())

	_, err = registry.Get(9)
	assert.Error(t, err)

	all := registry.All()
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].ID())
	assert.Equal(t, 2, all[1].ID())
}

func TestRegistry_RejectsDuplicateIDs(t *testing.T) {
	_, err := NewRegistry(&stubAdapter{id: 1, name: "a"}, &stubAdapter{id: 1, name: "b"})
	assert.Error(t, err)
}
