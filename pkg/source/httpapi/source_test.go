package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, baseURL string) *Source {
	t.Helper()
	return New(Config{
		SourceID:       1,
		Name:           "test-provider",
		BaseURL:        baseURL,
		PageSize:       2,
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestFetchCatalog_PagesThroughAllPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		resp := catalogResponse{TotalPages: 2}
		switch page {
		case "0":
			resp.Items = []catalogItem{{ID: "a-1", Title: "First"}, {ID: "a-2", Title: "Second"}}
		case "1":
			resp.Items = []catalogItem{{ID: "a-3", Title: "Third"}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL)

	catalog, err := src.FetchCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 3)
	assert.Equal(t, "a-1", catalog[0].ExternalID)
	assert.Equal(t, "a-3", catalog[2].ExternalID)
}

func TestFetchCatalog_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(catalogResponse{
			Items:      []catalogItem{{ID: "a-1", Title: "First"}},
			TotalPages: 1,
		}))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL)

	catalog, err := src.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, catalog, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCatalog_ReturnsPartialOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "0" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(catalogResponse{
			Items:      []catalogItem{{ID: "a-1", Title: "First"}},
			TotalPages: 3,
		}))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL)

	catalog, err := src.FetchCatalog(context.Background())
	assert.Error(t, err)
	assert.Len(t, catalog, 1)
}

func TestFetchEpisodes_MapsTranslations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/titles/a-1/episodes", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(episodesResponse{
			Episodes: []episodeItem{{
				Number:       5,
				StreamURL:    "https://cdn.example/ep5",
				Translations: []translationItem{{Code: "en", Name: "English", Kind: "subtitles"}},
				Qualities:    []string{"1080p", "720p"},
			}},
		}))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL)

	episodes, err := src.FetchEpisodes(context.Background(), []string{"a-1"})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "a-1", episodes[0].ExternalID)
	assert.Equal(t, 5, episodes[0].Number)
	require.Len(t, episodes[0].Translations, 1)
	assert.Equal(t, "en", episodes[0].Translations[0].Code)
}

func TestFetchSchedule_SkipsUnparseableAirTimes(t *testing.T) {
	airAt := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(scheduleResponse{
			Slots: []scheduleItem{
				{AnimeID: "a-1", Number: 6, AirAt: airAt.Format(time.RFC3339)},
				{AnimeID: "a-2", Number: 1, AirAt: "not-a-time"},
			},
		}))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL)

	slots, err := src.FetchSchedule(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "a-1", slots[0].ExternalID)
	assert.True(t, slots[0].AirAt.Equal(airAt), fmt.Sprintf("want %s got %s", airAt, slots[0].AirAt))
}
