// Package httpapi implements a source adapter over a provider's JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Config holds adapter configuration for one provider endpoint.
type Config struct {
	SourceID       int
	Name           string
	BaseURL        string
	Token          string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source fetches provider data over HTTP with bounded retries.
type Source struct {
	httpClient     *http.Client
	sourceID       int
	name           string
	baseURL        string
	token          string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         ectologger.Logger
}

// New creates an HTTP API source adapter.
func New(cfg Config, logger ectologger.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		sourceID:       cfg.SourceID,
		name:           cfg.Name,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		pageSize:       cfg.PageSize,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.WithField("source", cfg.Name),
	}
}

func (s *Source) ID() int {
	return s.sourceID
}

func (s *Source) Name() string {
	return s.name
}

// FetchCatalog pages through the provider catalog. A mid-pagination failure
// returns the pages fetched so far together with the error, so callers can
// decide whether a partial catalog is usable.
func (s *Source) FetchCatalog(ctx context.Context) ([]models.ExternalAnimeInput, error) {
	var items []catalogItem

	for page := 0; ; page++ {
		endpoint := fmt.Sprintf("%s/catalog?page=%d&page_size=%d", s.baseURL, page, s.pageSize)

		var resp catalogResponse
		if err := s.fetch(ctx, endpoint, &resp); err != nil {
			return s.transformCatalog(items), fmt.Errorf("fetch catalog page %d: %w", page, err)
		}

		items = append(items, resp.Items...)

		s.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"page":  page,
			"items": len(resp.Items),
			"total": len(items),
		}).Debug("fetched catalog page")

		if page >= resp.TotalPages-1 {
			break
		}
	}

	return s.transformCatalog(items), nil
}

// FetchEpisodes fetches episode lists title by title. A failing title aborts
// the batch; callers bound the batch size.
func (s *Source) FetchEpisodes(ctx context.Context, externalIDs []string) ([]models.ExternalEpisodeInput, error) {
	var episodes []models.ExternalEpisodeInput

	for _, externalID := range externalIDs {
		endpoint := fmt.Sprintf("%s/titles/%s/episodes", s.baseURL, url.PathEscape(externalID))

		var resp episodesResponse
		if err := s.fetch(ctx, endpoint, &resp); err != nil {
			return episodes, fmt.Errorf("fetch episodes for %s: %w", externalID, err)
		}

		for _, item := range resp.Episodes {
			translations := make([]models.Translation, 0, len(item.Translations))
			for _, tr := range item.Translations {
				translations = append(translations, models.Translation{
					Code: tr.Code,
					Name: tr.Name,
					Kind: tr.Kind,
				})
			}

			episodes = append(episodes, models.ExternalEpisodeInput{
				ExternalID:   externalID,
				Number:       item.Number,
				StreamURL:    item.StreamURL,
				Translations: translations,
				Qualities:    item.Qualities,
			})
		}
	}

	return episodes, nil
}

// FetchSchedule fetches upcoming air slots.
func (s *Source) FetchSchedule(ctx context.Context) ([]models.ExternalScheduleInput, error) {
	endpoint := fmt.Sprintf("%s/schedule", s.baseURL)

	var resp scheduleResponse
	if err := s.fetch(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}

	slots := make([]models.ExternalScheduleInput, 0, len(resp.Slots))
	for _, item := range resp.Slots {
		airAt, err := time.Parse(time.RFC3339, item.AirAt)
		if err != nil {
			s.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"external_id": item.AnimeID,
				"air_at":      item.AirAt,
			}).Warn("skipping schedule slot with unparseable air time")
			continue
		}

		slots = append(slots, models.ExternalScheduleInput{
			ExternalID: item.AnimeID,
			Number:     item.Number,
			AirAt:      airAt,
			SourceURL:  item.SourceURL,
		})
	}

	return slots, nil
}

func (s *Source) fetch(ctx context.Context, endpoint string, out interface{}) error {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.doRequest(ctx, endpoint, out)
		if lastErr == nil {
			return nil
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.WithContext(ctx).WithError(lastErr).WithFields(map[string]interface{}{
			"attempt": attempt,
			"backoff": backoff.String(),
		}).Warn("request failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Source) doRequest(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	started := time.Now()
	defer func() {
		metrics.SourceRequestDuration.WithLabelValues(s.name).Observe(time.Since(started).Seconds())
	}()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func (s *Source) transformCatalog(items []catalogItem) []models.ExternalAnimeInput {
	inputs := make([]models.ExternalAnimeInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, models.ExternalAnimeInput{
			ExternalID:   item.ID,
			Title:        item.Title,
			TitleNative:  item.TitleNative,
			TitleEnglish: item.TitleEnglish,
			Description:  item.Description,
			PosterURL:    item.PosterURL,
			Year:         item.Year,
			Season:       item.Season,
			Status:       models.ExternalStatus(item.Status),
			Genres:       item.Genres,
			RelatedIDs:   item.RelatedIDs,
		})
	}
	return inputs
}
