package sync

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Filter applies the compliance settings to fetched provider data before it
// is staged: blacklists drop titles outright, allow-lists drop disallowed
// tracks and qualities, and priority lists impose a stable ordering.
type Filter struct {
	settings *models.Settings
}

// NewFilter builds a filter from the current settings snapshot.
func NewFilter(settings *models.Settings) *Filter {
	return &Filter{settings: settings}
}

// Catalog drops blacklisted titles. A title is blacklisted when its external
// id matches exactly or any blacklist phrase is a case-insensitive substring
// of any of its names.
func (f *Filter) Catalog(items []models.ExternalAnimeInput) []models.ExternalAnimeInput {
	kept := make([]models.ExternalAnimeInput, 0, len(items))
	for _, item := range items {
		if f.blacklisted(item) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func (f *Filter) blacklisted(item models.ExternalAnimeInput) bool {
	for _, id := range f.settings.BlacklistExternalIDs.Data {
		if item.ExternalID == id {
			return true
		}
	}
	for _, phrase := range f.settings.BlacklistTitles.Data {
		if phrase == "" {
			continue
		}
		needle := strings.ToLower(phrase)
		for _, title := range []string{item.Title, item.TitleNative, item.TitleEnglish} {
			if title != "" && strings.Contains(strings.ToLower(title), needle) {
				return true
			}
		}
	}
	return false
}

// Episodes applies the translation and quality policies to each episode.
// Episodes left with no translations after filtering are dropped.
func (f *Filter) Episodes(items []models.ExternalEpisodeInput) []models.ExternalEpisodeInput {
	kept := make([]models.ExternalEpisodeInput, 0, len(items))
	for _, item := range items {
		item.Translations = f.filterTranslations(item.Translations)
		if len(item.Translations) == 0 {
			continue
		}
		item.Qualities = f.filterQualities(item.Qualities)
		kept = append(kept, item)
	}
	return kept
}

func (f *Filter) filterTranslations(translations []models.Translation) []models.Translation {
	allowedKinds := f.settings.AllowedTranslationTypes.Data
	allowedCodes := f.settings.AllowedTranslations.Data

	kept := make([]models.Translation, 0, len(translations))
	for _, tr := range translations {
		if len(allowedKinds) > 0 && !contains(allowedKinds, tr.Kind) {
			continue
		}
		if len(allowedCodes) > 0 && !contains(allowedCodes, tr.Code) {
			continue
		}
		kept = append(kept, tr)
	}

	return orderTranslations(kept, f.settings.PreferredTranslationPriority.Data)
}

func (f *Filter) filterQualities(qualities []string) []string {
	allowed := f.settings.AllowedQualities.Data

	kept := make([]string, 0, len(qualities))
	for _, q := range qualities {
		if len(allowed) > 0 && !contains(allowed, q) {
			continue
		}
		kept = append(kept, q)
	}

	return orderStrings(kept, f.settings.PreferredQualityPriority.Data)
}

// orderTranslations sorts by the priority list; unlisted codes keep their
// original relative order after all listed ones.
func orderTranslations(translations []models.Translation, priority []string) []models.Translation {
	if len(priority) == 0 {
		return translations
	}

	ordered := make([]models.Translation, 0, len(translations))
	used := make([]bool, len(translations))
	for _, code := range priority {
		for i, tr := range translations {
			if !used[i] && tr.Code == code {
				ordered = append(ordered, tr)
				used[i] = true
			}
		}
	}
	for i, tr := range translations {
		if !used[i] {
			ordered = append(ordered, tr)
		}
	}
	return ordered
}

func orderStrings(values []string, priority []string) []string {
	if len(priority) == 0 {
		return values
	}

	ordered := make([]string, 0, len(values))
	used := make([]bool, len(values))
	for _, p := range priority {
		for i, v := range values {
			if !used[i] && v == p {
				ordered = append(ordered, v)
				used[i] = true
			}
		}
	}
	for i, v := range values {
		if !used[i] {
			ordered = append(ordered, v)
		}
	}
	return ordered
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
