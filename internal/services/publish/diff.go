package publish

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// animeFieldValues maps the publishable attribute names of a canonical title
// to their values. The names double as lock identifiers.
func animeFieldValues(a *models.Anime) map[string]any {
	return map[string]any{
		"name":          a.Name,
		"native_name":   a.NativeName,
		"english_name":  a.EnglishName,
		"description":   a.Description,
		"poster_url":    a.PosterURL,
		"year":          a.Year,
		"season":        a.Season,
		"airing_status": a.AiringStatus,
	}
}

// desiredAnime builds the canonical attribute set a staged title implies.
func desiredAnime(staged *models.ExternalAnime) map[string]any {
	return map[string]any{
		"name":          staged.Title,
		"native_name":   staged.TitleNative,
		"english_name":  staged.TitleEnglish,
		"description":   staged.Description,
		"poster_url":    staged.PosterURL,
		"year":          staged.Year,
		"season":        staged.Season,
		"airing_status": string(staged.Status),
	}
}

// animeFieldOrder keeps diffs deterministic.
var animeFieldOrder = []string{
	"name", "native_name", "english_name", "description",
	"poster_url", "year", "season", "airing_status",
}

// diffAnime returns the field-level changes publishing staged data onto
// current would make. A nil current means everything is a change from zero.
func diffAnime(current *models.Anime, staged *models.ExternalAnime) []models.FieldChange {
	desired := desiredAnime(staged)

	var before map[string]any
	if current != nil {
		before = animeFieldValues(current)
	}

	var changes []models.FieldChange
	for _, field := range animeFieldOrder {
		after := desired[field]
		var prev any
		if before != nil {
			prev = before[field]
		}
		if prev != after {
			changes = append(changes, models.FieldChange{Field: field, Before: prev, After: after})
		}
	}
	return changes
}

// applyAnimeFields writes the given changes onto the canonical title.
func applyAnimeFields(a *models.Anime, changes []models.FieldChange) {
	for _, change := range changes {
		switch change.Field {
		case "name":
			a.Name = change.After.(string)
		case "native_name":
			a.NativeName = change.After.(string)
		case "english_name":
			a.EnglishName = change.After.(string)
		case "description":
			a.Description = change.After.(string)
		case "poster_url":
			a.PosterURL = change.After.(string)
		case "year":
			a.Year = change.After.(int)
		case "season":
			a.Season = change.After.(string)
		case "airing_status":
			a.AiringStatus = change.After.(string)
		}
	}
}

// episodeFieldOrder keeps episode diffs deterministic.
var episodeFieldOrder = []string{"stream_url", "translations", "qualities"}

// diffEpisode returns the changes publishing a staged episode onto current
// would make. Translations and qualities compare by value.
func diffEpisode(current *models.Episode, staged *models.ExternalEpisode) []models.FieldChange {
	var changes []models.FieldChange

	var curStream string
	var curTranslations []models.Translation
	var curQualities []string
	if current != nil {
		curStream = current.StreamURL
		curTranslations = current.Translations.Data
		curQualities = current.Qualities.Data
	}

	for _, field := range episodeFieldOrder {
		switch field {
		case "stream_url":
			if curStream != staged.StreamURL {
				changes = append(changes, models.FieldChange{Field: field, Before: curStream, After: staged.StreamURL})
			}
		case "translations":
			if !translationsEqual(curTranslations, staged.Translations.Data) {
				changes = append(changes, models.FieldChange{Field: field, Before: curTranslations, After: staged.Translations.Data})
			}
		case "qualities":
			if !stringsEqual(curQualities, staged.Qualities.Data) {
				changes = append(changes, models.FieldChange{Field: field, Before: curQualities, After: staged.Qualities.Data})
			}
		}
	}
	return changes
}

func translationsEqual(a, b []models.Translation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
