package httpapi

// Wire shapes for the provider's JSON API.

type catalogResponse struct {
	Items      []catalogItem `json:"items"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
}

type catalogItem struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	TitleNative  string   `json:"title_native"`
	TitleEnglish string   `json:"title_english"`
	Description  string   `json:"description"`
	PosterURL    string   `json:"poster_url"`
	Year         int      `json:"year"`
	Season       string   `json:"season"`
	Status       string   `json:"status"`
	Genres       []string `json:"genres"`
	RelatedIDs   []string `json:"related_ids"`
}

type episodesResponse struct {
	Episodes []episodeItem `json:"episodes"`
}

type episodeItem struct {
	Number       int               `json:"number"`
	StreamURL    string            `json:"stream_url"`
	Translations []translationItem `json:"translations"`
	Qualities    []string          `json:"qualities"`
}

type translationItem struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type scheduleResponse struct {
	Slots []scheduleItem `json:"slots"`
}

type scheduleItem struct {
	AnimeID   string `json:"anime_id"`
	Number    int    `json:"number"`
	AirAt     string `json:"air_at"`
	SourceURL string `json:"source_url"`
}
