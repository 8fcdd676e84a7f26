package publish

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeStagedTitles struct {
	byKey map[string]*models.ExternalAnime
}

func (f *fakeStagedTitles) GetBySourceAndExternalID(_ context.Context, sourceID int, externalID string) (*models.ExternalAnime, error) {
	return f.byKey[key(sourceID, externalID)], nil
}

func key(sourceID int, externalID string) string {
	return fmt.Sprintf("%d:%s", sourceID, externalID)
}

type fakeStagedEpisodes struct {
	byTitle map[string]map[int]*models.ExternalEpisode
}

func (f *fakeStagedEpisodes) GetByNumber(_ context.Context, externalAnimeID string, number int) (*models.ExternalEpisode, error) {
	return f.byTitle[externalAnimeID][number], nil
}

type fakeBindings struct {
	byExternal map[string]*models.Binding
	created    []*models.Binding
}

func (f *fakeBindings) GetByExternalAnimeID(_ context.Context, externalAnimeID string) (*models.Binding, error) {
	return f.byExternal[externalAnimeID], nil
}

func (f *fakeBindings) ListByAnimeID(_ context.Context, animeID string) ([]models.Binding, error) {
	var out []models.Binding
	for _, b := range f.byExternal {
		if b != nil && b.AnimeID == animeID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBindings) Create(_ context.Context, entity *models.Binding) error {
	f.created = append(f.created, entity)
	if f.byExternal == nil {
		f.byExternal = map[string]*models.Binding{}
	}
	f.byExternal[entity.ExternalAnimeID] = entity
	return nil
}

type fakeAnimes struct {
	byID    map[string]*models.Anime
	created []*models.Anime
	updated []*models.Anime
}

func (f *fakeAnimes) GetByID(_ context.Context, id string) (*models.Anime, error) {
	if a, ok := f.byID[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeAnimes) GetByIDForUpdate(ctx context.Context, id string) (*models.Anime, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeAnimes) Create(_ context.Context, entity *models.Anime) error {
	f.created = append(f.created, entity)
	return nil
}

func (f *fakeAnimes) Update(_ context.Context, entity *models.Anime) error {
	f.updated = append(f.updated, entity)
	return nil
}

type fakeEpisodes struct {
	byKey   map[string]*models.Episode
	created []*models.Episode
	updated []*models.Episode
}

func episodeKey(animeID string, number int) string {
	return fmt.Sprintf("%s#%d", animeID, number)
}

func (f *fakeEpisodes) GetByAnimeAndNumber(_ context.Context, animeID string, number int) (*models.Episode, error) {
	if e, ok := f.byKey[episodeKey(animeID, number)]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeEpisodes) Create(_ context.Context, entity *models.Episode) error {
	f.created = append(f.created, entity)
	return nil
}

func (f *fakeEpisodes) Update(_ context.Context, entity *models.Episode) error {
	f.updated = append(f.updated, entity)
	return nil
}

type fakeReleases struct {
	created []*models.Release
}

func (f *fakeReleases) Create(_ context.Context, entity *models.Release) error {
	f.created = append(f.created, entity)
	return nil
}

type fakeAudit struct {
	entries []*models.AuditEntry
}

func (f *fakeAudit) Record(_ context.Context, entry *models.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeSettings struct {
	settings models.Settings
}

func (f *fakeSettings) Get(context.Context) (*models.Settings, error) {
	copied := f.settings
	return &copied, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeEmitter struct {
	animeEvents   int
	episodeEvents int
}

func (f *fakeEmitter) EmitAnimePublished(context.Context, *models.Anime, int, bool) error {
	f.animeEvents++
	return nil
}

func (f *fakeEmitter) EmitEpisodePublished(context.Context, *models.Episode, int, bool) error {
	f.episodeEvents++
	return nil
}

type fixture struct {
	svc          *Service
	stagedTitles *fakeStagedTitles
	stagedEps    *fakeStagedEpisodes
	bindings     *fakeBindings
	animes       *fakeAnimes
	episodes     *fakeEpisodes
	releases     *fakeReleases
	audit        *fakeAudit
	emitter      *fakeEmitter
}

func newFixture() *fixture {
	f := &fixture{
		stagedTitles: &fakeStagedTitles{byKey: map[string]*models.ExternalAnime{}},
		stagedEps:    &fakeStagedEpisodes{byTitle: map[string]map[int]*models.ExternalEpisode{}},
		bindings:     &fakeBindings{byExternal: map[string]*models.Binding{}},
		animes:       &fakeAnimes{byID: map[string]*models.Anime{}},
		episodes:     &fakeEpisodes{byKey: map[string]*models.Episode{}},
		releases:     &fakeReleases{},
		audit:        &fakeAudit{},
		emitter:      &fakeEmitter{},
	}
	f.svc = NewService(
		f.stagedTitles, f.stagedEps, f.bindings, f.animes, f.episodes,
		f.releases, f.audit, &fakeSettings{}, passthroughTx{}, f.emitter,
		ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
	)
	return f
}

func userActor() models.Actor {
	id := "editor-1"
	return models.Actor{ID: &id, Kind: models.ActorUser}
}

func stagedTitle(sourceID int, externalID, rowID string) *models.ExternalAnime {
	return &models.ExternalAnime{
		ID:          rowID,
		SourceID:    sourceID,
		ExternalID:  externalID,
		Title:       "Sample Title",
		Description: "fresh description",
		Year:        2026,
		Status:      models.ExternalStatusOngoing,
	}
}

func TestPublishAnime_FirstPublishCreatesEverything(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")

	result, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: userActor()})
	require.NoError(t, err)

	assert.True(t, result.Created)
	require.Len(t, f.animes.created, 1)
	created := f.animes.created[0]
	assert.Equal(t, "Sample Title", created.Name)
	assert.Equal(t, models.SourceParser, created.Source)
	assert.Equal(t, models.StatePending, created.State)

	require.Len(t, f.releases.created, 1)
	assert.Equal(t, created.ID, f.releases.created[0].AnimeID)
	require.NotNil(t, created.ReleaseID)
	assert.Equal(t, *created.ReleaseID, f.releases.created[0].ID)

	require.Len(t, f.bindings.created, 1)
	assert.Equal(t, "row-1", f.bindings.created[0].ExternalAnimeID)
	assert.Equal(t, "publish", f.bindings.created[0].CreatedVia)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "anime.create", f.audit.entries[0].Action)
	assert.Equal(t, created.ID, f.audit.entries[0].EntityID)
	assert.Contains(t, f.audit.entries[0].Reason, "ext-1")

	assert.Equal(t, 1, f.emitter.animeEvents)
}

func TestPublishAnime_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PublishAnime(context.Background(), 1, "missing", Options{Actor: userActor()})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestPublishAnime_ManualEntityBlocksAutomation(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")
	f.animes.byID["anime-1"] = &models.Anime{ID: "anime-1", Name: "Hand Made", Source: models.SourceManual, State: models.StateDraft}
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}

	_, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: models.SystemActor()})
	var manual *ManualOverrideError
	require.ErrorAs(t, err, &manual)
	assert.Empty(t, f.animes.updated)
	assert.Empty(t, f.audit.entries)
}

func TestPublishAnime_ManualEntityBlocksUsersToo(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")
	f.animes.byID["anime-1"] = &models.Anime{ID: "anime-1", Name: "Hand Made", Source: models.SourceManual, State: models.StateDraft}
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}

	// Manually created entities reject publishes regardless of who asks.
	_, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: userActor()})
	var manual *ManualOverrideError
	require.ErrorAs(t, err, &manual)
	assert.Empty(t, f.animes.updated)
	assert.Empty(t, f.audit.entries)
}

func TestPublishAnime_LockedFieldBlocksOnlyThatField(t *testing.T) {
	f := newFixture()
	staged := stagedTitle(1, "ext-1", "row-1")
	f.stagedTitles.byKey[key(1, "ext-1")] = staged
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}

	// name is locked and differs from the staged title.
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: "Curated Name", Source: models.SourceParser,
		State: models.StateDraft, IsLocked: true,
		LockedFields: database.NewJSONB([]string{"name"}),
	}

	_, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: userActor()})
	var lockErr *LockViolationError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, []string{"name"}, lockErr.Fields)

	// With the name already matching, the description change goes through.
	f.animes.byID["anime-1"].Name = staged.Title
	result, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: userActor()})
	require.NoError(t, err)
	assert.False(t, result.Created)
	require.Len(t, f.animes.updated, 1)
	assert.Equal(t, "fresh description", f.animes.updated[0].Description)
}

func TestPublishAnime_WholeEntityLock(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: "Other", Source: models.SourceParser,
		State: models.StateDraft, IsLocked: true,
	}

	_, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: userActor()})
	var lockErr *LockViolationError
	require.ErrorAs(t, err, &lockErr)
}

func TestPublishAnime_LockOverridePrivilege(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: "Other", Source: models.SourceParser,
		State: models.StateDraft, IsLocked: true,
	}

	actor := userActor()
	actor.OverrideLocks = true
	result, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: actor})
	require.NoError(t, err)
	assert.False(t, result.Created)
	require.Len(t, f.animes.updated, 1)
}

func TestPublishAnime_DryRunWritesNothing(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")

	dry := true
	result, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: userActor(), DryRun: &dry})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.True(t, result.Created)
	assert.Empty(t, f.animes.created)
	assert.Empty(t, f.releases.created)
	assert.Empty(t, f.bindings.created)
	assert.Empty(t, f.audit.entries)
	assert.Zero(t, f.emitter.animeEvents)
}

func TestPublishAnime_DryRunDefaultFromSettings(t *testing.T) {
	f := newFixture()
	f.svc = NewService(
		f.stagedTitles, f.stagedEps, f.bindings, f.animes, f.episodes,
		f.releases, f.audit, &fakeSettings{settings: models.Settings{DryRunDefault: true}},
		passthroughTx{}, f.emitter,
		ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
	)
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")

	result, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: userActor()})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Empty(t, f.animes.created)
}

func TestPublishAnime_DryRunWinsOverStateCheck(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: "Other", Source: models.SourceParser, State: models.StatePending,
	}

	// published is unreachable for automated actors, but a dry run reports
	// the intended action instead of failing the state check.
	dry := true
	target := models.StatePublished
	result, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{
		Actor:       models.SystemActor(),
		DryRun:      &dry,
		TargetState: &target,
	})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Empty(t, f.animes.updated)
	assert.Empty(t, f.audit.entries)
}

func TestPublishAnime_AutomationCannotProducePublishedState(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: "Other", Source: models.SourceParser, State: models.StatePending,
	}

	target := models.StatePublished
	_, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{
		Actor:       models.SystemActor(),
		TargetState: &target,
	})
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestPublishAnime_UserPublishesPendingEntity(t *testing.T) {
	f := newFixture()
	staged := stagedTitle(1, "ext-1", "row-1")
	f.stagedTitles.byKey[key(1, "ext-1")] = staged
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: staged.Title, Description: staged.Description,
		Year: staged.Year, AiringStatus: string(staged.Status),
		Source: models.SourceParser, State: models.StatePending,
	}

	target := models.StatePublished
	result, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{
		Actor:       userActor(),
		TargetState: &target,
	})
	require.NoError(t, err)
	assert.False(t, result.Created)
	require.Len(t, f.animes.updated, 1)
	assert.Equal(t, models.StatePublished, f.animes.updated[0].State)
}

func TestPublishAnime_InvalidTransitionRejected(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: "Other", Source: models.SourceParser, State: models.StateArchived,
	}

	target := models.StatePublished
	_, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{
		Actor:       userActor(),
		TargetState: &target,
	})
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestPublishAnime_UpdateForcesParserProvenance(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	editor := "editor-9"
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: "Other", Source: models.SourceParser,
		State: models.StateDraft, UpdatedBy: &editor,
	}

	_, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: userActor()})
	require.NoError(t, err)

	// The canonical row always comes out as a parser write with no author,
	// whoever triggered the publish.
	require.Len(t, f.animes.updated, 1)
	assert.Equal(t, models.SourceParser, f.animes.updated[0].Source)
	assert.Nil(t, f.animes.updated[0].UpdatedBy)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.ActorSystem, f.audit.entries[0].ActorKind)
	assert.Nil(t, f.audit.entries[0].ActorID)
}

func TestPublishAnime_NoChangesSkipsAuditEntry(t *testing.T) {
	f := newFixture()
	staged := stagedTitle(1, "ext-1", "row-1")
	f.stagedTitles.byKey[key(1, "ext-1")] = staged
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: staged.Title, Description: staged.Description,
		Year: staged.Year, AiringStatus: string(staged.Status),
		Source: models.SourceParser, State: models.StateDraft,
	}

	result, err := f.svc.PublishAnime(context.Background(), 1, "ext-1", Options{Actor: userActor()})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Empty(t, f.animes.updated)
	assert.Empty(t, f.audit.entries)
}

func TestPublishEpisode_CreatesFromStagedData(t *testing.T) {
	f := newFixture()
	f.animes.byID["anime-1"] = &models.Anime{ID: "anime-1", Name: "Show", Source: models.SourceParser, State: models.StatePublished}
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.stagedEps.byTitle["row-1"] = map[int]*models.ExternalEpisode{
		5: {
			ID: "sep-1", ExternalAnimeID: "row-1", SourceID: 1, Number: 5,
			StreamURL:    "https://cdn.example/ep5",
			Translations: database.NewJSONB([]models.Translation{{Code: "en"}}),
			Qualities:    database.NewJSONB([]string{"1080p"}),
		},
	}

	result, err := f.svc.PublishEpisode(context.Background(), "anime-1", 5, Options{Actor: userActor()})
	require.NoError(t, err)

	assert.True(t, result.Created)
	require.Len(t, f.episodes.created, 1)
	created := f.episodes.created[0]
	assert.Equal(t, "https://cdn.example/ep5", created.StreamURL)
	assert.Equal(t, models.StatePending, created.State)
	assert.Equal(t, models.SourceParser, created.Source)
	assert.Nil(t, created.UpdatedBy)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "episode.create", f.audit.entries[0].Action)
	assert.Equal(t, models.ActorSystem, f.audit.entries[0].ActorKind)
	assert.Nil(t, f.audit.entries[0].ActorID)
	assert.Equal(t, 1, f.emitter.episodeEvents)
}

func TestPublishEpisode_ManualEpisodeBlocksAutomation(t *testing.T) {
	f := newFixture()
	f.animes.byID["anime-1"] = &models.Anime{ID: "anime-1", Source: models.SourceParser, State: models.StatePublished}
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.stagedEps.byTitle["row-1"] = map[int]*models.ExternalEpisode{
		5: {ID: "sep-1", ExternalAnimeID: "row-1", SourceID: 1, Number: 5, StreamURL: "https://new.example"},
	}
	f.episodes.byKey[episodeKey("anime-1", 5)] = &models.Episode{
		ID: "ep-1", AnimeID: "anime-1", Number: 5,
		StreamURL: "https://curated.example", Source: models.SourceManual, State: models.StatePending,
	}

	_, err := f.svc.PublishEpisode(context.Background(), "anime-1", 5, Options{Actor: models.SystemActor()})
	var manual *ManualOverrideError
	require.ErrorAs(t, err, &manual)
	assert.Empty(t, f.episodes.updated)
}

func TestPublishEpisode_MissingStagedEpisode(t *testing.T) {
	f := newFixture()
	f.animes.byID["anime-1"] = &models.Anime{ID: "anime-1", Source: models.SourceParser, State: models.StatePublished}

	_, err := f.svc.PublishEpisode(context.Background(), "anime-1", 9, Options{Actor: userActor()})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestPreviewDiff_ReportsChangesWithoutWriting(t *testing.T) {
	f := newFixture()
	staged := stagedTitle(1, "ext-1", "row-1")
	f.stagedTitles.byKey[key(1, "ext-1")] = staged
	f.bindings.byExternal["row-1"] = &models.Binding{ExternalAnimeID: "row-1", AnimeID: "anime-1"}
	f.animes.byID["anime-1"] = &models.Anime{
		ID: "anime-1", Name: "Old Name", Description: staged.Description,
		Year: staged.Year, AiringStatus: string(staged.Status),
		Source: models.SourceParser, State: models.StateDraft,
	}

	diff, err := f.svc.PreviewDiff(context.Background(), 1, "ext-1")
	require.NoError(t, err)

	assert.False(t, diff.Created)
	assert.Equal(t, "anime-1", diff.AnimeID)
	require.Len(t, diff.Changes, 1)
	assert.Equal(t, "name", diff.Changes[0].Field)
	assert.Equal(t, "Old Name", diff.Changes[0].Before)
	assert.Equal(t, "Sample Title", diff.Changes[0].After)

	assert.Empty(t, f.animes.updated)
	assert.Empty(t, f.audit.entries)
}

func TestPreviewDiff_UnboundTitleIsACreate(t *testing.T) {
	f := newFixture()
	f.stagedTitles.byKey[key(1, "ext-1")] = stagedTitle(1, "ext-1", "row-1")

	diff, err := f.svc.PreviewDiff(context.Background(), 1, "ext-1")
	require.NoError(t, err)
	assert.True(t, diff.Created)
	assert.NotEmpty(t, diff.Changes)
}
