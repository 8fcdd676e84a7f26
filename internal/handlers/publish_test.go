package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/services/publish"
	"github.com/Ramsey-B/fern/pkg/models"
)

type stubPublishService struct {
	result *models.PublishResult
	diff   *models.PublishDiff
	err    error

	gotActor models.Actor
}

func (s *stubPublishService) PublishAnime(_ context.Context, _ int, _ string, opts publish.Options) (*models.PublishResult, error) {
	s.gotActor = opts.Actor
	return s.result, s.err
}

func (s *stubPublishService) PublishEpisode(_ context.Context, _ string, _ int, opts publish.Options) (*models.PublishResult, error) {
	s.gotActor = opts.Actor
	return s.result, s.err
}

func (s *stubPublishService) PreviewDiff(context.Context, int, string) (*models.PublishDiff, error) {
	return s.diff, s.err
}

func publishCall(t *testing.T, svc *stubPublishService, body string, headers map[string]string) error {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/publish/animes", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewPublishHandler(svc, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	return h.PublishAnime(c)
}

func TestPublishAnime_MapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", &publish.NotFoundError{Entity: "staged title", ID: "1/x"}, http.StatusNotFound},
		{"manual override", &publish.ManualOverrideError{Entity: "anime", ID: "a"}, http.StatusForbidden},
		{"lock violation", &publish.LockViolationError{Entity: "anime", ID: "a", Fields: []string{"name"}}, http.StatusLocked},
		{"state", &publish.StateError{Entity: "anime", ID: "a", Reason: "bad transition"}, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPublishService{err: tc.err}
			err := publishCall(t, svc, `{"source_id": 1, "external_id": "x"}`, nil)

			require.Error(t, err)
			require.True(t, httperror.IsHTTPError(err))
			assert.Equal(t, tc.code, httperror.GetStatusCode(err))
		})
	}
}

func TestPublishAnime_RequiresSourceAndExternalID(t *testing.T) {
	svc := &stubPublishService{result: &models.PublishResult{}}
	err := publishCall(t, svc, `{"source_id": 1}`, nil)

	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestPublishAnime_ActorFromHeaders(t *testing.T) {
	svc := &stubPublishService{result: &models.PublishResult{ID: "a"}}
	err := publishCall(t, svc, `{"source_id": 1, "external_id": "x"}`, map[string]string{
		"X-Actor-ID":       "editor-1",
		"X-Override-Locks": "true",
	})

	require.NoError(t, err)
	require.NotNil(t, svc.gotActor.ID)
	assert.Equal(t, "editor-1", *svc.gotActor.ID)
	assert.Equal(t, models.ActorUser, svc.gotActor.Kind)
	assert.True(t, svc.gotActor.OverrideLocks)
}

func TestPublishAnime_AnonymousWithoutHeader(t *testing.T) {
	svc := &stubPublishService{result: &models.PublishResult{ID: "a"}}
	err := publishCall(t, svc, `{"source_id": 1, "external_id": "x"}`, nil)

	require.NoError(t, err)
	assert.Nil(t, svc.gotActor.ID)
	assert.Equal(t, models.ActorAnonymous, svc.gotActor.Kind)
}
