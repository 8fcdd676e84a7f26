// Package handlers exposes the admin HTTP API: sync triggers, the publish
// gate, settings, job history, the audit trail, and edit locks.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/services/publish"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ParseIntParam parses an integer path parameter
func ParseIntParam(c echo.Context, param string) (int, error) {
	raw := c.Param(param)
	if raw == "" {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be an integer", param)
	}
	return value, nil
}

// parseIntQuery parses a required integer query parameter.
func parseIntQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "missing "+name)
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be an integer", name)
	}
	return value, nil
}

// ParseBoolQuery parses a boolean query parameter, returning def when absent.
func ParseBoolQuery(c echo.Context, name string, def bool) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a boolean", name)
	}
	return value, nil
}

// ParseLimitQuery parses a limit query parameter with a default and ceiling.
func ParseLimitQuery(c echo.Context, def, max int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "invalid limit: must be a positive integer")
	}
	if value > max {
		value = max
	}
	return value, nil
}

// ActorFromRequest builds the compliance actor for a request. Requests
// without an actor header are anonymous and get no more privilege than
// automated writers.
func ActorFromRequest(c echo.Context) models.Actor {
	actorID := c.Request().Header.Get("X-Actor-ID")
	if actorID == "" {
		return models.Actor{Kind: models.ActorAnonymous}
	}

	override := c.Request().Header.Get("X-Override-Locks") == "true"
	return models.Actor{ID: &actorID, Kind: models.ActorUser, OverrideLocks: override}
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// NoContentResponse returns a 204 No Content
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// mapPublishError translates publish gate errors to their HTTP status.
func mapPublishError(err error) error {
	if err == nil {
		return nil
	}

	var notFound *publish.NotFoundError
	if errors.As(err, &notFound) {
		return httperror.NewHTTPError(http.StatusNotFound, notFound.Error())
	}

	var manual *publish.ManualOverrideError
	if errors.As(err, &manual) {
		return httperror.NewHTTPError(http.StatusForbidden, manual.Error())
	}

	var lock *publish.LockViolationError
	if errors.As(err, &lock) {
		return httperror.NewHTTPError(http.StatusLocked, lock.Error())
	}

	var state *publish.StateError
	if errors.As(err, &state) {
		return httperror.NewHTTPError(http.StatusConflict, state.Error())
	}

	return err
}
