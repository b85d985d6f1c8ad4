package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
)

// writeError maps the service error taxonomy onto HTTP statuses. The error
// message is safe to return: services never wrap internals into these
// sentinels.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidStateTransition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}

	return c.JSON(status, map[string]interface{}{
		"error": msg,
	})
}

// actorFrom extracts the acting user from the X-Actor-Id and X-Actor-Name
// headers. Both are optional; authentication lives in front of this service.
func actorFrom(c echo.Context) models.Actor {
	actor := models.Actor{
		Name: c.Request().Header.Get("X-Actor-Name"),
	}

	if raw := c.Request().Header.Get("X-Actor-Id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			actor.ID = &id
		}
	}

	return actor
}

// pathUUID parses a :param path segment as a UUID
func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.InvalidArgument("invalid %s", name)
	}
	return id, nil
}

// queryUUID parses a required query parameter as a UUID
func queryUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.QueryParam(name))
	if err != nil {
		return uuid.Nil, apperrors.InvalidArgument("%s query parameter must be a valid uuid", name)
	}
	return id, nil
}
