package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atelierhq/decisions/cmd/decisiond/container"
	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/cmd/decisiond/service"
	"github.com/atelierhq/decisions/common/bootstrap"
)

// VersionHandler handles version history and diff requests
type VersionHandler struct {
	components *bootstrap.Components
	decisions  *service.DecisionService
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(c *container.Container) *VersionHandler {
	return &VersionHandler{
		components: c.Components,
		decisions:  c.Decisions,
	}
}

// CreateVersion appends the next immutable version of a decision. The body
// may carry the snapshot content explicitly; with an empty snapshot the
// decision's live state is captured as-is.
// POST /api/v1/decisions/:id/versions
func (h *VersionHandler) CreateVersion(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		Snapshot *models.Snapshot `json:"snapshot"`
		Note     *string          `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	var snap models.Snapshot
	if req.Snapshot != nil {
		snap = *req.Snapshot
	} else {
		agg, err := h.decisions.GetCurrent(ctx, id)
		if err != nil {
			return writeError(c, err)
		}
		snap = agg.Snapshot()
	}

	v, err := h.decisions.CreateVersion(ctx, id, snap, req.Note, actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, v)
}

// ListVersions lists a decision's version history, oldest first
// GET /api/v1/decisions/:id/versions
func (h *VersionHandler) ListVersions(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	versions, err := h.decisions.ListVersions(ctx, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"versions": versions,
		"count":    len(versions),
	})
}

// GetVersion retrieves one version of a decision
// GET /api/v1/decisions/:id/versions/:version_id
func (h *VersionHandler) GetVersion(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	versionID, err := pathUUID(c, "version_id")
	if err != nil {
		return writeError(c, err)
	}

	v, err := h.decisions.GetVersion(ctx, id, versionID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, v)
}

// DiffVersions compares two versions field by field
// GET /api/v1/decisions/:id/versions/diff?from=...&to=...&format=merge-patch
func (h *VersionHandler) DiffVersions(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	fromID, err := queryUUID(c, "from")
	if err != nil {
		return writeError(c, err)
	}
	toID, err := queryUUID(c, "to")
	if err != nil {
		return writeError(c, err)
	}

	if c.QueryParam("format") == "merge-patch" {
		patch, err := h.decisions.DiffMergePatch(ctx, id, fromID, toID)
		if err != nil {
			return writeError(c, err)
		}
		return c.Blob(http.StatusOK, "application/merge-patch+json", patch)
	}

	diff, err := h.decisions.Diff(ctx, id, fromID, toID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, diff)
}
