package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/atelierhq/decisions/cmd/decisiond/container"
	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/cmd/decisiond/service"
	"github.com/atelierhq/decisions/common/bootstrap"
)

// ObjectHandler handles live decision object requests. Object mutations are
// audited but never create versions on their own.
type ObjectHandler struct {
	components *bootstrap.Components
	decisions  *service.DecisionService
}

// NewObjectHandler creates a new object handler
func NewObjectHandler(c *container.Container) *ObjectHandler {
	return &ObjectHandler{
		components: c.Components,
		decisions:  c.Decisions,
	}
}

// AddObject appends an object to the decision's live list
// POST /api/v1/decisions/:id/objects
func (h *ObjectHandler) AddObject(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		Name    string                  `json:"name"`
		Status  string                  `json:"status"`
		Options []models.OptionSnapshot `json:"options"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	obj, err := h.decisions.AddObject(ctx, id, service.ObjectParams{
		Name:    req.Name,
		Status:  req.Status,
		Options: req.Options,
	}, actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, obj)
}

// UpdateObject replaces an object's content in place
// PUT /api/v1/decisions/:id/objects/:object_id
func (h *ObjectHandler) UpdateObject(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	objectID, err := pathUUID(c, "object_id")
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		Name    string                  `json:"name"`
		Status  string                  `json:"status"`
		Options []models.OptionSnapshot `json:"options"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	obj, err := h.decisions.UpdateObject(ctx, id, objectID, service.ObjectParams{
		Name:    req.Name,
		Status:  req.Status,
		Options: req.Options,
	}, actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, obj)
}

// RemoveObject deletes an object from the live list
// DELETE /api/v1/decisions/:id/objects/:object_id
func (h *ObjectHandler) RemoveObject(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	objectID, err := pathUUID(c, "object_id")
	if err != nil {
		return writeError(c, err)
	}

	if err := h.decisions.RemoveObject(ctx, id, objectID, actorFrom(c)); err != nil {
		return writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ReorderObjects rewrites the live object order from an explicit id list.
// The list must be a permutation of the decision's current objects.
// PUT /api/v1/decisions/:id/objects/order
func (h *ObjectHandler) ReorderObjects(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		ObjectIDs []string `json:"object_ids"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	ids := make([]uuid.UUID, 0, len(req.ObjectIDs))
	for _, raw := range req.ObjectIDs {
		oid, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "object_ids must be valid uuids",
			})
		}
		ids = append(ids, oid)
	}

	if err := h.decisions.ReorderObjects(ctx, id, ids, actorFrom(c)); err != nil {
		return writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}
