package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/atelierhq/decisions/cmd/decisiond/container"
	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/cmd/decisiond/service"
	"github.com/atelierhq/decisions/common/bootstrap"
)

// DecisionHandler handles decision lifecycle requests
type DecisionHandler struct {
	components *bootstrap.Components
	decisions  *service.DecisionService
}

// NewDecisionHandler creates a new decision handler
func NewDecisionHandler(c *container.Container) *DecisionHandler {
	return &DecisionHandler{
		components: c.Components,
		decisions:  c.Decisions,
	}
}

// CreateDecision creates a decision in draft status with its implicit
// version 1
// POST /api/v1/decisions
func (h *DecisionHandler) CreateDecision(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		ProjectID   string                 `json:"project_id"`
		Title       string                 `json:"title"`
		Description string                 `json:"description"`
		Category    string                 `json:"category"`
		OwnerID     *string                `json:"owner_id"`
		DueDate     *time.Time             `json:"due_date"`
		Tags        []string               `json:"tags"`
		Metadata    map[string]interface{} `json:"metadata"`
		Note        *string                `json:"note"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "project_id must be a valid uuid",
		})
	}

	params := service.CreateDecisionParams{
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		DueDate:     req.DueDate,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
		Note:        req.Note,
	}
	if req.OwnerID != nil {
		ownerID, err := uuid.Parse(*req.OwnerID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "owner_id must be a valid uuid",
			})
		}
		params.OwnerID = &ownerID
	}

	agg, err := h.decisions.CreateDecision(ctx, params, actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, agg)
}

// GetDecision retrieves a decision with its current version and live objects
// GET /api/v1/decisions/:id
func (h *DecisionHandler) GetDecision(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	agg, err := h.decisions.GetCurrent(ctx, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, agg)
}

// ListDecisions lists a project's decisions
// GET /api/v1/decisions?project_id=...&limit=50
func (h *DecisionHandler) ListDecisions(c echo.Context) error {
	ctx := c.Request().Context()

	projectID, err := uuid.Parse(c.QueryParam("project_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "project_id query parameter is required",
		})
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	decisions, err := h.decisions.ListDecisions(ctx, projectID, limit)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// ChangeStatus moves a decision through its approval state machine
// POST /api/v1/decisions/:id/status
func (h *DecisionHandler) ChangeStatus(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	d, err := h.decisions.ChangeStatus(ctx, id, models.DecisionStatus(req.Status), actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, d)
}
