package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/atelierhq/decisions/cmd/decisiond/container"
	"github.com/atelierhq/decisions/cmd/decisiond/service"
	"github.com/atelierhq/decisions/common/bootstrap"
)

// AuditHandler serves the audit trail
type AuditHandler struct {
	components *bootstrap.Components
	decisions  *service.DecisionService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(c *container.Container) *AuditHandler {
	return &AuditHandler{
		components: c.Components,
		decisions:  c.Decisions,
	}
}

// ListAudit retrieves a decision's audit trail, newest first. The filter
// parameter takes a CEL expression over action, user_id, user_name,
// version_id and details, e.g. filter=action == 'status_changed'.
// GET /api/v1/decisions/:id/audit?limit=50&filter=...
func (h *AuditHandler) ListAudit(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	params := service.AuditQueryParams{
		Filter: c.QueryParam("filter"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		params.Limit, _ = strconv.Atoi(raw)
	}

	entries, err := h.decisions.ListAudit(ctx, id, params)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
