package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/atelierhq/decisions/cmd/decisiond/container"
	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/cmd/decisiond/service"
	"github.com/atelierhq/decisions/common/bootstrap"
)

// ShareLinkHandler handles share link issuance, revocation and the public
// token resolution endpoint
type ShareLinkHandler struct {
	components *bootstrap.Components
	decisions  *service.DecisionService
}

// NewShareLinkHandler creates a new share link handler
func NewShareLinkHandler(c *container.Container) *ShareLinkHandler {
	return &ShareLinkHandler{
		components: c.Components,
		decisions:  c.Decisions,
	}
}

// ReissueShare issues a new share link for the requested scope, deactivating
// any prior active link of that scope
// POST /api/v1/decisions/:id/share-links
func (h *ShareLinkHandler) ReissueShare(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		AccessScope string     `json:"access_scope"`
		ExpiresAt   *time.Time `json:"expires_at"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	link, err := h.decisions.ReissueShare(ctx, id, service.IssueParams{
		Scope:     models.AccessScope(req.AccessScope),
		ExpiresAt: req.ExpiresAt,
	}, actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"share_link": link,
		"url":        link.URL,
	})
}

// ListShares lists all of a decision's share links, active or not
// GET /api/v1/decisions/:id/share-links
func (h *ShareLinkHandler) ListShares(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	links, err := h.decisions.ListShares(ctx, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"share_links": links,
		"count":       len(links),
	})
}

// RevokeShare deactivates a share link. Revoking an already-revoked link is
// a no-op success.
// DELETE /api/v1/decisions/:id/share-links/:link_id
func (h *ShareLinkHandler) RevokeShare(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathUUID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	linkID, err := pathUUID(c, "link_id")
	if err != nil {
		return writeError(c, err)
	}

	if err := h.decisions.RevokeShare(ctx, id, linkID, actorFrom(c)); err != nil {
		return writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ResolveShare serves the decision aggregate behind a share token. Unknown,
// revoked and expired tokens all answer 404.
// GET /share/:token
func (h *ShareLinkHandler) ResolveShare(c echo.Context) error {
	ctx := c.Request().Context()
	token := c.Param("token")

	agg, link, err := h.decisions.ResolveShareToken(ctx, token)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"decision":     agg,
		"access_scope": link.AccessScope,
		"expires_at":   link.ExpiresAt,
	})
}
