package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/atelierhq/decisions/cmd/decisiond/container"
	"github.com/atelierhq/decisions/cmd/decisiond/handlers"
)

// RegisterShareLinkRoutes registers share link management routes and the
// public token resolution endpoint
func RegisterShareLinkRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewShareLinkHandler(c)

	decisions := e.Group("/api/v1/decisions")
	{
		decisions.POST("/:id/share-links", h.ReissueShare)            // POST /api/v1/decisions/{id}/share-links
		decisions.GET("/:id/share-links", h.ListShares)               // GET /api/v1/decisions/{id}/share-links
		decisions.DELETE("/:id/share-links/:link_id", h.RevokeShare)  // DELETE /api/v1/decisions/{id}/share-links/{link_id}
	}

	// Public: no actor headers expected, token is the only credential
	e.GET("/share/:token", h.ResolveShare)
}
