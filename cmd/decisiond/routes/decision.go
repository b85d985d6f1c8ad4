package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/atelierhq/decisions/cmd/decisiond/container"
	"github.com/atelierhq/decisions/cmd/decisiond/handlers"
)

// RegisterDecisionRoutes registers all decision-related routes
func RegisterDecisionRoutes(e *echo.Echo, c *container.Container) {
	dh := handlers.NewDecisionHandler(c)
	vh := handlers.NewVersionHandler(c)
	ah := handlers.NewAuditHandler(c)
	oh := handlers.NewObjectHandler(c)

	decisions := e.Group("/api/v1/decisions")
	{
		decisions.POST("", dh.CreateDecision)          // POST /api/v1/decisions
		decisions.GET("", dh.ListDecisions)            // GET /api/v1/decisions?project_id=...
		decisions.GET("/:id", dh.GetDecision)          // GET /api/v1/decisions/{id}
		decisions.POST("/:id/status", dh.ChangeStatus) // POST /api/v1/decisions/{id}/status

		decisions.POST("/:id/versions", vh.CreateVersion)            // POST /api/v1/decisions/{id}/versions
		decisions.GET("/:id/versions", vh.ListVersions)              // GET /api/v1/decisions/{id}/versions
		decisions.GET("/:id/versions/diff", vh.DiffVersions)         // GET /api/v1/decisions/{id}/versions/diff?from=...&to=...
		decisions.GET("/:id/versions/:version_id", vh.GetVersion)    // GET /api/v1/decisions/{id}/versions/{version_id}

		decisions.GET("/:id/audit", ah.ListAudit) // GET /api/v1/decisions/{id}/audit

		decisions.POST("/:id/objects", oh.AddObject)                  // POST /api/v1/decisions/{id}/objects
		decisions.PUT("/:id/objects/order", oh.ReorderObjects)        // PUT /api/v1/decisions/{id}/objects/order
		decisions.PUT("/:id/objects/:object_id", oh.UpdateObject)     // PUT /api/v1/decisions/{id}/objects/{object_id}
		decisions.DELETE("/:id/objects/:object_id", oh.RemoveObject)  // DELETE /api/v1/decisions/{id}/objects/{object_id}
	}
}
