package bootstrap

import (
	"context"

	"github.com/atelierhq/decisions/common/cache"
	"github.com/atelierhq/decisions/common/config"
	"github.com/atelierhq/decisions/common/db"
	"github.com/atelierhq/decisions/common/logger"
	"github.com/atelierhq/decisions/common/telemetry"
)

// Components holds all initialized shared infrastructure
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Cache     cache.Cache
	Telemetry *telemetry.Telemetry

	cleanupFuncs []func() error
}

// addCleanup registers a cleanup function, run in reverse order on shutdown
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown releases all resources in reverse initialization order
func (c *Components) Shutdown(ctx context.Context) {
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			if c.Logger != nil {
				c.Logger.Warn("cleanup failed", "error", err)
			}
		}
	}
	c.cleanupFuncs = nil
}
