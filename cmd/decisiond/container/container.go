package container

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/atelierhq/decisions/cmd/decisiond/repository"
	"github.com/atelierhq/decisions/cmd/decisiond/service"
	"github.com/atelierhq/decisions/common/bootstrap"
	rediscommon "github.com/atelierhq/decisions/common/redis"
	"github.com/atelierhq/decisions/common/telemetry"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client

	// Repositories
	DecisionRepo  *repository.DecisionRepository
	VersionRepo   *repository.VersionRepository
	AuditRepo     *repository.AuditRepository
	ShareLinkRepo *repository.ShareLinkRepository

	// Services
	Snapshots *service.SnapshotService
	Diffs     *service.DiffService
	Audit     *service.AuditService
	Links     *service.ShareLinkService
	Decisions *service.DecisionService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	// Redis backs the aggregate read cache; optional
	var redisClient *rediscommon.Client
	if cfg.Redis.Enabled {
		raw := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisClient = rediscommon.NewClient(raw, components.Logger)
	}

	// Metrics are always non-nil so services never check before Inc
	metrics := telemetry.NewMetrics()
	if components.Telemetry != nil {
		metrics = components.Telemetry.Metrics
	}

	// Initialize repositories
	decisionRepo := repository.NewDecisionRepository(components.DB)
	versionRepo := repository.NewVersionRepository(components.DB)
	auditRepo := repository.NewAuditRepository(components.DB)
	shareLinkRepo := repository.NewShareLinkRepository(components.DB)

	// Initialize services (bottom-up: dependencies first)
	snapshots := service.NewSnapshotService(versionRepo, metrics, components.Logger)
	diffs := service.NewDiffService(components.Cache, cfg.Cache.DefaultTTL, metrics, components.Logger)

	audit, err := service.NewAuditService(
		auditRepo,
		cfg.Audit.DefaultQueryLimit,
		cfg.Audit.MaxQueryLimit,
		metrics,
		components.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit service: %w", err)
	}

	links := service.NewShareLinkService(
		shareLinkRepo,
		cfg.ShareLink.BaseURL,
		cfg.ShareLink.DefaultTTL,
		metrics,
		components.Logger,
	)

	decisions := service.NewDecisionService(
		decisionRepo,
		snapshots,
		diffs,
		audit,
		links,
		redisClient,
		cfg.Redis.TTL,
		components.Logger,
	)

	return &Container{
		Components:    components,
		Redis:         redisClient,
		DecisionRepo:  decisionRepo,
		VersionRepo:   versionRepo,
		AuditRepo:     auditRepo,
		ShareLinkRepo: shareLinkRepo,
		Snapshots:     snapshots,
		Diffs:         diffs,
		Audit:         audit,
		Links:         links,
		Decisions:     decisions,
	}, nil
}

// Close releases container-owned resources (the bootstrap components have
// their own Shutdown)
func (c *Container) Close() error {
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}
