package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
	"github.com/atelierhq/decisions/common/logger"
	"github.com/atelierhq/decisions/common/telemetry"
)

// VersionStore persists immutable decision versions. The repository
// implementation keeps the version insert, the current_version_id update and
// the audit entry in one transaction.
type VersionStore interface {
	Insert(ctx context.Context, v *models.DecisionVersion, entry *models.AuditLogEntry) error
	GetByID(ctx context.Context, decisionID, versionID uuid.UUID) (*models.DecisionVersion, error)
	ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]*models.DecisionVersion, error)
}

// SnapshotService is the snapshot store: it appends immutable, numbered
// versions and reads them back
type SnapshotService struct {
	store   VersionStore
	metrics *telemetry.Metrics
	log     *logger.Logger
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(store VersionStore, metrics *telemetry.Metrics, log *logger.Logger) *SnapshotService {
	return &SnapshotService{
		store:   store,
		metrics: metrics,
		log:     log,
	}
}

// CreateVersion appends a new version for decisionID with the next version
// number and returns it. The owning decision's current_version_id and
// updated_at move with it atomically.
func (s *SnapshotService) CreateVersion(ctx context.Context, decisionID uuid.UUID, snap models.Snapshot, note *string, actor models.Actor) (*models.DecisionVersion, error) {
	if strings.TrimSpace(snap.Title) == "" {
		return nil, apperrors.InvalidArgument("snapshot title is required")
	}

	v := &models.DecisionVersion{
		ID:         uuid.New(),
		DecisionID: decisionID,
		Snapshot:   snap,
		Note:       note,
		AuthorID:   actor.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if actor.Name != "" {
		name := actor.Name
		v.AuthorName = &name
	}

	details := map[string]any{}
	if note != nil {
		details["note"] = *note
	}
	entry := models.NewAuditEntry(decisionID, models.ActionVersionCreated, details, actor, nil)

	if err := s.store.Insert(ctx, v, entry); err != nil {
		return nil, err
	}

	s.metrics.VersionsCreated.Inc()
	s.metrics.AuditEntriesWritten.Inc()

	s.log.WithDecisionID(decisionID.String()).WithVersion(v.VersionNumber).Info(
		"version created", "version_id", v.ID)

	return v, nil
}

// GetVersion retrieves one version, verifying it belongs to decisionID
func (s *SnapshotService) GetVersion(ctx context.Context, decisionID, versionID uuid.UUID) (*models.DecisionVersion, error) {
	return s.store.GetByID(ctx, decisionID, versionID)
}

// ListVersions retrieves all versions of a decision, version_number ascending
func (s *SnapshotService) ListVersions(ctx context.Context, decisionID uuid.UUID) ([]*models.DecisionVersion, error) {
	return s.store.ListByDecision(ctx, decisionID)
}
