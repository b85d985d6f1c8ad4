package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
	"github.com/atelierhq/decisions/common/logger"
	rediscommon "github.com/atelierhq/decisions/common/redis"
)

// DecisionStore persists decisions and their live objects. Every mutating
// method takes the audit entry it commits alongside the mutation.
type DecisionStore interface {
	Create(ctx context.Context, d *models.Decision, v1 *models.DecisionVersion, entry *models.AuditLogEntry) error
	GetByID(ctx context.Context, decisionID uuid.UUID) (*models.Decision, error)
	GetAggregate(ctx context.Context, decisionID uuid.UUID) (*models.Aggregate, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.Decision, error)
	UpdateStatus(ctx context.Context, decisionID uuid.UUID, from, to models.DecisionStatus, entry *models.AuditLogEntry) error
	AddObject(ctx context.Context, o *models.DecisionObject, entry *models.AuditLogEntry) error
	UpdateObject(ctx context.Context, o *models.DecisionObject, entry *models.AuditLogEntry) error
	RemoveObject(ctx context.Context, decisionID, objectID uuid.UUID, entry *models.AuditLogEntry) error
	ReorderObjects(ctx context.Context, decisionID uuid.UUID, orderedIDs []uuid.UUID, entry *models.AuditLogEntry) error
}

// CreateDecisionParams holds the initial content of a new decision
type CreateDecisionParams struct {
	ProjectID   uuid.UUID
	Title       string
	Description string
	Category    string
	OwnerID     *uuid.UUID
	DueDate     *time.Time
	Tags        []string
	Metadata    map[string]any
	Note        *string
}

// DecisionService is the aggregate façade: the only entry point the rest of
// the application uses. It composes the snapshot store, diff engine, audit
// recorder and share link issuer.
//
// Object mutations (add/update/remove/reorder) change the live decision and
// write an audit entry but do NOT create a version: version creation is an
// explicit, separate caller action. A caller that mutates objects but never
// calls CreateVersion will see live state diverge from the latest snapshot
// until the next explicit save.
type DecisionService struct {
	store     DecisionStore
	snapshots *SnapshotService
	diffs     *DiffService
	audit     *AuditService
	links     *ShareLinkService
	cache     *rediscommon.Client
	cacheTTL  time.Duration
	log       *logger.Logger
}

// NewDecisionService creates the façade. cache may be nil to disable the
// aggregate read cache.
func NewDecisionService(
	store DecisionStore,
	snapshots *SnapshotService,
	diffs *DiffService,
	audit *AuditService,
	links *ShareLinkService,
	cache *rediscommon.Client,
	cacheTTL time.Duration,
	log *logger.Logger,
) *DecisionService {
	return &DecisionService{
		store:     store,
		snapshots: snapshots,
		diffs:     diffs,
		audit:     audit,
		links:     links,
		cache:     cache,
		cacheTTL:  cacheTTL,
		log:       log,
	}
}

// CreateDecision creates a decision in draft status together with its
// implicit version 1
func (s *DecisionService) CreateDecision(ctx context.Context, params CreateDecisionParams, actor models.Actor) (*models.Aggregate, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, apperrors.InvalidArgument("title is required")
	}
	if params.ProjectID == uuid.Nil {
		return nil, apperrors.InvalidArgument("project id is required")
	}

	now := time.Now().UTC()
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	d := &models.Decision{
		ID:          uuid.New(),
		ProjectID:   params.ProjectID,
		Title:       params.Title,
		Description: params.Description,
		Category:    params.Category,
		OwnerID:     params.OwnerID,
		Status:      models.StatusDraft,
		DueDate:     params.DueDate,
		Tags:        tags,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	v1 := &models.DecisionVersion{
		ID:         uuid.New(),
		DecisionID: d.ID,
		Snapshot: models.Snapshot{
			Title:       params.Title,
			Description: params.Description,
			Category:    params.Category,
			DueDate:     params.DueDate,
			Tags:        tags,
			Metadata:    metadata,
			Objects:     []models.ObjectSnapshot{},
		},
		VersionNumber: 1,
		Note:          params.Note,
		AuthorID:      actor.ID,
		CreatedAt:     now,
	}
	if actor.Name != "" {
		name := actor.Name
		v1.AuthorName = &name
	}

	entry := models.NewAuditEntry(d.ID, models.ActionCreated, map[string]any{
		"title": params.Title,
	}, actor, nil)

	if err := s.store.Create(ctx, d, v1, entry); err != nil {
		return nil, err
	}

	s.log.Info("decision created", "decision_id", d.ID, "project_id", d.ProjectID)

	return &models.Aggregate{
		Decision:       *d,
		CurrentVersion: v1,
		Objects:        []*models.DecisionObject{},
	}, nil
}

// GetCurrent retrieves a decision with its current version and live objects
func (s *DecisionService) GetCurrent(ctx context.Context, decisionID uuid.UUID) (*models.Aggregate, error) {
	key := aggregateCacheKey(decisionID)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			agg := &models.Aggregate{}
			if err := json.Unmarshal(data, agg); err == nil {
				return agg, nil
			}
		}
	}

	agg, err := s.store.GetAggregate(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(agg); err == nil {
			_ = s.cache.SetWithExpiry(ctx, key, data, s.cacheTTL)
		}
	}

	return agg, nil
}

// ListDecisions retrieves a project's decisions, most recently updated first
func (s *DecisionService) ListDecisions(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListByProject(ctx, projectID, limit)
}

// CreateVersion snapshots new content as the decision's next version
func (s *DecisionService) CreateVersion(ctx context.Context, decisionID uuid.UUID, snap models.Snapshot, note *string, actor models.Actor) (*models.DecisionVersion, error) {
	v, err := s.snapshots.CreateVersion(ctx, decisionID, snap, note, actor)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, decisionID)
	return v, nil
}

// GetVersion retrieves one version of a decision
func (s *DecisionService) GetVersion(ctx context.Context, decisionID, versionID uuid.UUID) (*models.DecisionVersion, error) {
	return s.snapshots.GetVersion(ctx, decisionID, versionID)
}

// ListVersions retrieves all versions of a decision, oldest first
func (s *DecisionService) ListVersions(ctx context.Context, decisionID uuid.UUID) ([]*models.DecisionVersion, error) {
	return s.snapshots.ListVersions(ctx, decisionID)
}

// Diff compares two versions of a decision field by field
func (s *DecisionService) Diff(ctx context.Context, decisionID, fromID, toID uuid.UUID) (*models.VersionDiff, error) {
	if fromID == toID {
		return nil, apperrors.InvalidArgument("cannot diff version %s against itself", fromID)
	}

	from, err := s.snapshots.GetVersion(ctx, decisionID, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.snapshots.GetVersion(ctx, decisionID, toID)
	if err != nil {
		return nil, err
	}

	return s.diffs.Diff(ctx, from, to)
}

// DiffMergePatch renders the same comparison as an RFC 7386 merge patch
func (s *DecisionService) DiffMergePatch(ctx context.Context, decisionID, fromID, toID uuid.UUID) ([]byte, error) {
	from, err := s.snapshots.GetVersion(ctx, decisionID, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.snapshots.GetVersion(ctx, decisionID, toID)
	if err != nil {
		return nil, err
	}

	return s.diffs.MergePatch(from, to)
}

// ListAudit queries the decision's audit log, newest first
func (s *DecisionService) ListAudit(ctx context.Context, decisionID uuid.UUID, params AuditQueryParams) ([]*models.AuditLogEntry, error) {
	return s.audit.Query(ctx, decisionID, params)
}

// ReissueShare issues a new share link, deactivating any prior active link
// of the same scope
func (s *DecisionService) ReissueShare(ctx context.Context, decisionID uuid.UUID, params IssueParams, actor models.Actor) (*models.ShareLink, error) {
	return s.links.Issue(ctx, decisionID, params, actor)
}

// RevokeShare deactivates a share link of the decision, idempotently
func (s *DecisionService) RevokeShare(ctx context.Context, decisionID, linkID uuid.UUID, actor models.Actor) error {
	return s.links.Revoke(ctx, decisionID, linkID, actor)
}

// ListShares retrieves all of a decision's share links, newest first
func (s *DecisionService) ListShares(ctx context.Context, decisionID uuid.UUID) ([]*models.ShareLink, error) {
	if _, err := s.store.GetByID(ctx, decisionID); err != nil {
		return nil, err
	}
	return s.links.ListByDecision(ctx, decisionID)
}

// ResolveShareToken returns the decision aggregate a valid share token
// grants access to, together with the link describing the granted scope
func (s *DecisionService) ResolveShareToken(ctx context.Context, token string) (*models.Aggregate, *models.ShareLink, error) {
	link, err := s.links.ResolveToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	agg, err := s.GetCurrent(ctx, link.DecisionID)
	if err != nil {
		return nil, nil, err
	}

	return agg, link, nil
}

// ChangeStatus transitions the decision's status through the state machine:
// draft -> pending -> approved/rejected, back to draft via explicit revoke,
// archived from anywhere and terminal for editing.
func (s *DecisionService) ChangeStatus(ctx context.Context, decisionID uuid.UUID, next models.DecisionStatus, actor models.Actor) (*models.Decision, error) {
	if !next.Valid() {
		return nil, apperrors.InvalidArgument("unknown status %q", next)
	}

	d, err := s.store.GetByID(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	if !d.Status.CanTransitionTo(next) {
		return nil, apperrors.InvalidStateTransition("%s -> %s", d.Status, next)
	}

	entry := models.NewAuditEntry(decisionID, models.ActionStatusChanged, map[string]any{
		"from": string(d.Status),
		"to":   string(next),
	}, actor, nil)

	if err := s.store.UpdateStatus(ctx, decisionID, d.Status, next, entry); err != nil {
		return nil, err
	}

	d.Status = next
	s.invalidate(ctx, decisionID)

	s.log.Info("decision status changed", "decision_id", decisionID, "status", next)

	return d, nil
}

// ObjectParams holds the mutable content of a decision object
type ObjectParams struct {
	Name    string
	Status  string
	Options []models.OptionSnapshot
}

// AddObject appends a new object to the decision's live object list
func (s *DecisionService) AddObject(ctx context.Context, decisionID uuid.UUID, params ObjectParams, actor models.Actor) (*models.DecisionObject, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, apperrors.InvalidArgument("object name is required")
	}

	now := time.Now().UTC()
	o := &models.DecisionObject{
		ID:         uuid.New(),
		DecisionID: decisionID,
		Name:       params.Name,
		Status:     params.Status,
		Options:    params.Options,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if o.Status == "" {
		o.Status = "open"
	}
	if o.Options == nil {
		o.Options = []models.OptionSnapshot{}
	}

	entry := models.NewAuditEntry(decisionID, models.ActionObjectAdded, map[string]any{
		"object_id": o.ID.String(),
		"name":      o.Name,
	}, actor, nil)

	if err := s.store.AddObject(ctx, o, entry); err != nil {
		return nil, err
	}

	s.invalidate(ctx, decisionID)
	return o, nil
}

// UpdateObject replaces an object's name, status and options in place
func (s *DecisionService) UpdateObject(ctx context.Context, decisionID, objectID uuid.UUID, params ObjectParams, actor models.Actor) (*models.DecisionObject, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, apperrors.InvalidArgument("object name is required")
	}

	o := &models.DecisionObject{
		ID:         objectID,
		DecisionID: decisionID,
		Name:       params.Name,
		Status:     params.Status,
		Options:    params.Options,
		UpdatedAt:  time.Now().UTC(),
	}
	if o.Options == nil {
		o.Options = []models.OptionSnapshot{}
	}

	entry := models.NewAuditEntry(decisionID, models.ActionUpdated, map[string]any{
		"object_id": objectID.String(),
		"fields":    []string{"name", "status", "options"},
	}, actor, nil)

	if err := s.store.UpdateObject(ctx, o, entry); err != nil {
		return nil, err
	}

	s.invalidate(ctx, decisionID)
	return o, nil
}

// RemoveObject deletes an object from the live list, keeping order_index
// dense
func (s *DecisionService) RemoveObject(ctx context.Context, decisionID, objectID uuid.UUID, actor models.Actor) error {
	entry := models.NewAuditEntry(decisionID, models.ActionObjectRemoved, map[string]any{
		"object_id": objectID.String(),
	}, actor, nil)

	if err := s.store.RemoveObject(ctx, decisionID, objectID, entry); err != nil {
		return err
	}

	s.invalidate(ctx, decisionID)
	return nil
}

// ReorderObjects rewrites the live object order following orderedIDs
func (s *DecisionService) ReorderObjects(ctx context.Context, decisionID uuid.UUID, orderedIDs []uuid.UUID, actor models.Actor) error {
	ids := make([]string, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		ids = append(ids, id.String())
	}

	entry := models.NewAuditEntry(decisionID, models.ActionObjectsReordered, map[string]any{
		"order": ids,
	}, actor, nil)

	if err := s.store.ReorderObjects(ctx, decisionID, orderedIDs, entry); err != nil {
		return err
	}

	s.invalidate(ctx, decisionID)
	return nil
}

func (s *DecisionService) invalidate(ctx context.Context, decisionID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, aggregateCacheKey(decisionID)); err != nil {
		s.log.Warn("cache invalidation failed", "decision_id", decisionID, "error", err)
	}
}

func aggregateCacheKey(decisionID uuid.UUID) string {
	return "decision:" + decisionID.String()
}
