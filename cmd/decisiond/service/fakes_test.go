package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
	"github.com/atelierhq/decisions/common/logger"
	"github.com/atelierhq/decisions/common/telemetry"
)

// fakeCore is the in-memory state behind the fake stores, mirroring the
// Postgres repositories' transactional semantics: one seq counter, audit
// entries appended atomically with the mutation they describe. The fake
// stores share a core the way the real repositories share a database.
type fakeCore struct {
	mu        sync.Mutex
	seq       int64
	decisions map[uuid.UUID]*models.Decision
	versions  map[uuid.UUID][]*models.DecisionVersion
	objects   map[uuid.UUID][]*models.DecisionObject
	links     map[uuid.UUID]*models.ShareLink
	audit     []*models.AuditLogEntry
}

func newFakeCore() *fakeCore {
	return &fakeCore{
		decisions: make(map[uuid.UUID]*models.Decision),
		versions:  make(map[uuid.UUID][]*models.DecisionVersion),
		objects:   make(map[uuid.UUID][]*models.DecisionObject),
		links:     make(map[uuid.UUID]*models.ShareLink),
	}
}

// appendAudit assigns the next seq. Callers hold mu.
func (f *fakeCore) appendAudit(e *models.AuditLogEntry) {
	f.seq++
	e.Seq = f.seq
	f.audit = append(f.audit, e)
}

// entriesFor returns a decision's audit entries, newest first. Callers hold mu.
func (f *fakeCore) entriesFor(decisionID uuid.UUID, limit int) []*models.AuditLogEntry {
	out := []*models.AuditLogEntry{}
	for i := len(f.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if f.audit[i].DecisionID == decisionID {
			ec := *f.audit[i]
			out = append(out, &ec)
		}
	}
	return out
}

// fakeDecisionStore implements DecisionStore
type fakeDecisionStore struct{ core *fakeCore }

func (f *fakeDecisionStore) Create(ctx context.Context, d *models.Decision, v1 *models.DecisionVersion, entry *models.AuditLogEntry) error {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	dc := *d
	vc := *v1
	dc.CurrentVersionID = &vc.ID
	f.core.decisions[dc.ID] = &dc
	f.core.versions[dc.ID] = []*models.DecisionVersion{&vc}
	d.CurrentVersionID = &vc.ID

	entry.VersionID = &vc.ID
	f.core.appendAudit(entry)
	return nil
}

func (f *fakeDecisionStore) GetByID(ctx context.Context, decisionID uuid.UUID) (*models.Decision, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	d, ok := f.core.decisions[decisionID]
	if !ok {
		return nil, apperrors.NotFound("decision %s", decisionID)
	}
	dc := *d
	return &dc, nil
}

func (f *fakeDecisionStore) GetAggregate(ctx context.Context, decisionID uuid.UUID) (*models.Aggregate, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	d, ok := f.core.decisions[decisionID]
	if !ok {
		return nil, apperrors.NotFound("decision %s", decisionID)
	}

	agg := &models.Aggregate{Decision: *d, Objects: []*models.DecisionObject{}}
	if d.CurrentVersionID != nil {
		for _, v := range f.core.versions[decisionID] {
			if v.ID == *d.CurrentVersionID {
				vc := *v
				agg.CurrentVersion = &vc
			}
		}
	}
	for _, o := range f.core.objects[decisionID] {
		oc := *o
		agg.Objects = append(agg.Objects, &oc)
	}
	return agg, nil
}

func (f *fakeDecisionStore) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.Decision, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	out := []*models.Decision{}
	for _, d := range f.core.decisions {
		if d.ProjectID == projectID && len(out) < limit {
			dc := *d
			out = append(out, &dc)
		}
	}
	return out, nil
}

func (f *fakeDecisionStore) UpdateStatus(ctx context.Context, decisionID uuid.UUID, from, to models.DecisionStatus, entry *models.AuditLogEntry) error {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	d, ok := f.core.decisions[decisionID]
	if !ok {
		return apperrors.NotFound("decision %s", decisionID)
	}
	if d.Status != from {
		return apperrors.Conflict("decision %s status changed concurrently", decisionID)
	}
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	f.core.appendAudit(entry)
	return nil
}

func (f *fakeDecisionStore) AddObject(ctx context.Context, o *models.DecisionObject, entry *models.AuditLogEntry) error {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	d, ok := f.core.decisions[o.DecisionID]
	if !ok {
		return apperrors.NotFound("decision %s", o.DecisionID)
	}
	if !d.Status.Editable() {
		return apperrors.InvalidStateTransition("decision %s is archived", o.DecisionID)
	}

	o.OrderIndex = len(f.core.objects[o.DecisionID])
	oc := *o
	f.core.objects[o.DecisionID] = append(f.core.objects[o.DecisionID], &oc)
	f.core.appendAudit(entry)
	return nil
}

func (f *fakeDecisionStore) UpdateObject(ctx context.Context, o *models.DecisionObject, entry *models.AuditLogEntry) error {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	for _, existing := range f.core.objects[o.DecisionID] {
		if existing.ID == o.ID {
			existing.Name = o.Name
			existing.Status = o.Status
			existing.Options = o.Options
			existing.UpdatedAt = o.UpdatedAt
			o.OrderIndex = existing.OrderIndex
			f.core.appendAudit(entry)
			return nil
		}
	}
	return apperrors.NotFound("object %s", o.ID)
}

func (f *fakeDecisionStore) RemoveObject(ctx context.Context, decisionID, objectID uuid.UUID, entry *models.AuditLogEntry) error {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	objs := f.core.objects[decisionID]
	for i, o := range objs {
		if o.ID == objectID {
			f.core.objects[decisionID] = append(objs[:i], objs[i+1:]...)
			for idx, rest := range f.core.objects[decisionID] {
				rest.OrderIndex = idx
			}
			f.core.appendAudit(entry)
			return nil
		}
	}
	return apperrors.NotFound("object %s", objectID)
}

func (f *fakeDecisionStore) ReorderObjects(ctx context.Context, decisionID uuid.UUID, orderedIDs []uuid.UUID, entry *models.AuditLogEntry) error {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	objs := f.core.objects[decisionID]
	if len(orderedIDs) != len(objs) {
		return apperrors.InvalidArgument("order must list all %d objects", len(objs))
	}

	byID := make(map[uuid.UUID]*models.DecisionObject, len(objs))
	for _, o := range objs {
		byID[o.ID] = o
	}

	reordered := make([]*models.DecisionObject, 0, len(objs))
	for idx, id := range orderedIDs {
		o, ok := byID[id]
		if !ok {
			return apperrors.InvalidArgument("unknown object %s in order", id)
		}
		o.OrderIndex = idx
		reordered = append(reordered, o)
		delete(byID, id)
	}

	f.core.objects[decisionID] = reordered
	f.core.appendAudit(entry)
	return nil
}

// fakeVersionStore implements VersionStore
type fakeVersionStore struct{ core *fakeCore }

func (f *fakeVersionStore) Insert(ctx context.Context, v *models.DecisionVersion, entry *models.AuditLogEntry) error {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	d, ok := f.core.decisions[v.DecisionID]
	if !ok {
		return apperrors.NotFound("decision %s", v.DecisionID)
	}
	if !d.Status.Editable() {
		return apperrors.InvalidStateTransition("decision %s is archived", v.DecisionID)
	}

	v.VersionNumber = len(f.core.versions[v.DecisionID]) + 1
	vc := *v
	f.core.versions[v.DecisionID] = append(f.core.versions[v.DecisionID], &vc)

	d.CurrentVersionID = &vc.ID
	d.Title = vc.Snapshot.Title
	d.Description = vc.Snapshot.Description
	d.Category = vc.Snapshot.Category
	d.UpdatedAt = time.Now().UTC()

	entry.VersionID = &vc.ID
	entry.Details["version_number"] = vc.VersionNumber
	f.core.appendAudit(entry)
	return nil
}

func (f *fakeVersionStore) GetByID(ctx context.Context, decisionID, versionID uuid.UUID) (*models.DecisionVersion, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	for _, v := range f.core.versions[decisionID] {
		if v.ID == versionID {
			vc := *v
			return &vc, nil
		}
	}
	return nil, apperrors.NotFound("version %s", versionID)
}

func (f *fakeVersionStore) ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]*models.DecisionVersion, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	out := make([]*models.DecisionVersion, 0, len(f.core.versions[decisionID]))
	for _, v := range f.core.versions[decisionID] {
		vc := *v
		out = append(out, &vc)
	}
	return out, nil
}

// fakeAuditStore implements AuditStore
type fakeAuditStore struct{ core *fakeCore }

func (f *fakeAuditStore) Insert(ctx context.Context, e *models.AuditLogEntry) error {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	if _, ok := f.core.decisions[e.DecisionID]; !ok {
		return apperrors.NotFound("decision %s", e.DecisionID)
	}
	f.core.appendAudit(e)
	return nil
}

func (f *fakeAuditStore) List(ctx context.Context, decisionID uuid.UUID, limit int) ([]*models.AuditLogEntry, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()
	return f.core.entriesFor(decisionID, limit), nil
}

func (f *fakeAuditStore) DecisionExists(ctx context.Context, decisionID uuid.UUID) (bool, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	_, ok := f.core.decisions[decisionID]
	return ok, nil
}

// fakeShareLinkStore implements ShareLinkStore
type fakeShareLinkStore struct{ core *fakeCore }

func (f *fakeShareLinkStore) IssueExclusive(ctx context.Context, link *models.ShareLink, issued *models.AuditLogEntry, actor models.Actor) ([]uuid.UUID, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	if _, ok := f.core.decisions[link.DecisionID]; !ok {
		return nil, apperrors.NotFound("decision %s", link.DecisionID)
	}

	revoked := []uuid.UUID{}
	for _, existing := range f.core.links {
		if existing.DecisionID == link.DecisionID && existing.AccessScope == link.AccessScope && existing.IsActive {
			existing.IsActive = false
			revoked = append(revoked, existing.ID)
			f.core.appendAudit(models.NewAuditEntry(link.DecisionID, models.ActionShareLinkRevoked, map[string]any{
				"share_link_id": existing.ID.String(),
				"reason":        "reissued",
			}, actor, nil))
		}
	}

	link.IsActive = true
	lc := *link
	f.core.links[lc.ID] = &lc
	f.core.appendAudit(issued)
	return revoked, nil
}

func (f *fakeShareLinkStore) Revoke(ctx context.Context, linkID uuid.UUID, actor models.Actor) (bool, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	link, ok := f.core.links[linkID]
	if !ok {
		return false, apperrors.NotFound("share link %s", linkID)
	}
	if !link.IsActive {
		return false, nil
	}

	link.IsActive = false
	f.core.appendAudit(models.NewAuditEntry(link.DecisionID, models.ActionShareLinkRevoked, map[string]any{
		"share_link_id": link.ID.String(),
	}, actor, nil))
	return true, nil
}

func (f *fakeShareLinkStore) GetByID(ctx context.Context, linkID uuid.UUID) (*models.ShareLink, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	link, ok := f.core.links[linkID]
	if !ok {
		return nil, apperrors.NotFound("share link %s", linkID)
	}
	lc := *link
	return &lc, nil
}

func (f *fakeShareLinkStore) GetByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	for _, link := range f.core.links {
		if link.Token == token {
			lc := *link
			return &lc, nil
		}
	}
	return nil, apperrors.NotFound("share token")
}

func (f *fakeShareLinkStore) ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]*models.ShareLink, error) {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()

	out := []*models.ShareLink{}
	for _, link := range f.core.links {
		if link.DecisionID == decisionID {
			lc := *link
			out = append(out, &lc)
		}
	}
	return out, nil
}

// --- helpers ---

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

func testMetrics() *telemetry.Metrics {
	return telemetry.NewMetrics()
}

func testActor(name string) models.Actor {
	id := uuid.New()
	return models.Actor{ID: &id, Name: name}
}
