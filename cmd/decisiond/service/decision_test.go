package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
)

// engineFixture wires the full service stack over one in-memory core, the
// same way the container wires it over one database.
type engineFixture struct {
	core      *fakeCore
	decisions *DecisionService
	links     *ShareLinkService
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	core := newFakeCore()
	log := testLogger()
	metrics := testMetrics()

	snapshots := NewSnapshotService(&fakeVersionStore{core: core}, metrics, log)
	diffs := NewDiffService(nil, 0, metrics, log)
	audit, err := NewAuditService(&fakeAuditStore{core: core}, 50, 200, metrics, log)
	require.NoError(t, err)
	links := NewShareLinkService(&fakeShareLinkStore{core: core}, "https://app.example.com/share", 0, metrics, log)

	decisions := NewDecisionService(
		&fakeDecisionStore{core: core},
		snapshots, diffs, audit, links,
		nil, 0, log,
	)

	return &engineFixture{core: core, decisions: decisions, links: links}
}

func (fx *engineFixture) createDecision(t *testing.T, title string) *models.Aggregate {
	t.Helper()
	agg, err := fx.decisions.CreateDecision(context.Background(), CreateDecisionParams{
		ProjectID: uuid.New(),
		Title:     title,
		Category:  "design",
	}, testActor("dana"))
	require.NoError(t, err)
	return agg
}

func TestCreateDecision(t *testing.T) {
	fx := newEngineFixture(t)

	agg := fx.createDecision(t, "Countertops")

	assert.Equal(t, models.StatusDraft, agg.Status)
	require.NotNil(t, agg.CurrentVersion)
	assert.Equal(t, 1, agg.CurrentVersion.VersionNumber)
	assert.Equal(t, "Countertops", agg.CurrentVersion.Snapshot.Title)

	entries, err := fx.decisions.ListAudit(context.Background(), agg.ID, AuditQueryParams{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionCreated, entries[0].Action)
	require.NotNil(t, entries[0].VersionID)
	assert.Equal(t, agg.CurrentVersion.ID, *entries[0].VersionID)
}

func TestCreateDecisionValidation(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.decisions.CreateDecision(ctx, CreateDecisionParams{ProjectID: uuid.New(), Title: "   "}, testActor("dana"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = fx.decisions.CreateDecision(ctx, CreateDecisionParams{Title: "No project"}, testActor("dana"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestVersionNumbersMonotonicNoGaps(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	agg := fx.createDecision(t, "Flooring")

	for i := 0; i < 4; i++ {
		_, err := fx.decisions.CreateVersion(ctx, agg.ID, models.Snapshot{Title: "Flooring"}, nil, testActor("dana"))
		require.NoError(t, err)
	}

	versions, err := fx.decisions.ListVersions(ctx, agg.ID)
	require.NoError(t, err)
	require.Len(t, versions, 5)
	for i, v := range versions {
		assert.Equal(t, i+1, v.VersionNumber)
	}
}

// Concurrent saves must all land, numbered 1..n with no gaps and no repeats
func TestCreateVersionConcurrent(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	agg := fx.createDecision(t, "Flooring")

	const writers = 32
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.decisions.CreateVersion(ctx, agg.ID, models.Snapshot{Title: "Flooring"}, nil, testActor("dana"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	versions, err := fx.decisions.ListVersions(ctx, agg.ID)
	require.NoError(t, err)
	require.Len(t, versions, writers+1)
	for i, v := range versions {
		assert.Equal(t, i+1, v.VersionNumber)
	}
}

func TestVersionImmutability(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	agg := fx.createDecision(t, "Original title")

	v1 := agg.CurrentVersion

	_, err := fx.decisions.CreateVersion(ctx, agg.ID, models.Snapshot{Title: "Changed title"}, nil, testActor("dana"))
	require.NoError(t, err)

	// Reading v1 after the decision moved on returns the original content
	got, err := fx.decisions.GetVersion(ctx, agg.ID, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.VersionNumber)
	assert.Equal(t, "Original title", got.Snapshot.Title)
}

func TestCreateVersionRejections(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	agg := fx.createDecision(t, "Siding")

	_, err := fx.decisions.CreateVersion(ctx, agg.ID, models.Snapshot{Title: " "}, nil, testActor("dana"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = fx.decisions.CreateVersion(ctx, uuid.New(), models.Snapshot{Title: "X"}, nil, testActor("dana"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = fx.decisions.ChangeStatus(ctx, agg.ID, models.StatusArchived, testActor("dana"))
	require.NoError(t, err)

	_, err = fx.decisions.CreateVersion(ctx, agg.ID, models.Snapshot{Title: "X"}, nil, testActor("dana"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}

func TestStatusStateMachine(t *testing.T) {
	cases := []struct {
		name    string
		path    []models.DecisionStatus
		target  models.DecisionStatus
		allowed bool
	}{
		{"draft to pending", nil, models.StatusPending, true},
		{"draft to approved skips review", nil, models.StatusApproved, false},
		{"draft to rejected skips review", nil, models.StatusRejected, false},
		{"pending to approved", []models.DecisionStatus{models.StatusPending}, models.StatusApproved, true},
		{"pending to rejected", []models.DecisionStatus{models.StatusPending}, models.StatusRejected, true},
		{"pending back to draft", []models.DecisionStatus{models.StatusPending}, models.StatusDraft, false},
		{"approved revoked to draft", []models.DecisionStatus{models.StatusPending, models.StatusApproved}, models.StatusDraft, true},
		{"rejected revoked to draft", []models.DecisionStatus{models.StatusPending, models.StatusRejected}, models.StatusDraft, true},
		{"approved to rejected directly", []models.DecisionStatus{models.StatusPending, models.StatusApproved}, models.StatusRejected, false},
		{"draft archived", nil, models.StatusArchived, true},
		{"approved archived", []models.DecisionStatus{models.StatusPending, models.StatusApproved}, models.StatusArchived, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newEngineFixture(t)
			ctx := context.Background()
			agg := fx.createDecision(t, "Paint")

			for _, step := range tc.path {
				_, err := fx.decisions.ChangeStatus(ctx, agg.ID, step, testActor("dana"))
				require.NoError(t, err)
			}

			d, err := fx.decisions.ChangeStatus(ctx, agg.ID, tc.target, testActor("dana"))
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.target, d.Status)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
			}
		})
	}
}

func TestArchivedIsTerminal(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	agg := fx.createDecision(t, "Deck")

	_, err := fx.decisions.ChangeStatus(ctx, agg.ID, models.StatusArchived, testActor("dana"))
	require.NoError(t, err)

	for _, next := range []models.DecisionStatus{models.StatusDraft, models.StatusPending, models.StatusApproved, models.StatusArchived} {
		_, err := fx.decisions.ChangeStatus(ctx, agg.ID, next, testActor("dana"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition, "archived -> %s must be rejected", next)
	}
}

// Racing submitters: exactly one draft -> pending transition wins, the rest
// fail retryably (stale CAS) or on the state machine (fresh read of pending).
func TestChangeStatusConcurrent(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	agg := fx.createDecision(t, "Roofing")

	const submitters = 16
	errs := make(chan error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.decisions.ChangeStatus(ctx, agg.ID, models.StatusPending, testActor("dana"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	won := 0
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		if !errors.Is(err, apperrors.ErrConflict) && !errors.Is(err, apperrors.ErrInvalidStateTransition) {
			t.Fatalf("unexpected error from racing status change: %v", err)
		}
	}
	assert.Equal(t, 1, won, "exactly one submitter must win the transition")

	d, err := fx.decisions.GetCurrent(ctx, agg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, d.Status)
}

// A status update whose expected current status has gone stale fails with
// the retryable conflict error, not a state machine rejection.
func TestUpdateStatusStaleConflict(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	agg := fx.createDecision(t, "Windows")
	store := &fakeDecisionStore{core: fx.core}

	entry := models.NewAuditEntry(agg.ID, models.ActionStatusChanged, map[string]any{
		"from": "draft", "to": "pending",
	}, testActor("dana"), nil)
	require.NoError(t, store.UpdateStatus(ctx, agg.ID, models.StatusDraft, models.StatusPending, entry))

	stale := models.NewAuditEntry(agg.ID, models.ActionStatusChanged, map[string]any{
		"from": "draft", "to": "archived",
	}, testActor("sam"), nil)
	err := store.UpdateStatus(ctx, agg.ID, models.StatusDraft, models.StatusArchived, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestChangeStatusUnknown(t *testing.T) {
	fx := newEngineFixture(t)
	agg := fx.createDecision(t, "Trim")

	_, err := fx.decisions.ChangeStatus(context.Background(), agg.ID, "done", testActor("dana"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestStatusChangeAudited(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	agg := fx.createDecision(t, "HVAC")

	_, err := fx.decisions.ChangeStatus(ctx, agg.ID, models.StatusPending, testActor("sam"))
	require.NoError(t, err)

	entries, err := fx.decisions.ListAudit(ctx, agg.ID, AuditQueryParams{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	latest := entries[0]
	assert.Equal(t, models.ActionStatusChanged, latest.Action)
	assert.Equal(t, "sam", latest.UserName)
	assert.Equal(t, "draft", latest.Details["from"])
	assert.Equal(t, "pending", latest.Details["to"])
}

func TestObjectLifecycle(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	actor := testActor("dana")
	agg := fx.createDecision(t, "Kitchen")

	first, err := fx.decisions.AddObject(ctx, agg.ID, ObjectParams{Name: "Countertop Material"}, actor)
	require.NoError(t, err)
	second, err := fx.decisions.AddObject(ctx, agg.ID, ObjectParams{Name: "Backsplash"}, actor)
	require.NoError(t, err)

	assert.Equal(t, 0, first.OrderIndex)
	assert.Equal(t, 1, second.OrderIndex)
	assert.Equal(t, "open", first.Status)

	_, err = fx.decisions.UpdateObject(ctx, agg.ID, first.ID, ObjectParams{Name: "Countertop", Status: "resolved"}, actor)
	require.NoError(t, err)

	require.NoError(t, fx.decisions.ReorderObjects(ctx, agg.ID, []uuid.UUID{second.ID, first.ID}, actor))

	current, err := fx.decisions.GetCurrent(ctx, agg.ID)
	require.NoError(t, err)
	require.Len(t, current.Objects, 2)
	assert.Equal(t, second.ID, current.Objects[0].ID)
	assert.Equal(t, first.ID, current.Objects[1].ID)

	require.NoError(t, fx.decisions.RemoveObject(ctx, agg.ID, second.ID, actor))

	current, err = fx.decisions.GetCurrent(ctx, agg.ID)
	require.NoError(t, err)
	require.Len(t, current.Objects, 1)
	// Remaining object resequenced to keep order_index dense
	assert.Equal(t, 0, current.Objects[0].OrderIndex)

	entries, err := fx.decisions.ListAudit(ctx, agg.ID, AuditQueryParams{})
	require.NoError(t, err)

	actions := make([]models.AuditAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []models.AuditAction{
		models.ActionObjectRemoved,
		models.ActionObjectsReordered,
		models.ActionUpdated,
		models.ActionObjectAdded,
		models.ActionObjectAdded,
		models.ActionCreated,
	}, actions)
}

func TestReorderRejectsPartialPermutation(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	actor := testActor("dana")
	agg := fx.createDecision(t, "Bath")

	first, err := fx.decisions.AddObject(ctx, agg.ID, ObjectParams{Name: "Tile"}, actor)
	require.NoError(t, err)
	_, err = fx.decisions.AddObject(ctx, agg.ID, ObjectParams{Name: "Vanity"}, actor)
	require.NoError(t, err)

	err = fx.decisions.ReorderObjects(ctx, agg.ID, []uuid.UUID{first.ID}, actor)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	err = fx.decisions.ReorderObjects(ctx, agg.ID, []uuid.UUID{first.ID, uuid.New()}, actor)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

// Object mutations are audited but never create versions on their own.
func TestObjectMutationsDoNotVersion(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	actor := testActor("dana")
	agg := fx.createDecision(t, "Garage")

	_, err := fx.decisions.AddObject(ctx, agg.ID, ObjectParams{Name: "Door"}, actor)
	require.NoError(t, err)
	_, err = fx.decisions.AddObject(ctx, agg.ID, ObjectParams{Name: "Opener"}, actor)
	require.NoError(t, err)

	versions, err := fx.decisions.ListVersions(ctx, agg.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1, "object mutations must not create versions")

	// An explicit save captures the live objects
	current, err := fx.decisions.GetCurrent(ctx, agg.ID)
	require.NoError(t, err)
	v2, err := fx.decisions.CreateVersion(ctx, agg.ID, current.Snapshot(), nil, actor)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Len(t, v2.Snapshot.Objects, 2)
}

// Full walkthrough: create, save a version, share, reissue, then check the
// audit trail tells the whole story in order.
func TestEndToEnd(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	actor := testActor("dana")

	agg := fx.createDecision(t, "Master bath remodel")

	v2, err := fx.decisions.CreateVersion(ctx, agg.ID, models.Snapshot{Title: "Master bath remodel", Description: "second pass"}, nil, actor)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	first, err := fx.decisions.ReissueShare(ctx, agg.ID, IssueParams{Scope: models.ScopeRead}, actor)
	require.NoError(t, err)
	second, err := fx.decisions.ReissueShare(ctx, agg.ID, IssueParams{Scope: models.ScopeRead}, actor)
	require.NoError(t, err)

	// Old token is dead, new one resolves to the current aggregate
	_, _, err = fx.decisions.ResolveShareToken(ctx, first.Token)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	resolved, link, err := fx.decisions.ResolveShareToken(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, agg.ID, resolved.ID)
	assert.Equal(t, models.ScopeRead, link.AccessScope)
	require.NotNil(t, resolved.CurrentVersion)
	assert.Equal(t, 2, resolved.CurrentVersion.VersionNumber)

	entries, err := fx.decisions.ListAudit(ctx, agg.ID, AuditQueryParams{})
	require.NoError(t, err)

	actions := make([]models.AuditAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	// Newest first: the four post-creation actions in order, then creation
	assert.Equal(t, []models.AuditAction{
		models.ActionShareLinkIssued,
		models.ActionShareLinkRevoked,
		models.ActionShareLinkIssued,
		models.ActionVersionCreated,
		models.ActionCreated,
	}, actions)

	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i-1].Seq, entries[i].Seq)
	}
}
