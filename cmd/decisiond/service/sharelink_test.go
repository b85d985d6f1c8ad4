package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
)

func newShareLinkFixture(t *testing.T, defaultTTL time.Duration) (*ShareLinkService, *fakeCore, uuid.UUID) {
	t.Helper()

	core := newFakeCore()
	svc := NewShareLinkService(
		&fakeShareLinkStore{core: core},
		"https://app.example.com/share",
		defaultTTL,
		testMetrics(),
		testLogger(),
	)

	decisionID := uuid.New()
	core.decisions[decisionID] = &models.Decision{
		ID:        decisionID,
		ProjectID: uuid.New(),
		Title:     "Cabinets",
		Status:    models.StatusDraft,
		CreatedAt: time.Now().UTC(),
	}

	return svc, core, decisionID
}

func TestTokenGeneration(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := newToken()
		require.NoError(t, err)
		// 32 bytes base64url without padding
		assert.Len(t, token, 43)
		assert.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
}

func TestIssueShareLink(t *testing.T) {
	svc, _, decisionID := newShareLinkFixture(t, 0)

	link, err := svc.Issue(context.Background(), decisionID, IssueParams{Scope: models.ScopeRead}, testActor("dana"))
	require.NoError(t, err)

	assert.True(t, link.IsActive)
	assert.NotEmpty(t, link.Token)
	assert.Equal(t, "https://app.example.com/share/"+link.Token, link.URL)
	assert.Nil(t, link.ExpiresAt, "no default TTL configured, link must not expire")
}

func TestIssueAppliesDefaultTTL(t *testing.T) {
	svc, _, decisionID := newShareLinkFixture(t, 24*time.Hour)

	link, err := svc.Issue(context.Background(), decisionID, IssueParams{Scope: models.ScopeComment}, testActor("dana"))
	require.NoError(t, err)

	require.NotNil(t, link.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), *link.ExpiresAt, time.Minute)
}

func TestIssueInvalidScope(t *testing.T) {
	svc, _, decisionID := newShareLinkFixture(t, 0)

	_, err := svc.Issue(context.Background(), decisionID, IssueParams{Scope: "admin"}, testActor("dana"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestIssuePastExpiry(t *testing.T) {
	svc, _, decisionID := newShareLinkFixture(t, 0)

	past := time.Now().UTC().Add(-time.Hour)
	_, err := svc.Issue(context.Background(), decisionID, IssueParams{Scope: models.ScopeRead, ExpiresAt: &past}, testActor("dana"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestIssueUnknownDecision(t *testing.T) {
	svc, _, _ := newShareLinkFixture(t, 0)

	_, err := svc.Issue(context.Background(), uuid.New(), IssueParams{Scope: models.ScopeRead}, testActor("dana"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// Reissuing for the same scope deactivates the prior link; a different scope
// leaves it alone.
func TestIssueExclusivityPerScope(t *testing.T) {
	svc, core, decisionID := newShareLinkFixture(t, 0)
	ctx := context.Background()
	actor := testActor("dana")

	first, err := svc.Issue(ctx, decisionID, IssueParams{Scope: models.ScopeRead}, actor)
	require.NoError(t, err)
	comment, err := svc.Issue(ctx, decisionID, IssueParams{Scope: models.ScopeComment}, actor)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, decisionID, IssueParams{Scope: models.ScopeRead}, actor)
	require.NoError(t, err)

	assert.False(t, core.links[first.ID].IsActive, "prior read link still active after reissue")
	assert.True(t, core.links[second.ID].IsActive)
	assert.True(t, core.links[comment.ID].IsActive, "reissue of read scope touched the comment link")

	active := 0
	for _, l := range core.links {
		if l.AccessScope == models.ScopeRead && l.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active, "more than one active read link")

	// The deactivated token no longer resolves
	_, err = svc.ResolveToken(ctx, first.Token)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	resolved, err := svc.ResolveToken(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, second.ID, resolved.ID)
}

func TestRevokeIdempotent(t *testing.T) {
	svc, core, decisionID := newShareLinkFixture(t, 0)
	ctx := context.Background()
	actor := testActor("dana")

	link, err := svc.Issue(ctx, decisionID, IssueParams{Scope: models.ScopeRead}, actor)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, decisionID, link.ID, actor))
	auditLen := len(core.audit)

	// Second revoke succeeds without another audit entry
	require.NoError(t, svc.Revoke(ctx, decisionID, link.ID, actor))
	assert.Equal(t, auditLen, len(core.audit))

	err = svc.Revoke(ctx, decisionID, uuid.New(), actor)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// A link can only be revoked through the decision it belongs to
func TestRevokeWrongDecision(t *testing.T) {
	svc, core, decisionID := newShareLinkFixture(t, 0)
	ctx := context.Background()
	actor := testActor("dana")

	otherID := uuid.New()
	core.decisions[otherID] = &models.Decision{
		ID:        otherID,
		ProjectID: uuid.New(),
		Title:     "Flooring",
		Status:    models.StatusDraft,
		CreatedAt: time.Now().UTC(),
	}

	link, err := svc.Issue(ctx, decisionID, IssueParams{Scope: models.ScopeRead}, actor)
	require.NoError(t, err)

	err = svc.Revoke(ctx, otherID, link.ID, actor)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.True(t, core.links[link.ID].IsActive, "revoke through the wrong decision deactivated the link")
}

// Concurrent reissues for one scope must still leave exactly one active link
func TestIssueConcurrentExclusivity(t *testing.T) {
	svc, core, decisionID := newShareLinkFixture(t, 0)
	ctx := context.Background()
	actor := testActor("dana")

	const issuers = 16
	errs := make(chan error, issuers)
	var wg sync.WaitGroup
	for i := 0; i < issuers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(ctx, decisionID, IssueParams{Scope: models.ScopeRead}, actor)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	active := 0
	for _, l := range core.links {
		if l.AccessScope == models.ScopeRead && l.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active, "concurrent reissues left more than one active link")
	assert.Len(t, core.links, issuers)
}

func TestResolveExpiredToken(t *testing.T) {
	svc, core, decisionID := newShareLinkFixture(t, 0)
	ctx := context.Background()

	soon := time.Now().UTC().Add(time.Hour)
	link, err := svc.Issue(ctx, decisionID, IssueParams{Scope: models.ScopeRead, ExpiresAt: &soon}, testActor("dana"))
	require.NoError(t, err)

	_, err = svc.ResolveToken(ctx, link.Token)
	require.NoError(t, err)

	// Force expiry; the token must now look exactly like an unknown one
	past := time.Now().UTC().Add(-time.Minute)
	core.links[link.ID].ExpiresAt = &past

	_, err = svc.ResolveToken(ctx, link.Token)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
