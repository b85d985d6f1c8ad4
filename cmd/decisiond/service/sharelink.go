package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
	"github.com/atelierhq/decisions/common/logger"
	"github.com/atelierhq/decisions/common/telemetry"
)

// tokenBytes gives 256 bits of entropy per token, double the 128-bit floor
const tokenBytes = 32

// ShareLinkStore persists share links. IssueExclusive keeps the deactivation
// of prior links, the new insert and the audit entries in one transaction,
// serialized per decision.
type ShareLinkStore interface {
	IssueExclusive(ctx context.Context, link *models.ShareLink, issued *models.AuditLogEntry, actor models.Actor) ([]uuid.UUID, error)
	Revoke(ctx context.Context, linkID uuid.UUID, actor models.Actor) (bool, error)
	GetByID(ctx context.Context, linkID uuid.UUID) (*models.ShareLink, error)
	GetByToken(ctx context.Context, token string) (*models.ShareLink, error)
	ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]*models.ShareLink, error)
}

// IssueParams controls share link issuance
type IssueParams struct {
	Scope     models.AccessScope
	ExpiresAt *time.Time
}

// ShareLinkService issues and revokes scoped, expiring share links
type ShareLinkService struct {
	store      ShareLinkStore
	baseURL    string
	defaultTTL time.Duration
	metrics    *telemetry.Metrics
	log        *logger.Logger
}

// NewShareLinkService creates a new share link service
func NewShareLinkService(store ShareLinkStore, baseURL string, defaultTTL time.Duration, metrics *telemetry.Metrics, log *logger.Logger) *ShareLinkService {
	return &ShareLinkService{
		store:      store,
		baseURL:    strings.TrimRight(baseURL, "/"),
		defaultTTL: defaultTTL,
		metrics:    metrics,
		log:        log,
	}
}

// Issue creates a new active link for (decisionID, params.Scope),
// deactivating any prior active link of that scope first. At most one link
// per (decision, scope) is active afterwards, whatever the concurrency.
func (s *ShareLinkService) Issue(ctx context.Context, decisionID uuid.UUID, params IssueParams, actor models.Actor) (*models.ShareLink, error) {
	if !params.Scope.Valid() {
		return nil, apperrors.InvalidArgument("unknown access scope %q", params.Scope)
	}

	now := time.Now().UTC()
	expiresAt := params.ExpiresAt
	if expiresAt != nil && expiresAt.Before(now) {
		return nil, apperrors.InvalidArgument("expiry is in the past")
	}
	if expiresAt == nil && s.defaultTTL > 0 {
		t := now.Add(s.defaultTTL)
		expiresAt = &t
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	link := &models.ShareLink{
		ID:          uuid.New(),
		DecisionID:  decisionID,
		Token:       token,
		AccessScope: params.Scope,
		ExpiresAt:   expiresAt,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
	}

	details := map[string]any{
		"share_link_id": link.ID.String(),
		"access_scope":  string(params.Scope),
	}
	if expiresAt != nil {
		details["expires_at"] = expiresAt.Format(time.RFC3339)
	}
	issued := models.NewAuditEntry(decisionID, models.ActionShareLinkIssued, details, actor, nil)

	revoked, err := s.store.IssueExclusive(ctx, link, issued, actor)
	if err != nil {
		return nil, err
	}

	link.URL = s.buildURL(token)

	s.metrics.ShareLinksIssued.Inc()
	s.metrics.AuditEntriesWritten.Inc()
	for range revoked {
		s.metrics.ShareLinksRevoked.Inc()
		s.metrics.AuditEntriesWritten.Inc()
	}

	s.log.Info("share link issued",
		"decision_id", decisionID,
		"share_link_id", link.ID,
		"scope", params.Scope,
		"revoked_prior", len(revoked),
	)

	return link, nil
}

// Revoke deactivates a link after verifying it belongs to decisionID; a
// link owned by another decision is reported as not found. Idempotent:
// revoking an already-inactive link is a no-op success.
func (s *ShareLinkService) Revoke(ctx context.Context, decisionID, linkID uuid.UUID, actor models.Actor) error {
	link, err := s.store.GetByID(ctx, linkID)
	if err != nil {
		return err
	}
	if link.DecisionID != decisionID {
		return apperrors.NotFound("share link %s for decision %s", linkID, decisionID)
	}

	changed, err := s.store.Revoke(ctx, linkID, actor)
	if err != nil {
		return err
	}

	if changed {
		s.metrics.ShareLinksRevoked.Inc()
		s.metrics.AuditEntriesWritten.Inc()
		s.log.Info("share link revoked", "share_link_id", linkID)
	}

	return nil
}

// ResolveToken returns the link a token grants, or ErrNotFound if the token
// is unknown, inactive or expired. Inactive and expired tokens answer the
// same as unknown ones.
func (s *ShareLinkService) ResolveToken(ctx context.Context, token string) (*models.ShareLink, error) {
	link, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if !link.Usable(time.Now().UTC()) {
		return nil, apperrors.NotFound("share token")
	}

	link.URL = s.buildURL(link.Token)
	return link, nil
}

// ListByDecision retrieves all of a decision's links, newest first
func (s *ShareLinkService) ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]*models.ShareLink, error) {
	links, err := s.store.ListByDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	for _, l := range links {
		l.URL = s.buildURL(l.Token)
	}

	return links, nil
}

func (s *ShareLinkService) buildURL(token string) string {
	return s.baseURL + "/" + token
}

// newToken returns a cryptographically random URL-safe token. Never derived
// from the decision id, timestamp or any other guessable seed.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
