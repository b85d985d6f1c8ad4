package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessScope is the permission level a share link grants
type AccessScope string

const (
	ScopeRead    AccessScope = "read"
	ScopeComment AccessScope = "comment"
	ScopeApprove AccessScope = "approve"
)

// Valid reports whether s is a known scope
func (s AccessScope) Valid() bool {
	switch s {
	case ScopeRead, ScopeComment, ScopeApprove:
		return true
	}
	return false
}

// ShareLink is a scoped, tokenized, optionally expiring external access grant
// to a decision's current state.
// Maps to: share_link table
//
// At most one link per (decision_id, access_scope) is active at a time;
// reissuing deactivates the prior active link in the same transaction.
// Tokens are cryptographically random, never derived from the decision id.
type ShareLink struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	DecisionID  uuid.UUID   `db:"decision_id" json:"decision_id"`
	Token       string      `db:"token" json:"-"`
	URL         string      `db:"-" json:"url"`
	ExpiresAt   *time.Time  `db:"expires_at" json:"expires_at"`
	AccessScope AccessScope `db:"access_scope" json:"access_scope"`
	CreatedBy   *uuid.UUID  `db:"created_by" json:"created_by"`
	IsActive    bool        `db:"is_active" json:"is_active"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// Expired reports whether the link has passed its expiry. Links without an
// expiry never expire.
func (l *ShareLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Usable reports whether the link currently grants access
func (l *ShareLink) Usable(now time.Time) bool {
	return l.IsActive && !l.Expired(now)
}
