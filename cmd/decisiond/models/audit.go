package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies the state-changing action an audit entry describes
type AuditAction string

const (
	ActionCreated          AuditAction = "created"
	ActionUpdated          AuditAction = "updated"
	ActionVersionCreated   AuditAction = "version_created"
	ActionObjectAdded      AuditAction = "object_added"
	ActionObjectRemoved    AuditAction = "object_removed"
	ActionObjectsReordered AuditAction = "objects_reordered"
	ActionShareLinkIssued  AuditAction = "share_link_issued"
	ActionShareLinkRevoked AuditAction = "share_link_revoked"
	ActionStatusChanged    AuditAction = "status_changed"
)

// Valid reports whether a is a known action
func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionVersionCreated,
		ActionObjectAdded, ActionObjectRemoved, ActionObjectsReordered,
		ActionShareLinkIssued, ActionShareLinkRevoked, ActionStatusChanged:
		return true
	}
	return false
}

// Actor identifies who performed an action. ID is nil for system-generated
// or anonymous-client actions.
type Actor struct {
	ID   *uuid.UUID `json:"id,omitempty"`
	Name string     `json:"name"`
}

// AuditLogEntry is an append-only fact describing one state-changing action.
// Maps to: audit_log table
//
// Entries are never mutated or deleted. Seq is assigned at write time inside
// the same transaction as the mutation it describes, so entries for a given
// decision are observable in the same relative order as the operations that
// produced them, independent of clock resolution.
type AuditLogEntry struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	DecisionID uuid.UUID      `db:"decision_id" json:"decision_id"`
	VersionID  *uuid.UUID     `db:"version_id" json:"version_id"`
	Action     AuditAction    `db:"action" json:"action"`
	UserID     *uuid.UUID     `db:"user_id" json:"user_id"`
	UserName   string         `db:"user_name" json:"user_name"`
	Details    map[string]any `db:"details" json:"details"`
	Seq        int64          `db:"seq" json:"seq"`
	CreatedAt  time.Time      `db:"created_at" json:"timestamp"`
}

// NewAuditEntry builds an entry for action on decisionID. Details is opaque
// and stored as-is; Seq is filled in by the repository at write time.
func NewAuditEntry(decisionID uuid.UUID, action AuditAction, details map[string]any, actor Actor, versionID *uuid.UUID) *AuditLogEntry {
	if details == nil {
		details = map[string]any{}
	}
	return &AuditLogEntry{
		ID:         uuid.New(),
		DecisionID: decisionID,
		VersionID:  versionID,
		Action:     action,
		UserID:     actor.ID,
		UserName:   actor.Name,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
}
