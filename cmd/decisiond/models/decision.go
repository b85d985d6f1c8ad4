package models

import (
	"time"

	"github.com/google/uuid"
)

// DecisionStatus is the lifecycle state of a decision
type DecisionStatus string

const (
	StatusDraft    DecisionStatus = "draft"
	StatusPending  DecisionStatus = "pending"
	StatusApproved DecisionStatus = "approved"
	StatusRejected DecisionStatus = "rejected"
	StatusArchived DecisionStatus = "archived"
)

// Valid reports whether s is a known status
func (s DecisionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// Editable reports whether a decision in this status accepts mutations.
// Archived decisions may still be read and diffed, never mutated.
func (s DecisionStatus) Editable() bool {
	return s != StatusArchived
}

// CanTransitionTo reports whether the status state machine permits s -> next.
//
//	draft -> pending -> {approved | rejected}
//	approved/rejected -> draft (explicit revoke)
//	archived reachable from any state, terminal for editing
func (s DecisionStatus) CanTransitionTo(next DecisionStatus) bool {
	if next == StatusArchived {
		return s != StatusArchived
	}

	switch s {
	case StatusDraft:
		return next == StatusPending
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved, StatusRejected:
		return next == StatusDraft
	}
	return false
}

// Decision is the mutable root entity a team edits and a client approves.
// Maps to: decision table
type Decision struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	ProjectID        uuid.UUID      `db:"project_id" json:"project_id"`
	Title            string         `db:"title" json:"title"`
	Description      string         `db:"description" json:"description"`
	Category         string         `db:"category" json:"category"`
	OwnerID          *uuid.UUID     `db:"owner_id" json:"owner_id"`
	Status           DecisionStatus `db:"status" json:"status"`
	DueDate          *time.Time     `db:"due_date" json:"due_date"`
	Tags             []string       `db:"tags" json:"tags"`
	Metadata         map[string]any `db:"metadata" json:"metadata"`
	CurrentVersionID *uuid.UUID     `db:"current_version_id" json:"current_version_id"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// Aggregate is a decision with its current version and live objects embedded.
// This is what getCurrent returns and what external viewers see through a
// share link.
type Aggregate struct {
	Decision
	CurrentVersion *DecisionVersion  `json:"current_version,omitempty"`
	Objects        []*DecisionObject `json:"decision_objects"`
}

// Snapshot builds a full denormalized copy of the decision's live content,
// the payload stored on the next version.
func (a *Aggregate) Snapshot() Snapshot {
	snap := Snapshot{
		Title:       a.Title,
		Description: a.Description,
		Category:    a.Category,
		DueDate:     a.DueDate,
		Tags:        append([]string(nil), a.Tags...),
		Metadata:    a.Metadata,
		Objects:     make([]ObjectSnapshot, 0, len(a.Objects)),
	}

	for _, obj := range a.Objects {
		snap.Objects = append(snap.Objects, obj.Snapshot())
	}

	// Carry media and comments forward from the current version; they are
	// managed by external collaborators and only pass through the engine.
	if a.CurrentVersion != nil {
		snap.Media = append([]MediaSnapshot(nil), a.CurrentVersion.Snapshot.Media...)
		snap.Comments = append([]CommentSnapshot(nil), a.CurrentVersion.Snapshot.Comments...)
	}

	return snap
}
