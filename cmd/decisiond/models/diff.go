package models

import "github.com/google/uuid"

// ChangeType classifies one field-level change in a diff
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// FieldChange is a single field-level change between two snapshots
type FieldChange struct {
	// Field is the leaf field name, e.g. "title" or "label"
	Field string `json:"field"`
	// Path is the dotted path to the field, keyed by stable entity id for
	// collection members, e.g. "decision_objects.<id>.options.<id>.cost"
	Path       string     `json:"path"`
	OldValue   any        `json:"old_value"`
	NewValue   any        `json:"new_value"`
	ChangeType ChangeType `json:"change_type"`
}

// VersionDiff is a computed field-level comparison between two snapshots.
// Derived, never persisted; deterministic given the same two snapshots.
type VersionDiff struct {
	FromVersionID uuid.UUID `json:"from_version_id"`
	ToVersionID   uuid.UUID `json:"to_version_id"`

	// Changes holds scalar field changes (fixed declared order) followed by
	// decision-object changes in snapshot traversal order.
	Changes []FieldChange `json:"changes"`

	// Parallel lists for the remaining snapshot sections.
	MetadataChanges []FieldChange `json:"metadata_changes"`
	OptionChanges   []FieldChange `json:"option_changes"`
	MediaChanges    []FieldChange `json:"media_changes"`
	CommentChanges  []FieldChange `json:"comment_changes"`
}

// Empty reports whether the diff contains no changes at all
func (d *VersionDiff) Empty() bool {
	return len(d.Changes) == 0 &&
		len(d.MetadataChanges) == 0 &&
		len(d.OptionChanges) == 0 &&
		len(d.MediaChanges) == 0 &&
		len(d.CommentChanges) == 0
}
