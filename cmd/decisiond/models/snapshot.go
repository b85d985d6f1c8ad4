package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a full denormalized copy of a decision's content at a point in
// time. Stored as JSONB on decision_version; immutable once written.
type Snapshot struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	Tags        []string          `json:"tags"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Objects     []ObjectSnapshot  `json:"decision_objects"`
	Media       []MediaSnapshot   `json:"media,omitempty"`
	Comments    []CommentSnapshot `json:"comments,omitempty"`
}

// ObjectSnapshot is a decision object as captured in a snapshot
type ObjectSnapshot struct {
	ID         uuid.UUID        `json:"id"`
	Name       string           `json:"name"`
	Status     string           `json:"status"`
	OrderIndex int              `json:"order_index"`
	Options    []OptionSnapshot `json:"options"`
}

// OptionSnapshot is one option of a decision object (e.g. a countertop
// material with its cost and dependency notes)
type OptionSnapshot struct {
	ID           uuid.UUID      `json:"id"`
	Label        string         `json:"label"`
	Cost         float64        `json:"cost"`
	Dependencies map[string]any `json:"dependencies,omitempty"`
	OrderIndex   int            `json:"order_index"`
}

// MediaSnapshot is an attached media reference at snapshot time.
// Upload/storage is owned by an external collaborator.
type MediaSnapshot struct {
	ID      uuid.UUID `json:"id"`
	URL     string    `json:"url"`
	Kind    string    `json:"kind"`
	Caption string    `json:"caption,omitempty"`
}

// CommentSnapshot is a comment as captured at snapshot time
type CommentSnapshot struct {
	ID         uuid.UUID `json:"id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}
