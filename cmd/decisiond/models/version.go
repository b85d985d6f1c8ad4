package models

import (
	"time"

	"github.com/google/uuid"
)

// DecisionVersion is an immutable, numbered snapshot of a decision.
// Maps to: decision_version table
//
// version_number starts at 1 and is strictly increasing per decision with no
// gaps; the snapshot never changes once written. Versions are exclusively
// owned by their decision and are removed with it (cascade).
type DecisionVersion struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	DecisionID    uuid.UUID  `db:"decision_id" json:"decision_id"`
	VersionNumber int        `db:"version_number" json:"version_number"`
	Snapshot      Snapshot   `db:"snapshot" json:"snapshot"`
	Note          *string    `db:"note" json:"note"`
	AuthorID      *uuid.UUID `db:"author_id" json:"author_id"`
	AuthorName    *string    `db:"author_name" json:"author_name"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
