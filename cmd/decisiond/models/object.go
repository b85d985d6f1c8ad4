package models

import (
	"time"

	"github.com/google/uuid"
)

// DecisionObject is a live sub-item of a decision (e.g. "Countertop
// Material") holding one or more options.
// Maps to: decision_object table
//
// Objects are mutable in the live decision; each mutation is captured by the
// next version's snapshot, they are not separately versioned. order_index is
// zero-based, dense and unique within a decision.
type DecisionObject struct {
	ID         uuid.UUID        `db:"id" json:"id"`
	DecisionID uuid.UUID        `db:"decision_id" json:"decision_id"`
	Name       string           `db:"name" json:"name"`
	Status     string           `db:"status" json:"status"`
	OrderIndex int              `db:"order_index" json:"order_index"`
	Options    []OptionSnapshot `db:"options" json:"options"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// Snapshot converts the live object to its snapshot form
func (o *DecisionObject) Snapshot() ObjectSnapshot {
	return ObjectSnapshot{
		ID:         o.ID,
		Name:       o.Name,
		Status:     o.Status,
		OrderIndex: o.OrderIndex,
		Options:    append([]OptionSnapshot(nil), o.Options...),
	}
}
