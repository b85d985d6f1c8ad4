package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
)

// Live decision-object operations. Each one mutates the decision's object
// list in place and writes its audit entry in the same transaction; none of
// them creates a new version (version creation is an explicit, separate
// caller action).

// lockEditableDecision locks the decision row and rejects mutations on
// archived decisions. The row lock serializes all object mutations per
// decision, which keeps order_index dense without a unique constraint.
func lockEditableDecision(ctx context.Context, tx pgx.Tx, decisionID uuid.UUID) error {
	var status models.DecisionStatus
	err := tx.QueryRow(ctx, `SELECT status FROM decision WHERE id = $1 FOR UPDATE`, decisionID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("decision %s", decisionID)
	}
	if err != nil {
		return apperrors.Storage("lock decision", err)
	}

	if !status.Editable() {
		return apperrors.InvalidStateTransition("decision %s is archived", decisionID)
	}

	return nil
}

func (r *DecisionRepository) listObjects(ctx context.Context, decisionID uuid.UUID) ([]*models.DecisionObject, error) {
	query := `
		SELECT id, decision_id, name, status, order_index, options, created_at, updated_at
		FROM decision_object
		WHERE decision_id = $1
		ORDER BY order_index ASC
	`

	rows, err := r.db.Query(ctx, query, decisionID)
	if err != nil {
		return nil, apperrors.Storage("list objects", err)
	}
	defer rows.Close()

	objects := make([]*models.DecisionObject, 0)
	for rows.Next() {
		o := &models.DecisionObject{}
		err := rows.Scan(&o.ID, &o.DecisionID, &o.Name, &o.Status, &o.OrderIndex, &o.Options, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, apperrors.Storage("scan object", err)
		}
		objects = append(objects, o)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterate objects", err)
	}

	return objects, nil
}

// AddObject appends a new object at the end of the decision's object list
func (r *DecisionRepository) AddObject(ctx context.Context, o *models.DecisionObject, entry *models.AuditLogEntry) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockEditableDecision(ctx, tx, o.DecisionID); err != nil {
			return err
		}

		err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(order_index), -1) + 1 FROM decision_object WHERE decision_id = $1`,
			o.DecisionID,
		).Scan(&o.OrderIndex)
		if err != nil {
			return apperrors.Storage("next order index", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO decision_object (id, decision_id, name, status, order_index, options, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
			o.ID, o.DecisionID, o.Name, o.Status, o.OrderIndex, o.Options, o.CreatedAt,
		)
		if err != nil {
			return apperrors.Storage("insert object", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE decision SET updated_at = now() WHERE id = $1`, o.DecisionID); err != nil {
			return apperrors.Storage("touch decision", err)
		}

		return insertAuditTx(ctx, tx, entry)
	})
}

// UpdateObject replaces an object's name, status and options
func (r *DecisionRepository) UpdateObject(ctx context.Context, o *models.DecisionObject, entry *models.AuditLogEntry) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockEditableDecision(ctx, tx, o.DecisionID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE decision_object
			SET name = $3, status = $4, options = $5, updated_at = now()
			WHERE id = $1 AND decision_id = $2`,
			o.ID, o.DecisionID, o.Name, o.Status, o.Options,
		)
		if err != nil {
			return apperrors.Storage("update object", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.NotFound("object %s for decision %s", o.ID, o.DecisionID)
		}

		if _, err := tx.Exec(ctx, `UPDATE decision SET updated_at = now() WHERE id = $1`, o.DecisionID); err != nil {
			return apperrors.Storage("touch decision", err)
		}

		return insertAuditTx(ctx, tx, entry)
	})
}

// RemoveObject deletes an object and closes the gap it leaves so
// order_index stays zero-based and dense
func (r *DecisionRepository) RemoveObject(ctx context.Context, decisionID, objectID uuid.UUID, entry *models.AuditLogEntry) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockEditableDecision(ctx, tx, decisionID); err != nil {
			return err
		}

		var removedIndex int
		err := tx.QueryRow(ctx,
			`DELETE FROM decision_object WHERE id = $1 AND decision_id = $2 RETURNING order_index`,
			objectID, decisionID,
		).Scan(&removedIndex)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("object %s for decision %s", objectID, decisionID)
		}
		if err != nil {
			return apperrors.Storage("delete object", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE decision_object SET order_index = order_index - 1 WHERE decision_id = $1 AND order_index > $2`,
			decisionID, removedIndex,
		)
		if err != nil {
			return apperrors.Storage("resequence objects", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE decision SET updated_at = now() WHERE id = $1`, decisionID); err != nil {
			return apperrors.Storage("touch decision", err)
		}

		return insertAuditTx(ctx, tx, entry)
	})
}

// ReorderObjects assigns order_index 0..n-1 following orderedIDs, which must
// be a permutation of the decision's current object ids
func (r *DecisionRepository) ReorderObjects(ctx context.Context, decisionID uuid.UUID, orderedIDs []uuid.UUID, entry *models.AuditLogEntry) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockEditableDecision(ctx, tx, decisionID); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT id FROM decision_object WHERE decision_id = $1`, decisionID)
		if err != nil {
			return apperrors.Storage("list object ids", err)
		}

		existing := make(map[uuid.UUID]bool)
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return apperrors.Storage("scan object id", err)
			}
			existing[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return apperrors.Storage("iterate object ids", err)
		}

		if len(orderedIDs) != len(existing) {
			return apperrors.InvalidArgument("reorder must list all %d objects, got %d", len(existing), len(orderedIDs))
		}
		seen := make(map[uuid.UUID]bool, len(orderedIDs))
		for _, id := range orderedIDs {
			if !existing[id] {
				return apperrors.InvalidArgument("object %s does not belong to decision %s", id, decisionID)
			}
			if seen[id] {
				return apperrors.InvalidArgument("object %s listed twice", id)
			}
			seen[id] = true
		}

		for idx, id := range orderedIDs {
			if _, err := tx.Exec(ctx,
				`UPDATE decision_object SET order_index = $3, updated_at = now() WHERE id = $1 AND decision_id = $2`,
				id, decisionID, idx,
			); err != nil {
				return apperrors.Storage("reorder object", err)
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE decision SET updated_at = now() WHERE id = $1`, decisionID); err != nil {
			return apperrors.Storage("touch decision", err)
		}

		return insertAuditTx(ctx, tx, entry)
	})
}
