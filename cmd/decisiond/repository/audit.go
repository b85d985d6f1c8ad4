package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
	"github.com/atelierhq/decisions/common/db"
)

// AuditRepository handles database operations for the append-only audit log
type AuditRepository struct {
	db *db.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(database *db.DB) *AuditRepository {
	return &AuditRepository{db: database}
}

const auditInsertQuery = `
	INSERT INTO audit_log (id, decision_id, version_id, action, user_id, user_name, details, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING seq
`

// insertAuditTx appends an entry inside an existing transaction, assigning
// its sequence number. Every mutating repository operation calls this so the
// entry commits or rolls back with the mutation it describes.
func insertAuditTx(ctx context.Context, tx pgx.Tx, e *models.AuditLogEntry) error {
	err := tx.QueryRow(ctx, auditInsertQuery,
		e.ID,
		e.DecisionID,
		e.VersionID,
		e.Action,
		e.UserID,
		e.UserName,
		e.Details,
		e.CreatedAt,
	).Scan(&e.Seq)

	if err != nil {
		return apperrors.Storage("insert audit entry", err)
	}

	return nil
}

// Insert appends a standalone entry (one not tied to another mutation).
// Fails with ErrNotFound if the decision does not exist.
func (r *AuditRepository) Insert(ctx context.Context, e *models.AuditLogEntry) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM decision WHERE id = $1)`, e.DecisionID).Scan(&exists)
		if err != nil {
			return apperrors.Storage("check decision existence", err)
		}
		if !exists {
			return apperrors.NotFound("decision %s", e.DecisionID)
		}

		return insertAuditTx(ctx, tx, e)
	})
}

// List retrieves entries for a decision, newest first
func (r *AuditRepository) List(ctx context.Context, decisionID uuid.UUID, limit int) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, seq, decision_id, version_id, action, user_id, user_name, details, created_at
		FROM audit_log
		WHERE decision_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, decisionID, limit)
	if err != nil {
		return nil, apperrors.Storage("list audit entries", err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		e := &models.AuditLogEntry{}
		err := rows.Scan(
			&e.ID,
			&e.Seq,
			&e.DecisionID,
			&e.VersionID,
			&e.Action,
			&e.UserID,
			&e.UserName,
			&e.Details,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Storage("scan audit entry", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterate audit entries", err)
	}

	return entries, nil
}

// DecisionExists reports whether a decision row exists
func (r *AuditRepository) DecisionExists(ctx context.Context, decisionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM decision WHERE id = $1)`, decisionID).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, apperrors.Storage("check decision existence", err)
	}
	return exists, nil
}
