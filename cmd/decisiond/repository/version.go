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

// VersionRepository handles database operations for decision versions
type VersionRepository struct {
	db *db.DB
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(database *db.DB) *VersionRepository {
	return &VersionRepository{db: database}
}

// Insert appends a new version for v.DecisionID with the next version
// number, re-points the decision's current_version_id, and writes the audit
// entry, all in one transaction.
//
// The decision row is locked first, which serializes concurrent version
// creation per decision; the (decision_id, version_number) unique constraint
// is the backstop, mapped to ErrConflict so callers can retry.
func (r *VersionRepository) Insert(ctx context.Context, v *models.DecisionVersion, entry *models.AuditLogEntry) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var status models.DecisionStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM decision WHERE id = $1 FOR UPDATE`,
			v.DecisionID,
		).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("decision %s", v.DecisionID)
		}
		if err != nil {
			return apperrors.Storage("lock decision", err)
		}

		if !status.Editable() {
			return apperrors.InvalidStateTransition("decision %s is archived", v.DecisionID)
		}

		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version_number), 0) + 1 FROM decision_version WHERE decision_id = $1`,
			v.DecisionID,
		).Scan(&v.VersionNumber)
		if err != nil {
			return apperrors.Storage("next version number", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO decision_version (id, decision_id, version_number, snapshot, note, author_id, author_name, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			v.ID,
			v.DecisionID,
			v.VersionNumber,
			v.Snapshot,
			v.Note,
			v.AuthorID,
			v.AuthorName,
			v.CreatedAt,
		)
		if apperrors.IsUniqueViolation(err) {
			return apperrors.Conflict("version number %d already taken for decision %s", v.VersionNumber, v.DecisionID)
		}
		if err != nil {
			return apperrors.Storage("insert version", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE decision
			SET current_version_id = $2,
			    title = $3, description = $4, category = $5, due_date = $6, tags = $7, metadata = $8,
			    updated_at = now()
			WHERE id = $1`,
			v.DecisionID,
			v.ID,
			v.Snapshot.Title,
			v.Snapshot.Description,
			v.Snapshot.Category,
			v.Snapshot.DueDate,
			v.Snapshot.Tags,
			v.Snapshot.Metadata,
		)
		if err != nil {
			return apperrors.Storage("update current version pointer", err)
		}

		entry.VersionID = &v.ID
		entry.Details["version_number"] = v.VersionNumber
		return insertAuditTx(ctx, tx, entry)
	})
}

// GetByID retrieves a version by id, verifying it belongs to decisionID.
// A version owned by a different decision is reported as not found.
func (r *VersionRepository) GetByID(ctx context.Context, decisionID, versionID uuid.UUID) (*models.DecisionVersion, error) {
	query := `
		SELECT id, decision_id, version_number, snapshot, note, author_id, author_name, created_at
		FROM decision_version
		WHERE id = $1 AND decision_id = $2
	`

	v := &models.DecisionVersion{}
	err := r.db.QueryRow(ctx, query, versionID, decisionID).Scan(
		&v.ID,
		&v.DecisionID,
		&v.VersionNumber,
		&v.Snapshot,
		&v.Note,
		&v.AuthorID,
		&v.AuthorName,
		&v.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("version %s for decision %s", versionID, decisionID)
	}
	if err != nil {
		return nil, apperrors.Storage("get version", err)
	}

	return v, nil
}

// ListByDecision retrieves all versions of a decision, ordered by
// version_number ascending. A fresh call always re-reads current state.
func (r *VersionRepository) ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]*models.DecisionVersion, error) {
	query := `
		SELECT id, decision_id, version_number, snapshot, note, author_id, author_name, created_at
		FROM decision_version
		WHERE decision_id = $1
		ORDER BY version_number ASC
	`

	rows, err := r.db.Query(ctx, query, decisionID)
	if err != nil {
		return nil, apperrors.Storage("list versions", err)
	}
	defer rows.Close()

	var versions []*models.DecisionVersion
	for rows.Next() {
		v := &models.DecisionVersion{}
		err := rows.Scan(
			&v.ID,
			&v.DecisionID,
			&v.VersionNumber,
			&v.Snapshot,
			&v.Note,
			&v.AuthorID,
			&v.AuthorName,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Storage("scan version", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterate versions", err)
	}

	return versions, nil
}
