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

// DecisionRepository handles database operations for decisions and their
// live objects
type DecisionRepository struct {
	db *db.DB
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(database *db.DB) *DecisionRepository {
	return &DecisionRepository{db: database}
}

const decisionColumns = `
	id, project_id, title, description, category, owner_id, status,
	due_date, tags, metadata, current_version_id, created_at, updated_at
`

func scanDecision(row pgx.Row) (*models.Decision, error) {
	d := &models.Decision{}
	err := row.Scan(
		&d.ID,
		&d.ProjectID,
		&d.Title,
		&d.Description,
		&d.Category,
		&d.OwnerID,
		&d.Status,
		&d.DueDate,
		&d.Tags,
		&d.Metadata,
		&d.CurrentVersionID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Create inserts a new decision together with its implicit version 1 and the
// creation audit entry, in one transaction.
func (r *DecisionRepository) Create(ctx context.Context, d *models.Decision, v1 *models.DecisionVersion, entry *models.AuditLogEntry) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO decision (id, project_id, title, description, category, owner_id, status, due_date, tags, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
			d.ID,
			d.ProjectID,
			d.Title,
			d.Description,
			d.Category,
			d.OwnerID,
			d.Status,
			d.DueDate,
			d.Tags,
			d.Metadata,
			d.CreatedAt,
		)
		if err != nil {
			return apperrors.Storage("insert decision", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO decision_version (id, decision_id, version_number, snapshot, note, author_id, author_name, created_at)
			VALUES ($1, $2, 1, $3, $4, $5, $6, $7)`,
			v1.ID,
			d.ID,
			v1.Snapshot,
			v1.Note,
			v1.AuthorID,
			v1.AuthorName,
			v1.CreatedAt,
		)
		if err != nil {
			return apperrors.Storage("insert first version", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE decision SET current_version_id = $2 WHERE id = $1`,
			d.ID, v1.ID,
		)
		if err != nil {
			return apperrors.Storage("set current version pointer", err)
		}
		d.CurrentVersionID = &v1.ID

		entry.VersionID = &v1.ID
		return insertAuditTx(ctx, tx, entry)
	})
}

// GetByID retrieves a decision by id
func (r *DecisionRepository) GetByID(ctx context.Context, decisionID uuid.UUID) (*models.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decision WHERE id = $1`

	d, err := scanDecision(r.db.QueryRow(ctx, query, decisionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("decision %s", decisionID)
	}
	if err != nil {
		return nil, apperrors.Storage("get decision", err)
	}

	return d, nil
}

// GetAggregate retrieves a decision with its current version and live
// objects embedded
func (r *DecisionRepository) GetAggregate(ctx context.Context, decisionID uuid.UUID) (*models.Aggregate, error) {
	d, err := r.GetByID(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	agg := &models.Aggregate{Decision: *d}

	if d.CurrentVersionID != nil {
		v := &models.DecisionVersion{}
		err := r.db.QueryRow(ctx, `
			SELECT id, decision_id, version_number, snapshot, note, author_id, author_name, created_at
			FROM decision_version
			WHERE id = $1`,
			*d.CurrentVersionID,
		).Scan(&v.ID, &v.DecisionID, &v.VersionNumber, &v.Snapshot, &v.Note, &v.AuthorID, &v.AuthorName, &v.CreatedAt)
		if err != nil {
			return nil, apperrors.Storage("get current version", err)
		}
		agg.CurrentVersion = v
	}

	agg.Objects, err = r.listObjects(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	return agg, nil
}

// ListByProject retrieves all decisions in a project, most recently updated
// first
func (r *DecisionRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decision WHERE project_id = $1 ORDER BY updated_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, apperrors.Storage("list decisions", err)
	}
	defer rows.Close()

	var decisions []*models.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, apperrors.Storage("scan decision", err)
		}
		decisions = append(decisions, d)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterate decisions", err)
	}

	return decisions, nil
}

// UpdateStatus transitions a decision from one status to another, guarded by
// the expected current status, and writes the audit entry atomically.
// Returns ErrConflict if another transition won the race.
func (r *DecisionRepository) UpdateStatus(ctx context.Context, decisionID uuid.UUID, from, to models.DecisionStatus, entry *models.AuditLogEntry) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE decision SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
			decisionID, from, to,
		)
		if err != nil {
			return apperrors.Storage("update status", err)
		}

		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM decision WHERE id = $1)`, decisionID).Scan(&exists); err != nil {
				return apperrors.Storage("check decision existence", err)
			}
			if !exists {
				return apperrors.NotFound("decision %s", decisionID)
			}
			return apperrors.Conflict("decision %s no longer in status %s", decisionID, from)
		}

		return insertAuditTx(ctx, tx, entry)
	})
}
