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

// ShareLinkRepository handles database operations for share links
type ShareLinkRepository struct {
	db *db.DB
}

// NewShareLinkRepository creates a new share link repository
func NewShareLinkRepository(database *db.DB) *ShareLinkRepository {
	return &ShareLinkRepository{db: database}
}

const shareLinkColumns = `
	id, decision_id, token, access_scope, expires_at, created_by, is_active, created_at
`

func scanShareLink(row pgx.Row) (*models.ShareLink, error) {
	l := &models.ShareLink{}
	err := row.Scan(
		&l.ID,
		&l.DecisionID,
		&l.Token,
		&l.AccessScope,
		&l.ExpiresAt,
		&l.CreatedBy,
		&l.IsActive,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// IssueExclusive activates link after deactivating any currently active link
// for the same (decision_id, access_scope), all in one transaction. Returns
// the ids of the links it deactivated.
//
// The decision row lock serializes concurrent reissues; the partial unique
// index on (decision_id, access_scope) WHERE is_active is the backstop, and
// a violation there surfaces as ErrConflict.
func (r *ShareLinkRepository) IssueExclusive(ctx context.Context, link *models.ShareLink, issued *models.AuditLogEntry, actor models.Actor) ([]uuid.UUID, error) {
	var revoked []uuid.UUID

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM decision WHERE id = $1 FOR UPDATE`, link.DecisionID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("decision %s", link.DecisionID)
		}
		if err != nil {
			return apperrors.Storage("lock decision", err)
		}

		rows, err := tx.Query(ctx, `
			UPDATE share_link SET is_active = false
			WHERE decision_id = $1 AND access_scope = $2 AND is_active
			RETURNING id`,
			link.DecisionID, link.AccessScope,
		)
		if err != nil {
			return apperrors.Storage("deactivate prior links", err)
		}
		revoked = revoked[:0]
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return apperrors.Storage("scan deactivated link", err)
			}
			revoked = append(revoked, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return apperrors.Storage("iterate deactivated links", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO share_link (id, decision_id, token, access_scope, expires_at, created_by, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, true, $7)`,
			link.ID, link.DecisionID, link.Token, link.AccessScope, link.ExpiresAt, link.CreatedBy, link.CreatedAt,
		)
		if apperrors.IsUniqueViolation(err) {
			return apperrors.Conflict("concurrent reissue for decision %s scope %s", link.DecisionID, link.AccessScope)
		}
		if err != nil {
			return apperrors.Storage("insert share link", err)
		}
		link.IsActive = true

		for _, id := range revoked {
			entry := models.NewAuditEntry(link.DecisionID, models.ActionShareLinkRevoked, map[string]any{
				"share_link_id": id.String(),
				"access_scope":  string(link.AccessScope),
				"reason":        "reissued",
			}, actor, nil)
			if err := insertAuditTx(ctx, tx, entry); err != nil {
				return err
			}
		}

		return insertAuditTx(ctx, tx, issued)
	})
	if err != nil {
		return nil, err
	}

	return revoked, nil
}

// Revoke deactivates a link. Idempotent: revoking an already-inactive link
// is a no-op success and writes no audit entry. Returns whether the link
// state changed.
func (r *ShareLinkRepository) Revoke(ctx context.Context, linkID uuid.UUID, actor models.Actor) (bool, error) {
	changed := false

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		link, err := scanShareLink(tx.QueryRow(ctx,
			`SELECT `+shareLinkColumns+` FROM share_link WHERE id = $1 FOR UPDATE`,
			linkID,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("share link %s", linkID)
		}
		if err != nil {
			return apperrors.Storage("get share link", err)
		}

		if !link.IsActive {
			return nil
		}

		if _, err := tx.Exec(ctx, `UPDATE share_link SET is_active = false WHERE id = $1`, linkID); err != nil {
			return apperrors.Storage("deactivate share link", err)
		}
		changed = true

		entry := models.NewAuditEntry(link.DecisionID, models.ActionShareLinkRevoked, map[string]any{
			"share_link_id": linkID.String(),
			"access_scope":  string(link.AccessScope),
		}, actor, nil)
		return insertAuditTx(ctx, tx, entry)
	})

	return changed, err
}

// GetByID retrieves a share link by id
func (r *ShareLinkRepository) GetByID(ctx context.Context, linkID uuid.UUID) (*models.ShareLink, error) {
	link, err := scanShareLink(r.db.QueryRow(ctx,
		`SELECT `+shareLinkColumns+` FROM share_link WHERE id = $1`,
		linkID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("share link %s", linkID)
	}
	if err != nil {
		return nil, apperrors.Storage("get share link", err)
	}
	return link, nil
}

// GetByToken retrieves a share link by its token
func (r *ShareLinkRepository) GetByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	link, err := scanShareLink(r.db.QueryRow(ctx,
		`SELECT `+shareLinkColumns+` FROM share_link WHERE token = $1`,
		token,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("share token")
	}
	if err != nil {
		return nil, apperrors.Storage("get share link by token", err)
	}
	return link, nil
}

// ListByDecision retrieves all share links of a decision, newest first
func (r *ShareLinkRepository) ListByDecision(ctx context.Context, decisionID uuid.UUID) ([]*models.ShareLink, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+shareLinkColumns+` FROM share_link WHERE decision_id = $1 ORDER BY created_at DESC`,
		decisionID,
	)
	if err != nil {
		return nil, apperrors.Storage("list share links", err)
	}
	defer rows.Close()

	var links []*models.ShareLink
	for rows.Next() {
		l, err := scanShareLink(rows)
		if err != nil {
			return nil, apperrors.Storage("scan share link", err)
		}
		links = append(links, l)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterate share links", err)
	}

	return links, nil
}
