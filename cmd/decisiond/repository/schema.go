package repository

import (
	"context"
	"fmt"

	"github.com/atelierhq/decisions/common/db"
)

// schema is the engine's DDL, applied idempotently at startup via the
// bootstrap DB init hook.
//
// Invariants enforced here:
//   - decision_version: UNIQUE (decision_id, version_number) backs the
//     no-gaps monotonic counter; a violation under concurrency maps to a
//     conflict the caller retries.
//   - share_link: the partial unique index allows at most one active link
//     per (decision_id, access_scope).
//   - audit_log.seq: BIGSERIAL assigned at write time gives stable ordering
//     independent of clock resolution.
//   - decision_object.order_index density is enforced in code under the
//     decision row lock, not by a unique index, so reorders don't need
//     deferred constraints.
const schema = `
CREATE TABLE IF NOT EXISTS decision (
	id                 UUID PRIMARY KEY,
	project_id         UUID NOT NULL,
	title              TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	owner_id           UUID,
	status             TEXT NOT NULL DEFAULT 'draft',
	due_date           TIMESTAMPTZ,
	tags               TEXT[] NOT NULL DEFAULT '{}',
	metadata           JSONB NOT NULL DEFAULT '{}',
	current_version_id UUID,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_decision_project ON decision (project_id);

CREATE TABLE IF NOT EXISTS decision_version (
	id             UUID PRIMARY KEY,
	decision_id    UUID NOT NULL REFERENCES decision(id) ON DELETE CASCADE,
	version_number INT NOT NULL CHECK (version_number > 0),
	snapshot       JSONB NOT NULL,
	note           TEXT,
	author_id      UUID,
	author_name    TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (decision_id, version_number)
);

CREATE TABLE IF NOT EXISTS decision_object (
	id          UUID PRIMARY KEY,
	decision_id UUID NOT NULL REFERENCES decision(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'open',
	order_index INT NOT NULL,
	options     JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_decision_object_decision
	ON decision_object (decision_id, order_index);

CREATE TABLE IF NOT EXISTS audit_log (
	id          UUID PRIMARY KEY,
	seq         BIGSERIAL UNIQUE,
	decision_id UUID NOT NULL REFERENCES decision(id) ON DELETE CASCADE,
	version_id  UUID,
	action      TEXT NOT NULL,
	user_id     UUID,
	user_name   TEXT NOT NULL DEFAULT '',
	details     JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_log_decision ON audit_log (decision_id, seq DESC);

CREATE TABLE IF NOT EXISTS share_link (
	id           UUID PRIMARY KEY,
	decision_id  UUID NOT NULL REFERENCES decision(id) ON DELETE CASCADE,
	token        TEXT NOT NULL UNIQUE,
	access_scope TEXT NOT NULL,
	expires_at   TIMESTAMPTZ,
	created_by   UUID,
	is_active    BOOLEAN NOT NULL DEFAULT true,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_share_link_active_scope
	ON share_link (decision_id, access_scope) WHERE is_active;
`

// ApplySchema creates all engine tables if they do not exist
func ApplySchema(database *db.DB) error {
	if _, err := database.Exec(context.Background(), schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
