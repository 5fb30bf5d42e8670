package postgres

import (
	"context"
	"fmt"
)

// Schema is the DDL this store expects. EnsureSchema applies it with
// IF NOT EXISTS guards; production deployments may prefer to run it through
// their own migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS entitlements (
	user_id           TEXT PRIMARY KEY,
	credits_available BIGINT NOT NULL DEFAULT 0 CHECK (credits_available >= 0),
	plan_tier         TEXT NOT NULL DEFAULT 'free',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feature_usage (
	user_id     TEXT NOT NULL,
	feature     TEXT NOT NULL,
	usage_count INTEGER NOT NULL DEFAULT 0,
	usage_limit INTEGER,
	PRIMARY KEY (user_id, feature)
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id      TEXT NOT NULL,
	feature      TEXT NOT NULL DEFAULT '',
	delta        INTEGER NOT NULL,
	reference_id TEXT NOT NULL DEFAULT '',
	metadata     JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS credit_transactions_user_created_idx
	ON credit_transactions (user_id, created_at DESC);

CREATE UNIQUE INDEX IF NOT EXISTS credit_transactions_user_reference_idx
	ON credit_transactions (user_id, reference_id)
	WHERE reference_id <> '' AND delta > 0;

CREATE TABLE IF NOT EXISTS generated_artifacts (
	id         UUID NOT NULL DEFAULT gen_random_uuid(),
	user_id    TEXT NOT NULL,
	feature    TEXT NOT NULL,
	source     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, feature)
);
`

// EnsureSchema creates the expected tables and indexes if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
