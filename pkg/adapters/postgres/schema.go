package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS auth_flows (
    realm      TEXT        NOT NULL,
    name       TEXT        NOT NULL,
    definition JSONB       NOT NULL,
    version    INTEGER     NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (realm, name)
);
`

// CreateSchema creates the auth_flows table if it doesn't exist.
func (r *Registry) CreateSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the auth_flows table.
func (r *Registry) DropSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `DROP TABLE IF EXISTS auth_flows;`)
	return err
}
