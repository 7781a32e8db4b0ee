// Package postgres stores authentication flows in PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registry implements ports.FlowRegistry, FlowLister and FlowWriter on a pgx connection pool.
// Each flow is one row keyed by (realm, name) holding its definition as JSONB.
type Registry struct {
	db *pgxpool.Pool
}

// New creates a new Registry backed by the given pgx connection pool.
func New(db *pgxpool.Pool) *Registry {
	return &Registry{db: db}
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Registry, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(pool), nil
}

// Close releases the pool.
func (r *Registry) Close() {
	r.db.Close()
}

// GetFlow loads and validates the flow (realm, name).
func (r *Registry) GetFlow(ctx context.Context, realm, name string) (*domain.Flow, error) {
	var data []byte
	err := r.db.QueryRow(ctx,
		`SELECT definition FROM auth_flows WHERE realm = $1 AND name = $2`,
		realm, name,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlowNotFound
		}
		return nil, fmt.Errorf("postgres: get flow: %w", err)
	}

	var def domain.FlowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("postgres: decode flow %s: %w", name, err)
	}
	return domain.NewFlow(def)
}

// SaveFlow upserts the flow, bumping its version.
func (r *Registry) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	data, err := json.Marshal(flow.Definition())
	if err != nil {
		return fmt.Errorf("postgres: encode flow: %w", err)
	}

	_, err = r.db.Exec(ctx, `
INSERT INTO auth_flows (realm, name, definition)
VALUES ($1, $2, $3)
ON CONFLICT (realm, name) DO UPDATE
SET definition = EXCLUDED.definition,
    version    = auth_flows.version + 1,
    updated_at = NOW()`,
		flow.Realm(), flow.Name(), data,
	)
	if err != nil {
		return fmt.Errorf("postgres: save flow %s: %w", flow.Name(), err)
	}
	return nil
}

// ListFlows returns the flow names of realm, sorted.
func (r *Registry) ListFlows(ctx context.Context, realm string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name FROM auth_flows WHERE realm = $1 ORDER BY name`,
		realm,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list flows: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list flows: %w", err)
	}
	return names, nil
}

// DeleteFlow removes the flow (realm, name). Missing flows are not an error.
func (r *Registry) DeleteFlow(ctx context.Context, realm, name string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM auth_flows WHERE realm = $1 AND name = $2`, realm, name)
	if err != nil {
		return fmt.Errorf("postgres: delete flow: %w", err)
	}
	return nil
}
