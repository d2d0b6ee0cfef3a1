package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested asset-state row does not exist.
var ErrNotFound = errors.New("asset state: not found")

// State is the durable record of one installed asset (spec.md §3 "Asset
// state"): which local file backs (enrichmentName, uri) right now, and the
// content hash it was installed with.
type State struct {
	EnrichmentName string
	URI            string
	LocalPath      string
	ContentHash    string
}

// Store is the persistence abstraction the asset manager uses to avoid
// re-downloading unchanged assets across process restarts.
type Store interface {
	Get(ctx context.Context, enrichmentName, uri string) (State, error)
	Upsert(ctx context.Context, s State) error
	Ping(ctx context.Context) error
}

// PGStore persists asset state in Postgres, grounded on
// kernel/internal/audit/pg_store.go's *sql.DB, context-scoped query style.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed asset state store. The caller owns
// db's lifecycle (open/close), same convention as the teacher's NewPGStore.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Get returns the currently-installed state for (enrichmentName, uri), or
// ErrNotFound if no asset has ever been installed for that pair.
func (p *PGStore) Get(ctx context.Context, enrichmentName, uri string) (State, error) {
	const q = `SELECT local_path, content_hash FROM enrichment_asset_state WHERE enrichment_name = $1 AND asset_uri = $2`
	var s State
	s.EnrichmentName = enrichmentName
	s.URI = uri
	err := p.db.QueryRowContext(ctx, q, enrichmentName, uri).Scan(&s.LocalPath, &s.ContentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("query asset state: %w", err)
	}
	return s, nil
}

// Upsert records the local path and content hash currently installed for
// (enrichmentName, uri), overwriting any prior row.
func (p *PGStore) Upsert(ctx context.Context, s State) error {
	const q = `
		INSERT INTO enrichment_asset_state (enrichment_name, asset_uri, local_path, content_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (enrichment_name, asset_uri)
		DO UPDATE SET local_path = EXCLUDED.local_path, content_hash = EXCLUDED.content_hash
	`
	_, err := p.db.ExecContext(ctx, q, s.EnrichmentName, s.URI, s.LocalPath, s.ContentHash)
	if err != nil {
		return fmt.Errorf("upsert asset state: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store, used when no database is configured (the
// manager then re-fetches every asset on every process start, which is
// always correct — just not durable across restarts).
type MemStore struct {
	rows map[string]State
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{rows: map[string]State{}}
}

func memKey(enrichmentName, uri string) string { return enrichmentName + "|" + uri }

// Get implements Store.
func (m *MemStore) Get(_ context.Context, enrichmentName, uri string) (State, error) {
	s, ok := m.rows[memKey(enrichmentName, uri)]
	if !ok {
		return State{}, ErrNotFound
	}
	return s, nil
}

// Upsert implements Store.
func (m *MemStore) Upsert(_ context.Context, s State) error {
	m.rows[memKey(s.EnrichmentName, s.URI)] = s
	return nil
}

// Ping implements Store.
func (m *MemStore) Ping(_ context.Context) error { return nil }
