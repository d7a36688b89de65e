package persist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CatalogRepo struct {
	db *DB
}

func NewCatalogRepo(db *DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// Load returns the stored catalog sorted by name.
func (r *CatalogRepo) Load(ctx context.Context) ([]CatalogEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT name, fingerprint, field_names, field_kinds, row_size, updated_at
		 FROM schema_catalog ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var out []CatalogEntry
	for rows.Next() {
		var (
			e    CatalogEntry
			fp   int64
			size int32
		)
		if err := rows.Scan(&e.Name, &fp, &e.FieldNames, &e.FieldKinds, &size, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan catalog: %w", err)
		}
		e.Fingerprint = uint64(fp)
		e.RowSize = uint32(size)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Save replaces the stored catalog with entries in one transaction.
func (r *CatalogRepo) Save(ctx context.Context, entries []CatalogEntry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("catalog begin: %w", err)
	}
	defer tx.Rollback(ctx)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	if _, err := tx.Exec(ctx, `DELETE FROM schema_catalog WHERE NOT (name = ANY($1))`, names); err != nil {
		return fmt.Errorf("catalog prune: %w", err)
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO schema_catalog (name, fingerprint, field_names, field_kinds, row_size, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now())
			 ON CONFLICT (name) DO UPDATE SET
			     fingerprint = EXCLUDED.fingerprint,
			     field_names = EXCLUDED.field_names,
			     field_kinds = EXCLUDED.field_kinds,
			     row_size    = EXCLUDED.row_size,
			     updated_at  = CASE WHEN schema_catalog.fingerprint = EXCLUDED.fingerprint
			                        THEN schema_catalog.updated_at ELSE now() END`,
			e.Name, int64(e.Fingerprint), e.FieldNames, e.FieldKinds, int32(e.RowSize),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("catalog upsert: %w", err)
	}

	return tx.Commit(ctx)
}

// RecordRun stores a summary of one drift check.
func (r *CatalogRepo) RecordRun(ctx context.Context, world uuid.UUID, components int, d Drift) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO catalog_runs (world_id, components, added, removed, changed)
		 VALUES ($1, $2, $3, $4, $5)`,
		world, components, len(d.Added), len(d.Removed), len(d.Changed),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
