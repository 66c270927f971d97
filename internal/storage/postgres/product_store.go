// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuline/product-import/internal/catalog"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ProductStore implements catalog.ProductStore on Postgres.
type ProductStore struct {
	pool db
}

// NewProductStore connects a pool for the product tables.
func NewProductStore(ctx context.Context, dsn string) (*ProductStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &ProductStore{pool: pool}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewProductStoreWithPool(pool db) *ProductStore {
	return &ProductStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	s.pool.Close()
}

// UpsertBatch applies one deduplicated batch as a single multi-row insert
// with ON CONFLICT on the normalized SKU. Replaying the identical batch
// produces the same final state. Database failures propagate uncaught.
func (s *ProductStore) UpsertBatch(ctx context.Context, batch map[string]catalog.Product) error {
	if len(batch) == 0 {
		return nil
	}

	keys := make([]string, 0, len(batch))
	for key := range batch {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	skus := make([]string, 0, len(keys))
	norms := make([]string, 0, len(keys))
	names := make([]string, 0, len(keys))
	descriptions := make([]string, 0, len(keys))
	actives := make([]bool, 0, len(keys))
	for _, key := range keys {
		p := batch[key]
		skus = append(skus, p.SKU)
		norms = append(norms, p.SKUNorm)
		names = append(names, p.Name)
		descriptions = append(descriptions, p.Description)
		actives = append(actives, p.Active)
	}

	query := `
		INSERT INTO products (id, sku, sku_norm, name, description, active, created_at, updated_at)
		SELECT gen_random_uuid(), u.sku, u.sku_norm, u.name, u.description, u.active, now(), now()
		FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::boolean[])
			AS u(sku, sku_norm, name, description, active)
		ON CONFLICT (sku_norm) DO UPDATE
		SET sku = EXCLUDED.sku,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			updated_at = now();
	`
	if _, err := s.pool.Exec(ctx, query, skus, norms, names, descriptions, actives); err != nil {
		return fmt.Errorf("upsert product batch: %w", err)
	}
	return nil
}

// GetBySKUNorm fetches a single product by its normalized SKU.
func (s *ProductStore) GetBySKUNorm(ctx context.Context, skuNorm string) (catalog.Product, error) {
	query := `
		SELECT id, sku, sku_norm, name, description, active, created_at, updated_at
		FROM products
		WHERE sku_norm = $1;
	`
	var p catalog.Product
	err := s.pool.QueryRow(ctx, query, skuNorm).Scan(
		&p.ID,
		&p.SKU,
		&p.SKUNorm,
		&p.Name,
		&p.Description,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, catalog.ErrNotFound
		}
		return catalog.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetByID fetches a single product by its identifier.
func (s *ProductStore) GetByID(ctx context.Context, id string) (catalog.Product, error) {
	query := `
		SELECT id, sku, sku_norm, name, description, active, created_at, updated_at
		FROM products
		WHERE id = $1;
	`
	var p catalog.Product
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.SKU,
		&p.SKUNorm,
		&p.Name,
		&p.Description,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, catalog.ErrNotFound
		}
		return catalog.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// UpdateProduct rewrites one product row by its identifier.
func (s *ProductStore) UpdateProduct(ctx context.Context, p catalog.Product) error {
	query := `
		UPDATE products
		SET sku = $1, sku_norm = $2, name = $3, description = $4, active = $5, updated_at = now()
		WHERE id = $6;
	`
	tag, err := s.pool.Exec(ctx, query, p.SKU, p.SKUNorm, p.Name, p.Description, p.Active, p.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// DeleteByID removes a product row.
func (s *ProductStore) DeleteByID(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
