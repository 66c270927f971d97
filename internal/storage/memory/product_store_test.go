package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/skuline/product-import/internal/catalog"
)

func TestProductStoreUpsertBatch(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()

	batch := map[string]catalog.Product{
		"abc": {SKU: "ABC", SKUNorm: "abc", Name: "First", Active: true},
		"def": {SKU: "DEF", SKUNorm: "def", Name: "Second", Active: true},
	}
	if err := store.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}
	if store.Count() != 2 {
		t.Fatalf("expected 2 products, got %d", store.Count())
	}

	first, err := store.GetBySKUNorm(ctx, "abc")
	if err != nil {
		t.Fatalf("GetBySKUNorm() error = %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}

	// Replaying an overlapping batch keeps identity and rewrites fields.
	if err := store.UpsertBatch(ctx, map[string]catalog.Product{
		"abc": {SKU: "abc", SKUNorm: "abc", Name: "Updated", Active: false},
	}); err != nil {
		t.Fatalf("UpsertBatch() replay error = %v", err)
	}
	updated, err := store.GetBySKUNorm(ctx, "abc")
	if err != nil {
		t.Fatalf("GetBySKUNorm() error = %v", err)
	}
	if updated.ID != first.ID {
		t.Fatalf("expected stable id across upserts, got %s and %s", first.ID, updated.ID)
	}
	if updated.Name != "Updated" || updated.Active {
		t.Fatalf("expected fields rewritten, got %+v", updated)
	}
	if !updated.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("expected created_at preserved")
	}
	if store.Count() != 2 {
		t.Fatalf("expected count unchanged, got %d", store.Count())
	}
}

func TestProductStoreUpdateRelocatesOnSKUChange(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()
	if err := store.UpsertBatch(ctx, map[string]catalog.Product{
		"old": {SKU: "OLD", SKUNorm: "old", Name: "Thing", Active: true},
	}); err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}
	p, err := store.GetBySKUNorm(ctx, "old")
	if err != nil {
		t.Fatalf("GetBySKUNorm() error = %v", err)
	}

	p.SKU = "NEW"
	p.SKUNorm = "new"
	if err := store.UpdateProduct(ctx, p); err != nil {
		t.Fatalf("UpdateProduct() error = %v", err)
	}

	if _, err := store.GetBySKUNorm(ctx, "old"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected old key gone, got %v", err)
	}
	moved, err := store.GetBySKUNorm(ctx, "new")
	if err != nil {
		t.Fatalf("GetBySKUNorm(new) error = %v", err)
	}
	if moved.ID != p.ID {
		t.Fatal("expected identity preserved across SKU change")
	}
}

func TestProductStoreDeleteAndGetByID(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()
	if err := store.UpsertBatch(ctx, map[string]catalog.Product{
		"abc": {SKU: "ABC", SKUNorm: "abc", Name: "Thing", Active: true},
	}); err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}
	p, err := store.GetBySKUNorm(ctx, "abc")
	if err != nil {
		t.Fatalf("GetBySKUNorm() error = %v", err)
	}

	byID, err := store.GetByID(ctx, p.ID)
	if err != nil || byID.SKUNorm != "abc" {
		t.Fatalf("GetByID() = %+v, %v", byID, err)
	}

	if err := store.DeleteByID(ctx, p.ID); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if err := store.DeleteByID(ctx, p.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}
