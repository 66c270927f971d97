package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skuline/product-import/internal/catalog"
)

// ProductStore holds products keyed by normalized SKU.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
}

// NewProductStore constructs an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{products: make(map[string]catalog.Product)}
}

// UpsertBatch applies a deduplicated batch, last-writer-wins per key.
func (s *ProductStore) UpsertBatch(_ context.Context, batch map[string]catalog.Product) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for key, p := range batch {
		existing, ok := s.products[key]
		if ok {
			p.ID = existing.ID
			p.CreatedAt = existing.CreatedAt
		} else {
			p.ID = uuid.NewString()
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		s.products[key] = p
	}
	return nil
}

// GetBySKUNorm fetches a product by normalized SKU.
func (s *ProductStore) GetBySKUNorm(_ context.Context, skuNorm string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[skuNorm]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

// GetByID fetches a product by its identifier.
func (s *ProductStore) GetByID(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

// UpdateProduct rewrites a product in place by its identifier. The map key
// follows the normalized SKU, so a SKU change relocates the entry.
func (s *ProductStore) UpdateProduct(_ context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, existing := range s.products {
		if existing.ID == p.ID {
			p.CreatedAt = existing.CreatedAt
			p.UpdatedAt = time.Now().UTC()
			if key != p.SKUNorm {
				delete(s.products, key)
			}
			s.products[p.SKUNorm] = p
			return nil
		}
	}
	return catalog.ErrNotFound
}

// DeleteByID removes a product by its identifier.
func (s *ProductStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.products {
		if p.ID == id {
			delete(s.products, key)
			return nil
		}
	}
	return catalog.ErrNotFound
}

// Count reports how many products the store holds.
func (s *ProductStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}
