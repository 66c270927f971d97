// Package products handles direct catalog mutations outside the bulk
// import pipeline. Each mutation fires the matching webhook event.
package products

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/catalog"
	"github.com/skuline/product-import/internal/queue"
)

// ErrInvalidInput marks a mutation rejected before touching the store.
var ErrInvalidInput = errors.New("invalid product input")

// Input carries the mutable product fields. Active is optional; a nil
// pointer keeps the current value on update and defaults to true on create.
type Input struct {
	SKU         string
	Name        string
	Description string
	Active      *bool
}

func (in Input) validate() error {
	if strings.TrimSpace(in.SKU) == "" {
		return fmt.Errorf("%w: sku is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return nil
}

// Service applies single-product mutations and enqueues webhook events.
type Service struct {
	store  catalog.ProductStore
	tasks  catalog.Queue
	clock  catalog.Clock
	logger *zap.Logger
}

// New constructs a Service.
func New(store catalog.ProductStore, tasks catalog.Queue, clock catalog.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tasks: tasks, clock: clock, logger: logger}
}

// Get fetches one product by its identifier.
func (s *Service) Get(ctx context.Context, id string) (catalog.Product, error) {
	return s.store.GetByID(ctx, id)
}

// Create writes a new product through the same conflict-aware upsert path
// the import pipeline uses, then fires product.created. Creating over an
// existing normalized SKU overwrites it, matching import semantics.
func (s *Service) Create(ctx context.Context, in Input) (catalog.Product, error) {
	if err := in.validate(); err != nil {
		return catalog.Product{}, err
	}

	p := catalog.Product{
		SKU:         strings.TrimSpace(in.SKU),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Active:      true,
	}
	p.SKUNorm = catalog.NormalizeSKU(p.SKU)
	if in.Active != nil {
		p.Active = *in.Active
	}

	if err := s.store.UpsertBatch(ctx, map[string]catalog.Product{p.SKUNorm: p}); err != nil {
		return catalog.Product{}, fmt.Errorf("create product: %w", err)
	}
	stored, err := s.store.GetBySKUNorm(ctx, p.SKUNorm)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("read back created product: %w", err)
	}

	s.enqueueEvent(ctx, catalog.EventProductCreated, stored)
	return stored, nil
}

// Update rewrites an existing product and fires product.updated.
func (s *Service) Update(ctx context.Context, id string, in Input) (catalog.Product, error) {
	if err := in.validate(); err != nil {
		return catalog.Product{}, err
	}

	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return catalog.Product{}, err
	}

	p.SKU = strings.TrimSpace(in.SKU)
	p.SKUNorm = catalog.NormalizeSKU(p.SKU)
	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)
	if in.Active != nil {
		p.Active = *in.Active
	}

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return catalog.Product{}, fmt.Errorf("update product: %w", err)
	}
	stored, err := s.store.GetByID(ctx, id)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("read back updated product: %w", err)
	}

	s.enqueueEvent(ctx, catalog.EventProductUpdated, stored)
	return stored, nil
}

// Delete removes a product. No webhook event fires for deletion.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteByID(ctx, id)
}

// enqueueEvent hands the webhook fan-out to the task queue. The mutation
// has already committed, so an enqueue failure is logged, not surfaced.
func (s *Service) enqueueEvent(ctx context.Context, eventType catalog.EventType, p catalog.Product) {
	payload := map[string]any{
		"type": string(eventType),
		"product": map[string]any{
			"id":          p.ID,
			"sku":         p.SKU,
			"name":        p.Name,
			"description": p.Description,
			"active":      p.Active,
		},
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
	}
	task := queue.NewWebhookTask(eventType, payload, s.clock.Now())
	if err := s.tasks.Enqueue(ctx, task); err != nil {
		s.logger.Error("enqueue product event failed",
			zap.String("event_type", string(eventType)),
			zap.String("product_id", p.ID),
			zap.Error(err),
		)
	}
}
