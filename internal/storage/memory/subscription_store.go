package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skuline/product-import/internal/catalog"
)

// SubscriptionStore holds webhook subscriptions in memory.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]catalog.Subscription
}

// NewSubscriptionStore constructs an empty SubscriptionStore.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[string]catalog.Subscription)}
}

// CreateSubscription stores a new subscription.
func (s *SubscriptionStore) CreateSubscription(_ context.Context, sub catalog.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[sub.ID]; exists {
		return fmt.Errorf("subscription %s already exists", sub.ID)
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	s.subs[sub.ID] = sub
	return nil
}

// GetSubscription fetches one subscription by ID.
func (s *SubscriptionStore) GetSubscription(_ context.Context, id string) (catalog.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return catalog.Subscription{}, catalog.ErrNotFound
	}
	return sub, nil
}

// ListSubscriptions returns every subscription ordered by creation time.
func (s *SubscriptionStore) ListSubscriptions(_ context.Context) ([]catalog.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListEnabledByEvent returns enabled subscriptions for the event type. The
// dispatcher calls this fresh on every event; membership is never cached.
func (s *SubscriptionStore) ListEnabledByEvent(
	_ context.Context,
	eventType catalog.EventType,
) ([]catalog.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Subscription
	for _, sub := range s.subs {
		if sub.Enabled && sub.EventType == eventType {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateSubscription replaces the mutable fields of a subscription.
func (s *SubscriptionStore) UpdateSubscription(_ context.Context, sub catalog.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.subs[sub.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	existing.Name = sub.Name
	existing.TargetURL = sub.TargetURL
	existing.EventType = sub.EventType
	existing.Enabled = sub.Enabled
	existing.UpdatedAt = time.Now().UTC()
	s.subs[sub.ID] = existing
	return nil
}

// DeleteSubscription removes a subscription.
func (s *SubscriptionStore) DeleteSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(s.subs, id)
	return nil
}

// RecordOutcome writes the last delivery result after an attempt completes.
func (s *SubscriptionStore) RecordOutcome(
	_ context.Context,
	id string,
	outcome catalog.DeliveryOutcome,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return catalog.ErrNotFound
	}
	sub.LastStatusCode = outcome.StatusCode
	elapsed := outcome.ElapsedMs
	sub.LastResponseMs = &elapsed
	sub.LastError = outcome.Error
	at := outcome.At
	sub.LastTriggeredAt = &at
	sub.UpdatedAt = time.Now().UTC()
	s.subs[id] = sub
	return nil
}
