package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuline/product-import/internal/catalog"
)

// SubscriptionStore implements catalog.SubscriptionStore on Postgres.
type SubscriptionStore struct {
	pool db
}

// NewSubscriptionStore connects a pool for the webhook_subscriptions table.
func NewSubscriptionStore(ctx context.Context, dsn string) (*SubscriptionStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &SubscriptionStore{pool: pool}, nil
}

// NewSubscriptionStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewSubscriptionStoreWithPool(pool db) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *SubscriptionStore) Close() {
	s.pool.Close()
}

const subscriptionColumns = `id, name, target_url, event_type, enabled,
	last_status_code, last_response_ms, last_error, last_triggered_at,
	created_at, updated_at`

// CreateSubscription inserts a new subscription.
func (s *SubscriptionStore) CreateSubscription(ctx context.Context, sub catalog.Subscription) error {
	query := `
		INSERT INTO webhook_subscriptions (id, name, target_url, event_type, enabled, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', now(), now());
	`
	_, err := s.pool.Exec(ctx, query, sub.ID, sub.Name, sub.TargetURL, sub.EventType, sub.Enabled)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// GetSubscription fetches one subscription by ID.
func (s *SubscriptionStore) GetSubscription(ctx context.Context, id string) (catalog.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1;`
	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Subscription{}, catalog.ErrNotFound
		}
		return catalog.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions returns every subscription, newest last.
func (s *SubscriptionStore) ListSubscriptions(ctx context.Context) ([]catalog.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions ORDER BY created_at;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// ListEnabledByEvent returns enabled subscriptions for the event type,
// evaluated fresh on every call.
func (s *SubscriptionStore) ListEnabledByEvent(
	ctx context.Context,
	eventType catalog.EventType,
) ([]catalog.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE event_type = $1 AND enabled
		ORDER BY created_at;`
	rows, err := s.pool.Query(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("list enabled subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// UpdateSubscription replaces the mutable fields of a subscription.
func (s *SubscriptionStore) UpdateSubscription(ctx context.Context, sub catalog.Subscription) error {
	query := `
		UPDATE webhook_subscriptions
		SET name = $1, target_url = $2, event_type = $3, enabled = $4, updated_at = now()
		WHERE id = $5;
	`
	tag, err := s.pool.Exec(ctx, query, sub.Name, sub.TargetURL, sub.EventType, sub.Enabled, sub.ID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// DeleteSubscription removes a subscription.
func (s *SubscriptionStore) DeleteSubscription(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// RecordOutcome writes the last delivery result after an attempt completes.
// Only the dispatcher calls this.
func (s *SubscriptionStore) RecordOutcome(
	ctx context.Context,
	id string,
	outcome catalog.DeliveryOutcome,
) error {
	query := `
		UPDATE webhook_subscriptions
		SET last_status_code = $1, last_response_ms = $2, last_error = $3,
			last_triggered_at = $4, updated_at = now()
		WHERE id = $5;
	`
	tag, err := s.pool.Exec(ctx, query, outcome.StatusCode, outcome.ElapsedMs, outcome.Error, outcome.At, id)
	if err != nil {
		return fmt.Errorf("record delivery outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (catalog.Subscription, error) {
	var sub catalog.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.Name,
		&sub.TargetURL,
		&sub.EventType,
		&sub.Enabled,
		&sub.LastStatusCode,
		&sub.LastResponseMs,
		&sub.LastError,
		&sub.LastTriggeredAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	return sub, err
}

func collectSubscriptions(rows pgx.Rows) ([]catalog.Subscription, error) {
	var subs []catalog.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscription rows: %w", err)
	}
	return subs, nil
}
