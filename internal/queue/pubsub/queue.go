// Package pubsub backs the task queue with Google Cloud Pub/Sub for
// deployments where workers run in separate processes.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/catalog"
)

// Queue publishes tasks to a topic and bridges a subscription into the
// catalog.Queue dequeue contract.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	items     chan catalog.Task
	startOnce sync.Once
}

// NewQueue creates a Pub/Sub client and verifies the topic exists so
// misconfiguration fails at startup. Authentication uses Application
// Default Credentials.
func NewQueue(
	ctx context.Context,
	projectID, topicID, subscriptionID string,
	logger *zap.Logger,
) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to check for topic existence: %w", err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	return &Queue{
		client: client,
		topic:  topic,
		sub:    client.Subscription(subscriptionID),
		logger: logger,
		items:  make(chan catalog.Task, 64),
	}, nil
}

// Enqueue publishes one task as a JSON message and waits for the server ack
// so the caller knows the unit of work is durably queued.
func (q *Queue) Enqueue(ctx context.Context, task catalog.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Dequeue returns the next task. The first call starts a background Receive
// loop. Messages stay unacknowledged until the worker settles the task via
// Task.Ack after execution, so a worker that dies mid-task leaves the
// message to broker redelivery.
func (q *Queue) Dequeue(ctx context.Context) (catalog.Task, error) {
	q.startOnce.Do(func() {
		go q.receive(ctx)
	})
	select {
	case <-ctx.Done():
		return catalog.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task := <-q.items:
		return task, nil
	}
}

func (q *Queue) receive(ctx context.Context) {
	err := q.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var task catalog.Task
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			q.logger.Warn("discarding malformed task message", zap.Error(err))
			msg.Ack()
			return
		}
		// The worker settles the message after executing the task; the
		// client keeps extending the ack deadline while it runs.
		task.SetAck(msg.Ack)
		select {
		case q.items <- task:
		case <-ctx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		q.logger.Error("pubsub receive stopped", zap.Error(err))
	}
}

// Close stops the topic publisher and closes the client connection.
func (q *Queue) Close() error {
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
