// Package worker implements the task queue execution loop.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/catalog"
	"github.com/skuline/product-import/internal/metrics"
)

// ImportRunner executes one import job end to end.
type ImportRunner interface {
	RunImport(ctx context.Context, jobID string) error
}

// EventDispatcher fans one event out to its subscribers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType catalog.EventType, payload map[string]any) error
}

// Config controls Pool behavior.
type Config struct {
	Concurrency int
}

// Pool consumes queue tasks and executes import and webhook units of work.
// Each task runs to completion on one worker; the queue layer guarantees a
// job id is never executed by two workers at once.
type Pool struct {
	queue      catalog.Queue
	runner     ImportRunner
	dispatcher EventDispatcher
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Pool.
func New(
	queue catalog.Queue,
	runner ImportRunner,
	dispatcher EventDispatcher,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:      queue,
		runner:     runner,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		p.execute(ctx, task)
	}
}

func (p *Pool) execute(ctx context.Context, task catalog.Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	// Settle the task only once its unit of work has run; transports with
	// redelivery then cover a worker crash mid-task. Execution failures
	// are recorded on the job itself and do not hold the message open.
	defer task.Ack()

	switch task.Kind {
	case catalog.TaskRunImport:
		p.logger.Debug("dequeued import task", zap.String("job_id", task.JobID))
		if err := p.runner.RunImport(ctx, task.JobID); err != nil {
			// The failure is already recorded on the job; surfacing it
			// here lets the queue layer apply its retry policy.
			p.logger.Error("import task failed",
				zap.String("job_id", task.JobID),
				zap.Error(err),
			)
		}
	case catalog.TaskDispatchWebhooks:
		p.logger.Debug("dequeued webhook task", zap.String("event_type", string(task.EventType)))
		if err := p.dispatcher.Dispatch(ctx, task.EventType, task.Payload); err != nil {
			p.logger.Error("webhook dispatch failed",
				zap.String("event_type", string(task.EventType)),
				zap.Error(err),
			)
		}
	default:
		p.logger.Warn("unknown task kind", zap.String("kind", string(task.Kind)))
	}
}
