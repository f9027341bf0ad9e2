package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/verdandi"
	"github.com/user/verdandi/internal/events"
	"github.com/user/verdandi/internal/storage"
	"github.com/user/verdandi/pkg/queue"
	"golang.org/x/time/rate"
)

// maxDispatchAttempts bounds infrastructure retries of a single task.
const maxDispatchAttempts = 3

// Dispatcher pulls run requests off the queue and drives the engine with a
// pool of workers. Infrastructure failures, meaning the workflow cannot even
// be loaded, are re-enqueued with exponential backoff and end as a terminal
// failed record once the attempt budget is spent. Node-level failures are
// captured inside the record the engine returns and never retried here.
type Dispatcher struct {
	engine  *Engine
	storage storage.Storage
	queue   queue.Queue
	logger  verdandi.Logger
	workers int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int

	wg sync.WaitGroup
}

func NewDispatcher(e *Engine, s storage.Storage, q queue.Queue, workers int, logger verdandi.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = verdandi.NopLogger{}
	}
	return &Dispatcher{
		engine:   e,
		storage:  s,
		queue:    q,
		logger:   logger,
		workers:  workers,
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(5),
		burst:    10,
	}
}

// SetRateLimit caps how fast runs of a single workflow may start.
func (d *Dispatcher) SetRateLimit(rps float64, burst int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rps = rate.Limit(rps)
	d.burst = burst
	d.limiters = make(map[string]*rate.Limiter)
}

// RunAsync submits a workflow run to the task queue. The returned ID is the
// ID the execution record will carry once a worker picks the task up, so
// callers can poll for the result immediately.
func (d *Dispatcher) RunAsync(ctx context.Context, workflowID string, input map[string]interface{}, triggeredBy, triggerType string) (string, error) {
	task := queue.Task{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		Input:       input,
		TriggeredBy: triggeredBy,
		TriggerType: triggerType,
	}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// Start launches the worker pool. Workers exit when the context is done or
// the queue closes; Wait blocks until they have.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		task, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || err == queue.ErrClosed {
				return
			}
			d.logger.Error("failed to dequeue task", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		d.handle(ctx, task)
	}
}

func (d *Dispatcher) handle(ctx context.Context, task queue.Task) {
	w, err := d.storage.GetWorkflow(ctx, task.WorkflowID)
	if err != nil {
		d.retryOrFail(ctx, task, err)
		return
	}

	if err := d.limiter(w.ID).Wait(ctx); err != nil {
		return
	}

	exec := d.engine.Run(ctx, w, task.Input, Trigger{ID: task.ID, By: task.TriggeredBy, Type: task.TriggerType})
	d.logger.Info("workflow run finished",
		"workflow_id", w.ID, "execution_id", exec.ID,
		"status", exec.Status, "duration_ms", exec.DurationMS)
}

func (d *Dispatcher) retryOrFail(ctx context.Context, task queue.Task, cause error) {
	if task.Attempt < maxDispatchAttempts {
		delay := time.Duration(60*(1<<task.Attempt)) * time.Second
		task.Attempt++
		task.NotBefore = time.Now().Add(delay)
		DispatchRetries.Inc()
		if err := d.queue.Enqueue(ctx, task); err == nil {
			d.logger.Warn("task re-enqueued after infrastructure failure",
				"workflow_id", task.WorkflowID, "attempt", task.Attempt,
				"delay", delay.String(), "error", cause)
			return
		}
	}

	now := time.Now().UTC()
	exec := &storage.Execution{
		ID:          task.ID,
		WorkflowID:  task.WorkflowID,
		Status:      storage.ExecutionFailed,
		TriggeredBy: task.TriggeredBy,
		TriggerType: task.TriggerType,
		StartedAt:   now,
		CompletedAt: &now,
		Input:       task.Input,
		Error:       fmt.Sprintf("dispatch failed after %d attempts: %v", task.Attempt, cause),
	}
	pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.storage.CreateExecution(pctx, exec); err != nil {
		d.logger.Error("failed to record terminal dispatch failure",
			"workflow_id", task.WorkflowID, "error", err)
	}
	d.engine.publish(events.Event{
		ExecutionID: exec.ID, WorkflowID: exec.WorkflowID,
		Status: exec.Status, Error: exec.Error,
	})
	ExecutionsTotal.WithLabelValues(storage.ExecutionFailed, task.TriggerType).Inc()
	d.logger.Error("task failed terminally",
		"workflow_id", task.WorkflowID, "attempts", task.Attempt, "error", cause)
}

func (d *Dispatcher) limiter(workflowID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[workflowID]
	if !ok {
		l = rate.NewLimiter(d.rps, d.burst)
		d.limiters[workflowID] = l
	}
	return l
}
