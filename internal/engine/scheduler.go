package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/user/verdandi"
	"github.com/user/verdandi/internal/storage"
)

// maxCollapsedSlots bounds how far the cron backlog scan walks when a
// workflow has been idle for a long stretch.
const maxCollapsedSlots = 10000

// SchedulerOptions tune the background loops. Zero values fall back to the
// production defaults.
type SchedulerOptions struct {
	PollInterval       time.Duration
	CleanupInterval    time.Duration
	RevalidateInterval time.Duration
	Retention          time.Duration
	KeepRecent         int
}

// Scheduler owns the periodic maintenance of the system: firing cron
// workflows, pruning old executions, revalidating stored definitions, and
// operator-requested retries of failed runs.
type Scheduler struct {
	storage    storage.Storage
	dispatcher *Dispatcher
	validator  *Validator
	logger     verdandi.Logger

	pollInterval       time.Duration
	cleanupInterval    time.Duration
	revalidateInterval time.Duration
	retention          time.Duration
	keepRecent         int

	wg sync.WaitGroup
}

func NewScheduler(s storage.Storage, d *Dispatcher, v *Validator, logger verdandi.Logger, opts SchedulerOptions) *Scheduler {
	if logger == nil {
		logger = verdandi.NopLogger{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 24 * time.Hour
	}
	if opts.RevalidateInterval <= 0 {
		opts.RevalidateInterval = time.Hour
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * 24 * time.Hour
	}
	if opts.KeepRecent <= 0 {
		opts.KeepRecent = 1000
	}
	return &Scheduler{
		storage:            s,
		dispatcher:         d,
		validator:          v,
		logger:             logger,
		pollInterval:       opts.PollInterval,
		cleanupInterval:    opts.CleanupInterval,
		revalidateInterval: opts.RevalidateInterval,
		retention:          opts.Retention,
		keepRecent:         opts.KeepRecent,
	}
}

// Start launches the three background loops. They stop when the context is
// done; Wait blocks until they have.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(3)
	go s.loop(ctx, s.pollInterval, s.PollScheduledWorkflows)
	go s.loop(ctx, s.cleanupInterval, s.CleanupOldExecutions)
	go s.loop(ctx, s.revalidateInterval, s.RevalidateAllWorkflows)
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, fn func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// PollScheduledWorkflows fires every active schedule-triggered workflow whose
// cron slot has come due since the last poll.
func (s *Scheduler) PollScheduledWorkflows(ctx context.Context) {
	workflows, err := s.storage.ListWorkflows(ctx, storage.WorkflowFilter{
		Status:      storage.WorkflowActive,
		TriggerType: storage.TriggerSchedule,
	})
	if err != nil {
		s.logger.Error("failed to list scheduled workflows", "error", err)
		return
	}
	now := time.Now()
	for _, w := range workflows {
		s.fireDue(ctx, w, now)
	}
}

// fireDue advances the workflow's cron watermark and dispatches at most one
// run. A watermark seen for the first time moves to now without firing, and
// slots missed while the process was down collapse into the newest one. The
// compare-and-swap on the watermark is what keeps concurrent pollers from
// double-firing a slot.
func (s *Scheduler) fireDue(ctx context.Context, w *storage.Workflow, now time.Time) {
	sched, err := cron.ParseStandard(w.ScheduleCron)
	if err != nil {
		s.logger.Warn("workflow has invalid cron expression",
			"workflow_id", w.ID, "cron", w.ScheduleCron, "error", err)
		return
	}

	if w.LastFiredAt.IsZero() {
		if _, err := s.storage.AdvanceCronWatermark(ctx, w.ID, time.Time{}, now); err != nil {
			s.logger.Error("failed to initialize cron watermark", "workflow_id", w.ID, "error", err)
		}
		return
	}

	due := sched.Next(w.LastFiredAt)
	if due.After(now) {
		return
	}
	for i := 0; i < maxCollapsedSlots; i++ {
		next := sched.Next(due)
		if next.After(now) {
			break
		}
		due = next
	}

	won, err := s.storage.AdvanceCronWatermark(ctx, w.ID, w.LastFiredAt, due)
	if err != nil {
		s.logger.Error("failed to advance cron watermark", "workflow_id", w.ID, "error", err)
		return
	}
	if !won {
		return
	}

	if _, err := s.dispatcher.RunAsync(ctx, w.ID, nil, "scheduler", storage.TriggerSchedule); err != nil {
		s.logger.Error("failed to dispatch scheduled run", "workflow_id", w.ID, "error", err)
		return
	}
	CronFires.Inc()
	s.logger.Info("scheduled run dispatched", "workflow_id", w.ID, "slot", due)
}

// RetryFailedExecution re-submits a failed execution with its original input.
// It refuses when the execution did not fail, when the workflow has retries
// disabled, or when the retry budget is already spent.
func (s *Scheduler) RetryFailedExecution(ctx context.Context, executionID string) error {
	exec, err := s.storage.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != storage.ExecutionFailed {
		return ErrNotFailed
	}
	w, err := s.storage.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return err
	}
	if w.MaxRetries <= 0 {
		return ErrRetryDisabled
	}
	prior, err := s.storage.CountExecutionsByTrigger(ctx, w.ID, storage.TriggerRetry)
	if err != nil {
		return err
	}
	if prior >= w.MaxRetries {
		return ErrRetriesExhausted
	}
	_, err = s.dispatcher.RunAsync(ctx, w.ID, exec.Input, "retry:"+executionID, storage.TriggerRetry)
	return err
}

// CleanupOldExecutions prunes execution history past the retention window,
// always keeping the most recent records per workflow.
func (s *Scheduler) CleanupOldExecutions(ctx context.Context) {
	workflows, err := s.storage.ListWorkflows(ctx, storage.WorkflowFilter{})
	if err != nil {
		s.logger.Error("failed to list workflows for cleanup", "error", err)
		return
	}
	cutoff := time.Now().Add(-s.retention)
	var total int64
	for _, w := range workflows {
		deleted, err := s.storage.PruneExecutions(ctx, w.ID, cutoff, s.keepRecent)
		if err != nil {
			s.logger.Error("failed to prune executions", "workflow_id", w.ID, "error", err)
			continue
		}
		if deleted > 0 {
			ExecutionsPruned.Add(float64(deleted))
			total += deleted
		}
	}
	if total > 0 {
		s.logger.Info("execution retention cleanup complete", "deleted", total)
	}
}

// RevalidateAllWorkflows re-checks every stored definition and force-disables
// active workflows that no longer validate, so the poller never fires a
// definition the validator would reject today.
func (s *Scheduler) RevalidateAllWorkflows(ctx context.Context) {
	workflows, err := s.storage.ListWorkflows(ctx, storage.WorkflowFilter{})
	if err != nil {
		s.logger.Error("failed to list workflows for revalidation", "error", err)
		return
	}
	for _, w := range workflows {
		problems := s.validator.Validate(w)
		if len(problems) == 0 || w.Status != storage.WorkflowActive {
			continue
		}
		if err := s.storage.UpdateWorkflowStatus(ctx, w.ID, storage.WorkflowDisabled); err != nil {
			s.logger.Error("failed to disable invalid workflow", "workflow_id", w.ID, "error", err)
			continue
		}
		WorkflowsDisabled.Inc()
		s.logger.Warn("workflow force-disabled by revalidation",
			"workflow_id", w.ID, "problems", strings.Join(problems, "; "))
	}
}
