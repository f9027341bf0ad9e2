package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/verdandi"
	"github.com/user/verdandi/internal/storage"
	"github.com/user/verdandi/pkg/queue"
)

// recQueue records enqueued tasks and never delivers them.
type recQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
}

func (r *recQueue) Enqueue(ctx context.Context, t queue.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	return nil
}

func (r *recQueue) Dequeue(ctx context.Context) (queue.Task, error) {
	<-ctx.Done()
	return queue.Task{}, ctx.Err()
}

func (r *recQueue) Close() error { return nil }

func (r *recQueue) all() []queue.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.Task(nil), r.tasks...)
}

func TestDispatcherRunsTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := newMemStorage()
	w := &storage.Workflow{
		ID: "wf1", Name: "async", Owner: "tester",
		Nodes: []storage.WorkflowNode{{ID: "n1", Type: "source.webhook"}},
	}
	st.SaveWorkflow(ctx, w)

	eng, reg := newTestEngine(st)
	reg.Register("source.webhook", verdandi.ExecutorFunc(func(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}))

	q := queue.NewMemory(4)
	defer q.Close()
	d := NewDispatcher(eng, st, q, 2, verdandi.NopLogger{})
	d.Start(ctx)

	executionID, err := d.RunAsync(ctx, "wf1", map[string]interface{}{"seed": 1}, "tester", storage.TriggerManual)
	if err != nil {
		t.Fatalf("failed to submit run: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		execs, _ := st.ListExecutions(ctx, storage.ExecutionFilter{WorkflowID: "wf1", Status: storage.ExecutionSuccess})
		if len(execs) == 1 {
			if execs[0].TriggerType != storage.TriggerManual {
				t.Fatalf("unexpected trigger type: %s", execs[0].TriggerType)
			}
			if execs[0].ID != executionID {
				t.Fatalf("execution recorded under %s, RunAsync returned %s", execs[0].ID, executionID)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never ran to completion")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	d.Wait()
}

func TestDispatcherRetriesInfraFailure(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()
	st.failGetWorkflow = errBoom
	eng, _ := newTestEngine(st)
	rq := &recQueue{}
	d := NewDispatcher(eng, st, rq, 1, verdandi.NopLogger{})

	before := time.Now()
	d.handle(ctx, queue.Task{ID: "t1", WorkflowID: "wf1", TriggerType: storage.TriggerManual})

	tasks := rq.all()
	if len(tasks) != 1 {
		t.Fatalf("expected one re-enqueued task, got %d", len(tasks))
	}
	if tasks[0].Attempt != 1 {
		t.Fatalf("attempt not advanced: %d", tasks[0].Attempt)
	}
	delay := tasks[0].NotBefore.Sub(before)
	if delay < 55*time.Second || delay > 65*time.Second {
		t.Fatalf("first retry delay out of range: %v", delay)
	}

	// second failure doubles the backoff
	d.handle(ctx, tasks[0])
	tasks = rq.all()
	if len(tasks) != 2 || tasks[1].Attempt != 2 {
		t.Fatalf("second retry not recorded: %+v", tasks)
	}
	delay = tasks[1].NotBefore.Sub(before)
	if delay < 115*time.Second || delay > 125*time.Second {
		t.Fatalf("second retry delay out of range: %v", delay)
	}
}

func TestDispatcherTerminalFailure(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()
	st.failGetWorkflow = errBoom
	eng, _ := newTestEngine(st)
	rq := &recQueue{}
	d := NewDispatcher(eng, st, rq, 1, verdandi.NopLogger{})

	d.handle(ctx, queue.Task{
		ID: "t1", WorkflowID: "wf1", Attempt: maxDispatchAttempts,
		TriggeredBy: "tester", TriggerType: storage.TriggerManual,
	})

	if len(rq.all()) != 0 {
		t.Fatal("exhausted task was re-enqueued")
	}
	exec, err := st.GetExecution(ctx, "t1")
	if err != nil {
		t.Fatalf("terminal failure not recorded: %v", err)
	}
	if exec.Status != storage.ExecutionFailed {
		t.Fatalf("expected failed record, got %s", exec.Status)
	}
	if !strings.Contains(exec.Error, "dispatch failed after") || !strings.Contains(exec.Error, "boom") {
		t.Fatalf("unexpected error: %q", exec.Error)
	}
	if exec.CompletedAt == nil {
		t.Fatal("terminal record has no completion time")
	}
}

func TestRunAsyncEnqueues(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()
	eng, _ := newTestEngine(st)
	rq := &recQueue{}
	d := NewDispatcher(eng, st, rq, 1, verdandi.NopLogger{})

	id, err := d.RunAsync(ctx, "wf9", map[string]interface{}{"a": 1}, "tester", storage.TriggerWebhook)
	if err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("empty task id")
	}
	tasks := rq.all()
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	if tasks[0].ID != id || tasks[0].WorkflowID != "wf9" || tasks[0].TriggerType != storage.TriggerWebhook {
		t.Fatalf("unexpected task: %+v", tasks[0])
	}
	if tasks[0].Attempt != 0 || !tasks[0].NotBefore.IsZero() {
		t.Fatalf("fresh task carries retry state: %+v", tasks[0])
	}
}

func TestDispatcherLimiterPerWorkflow(t *testing.T) {
	st := newMemStorage()
	eng, _ := newTestEngine(st)
	d := NewDispatcher(eng, st, &recQueue{}, 1, verdandi.NopLogger{})

	if d.limiter("a") != d.limiter("a") {
		t.Fatal("limiter not cached per workflow")
	}
	if d.limiter("a") == d.limiter("b") {
		t.Fatal("workflows share a limiter")
	}
}
