package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/verdandi/internal/storage"
)

var errBoom = errors.New("boom")

// memStorage is an in-memory storage.Storage shared by the package tests.
// Error fields, when set, make the matching method fail.
type memStorage struct {
	mu          sync.Mutex
	workflows   map[string]*storage.Workflow
	executions  map[string]*storage.Execution
	credentials map[string]*storage.Credential

	failGetWorkflow     error
	failCreateExecution error
	failUpdateExecution error
}

func newMemStorage() *memStorage {
	return &memStorage{
		workflows:   make(map[string]*storage.Workflow),
		executions:  make(map[string]*storage.Execution),
		credentials: make(map[string]*storage.Credential),
	}
}

func (m *memStorage) Init(ctx context.Context) error { return nil }
func (m *memStorage) Close() error                   { return nil }

func (m *memStorage) GetWorkflow(ctx context.Context, id string) (*storage.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGetWorkflow != nil {
		return nil, m.failGetWorkflow
	}
	w, ok := m.workflows[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memStorage) ListWorkflows(ctx context.Context, f storage.WorkflowFilter) ([]*storage.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*storage.Workflow
	for _, w := range m.workflows {
		if f.Owner != "" && w.Owner != f.Owner {
			continue
		}
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		if f.TriggerType != "" && w.TriggerType != f.TriggerType {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStorage) SaveWorkflow(ctx context.Context, w *storage.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	cp := *w
	m.workflows[w.ID] = &cp
	return nil
}

func (m *memStorage) DeleteWorkflow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.workflows, id)
	return nil
}

func (m *memStorage) UpdateWorkflowStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return storage.ErrNotFound
	}
	w.Status = status
	return nil
}

func (m *memStorage) RecordWorkflowRun(ctx context.Context, id string, success bool, durationMS float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return storage.ErrNotFound
	}
	w.TotalRuns++
	if success {
		w.AvgDurationMS = (w.AvgDurationMS*float64(w.SuccessRuns) + durationMS) / float64(w.SuccessRuns+1)
		w.SuccessRuns++
		w.LastExecutedAt = &at
	} else {
		w.FailedRuns++
	}
	return nil
}

func (m *memStorage) AdvanceCronWatermark(ctx context.Context, id string, from, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return false, nil
	}
	if !sameWatermark(w.LastFiredAt, from) {
		return false, nil
	}
	w.LastFiredAt = to
	return true, nil
}

// sameWatermark compares at second precision, matching the stored column.
func sameWatermark(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() && b.IsZero()
	}
	return a.Unix() == b.Unix()
}

func (m *memStorage) CreateExecution(ctx context.Context, e *storage.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateExecution != nil {
		return m.failCreateExecution
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	m.executions[e.ID] = &cp
	return nil
}

func (m *memStorage) UpdateExecution(ctx context.Context, e *storage.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdateExecution != nil {
		return m.failUpdateExecution
	}
	if _, ok := m.executions[e.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *e
	m.executions[e.ID] = &cp
	return nil
}

func (m *memStorage) GetExecution(ctx context.Context, id string) (*storage.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStorage) ListExecutions(ctx context.Context, f storage.ExecutionFilter) ([]*storage.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*storage.Execution
	for _, e := range m.executions {
		if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.TriggerType != "" && e.TriggerType != f.TriggerType {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memStorage) CountExecutionsByTrigger(ctx context.Context, workflowID, triggerType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.executions {
		if e.WorkflowID == workflowID && e.TriggerType == triggerType {
			n++
		}
	}
	return n, nil
}

func (m *memStorage) PruneExecutions(ctx context.Context, workflowID string, before time.Time, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*storage.Execution
	for _, e := range m.executions {
		if e.WorkflowID == workflowID {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	var deleted int64
	for i, e := range all {
		if i < keep {
			continue
		}
		if e.StartedAt.Before(before) {
			delete(m.executions, e.ID)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memStorage) GetCredential(ctx context.Context, owner, provider, name string) (*storage.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.credentials {
		if c.Owner == owner && c.Provider == provider && c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStorage) SaveCredential(ctx context.Context, c *storage.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	m.credentials[c.ID] = &cp
	return nil
}

func (m *memStorage) ListCredentials(ctx context.Context, owner string) ([]*storage.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*storage.Credential
	for _, c := range m.credentials {
		if c.Owner == owner {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStorage) DeleteCredential(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credentials[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.credentials, id)
	return nil
}
