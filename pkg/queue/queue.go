// Package queue carries run requests from triggers to the dispatcher. The
// memory implementation serves a single process; redis lets several runner
// processes share one queue.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/user/verdandi/pkg/compression"
)

// Task is one request to run a workflow. Attempt counts infrastructure
// launches of the same request, not workflow-level retries.
type Task struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	Input       map[string]interface{} `json:"input,omitempty"`
	TriggeredBy string                 `json:"triggered_by,omitempty"`
	TriggerType string                 `json:"trigger_type"`
	Attempt     int                    `json:"attempt"`
	NotBefore   time.Time              `json:"not_before,omitempty"`
}

type Queue interface {
	// Enqueue accepts the task. A future NotBefore delays delivery.
	Enqueue(ctx context.Context, t Task) error
	// Dequeue blocks until a task is due or the context is done.
	Dequeue(ctx context.Context) (Task, error)
	Close() error
}

type Config struct {
	Kind     string `yaml:"kind" json:"kind"` // "memory" or "redis"
	Buffer   int    `yaml:"buffer" json:"buffer"`
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	// Compression applies to redis payloads: "none", "lz4", "snappy" or "zstd".
	Compression string `yaml:"compression" json:"compression"`
}

func New(cfg Config) (Queue, error) {
	switch cfg.Kind {
	case "", "memory":
		return NewMemory(cfg.Buffer), nil
	case "redis":
		algo, err := compression.Parse(cfg.Compression)
		if err != nil {
			return nil, err
		}
		return NewRedis(cfg.Addr, cfg.Password, cfg.DB, algo)
	default:
		return nil, fmt.Errorf("unknown queue kind: %s", cfg.Kind)
	}
}
