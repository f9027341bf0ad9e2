package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Retry refusals surfaced by RetryFailedExecution.
var (
	ErrNotFailed        = errors.New("execution is not in a failed state")
	ErrRetryDisabled    = errors.New("workflow has retries disabled")
	ErrRetriesExhausted = errors.New("workflow retry budget exhausted")
)

// CycleError reports a workflow graph that cannot be ordered. Remaining
// holds the node IDs caught in or downstream of a cycle.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected among nodes: %s", strings.Join(e.Remaining, ", "))
}

// UnknownNodeTypeError reports a node type outside the closed set, or one
// with no registered executor.
type UnknownNodeTypeError struct {
	Type string
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("unknown node type: %s", e.Type)
}
