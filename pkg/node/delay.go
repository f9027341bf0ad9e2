package node

import (
	"context"
	"fmt"
	"time"

	"github.com/user/verdandi"
	"github.com/user/verdandi/pkg/evaluator"
)

// maxDelaySeconds caps control.delay so a workflow cannot park a worker
// for longer than five minutes.
const maxDelaySeconds = 300

// DelayNode pauses the run, then passes its input through.
type DelayNode struct{}

func NewDelay() *DelayNode {
	return &DelayNode{}
}

func (d *DelayNode) Execute(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
	seconds, ok := evaluator.ToFloat64(node.Config["seconds"])
	if !ok || seconds < 0 {
		return nil, fmt.Errorf("delay node %s has an invalid seconds value", node.ID)
	}
	if seconds > maxDelaySeconds {
		seconds = maxDelaySeconds
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if input == nil {
		return map[string]interface{}{}, nil
	}
	return input, nil
}
