package node

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/verdandi"
)

func TestDelayPassesInputThrough(t *testing.T) {
	n := verdandi.Node{ID: "wait", Type: "control.delay", Config: map[string]interface{}{"seconds": 0.01}}
	input := map[string]interface{}{"k": "v"}

	start := time.Now()
	out, err := NewDelay().Execute(context.Background(), n, input, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("delay took too long: %s", elapsed)
	}
	if out["k"] != "v" {
		t.Errorf("input not forwarded: %v", out)
	}
}

func TestDelayHonorsCancellation(t *testing.T) {
	n := verdandi.Node{ID: "wait", Type: "control.delay", Config: map[string]interface{}{"seconds": float64(30)}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := NewDelay().Execute(ctx, n, nil, testEC(nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation not honored, waited %s", elapsed)
	}
}

func TestDelayStringSeconds(t *testing.T) {
	n := verdandi.Node{ID: "wait", Type: "control.delay", Config: map[string]interface{}{"seconds": "0.01"}}
	if _, err := NewDelay().Execute(context.Background(), n, nil, testEC(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelayRejectsInvalidSeconds(t *testing.T) {
	for _, seconds := range []interface{}{nil, "soon", float64(-1)} {
		n := verdandi.Node{ID: "wait", Type: "control.delay", Config: map[string]interface{}{"seconds": seconds}}
		_, err := NewDelay().Execute(context.Background(), n, nil, testEC(nil))
		if err == nil || !strings.Contains(err.Error(), "invalid seconds") {
			t.Errorf("seconds=%v: expected invalid seconds error, got %v", seconds, err)
		}
	}
}
