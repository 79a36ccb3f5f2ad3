package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAwaitPrefersReadyResultOverDeadline(t *testing.T) {
	d := &Dispatcher{timeout: time.Millisecond}

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		done := make(chan error, 1)
		done <- nil

		if err := d.await(ctx, done); err != nil {
			t.Fatalf("run %d: delivered send reported as %v", i, err)
		}
	}
}

func TestAwaitTimesOutWithoutResult(t *testing.T) {
	d := &Dispatcher{timeout: time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	err := d.await(ctx, make(chan error, 1))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("await = %v, want ErrTimeout", err)
	}
}
