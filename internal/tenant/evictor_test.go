package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"
)

type countingSweeper struct{ swept chan struct{} }

func (c *countingSweeper) Sweep(context.Context) int {
	select {
	case c.swept <- struct{}{}:
	default:
	}
	return 1
}

func TestRunSweeper_TicksAndStops(t *testing.T) {
	clk := clock.NewMock()
	sw := &countingSweeper{swept: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		RunSweeper(ctx, sw, time.Minute, clk, zaptest.NewLogger(t))
		close(done)
	}()

	// The ticker may not exist yet on the first Add, so keep advancing.
	deadline := time.After(2 * time.Second)
	for swept := false; !swept; {
		clk.Add(time.Minute)
		select {
		case <-sw.swept:
			swept = true
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("sweeper never ran")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}

func TestRunSweeper_ZeroIntervalReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		RunSweeper(context.Background(), &countingSweeper{swept: make(chan struct{}, 1)}, 0, nil, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero interval should return immediately")
	}
}
