package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsJobOnce(t *testing.T) {
	p := New(1)

	var runs atomic.Int32
	p.Add("once", func(context.Context) time.Time {
		runs.Add(1)
		return time.Time{}
	})

	waitFor(t, func() bool { return runs.Load() == 1 })

	// Retired jobs are unknown to Trigger.
	time.Sleep(10 * time.Millisecond)
	if err := p.Trigger("once"); err == nil {
		t.Fatal("expected error triggering retired job")
	}
}

func TestPoolTriggerPullsJobForward(t *testing.T) {
	p := New(1)

	var runs atomic.Int32
	p.Add("periodic", func(context.Context) time.Time {
		runs.Add(1)
		return time.Now().Add(time.Hour)
	})

	waitFor(t, func() bool { return runs.Load() == 1 })

	if err := p.Trigger("periodic"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return runs.Load() >= 2 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}
