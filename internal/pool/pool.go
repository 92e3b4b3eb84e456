// Package pool runs named jobs on a fixed set of goroutines, ordered by
// deadline. A job's function returns the deadline for its next run; a zero
// deadline retires the job. Trigger pulls a job forward to run immediately,
// or, if it is mid-run, flags it for an immediate re-run.
package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type Pool struct {
	mu      sync.Mutex
	queue   []*job
	running map[string]*job
	wake    chan struct{}
}

type job struct {
	name     string
	fn       func(context.Context) time.Time
	deadline time.Time
	rerun    bool
}

func New(workers int) *Pool {
	p := &Pool{running: make(map[string]*job)}
	for range workers {
		go p.work()
	}
	return p
}

// Add schedules a new job for immediate execution.
func (p *Pool) Add(name string, fn func(context.Context) time.Time) {
	p.enqueue(&job{name: name, fn: fn, deadline: time.Now()})
}

func (p *Pool) work() {
	for {
		p.enqueue(p.dequeue().run(context.Background()))
	}
}

// Trigger moves the named job to the front of the queue. A job that is
// currently executing instead gets flagged to run again as soon as it
// finishes, discarding whatever deadline that run returns.
func (p *Pool) Trigger(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.IndexFunc(p.queue, func(j *job) bool { return j.name == name }); i != -1 {
		p.queue[i].deadline = time.Now()
		p.reorder()
		return nil
	}
	if j, ok := p.running[name]; ok {
		j.rerun = true
		return nil
	}
	return fmt.Errorf("no job with name %s", name)
}

// reorder must run under p.mu.
func (p *Pool) reorder() {
	slices.SortFunc(p.queue, func(a, b *job) int {
		return a.deadline.Compare(b.deadline)
	})
	if p.wake != nil {
		close(p.wake)
		p.wake = nil
	}
}

func (p *Pool) enqueue(j *job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Trigger may have flagged the job while it was executing; the flag is
	// only read here, under the lock.
	if j.rerun {
		j.rerun = false
		j.deadline = time.Now()
	}

	if j.deadline.IsZero() {
		delete(p.running, j.name)
		return
	}

	p.running[j.name] = j
	p.queue = append(p.queue, j)
	p.reorder()
}

func (p *Pool) dequeue() *job {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		next := time.Now().Add(24 * 365 * time.Hour)
		if len(p.queue) > 0 {
			next = p.queue[0].deadline
		}

		if !next.After(time.Now()) {
			break
		}

		// Nothing due yet. Sleep until the earliest deadline or until
		// a new or re-triggered job shakes the queue.
		if p.wake == nil {
			p.wake = make(chan struct{})
		}
		wake := p.wake

		p.mu.Unlock()
		select {
		case <-time.After(time.Until(next)):
		case <-wake:
		}
		p.mu.Lock()
	}

	var j *job
	j, p.queue = p.queue[0], p.queue[1:]
	return j
}

func (j *job) run(ctx context.Context) *job {
	j.deadline = j.fn(ctx)
	return j
}
