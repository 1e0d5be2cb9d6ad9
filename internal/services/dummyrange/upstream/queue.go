package upstream

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultCooldown is the minimum gap between consecutive task starts.
const DefaultCooldown = 1500 * time.Millisecond

// Task is one unit of serialized upstream work.
type Task func(ctx context.Context) error

type queuedTask struct {
	ctx     context.Context
	task    Task
	done    chan error
	started bool
}

// Queue runs tasks one at a time in submission order, spacing consecutive
// starts by at least the configured cooldown.
type Queue struct {
	cooldown time.Duration

	mu        sync.Mutex
	pending   []*queuedTask
	running   bool
	lastStart time.Time
}

// NewQueue builds a queue; a non-positive cooldown disables spacing.
func NewQueue(cooldown time.Duration) *Queue {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Queue{cooldown: cooldown}
}

// Do enqueues task and blocks until it has run, returning the task's own
// error. If ctx ends before the task starts, the task is dropped and
// ctx.Err() is returned; a task that already started is waited for.
func (q *Queue) Do(ctx context.Context, task Task) error {
	if task == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	job := &queuedTask{ctx: ctx, task: task, done: make(chan error, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, job)
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
	}

	q.mu.Lock()
	if !job.started {
		q.pending = slices.DeleteFunc(q.pending, func(p *queuedTask) bool { return p == job })
		q.mu.Unlock()
		return ctx.Err()
	}
	q.mu.Unlock()
	return <-job.done
}

// Len reports how many tasks are waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		wait := time.Duration(0)
		if !q.lastStart.IsZero() {
			wait = q.cooldown - time.Since(q.lastStart)
		}
		head := q.pending[0]
		q.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-head.ctx.Done():
				// Head was abandoned; re-evaluate without spending the slot.
				timer.Stop()
				q.dropIfPending(head)
				continue
			}
		}

		q.mu.Lock()
		if len(q.pending) == 0 || q.pending[0] != head {
			q.mu.Unlock()
			continue
		}
		q.pending = q.pending[1:]
		if head.ctx.Err() != nil {
			q.mu.Unlock()
			head.done <- head.ctx.Err()
			continue
		}
		head.started = true
		q.lastStart = time.Now()
		q.mu.Unlock()

		head.done <- head.run()
	}
}

// run executes the task, turning a panic into an error for its caller so the
// queue keeps draining.
func (job *queuedTask) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queued task panicked: %v", r)
		}
	}()
	return job.task(job.ctx)
}

func (q *Queue) dropIfPending(job *queuedTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.started {
		return
	}
	q.pending = slices.DeleteFunc(q.pending, func(p *queuedTask) bool { return p == job })
	job.done <- job.ctx.Err()
}
