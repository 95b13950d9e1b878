package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/cadstore/internal/model"
)

// ErrStopped is delivered to jobs scheduled after Stop.
var ErrStopped = errors.New("engine stopped")

// job is one asynchronous propagation batch.
type job struct {
	ids  []model.ObjectID
	done chan error
}

// jobQueue is an unbounded FIFO of propagation jobs.
//
// Schedule may be called from any goroutine; Run is the only consumer.
// The signal channel has a buffer of one so enqueues coalesce and Run can
// select on it together with ctx.Done.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []job
	closed bool
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]job, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends j. Returns false if the queue is closed.
func (q *jobQueue) Enqueue(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front job without blocking.
func (q *jobQueue) TryDequeue() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]
	q.jobs[0] = job{}
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Wait signals that jobs may be available. Closed by Close.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued jobs.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Drained reports whether the queue is closed and empty.
func (q *jobQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.jobs) == 0
}

// Close stops accepting jobs and wakes the consumer.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Schedule queues a propagation over ids for Run and returns a channel
// that receives its result.
func (e *Engine) Schedule(ids []model.ObjectID) <-chan error {
	done := make(chan error, 1)
	if !e.queue.Enqueue(job{ids: ids, done: done}) {
		done <- ErrStopped
	}
	return done
}

// Pending returns the number of scheduled batches not yet started.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Run drains scheduled propagation batches until ctx is done or Stop is
// called. Batches run one at a time; each is parallel internally.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting")
	for {
		if j, ok := e.queue.TryDequeue(); ok {
			err := e.UpdateAllDeps(ctx, j.ids)
			if err != nil {
				e.log.Error("scheduled propagation failed", "objects", len(j.ids), "error", err)
			}
			j.done <- err
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.failQueued(ctx.Err())
			return ctx.Err()
		case <-e.queue.Wait():
			if e.queue.Drained() {
				e.log.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue; Run returns once queued batches are drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) failQueued(err error) {
	for {
		j, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		j.done <- err
	}
}
