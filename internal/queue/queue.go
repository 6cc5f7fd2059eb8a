package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Queue is the delayed job queue contract. Implementations must guarantee
// at-least-once delivery: Dequeue hands a due Job to exactly one caller at a
// time, but a crash between Dequeue and the caller's ack can redeliver it.
type Queue interface {
	// Enqueue schedules job to fire no earlier than job.FireAt. If job.Key
	// is non-empty and a live job already holds that key, the existing one
	// is replaced (last write wins) rather than duplicated.
	Enqueue(ctx context.Context, job *Job) error

	// Cancel best-effort removes the job holding key, if still queued.
	// Returns ok=false if no such job was found (already dequeued, fired,
	// or never existed) — the caller in that case relies on the
	// in-progress handler's own state check to no-op.
	Cancel(ctx context.Context, key string) (ok bool, err error)

	// Dequeue blocks until a job's FireAt has arrived (or ctx is done) and
	// returns it, removed from the queue.
	Dequeue(ctx context.Context) (*Job, error)

	Len() int
	Close() error
}

// MemoryQueue is a fireAt-ordered in-memory Queue: jobs are kept sorted
// by FireAt, and Dequeue waits out the gap to the earliest FireAt
// instead of returning the head immediately.
type MemoryQueue struct {
	mu       sync.Mutex
	jobs     []*Job
	byKey    map[string]*Job
	signal   chan struct{}
	closed   bool
	closedMu sync.RWMutex
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		byKey:  make(map[string]*Job),
		signal: make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job *Job) error {
	q.closedMu.RLock()
	if q.closed {
		q.closedMu.RUnlock()
		return ErrQueueClosed
	}
	q.closedMu.RUnlock()

	q.mu.Lock()
	if job.Key != "" {
		if existing, ok := q.byKey[job.Key]; ok {
			q.removeLocked(existing)
		}
		q.byKey[job.Key] = job
	}

	i := sort.Search(len(q.jobs), func(i int) bool { return q.jobs[i].FireAt.After(job.FireAt) })
	q.jobs = append(q.jobs, nil)
	copy(q.jobs[i+1:], q.jobs[i:])
	q.jobs[i] = job
	q.mu.Unlock()

	q.wake()
	return nil
}

func (q *MemoryQueue) Cancel(_ context.Context, key string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.byKey[key]
	if !ok {
		return false, nil
	}
	q.removeLocked(job)
	delete(q.byKey, key)
	return true, nil
}

// removeLocked removes job from q.jobs by identity. Caller holds q.mu.
func (q *MemoryQueue) removeLocked(job *Job) {
	for i, j := range q.jobs {
		if j == job {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return
		}
	}
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		q.closedMu.RLock()
		if q.closed {
			q.closedMu.RUnlock()
			return nil, ErrQueueClosed
		}
		q.closedMu.RUnlock()

		q.mu.Lock()
		var wait time.Duration
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			if !job.FireAt.After(time.Now()) {
				q.jobs = q.jobs[1:]
				if job.Key != "" {
					delete(q.byKey, job.Key)
				}
				q.mu.Unlock()
				return job, nil
			}
			wait = time.Until(job.FireAt)
		} else {
			wait = 250 * time.Millisecond // poll cadence when idle
		}
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.signal:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *MemoryQueue) Close() error {
	q.closedMu.Lock()
	defer q.closedMu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)
	return nil
}

// ErrQueueClosed is returned when operations are performed on a closed queue.
var ErrQueueClosed = &QueueError{message: "queue is closed"}

// QueueError represents a queue-related error.
type QueueError struct {
	message string
}

func (e *QueueError) Error() string {
	return e.message
}
