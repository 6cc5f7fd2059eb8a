package queue

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/driaug/plunk/internal/log"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/tracing"
)

// Handler processes one Job of a given Kind. An error that is not one of
// the permanent perr kinds (NotFound/InvalidState/Validation/
// ConcurrencyNoOp) is treated as transient and retried with backoff.
type Handler func(ctx context.Context, job *Job) error

// Pool is the fixed-size worker pool over a Queue: each worker polls
// Dequeue in a loop (which itself blocks out the wait to the next FireAt)
// and dispatches to the Handler registered for the job's Kind. N worker
// goroutines pull from the shared Queue under one Start/Stop lifecycle.
type Pool struct {
	queue       Queue
	deadLetter  DeadLetter
	handlers    map[Kind]Handler
	workers     int
	logger      *slog.Logger
	onExhausted func(ctx context.Context, job *Job, reason string)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPool creates a worker pool over queue. workers <= 0 defaults to
// runtime.NumCPU()*2.
func NewPool(q Queue, dl DeadLetter, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:      q,
		deadLetter: dl,
		handlers:   make(map[Kind]Handler),
		workers:    workers,
		logger:     log.WithComponent(logger, "queue_pool"),
	}
}

// Register binds a Handler to a Kind. Call before Start.
func (p *Pool) Register(kind Kind, h Handler) {
	p.handlers[kind] = h
}

// SetOnExhausted registers a callback invoked whenever a job is parked to
// the DeadLetter after exhausting MaxAttempts, after the Park call (park
// failure doesn't suppress it — the caller still needs to know the job is
// abandoned). Wire this to whatever owns the originating domain state (a
// WorkflowExecution, a Campaign) so it can be driven to a FAILED terminal
// status instead of being left RUNNING/WAITING/SENDING forever with no
// further job coming to advance it.
func (p *Pool) SetOnExhausted(fn func(ctx context.Context, job *Job, reason string)) {
	p.onExhausted = fn
}

// Start launches the worker goroutines. It returns immediately; call Stop
// to drain and join them.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{}, p.workers)
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		go p.worker(ctx, i)
	}
}

// Stop signals all workers to exit and blocks until they do.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	workers := p.workers
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		<-p.doneCh
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer func() { p.doneCh <- struct{}{} }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if err == ErrQueueClosed || ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", log.Error(err), slog.Int("worker", id))
			continue
		}

		p.process(ctx, job)
	}
}

// process dispatches one job to its registered Handler, tagging ctx with a
// fresh correlation ID so every log line and outbound webhook call made
// while handling this job can be joined back to it.
func (p *Pool) process(ctx context.Context, job *Job) {
	handler, ok := p.handlers[job.Kind]
	if !ok {
		p.logger.Error("no handler registered", slog.String("kind", string(job.Kind)), slog.String("job_id", job.ID))
		return
	}

	corrID := tracing.NewCorrelationID()
	ctx = tracing.ToContext(ctx, corrID)
	jobLogger := log.WithCorrelationID(p.logger, corrID.String())

	err := handler(ctx, job)
	if err == nil {
		return
	}

	if isPermanent(err) {
		jobLogger.Warn("job failed permanently, not retrying", log.Error(err), slog.String("job_id", job.ID), slog.String("kind", string(job.Kind)))
		return
	}

	job.Attempts++
	if job.Attempts >= MaxAttempts {
		jobLogger.Error("job exhausted retries, parking in dead letter", log.Error(err), slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
		if dlErr := p.deadLetter.Park(ctx, job, err.Error()); dlErr != nil {
			jobLogger.Error("failed to park dead-letter job", log.Error(dlErr), slog.String("job_id", job.ID))
		}
		if p.onExhausted != nil {
			p.onExhausted(ctx, job, err.Error())
		}
		return
	}

	delay := Backoff(job.Attempts - 1)
	job.FireAt = time.Now().Add(delay)
	jobLogger.Warn("job failed, retrying", log.Error(err), slog.String("job_id", job.ID), log.Duration(log.DurationKey, delay.Milliseconds()), slog.Int("attempt", job.Attempts))
	if enqErr := p.queue.Enqueue(ctx, job); enqErr != nil {
		jobLogger.Error("failed to requeue job", log.Error(enqErr), slog.String("job_id", job.ID))
	}
}

func isPermanent(err error) bool {
	return perr.IsNotFound(err) || perr.IsInvalidState(err) || perr.IsValidation(err) || perr.IsConcurrencyNoOp(err)
}
