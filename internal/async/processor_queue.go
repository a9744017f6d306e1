package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/common"
)

type ProcessorQueue struct {
	proc     ClaimProcessor
	sink     ResultSink
	callback func(Outcome)
	logger   *slog.Logger
	workers  int
	timeout  time.Duration

	ch   chan ClaimJob
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex // guards closed and sends on ch
	closed bool

	statusMu  sync.Mutex
	statuses  map[string]constants.JobStatus
	finished  map[string]time.Time // terminal jobs, pruned after statusTTL
	statusTTL time.Duration
	now       func() time.Time
}

// DefaultStatusTTL is how long a finished job's status stays queryable.
const DefaultStatusTTL = time.Hour

var _ Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan ClaimJob, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithStatusTTL sets how long DONE and FAILED statuses are kept.
func WithStatusTTL(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.statusTTL = d
		}
	}
}

// WithSink stores every successful result.
func WithSink(s ResultSink) Option {
	return func(q *ProcessorQueue) { q.sink = s }
}

// WithCallback is called from the worker goroutine after each job.
func WithCallback(fn func(Outcome)) Option {
	return func(q *ProcessorQueue) { q.callback = fn }
}

func NewProcessorQueue(proc ClaimProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:      proc,
		logger:    logger,
		workers:   4,
		timeout:   5 * time.Minute,
		ch:        make(chan ClaimJob, 256),
		statuses:  map[string]constants.JobStatus{},
		finished:  map[string]time.Time{},
		statusTTL: DefaultStatusTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job ClaimJob) {
	q.setStatus(job.ID, constants.JobStatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	ctx = common.WithRequestID(ctx, job.ID)

	out := Outcome{Job: job, Status: constants.JobStatusDone}
	res, err := q.proc.ProcessClaim(ctx, job.Uploads)
	if err == nil && q.sink != nil {
		if serr := q.sink.Save(ctx, res); serr != nil {
			err = common.WrapError(serr, "save claim")
		}
	}
	out.Result = res
	if err != nil {
		out.Status = constants.JobStatusFailed
		out.Err = err
		q.logger.Error("claim processing failed", "worker_id", workerID, "job_id", job.ID, "claim", job.Name, "error", err)
	} else {
		q.logger.Info("processed claim successfully", "worker_id", workerID, "job_id", job.ID, "claim", job.Name,
			"claim_id", res.ClaimID, "status", res.Decision.Status)
	}
	q.setStatus(job.ID, out.Status)

	if q.callback != nil {
		q.callback(out)
	}
}

// Enqueue submits a job, blocking while the queue is full until ctx is done.
// A job without an ID gets one; the ID is returned.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job ClaimJob) error {
	_, err := q.Submit(ctx, job)
	return err
}

// Submit is Enqueue returning the job ID.
func (q *ProcessorQueue) Submit(ctx context.Context, job ClaimJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID)
		return "", ErrQueueClosed
	}
	q.setStatus(job.ID, constants.JobStatusQueued)

	select {
	case q.ch <- job:
		q.logger.Info("queued claim for processing", "job_id", job.ID, "claim", job.Name, "files", len(job.Uploads))
		return job.ID, nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "job_id", job.ID)
	select {
	case q.ch <- job:
		return job.ID, nil
	case <-ctx.Done():
		q.statusMu.Lock()
		delete(q.statuses, job.ID)
		q.statusMu.Unlock()
		return "", ctx.Err()
	}
}

// Status reports the last known state of a job.
func (q *ProcessorQueue) Status(id string) (constants.JobStatus, bool) {
	q.statusMu.Lock()
	defer q.statusMu.Unlock()
	s, ok := q.statuses[id]
	return s, ok
}

func (q *ProcessorQueue) setStatus(id string, s constants.JobStatus) {
	q.statusMu.Lock()
	defer q.statusMu.Unlock()
	q.statuses[id] = s
	if s != constants.JobStatusDone && s != constants.JobStatusFailed {
		return
	}
	now := q.now()
	q.finished[id] = now
	for jid, at := range q.finished {
		if now.Sub(at) > q.statusTTL {
			delete(q.finished, jid)
			delete(q.statuses, jid)
		}
	}
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
