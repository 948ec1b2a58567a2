package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
)

const (
	// DefaultRetryLimit is the number of attempts before a job is dead-lettered.
	DefaultRetryLimit = 5

	// DefaultPollInterval is how often a running pipeline looks for due jobs.
	DefaultPollInterval = time.Second
)

// Pipeline queues embedding jobs and executes them on a worker pool.
type Pipeline struct {
	records  storage.RecordRepository
	jobs     storage.JobRepository
	handlers map[core.JobType]handler
	pool     *ants.Pool
	logger   *slog.Logger

	concurrency  int
	retryLimit   int
	backoff      BackoffPolicy
	pollInterval time.Duration
	now          func() time.Time
	rnd          func() float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithConcurrency sets how many jobs run at once.
// Default is 1.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidOption, n)
		}
		p.concurrency = n
		return nil
	}
}

// WithRetryLimit sets the number of attempts a job gets.
// Default is 5.
func WithRetryLimit(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("%w: retry limit must be positive, got %d", ErrInvalidOption, n)
		}
		p.retryLimit = n
		return nil
	}
}

// WithBackoff sets the retry delay policy.
// Default is DefaultBackoff.
func WithBackoff(base, maxDelay time.Duration, jitter float64) Option {
	return func(p *Pipeline) error {
		b := BackoffPolicy{Base: base, Cap: maxDelay, Jitter: jitter}
		if !b.validate() {
			return fmt.Errorf("%w: backoff %+v", ErrInvalidOption, b)
		}
		p.backoff = b
		return nil
	}
}

// WithPollInterval sets how often Start looks for due jobs.
// Default is one second.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidOption, d)
		}
		p.pollInterval = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithClock sets the clock used for enqueue times and retry scheduling.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}

// WithRand sets the source of backoff jitter. rnd must return values in [0, 1).
func WithRand(rnd func() float64) Option {
	return func(p *Pipeline) error {
		if rnd != nil {
			p.rnd = rnd
		}
		return nil
	}
}

// NewPipeline creates an embedding pipeline. Call Release when done.
func NewPipeline(records storage.RecordRepository, jobs storage.JobRepository, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		records:      records,
		jobs:         jobs,
		logger:       slog.Default(),
		concurrency:  1,
		retryLimit:   DefaultRetryLimit,
		backoff:      DefaultBackoff,
		pollInterval: DefaultPollInterval,
		now:          func() time.Time { return time.Now().UTC() },
		rnd:          rand.Float64,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	pool, err := ants.NewPool(p.concurrency)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	p.handlers = map[core.JobType]handler{
		core.JobTypeGenerateEmbedding: newEmbeddingHandler(records, embedder, p.logger),
	}
	return p, nil
}

// EnqueueRecord queues an embedding job for the record's current content.
// If a job for the record is already pending it absorbs this one and is
// returned with enqueued=false.
func (p *Pipeline) EnqueueRecord(ctx context.Context, record *core.Record) (*core.EmbeddingJob, bool, error) {
	job := core.NewEmbeddingJob(record, p.now())
	stored, enqueued, err := p.jobs.Enqueue(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if enqueued {
		p.logger.Debug("job enqueued", "job", stored.Id, "record", record.Id)
	} else {
		p.logger.Debug("job coalesced", "job", stored.Id, "record", record.Id)
	}
	return stored, enqueued, nil
}

// Replay returns a dead-lettered job to the queue with a fresh attempt
// count. It is due immediately.
func (p *Pipeline) Replay(ctx context.Context, id core.ID) (*core.EmbeddingJob, error) {
	job, err := p.jobs.ReplayJob(ctx, id, p.now())
	if err != nil {
		return nil, err
	}
	p.logger.Info("job replayed", "job", job.Id, "record", job.RecordId)
	return job, nil
}

// Start recovers jobs abandoned by a previous run and then processes due
// jobs every poll interval until ctx is cancelled or Stop is called.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrPipelineRunning
	}

	recovered, err := p.jobs.RecoverProcessing(ctx, p.now())
	if err != nil {
		return err
	}
	if recovered > 0 {
		p.logger.Info("recovered interrupted jobs", "jobs", recovered)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)

	p.logger.Info("pipeline started", "concurrency", p.concurrency)
	return nil
}

// Stop halts a running pipeline and waits for in-flight jobs to settle.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("pipeline stopped")
}

// Release stops the pipeline and frees the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.Stop()
	if p.pool != nil {
		p.pool.Release()
	}
}

func (p *Pipeline) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("error processing jobs", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce runs jobs until none are due and returns their outcomes.
func (p *Pipeline) ProcessOnce(ctx context.Context) ([]Outcome, error) {
	types := make([]core.JobType, 0, len(p.handlers))
	for jt := range p.handlers {
		types = append(types, jt)
	}
	slices.Sort(types)

	var outcomes []Outcome
	for {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		ran := 0
		for _, jt := range types {
			batch, err := p.jobs.ClaimDue(ctx, jt, p.now(), p.concurrency)
			if err != nil {
				return outcomes, err
			}
			outcomes = append(outcomes, p.runBatch(ctx, batch)...)
			ran += len(batch)
		}
		if ran == 0 {
			return outcomes, nil
		}
	}
}

func (p *Pipeline) runBatch(ctx context.Context, batch []*core.EmbeddingJob) []Outcome {
	outcomes := make([]Outcome, len(batch))
	var wg sync.WaitGroup
	for i, job := range batch {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = p.process(ctx, job)
		})
		if err != nil {
			wg.Done()
			p.logger.Error("error submitting job", "job", job.Id, "err", err)
			outcomes[i] = p.reschedule(ctx, job, err, p.pollInterval)
		}
	}
	wg.Wait()
	return outcomes
}

// process executes one claimed job and persists its outcome.
func (p *Pipeline) process(ctx context.Context, job *core.EmbeddingJob) Outcome {
	var out Outcome
	if h, ok := p.handlers[job.Type]; ok {
		out = h.handle(ctx, job)
	} else {
		out = failed(job, fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type))
	}

	// Shutdown is not the job's fault.
	if out.Err != nil && ctx.Err() != nil {
		return p.reschedule(ctx, job, out.Err, 0)
	}
	if out.State == core.JobStateRetrying && job.Attempt >= p.retryLimit {
		out.State = core.JobStateDeadLettered
		out.Err = fmt.Errorf("%w after %d attempts: %w", ErrJobExhausted, job.Attempt, out.Err)
	}

	// Settle even if ctx is cancelled meanwhile.
	ctx = context.WithoutCancel(ctx)
	logger := p.logger.With("job", job.Id, "record", job.RecordId, "attempt", job.Attempt)

	var err error
	switch out.State {
	case core.JobStateCompleted:
		var requeued bool
		requeued, err = p.jobs.CompleteJob(ctx, job)
		if requeued {
			logger.Debug("record changed while processing, job requeued")
		}
	case core.JobStateRetrying:
		next := job.Clone()
		next.Attempt++
		next.NextRunAt = p.now().Add(p.backoff.Jittered(job.Attempt, p.rnd))
		next.LastError = out.Err.Error()
		logger.Warn("job failed, will retry", "next_run", next.NextRunAt, "err", out.Err)
		err = p.jobs.RetryJob(ctx, next)
	default:
		dead := job.Clone()
		dead.LastError = out.Err.Error()
		logger.Error("job dead-lettered", "err", out.Err)
		err = p.jobs.DeadLetterJob(ctx, dead)
	}
	if err != nil {
		// The job stays in processing until RecoverProcessing picks it up.
		logger.Error("error saving job outcome", "state", out.State, "err", err)
		out.Err = errors.Join(out.Err, err)
	}
	return out
}

// reschedule returns a claimed job to the queue without using up an attempt.
func (p *Pipeline) reschedule(ctx context.Context, job *core.EmbeddingJob, cause error, after time.Duration) Outcome {
	next := job.Clone()
	next.NextRunAt = p.now().Add(after)
	next.LastError = cause.Error()
	out := Outcome{JobID: job.Id, State: core.JobStateRetrying, Attempt: job.Attempt, Err: cause}
	if err := p.jobs.RetryJob(context.WithoutCancel(ctx), next); err != nil {
		p.logger.Error("error rescheduling job", "job", job.Id, "err", err)
		out.Err = errors.Join(cause, err)
	}
	return out
}
