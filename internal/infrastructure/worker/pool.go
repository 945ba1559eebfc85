// Package worker runs claimed analysis jobs on a bounded set of goroutines.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

type Metrics interface {
	StartJob()
	FinishJob(service string, duration time.Duration, err error)
	ObserveQueueLag(service string, lag time.Duration)
	SetQueueDepth(ready, running int, oldest time.Duration)
	RecordRequeued(service string, n int)
}

// StatsFunc reports queue depth for the depth gauges.
type StatsFunc func(ctx context.Context) (ready, running int, oldest time.Duration, err error)

type Options struct {
	WorkerID         string
	Service          string
	Concurrency      int
	JobTimeout       time.Duration
	LeaseGrace       time.Duration
	PollInterval     time.Duration
	MaxAttempts      int
	StaleUploadAfter time.Duration
	SweepInterval    time.Duration
	StatsInterval    time.Duration
	ShutdownGrace    time.Duration

	Signal  ports.JobSignal
	Stats   StatsFunc
	Metrics Metrics
	Logger  *slog.Logger
}

type Pool struct {
	queue   ports.JobQueue
	handler ports.AnalysisJobHandler
	opts    Options
	logger  *slog.Logger
	wakeCh  chan struct{}
}

func New(queue ports.JobQueue, handler ports.AnalysisJobHandler, opts Options) *Pool {
	if opts.WorkerID == "" {
		opts.WorkerID = "worker-" + uuid.NewString()
	}
	if opts.Service == "" {
		opts.Service = "worker"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	if opts.LeaseGrace <= 0 {
		opts.LeaseGrace = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = 15 * time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 20 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:   queue,
		handler: handler,
		opts:    opts,
		logger:  logger.With("worker_id", opts.WorkerID),
		wakeCh:  make(chan struct{}, 1),
	}
}

func (p *Pool) WorkerID() string {
	return p.opts.WorkerID
}

// Wake asks the claim loop to look for work now. It never blocks.
func (p *Pool) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// Run claims and executes jobs until ctx is done. In-flight jobs get
// ShutdownGrace to finish before their contexts are cancelled.
func (p *Pool) Run(ctx context.Context) error {
	jobsCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var background sync.WaitGroup
	if p.opts.Signal != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			err := p.opts.Signal.SubscribeJobEnqueued(ctx, func(context.Context, string) { p.Wake() })
			if err != nil && ctx.Err() == nil {
				p.logger.Warn("analysis_job_signal_subscribe_failed", "error", err)
			}
		}()
	}
	if p.opts.StaleUploadAfter > 0 {
		background.Add(1)
		go func() {
			defer background.Done()
			p.every(ctx, p.opts.SweepInterval, p.sweep)
		}()
	}
	if p.opts.Stats != nil && p.opts.Metrics != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			p.every(ctx, p.opts.StatsInterval, p.reportStats)
		}()
	}

	p.logger.Info("analysis_worker_started", "concurrency", p.opts.Concurrency, "poll_interval", p.opts.PollInterval.String())

	sem := make(chan struct{}, p.opts.Concurrency)
	var inFlight sync.WaitGroup
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		p.claimAvailable(ctx, jobsCtx, sem, &inFlight)

		select {
		case <-ctx.Done():
			p.logger.Info("analysis_worker_stopping")
			p.waitInFlight(&inFlight, cancelJobs)
			background.Wait()
			return nil
		case <-p.wakeCh:
		case <-ticker.C:
		}
	}
}

// claimAvailable fills free slots until the queue has nothing due.
func (p *Pool) claimAvailable(ctx, jobsCtx context.Context, sem chan struct{}, inFlight *sync.WaitGroup) {
	lease := p.opts.JobTimeout + p.opts.LeaseGrace
	for ctx.Err() == nil {
		select {
		case sem <- struct{}{}:
		default:
			return
		}

		job, err := p.queue.Claim(ctx, p.opts.WorkerID, lease)
		if err != nil || job == nil {
			<-sem
			if err != nil && ctx.Err() == nil {
				p.logger.Warn("analysis_job_claim_failed", "error", err)
			}
			return
		}

		inFlight.Add(1)
		go func(job domain.AnalysisJob) {
			defer inFlight.Done()
			defer func() {
				<-sem
				p.Wake()
			}()
			p.runJob(jobsCtx, job)
		}(*job)
	}
}

func (p *Pool) runJob(ctx context.Context, job domain.AnalysisJob) {
	start := time.Now()
	if m := p.opts.Metrics; m != nil {
		m.ObserveQueueLag(p.opts.Service, start.Sub(job.RunAt))
		m.StartJob()
	}
	p.logger.Info("analysis_job_claimed", "document_id", job.DocumentID, "attempt", job.Attempts, "max_attempts", job.MaxAttempts)

	jobCtx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	err := p.handler.HandleJob(jobCtx, job)
	cancel()

	duration := time.Since(start)
	if m := p.opts.Metrics; m != nil {
		m.FinishJob(p.opts.Service, duration, err)
	}
	if err != nil {
		p.logger.Warn("analysis_job_unsuccessful",
			"document_id", job.DocumentID,
			"attempt", job.Attempts,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return
	}
	p.logger.Info("analysis_job_finished", "document_id", job.DocumentID, "attempt", job.Attempts, "duration_ms", duration.Milliseconds())
}

func (p *Pool) waitInFlight(inFlight *sync.WaitGroup, cancelJobs context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		inFlight.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.opts.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
		p.logger.Warn("analysis_worker_shutdown_grace_exceeded")
		cancelJobs()
	}
	<-done
}

func (p *Pool) sweep(ctx context.Context) {
	n, err := p.queue.RequeueStaleUploads(ctx, p.opts.StaleUploadAfter, p.opts.MaxAttempts)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("stale_upload_sweep_failed", "error", err)
		}
		return
	}
	if n == 0 {
		return
	}
	if m := p.opts.Metrics; m != nil {
		m.RecordRequeued(p.opts.Service, n)
	}
	p.logger.Info("stale_uploads_requeued", "count", n)
	p.Wake()
}

func (p *Pool) reportStats(ctx context.Context) {
	ready, running, oldest, err := p.opts.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Debug("analysis_queue_stats_failed", "error", err)
		}
		return
	}
	p.opts.Metrics.SetQueueDepth(ready, running, oldest)
}

// every runs fn immediately and then on each tick until ctx is done.
func (p *Pool) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
