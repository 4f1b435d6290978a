package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/transcribe-worker/internal/metrics"
	"github.com/codebuildervaibhav/transcribe-worker/internal/transcription"
	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// ErrShuttingDown is reported to requests that arrive or wait during Stop
var ErrShuttingDown = errors.New("worker pool is shutting down")

// errRequestTimeout is the cancel cause of a job's deadline
var errRequestTimeout = errors.New("request timeout")

// Runner executes one transcription
type Runner interface {
	Run(ctx context.Context, audio []byte, req transcription.Request) *types.TranscriptionResult
}

// WorkerPool runs at most workerCount transcriptions at a time
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	runner      Runner
	timeout     time.Duration
	logger      *slog.Logger

	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount, queueSize int, runner Runner, timeout time.Duration, logger *slog.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		jobQueue:    make(chan *Job, queueSize),
		workerCount: workerCount,
		runner:      runner,
		timeout:     timeout,
		logger:      logger,
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	wp.logger.Info("starting worker pool", "workers", wp.workerCount, "queue", cap(wp.jobQueue))
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop lets running jobs finish, then fails whatever is still queued
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.quit)
		wp.wg.Wait()

		for {
			select {
			case job := <-wp.jobQueue:
				job.finish(transcription.Failure(ErrShuttingDown))
			default:
				close(wp.stopped)
				wp.logger.Info("worker pool stopped")
				return
			}
		}
	})
}

// Submit queues job and waits for its result. The pool timeout covers the
// whole request, time spent queued included. Submit returns early with a
// failure result when the deadline passes, ctx ends or the pool stops; a job
// already picked up is cancelled and its result dropped.
func (wp *WorkerPool) Submit(ctx context.Context, job *Job) *types.TranscriptionResult {
	var cancel context.CancelFunc
	if wp.timeout > 0 {
		ctx, cancel = context.WithTimeoutCause(ctx, wp.timeout, errRequestTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	job.ctx = ctx

	select {
	case <-wp.quit:
		return transcription.Failure(ErrShuttingDown)
	default:
	}

	select {
	case wp.jobQueue <- job:
		wp.logger.Debug("job enqueued", "request_id", job.ID, "source", job.SourceType, "bytes", len(job.Audio))
	case <-wp.quit:
		return transcription.Failure(ErrShuttingDown)
	case <-ctx.Done():
		return wp.abandoned(ctx, job, " while queued")
	}

	select {
	case result := <-job.done:
		return result
	case <-ctx.Done():
		return wp.abandoned(ctx, job, "")
	case <-wp.stopped:
		select {
		case result := <-job.done:
			return result
		default:
			return transcription.Failure(ErrShuttingDown)
		}
	}
}

// abandoned builds the failure for a request whose ctx ended before a result
func (wp *WorkerPool) abandoned(ctx context.Context, job *Job, phase string) *types.TranscriptionResult {
	if timedOut(ctx) {
		wp.logger.Warn("request timed out", "request_id", job.ID, "timeout", wp.timeout, "queued", phase != "")
		return transcription.Failure(fmt.Errorf("request timed out after %s%s", wp.timeout, phase))
	}
	wp.logger.Warn("caller gone before job finished", "request_id", job.ID, "error", ctx.Err())
	return transcription.Failure(fmt.Errorf("request abandoned%s: %w", phase, ctx.Err()))
}

func timedOut(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errRequestTimeout)
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	wp.logger.Debug("worker started", "worker", id)

	for {
		select {
		case <-wp.quit:
			return
		case job := <-wp.jobQueue:
			wp.processJob(id, job)
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job *Job) {
	start := time.Now()
	var result *types.TranscriptionResult

	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("worker panic",
				"worker", workerID,
				"request_id", job.ID,
				"panic", r,
				"stack", string(debug.Stack()))
			result = transcription.Failure(fmt.Errorf("worker panic: %v", r))
		}
		job.finish(result)
		metrics.ObserveRequest(job.SourceType, result.Success, time.Since(job.CreatedAt))
	}()

	if err := job.ctx.Err(); err != nil {
		wp.logger.Info("skipping abandoned job", "request_id", job.ID, "error", context.Cause(job.ctx))
		result = transcription.Failure(fmt.Errorf("request abandoned while queued: %w", err))
		return
	}

	job.Status = types.StatusProcessing
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	ctx := job.ctx
	wp.logger.Info("processing job",
		"worker", workerID,
		"request_id", job.ID,
		"queued_for", start.Sub(job.CreatedAt).Round(time.Millisecond))

	result = wp.runner.Run(ctx, job.Audio, job.Request)
	if result == nil {
		result = transcription.Failure(errors.New("pipeline returned no result"))
	}
	if timedOut(ctx) && !result.Success {
		result.Error = fmt.Sprintf("request timed out after %s: %s", wp.timeout, result.Error)
	}

	wp.logger.Info("job finished",
		"worker", workerID,
		"request_id", job.ID,
		"success", result.Success,
		"elapsed", time.Since(start).Round(time.Millisecond))
}
