// Package worker implements WorkerLoop (spec §4.E): a single scheduling
// loop claiming jobs at a fixed poll interval, fanning each claimed job out
// to a bounded pool of executor goroutines. Grounded on the teacher's
// JobManager (internal/services/jobmanager/manager.go): same safeGo
// panic-recovery wrapper, same cancel-context + sync.WaitGroup Start/Stop
// shape, generalized from a priority watcher+dequeue loop to the spec's
// single-claimer-many-executors model with an explicit poll timer instead
// of an implicit sleep loop.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/models"
)

// Executor runs a single claimed job to a terminal transition.
type Executor interface {
	Run(ctx context.Context, job *models.Job) error
}

// Loop is the worker process's single scheduling loop plus bounded executor pool.
type Loop struct {
	jobs     interfaces.JobStore
	executor Executor
	logger   *common.Logger
	config   common.WorkerConfig

	slots  chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inFlightMu sync.Mutex
	inFlight   int
}

// New creates a new Loop.
func New(jobs interfaces.JobStore, executor Executor, logger *common.Logger, config common.WorkerConfig) *Loop {
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Loop{
		jobs:     jobs,
		executor: executor,
		logger:   logger,
		config:   config,
		slots:    make(chan struct{}, poolSize),
	}
}

// safeGo launches a goroutine with panic recovery and logging.
func (l *Loop) safeGo(name string, fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in worker loop goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the scheduling loop. Safe to call multiple times — stops
// any existing loop first. On entry it resets orphaned PROCESSING jobs left
// by a prior crash back to QUEUED.
func (l *Loop) Start(ctx context.Context) {
	if l.cancel != nil {
		l.Stop()
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	if count, err := l.jobs.ResetRunningJobs(runCtx); err != nil {
		l.logger.Warn().Err(err).Msg("failed to reset orphaned running jobs")
	} else if count > 0 {
		l.logger.Info().Int("count", count).Msg("reset orphaned running jobs to queued")
	}

	l.safeGo("scheduler", func() { l.schedule(runCtx) })

	l.logger.Info().
		Int("pool_size", cap(l.slots)).
		Dur("poll_interval", l.config.GetPollInterval()).
		Msg("worker loop started")
}

// schedule is the single claimer: every poll_interval, while the pool has
// capacity, try to claim the next job and dispatch it to a free executor
// slot. An empty queue backs off for empty_backoff before the next poll.
func (l *Loop) schedule(ctx context.Context) {
	ticker := time.NewTicker(l.config.GetPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.drainAvailableSlots(ctx)
		}
	}
}

// drainAvailableSlots claims and dispatches jobs until either the pool is
// full or the queue reports empty for this tick; an empty queue waits
// empty_backoff before returning.
func (l *Loop) drainAvailableSlots(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case l.slots <- struct{}{}:
		default:
			return // pool full this tick
		}

		job, err := l.jobs.ClaimNext(ctx)
		if err != nil {
			<-l.slots
			l.logger.Warn().Err(err).Msg("claim_next error")
			return
		}
		if job == nil {
			<-l.slots
			select {
			case <-ctx.Done():
			case <-time.After(l.config.GetEmptyBackoff()):
			}
			return
		}

		l.dispatch(job)
	}
}

// dispatch runs job on a context detached from the scheduler's cancellation:
// once claimed, a job must reach a terminal transition even if Stop() fires
// mid-flight, so in-flight executors are never handed a context that a
// shutdown signal will cancel out from under them.
func (l *Loop) dispatch(job *models.Job) {
	l.inFlightMu.Lock()
	l.inFlight++
	l.inFlightMu.Unlock()

	runCtx := context.WithoutCancel(context.Background())

	l.safeGo("executor", func() {
		defer func() {
			<-l.slots
			l.inFlightMu.Lock()
			l.inFlight--
			l.inFlightMu.Unlock()
		}()

		if err := l.executor.Run(runCtx, job); err != nil {
			l.logger.Warn().Str("job_id", job.JobID).Err(err).Msg("job execution ended in failure")
		}
	})
}

// Stop halts scheduling and waits, up to shutdown_timeout, for in-flight
// executors to reach a terminal JobStore transition before returning. No
// job is abandoned mid-transition: Executor.Run always resolves its job via
// mark_completed or mark_failed before returning, regardless of context
// cancellation, so draining here only waits out work already in progress.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	l.cancel = nil

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(l.config.GetShutdownTimeout()):
		l.logger.Warn().Msg("worker loop shutdown deadline exceeded; in-flight executors still running")
	}
}
