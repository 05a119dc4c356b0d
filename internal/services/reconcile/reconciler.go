// Package reconcile implements the periodic slot reconciliation sweep
// (SPEC_FULL.md §2.1): a supplemented feature answering the Open Question
// in spec §9 about correcting blog_slots_reserved drift caused by a
// PipelineExecutor crash between mark_completed/mark_failed and
// release_slot. Grounded on the teacher's JobManager watcher loop
// (internal/services/jobmanager/watcher.go) for the ticker-driven sweep
// shape, generalized from staleness-scanning to slot-drift correction.
package reconcile

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
)

// Sweeper periodically recomputes each publisher's blog_slots_reserved as
// count(QUEUED)+count(PROCESSING) and corrects drift. Never touches
// total_blogs_processed. Re-running with no drift is a no-op.
type Sweeper struct {
	publishers interfaces.PublisherStore
	jobs       interfaces.JobStore
	logger     *common.Logger
	interval   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Sweeper.
func New(publishers interfaces.PublisherStore, jobs interfaces.JobStore, logger *common.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{publishers: publishers, jobs: jobs, logger: logger, interval: interval}
}

// Start launches the sweep loop at the configured interval. Safe to call
// multiple times — stops any existing loop first.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cancel != nil {
		s.Stop()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in reconcile sweep")
			}
		}()
		s.loop(runCtx)
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("slot reconciliation sweep started")
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single reconciliation pass over every publisher. Errors
// for one publisher are logged and do not abort the pass for the rest.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	ids, err := s.publishers.ListIDs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reconcile sweep: failed to list publishers")
		return
	}

	for _, id := range ids {
		active, err := s.jobs.CountActive(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Str("publisher_id", id).Msg("reconcile sweep: failed to count active jobs")
			continue
		}
		if err := s.publishers.ReconcileSlots(ctx, id, active); err != nil {
			s.logger.Warn().Err(err).Str("publisher_id", id).Msg("reconcile sweep: failed to reconcile slots")
		}
	}
}

// Stop halts the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.wg.Wait()
}
