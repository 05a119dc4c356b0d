package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/models"
)

type fakeJobStore struct {
	mu      sync.Mutex
	queue   []*models.Job
	resetN  int
	claimed int32
}

func (f *fakeJobStore) Create(ctx context.Context, normalizedURL, publisherID string, snapshot models.PublisherConfig) (string, bool, error) {
	return "", false, nil
}
func (f *fakeJobStore) ClaimNext(ctx context.Context) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	job := f.queue[0]
	f.queue = f.queue[1:]
	atomic.AddInt32(&f.claimed, 1)
	return job, nil
}
func (f *fakeJobStore) MarkCompleted(ctx context.Context, jobID string, result models.JobResult) error {
	return nil
}
func (f *fakeJobStore) MarkFailed(ctx context.Context, jobID string, errMessage string) (models.MarkFailedOutcome, error) {
	return models.OutcomePermanentlyFailed, nil
}
func (f *fakeJobStore) Cancel(ctx context.Context, jobID string) error { return nil }
func (f *fakeJobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobStore) ByURL(ctx context.Context, normalizedURL string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobStore) Stats(ctx context.Context) (models.JobStats, error) { return nil, nil }
func (f *fakeJobStore) CountCompletedSince(ctx context.Context, publisherID string, since time.Time) (int, error) {
	return 0, nil
}
func (f *fakeJobStore) ResetRunningJobs(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetN++
	return 2, nil
}
func (f *fakeJobStore) CountActive(ctx context.Context, publisherID string) (int, error) {
	return 0, nil
}

// slowExecutor blocks until release is closed, letting tests observe
// in-flight behavior during shutdown.
type slowExecutor struct {
	started chan struct{}
	release chan struct{}
	runs    int32
}

func (e *slowExecutor) Run(ctx context.Context, job *models.Job) error {
	atomic.AddInt32(&e.runs, 1)
	select {
	case e.started <- struct{}{}:
	default:
	}
	<-e.release
	return nil
}

func testConfig() common.WorkerConfig {
	return common.WorkerConfig{PoolSize: 2, PollInterval: "20ms", EmptyBackoff: "20ms", ShutdownTimeout: "500ms"}
}

func TestLoop_ResetsOrphanedJobsOnStart(t *testing.T) {
	jobs := &fakeJobStore{}
	exec := &slowExecutor{started: make(chan struct{}, 1), release: make(chan struct{})}
	close(exec.release)
	l := New(jobs, exec, common.NewSilentLogger(), testConfig())

	l.Start(context.Background())
	defer l.Stop()

	time.Sleep(50 * time.Millisecond)
	if jobs.resetN != 1 {
		t.Errorf("expected ResetRunningJobs called once on start, got %d", jobs.resetN)
	}
}

func TestLoop_ClaimsAndDispatchesWithinPoolCapacity(t *testing.T) {
	jobs := &fakeJobStore{queue: []*models.Job{
		{JobID: "1"}, {JobID: "2"}, {JobID: "3"},
	}}
	exec := &slowExecutor{started: make(chan struct{}, 3), release: make(chan struct{})}
	close(exec.release)
	l := New(jobs, exec, common.NewSilentLogger(), testConfig())

	l.Start(context.Background())
	defer l.Stop()

	deadline := time.After(1 * time.Second)
	for {
		if atomic.LoadInt32(&exec.runs) >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected all 3 jobs to be dispatched, got %d", atomic.LoadInt32(&exec.runs))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestLoop_StopWaitsForInFlightExecutor(t *testing.T) {
	jobs := &fakeJobStore{queue: []*models.Job{{JobID: "1"}}}
	exec := &slowExecutor{started: make(chan struct{}, 1), release: make(chan struct{})}
	l := New(jobs, exec, common.NewSilentLogger(), testConfig())

	l.Start(context.Background())

	select {
	case <-exec.started:
	case <-time.After(1 * time.Second):
		t.Fatal("executor never started")
	}

	stopped := make(chan struct{})
	go func() {
		close(exec.release)
		l.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after in-flight executor finished")
	}
}

func TestLoop_StopIsIdempotent(t *testing.T) {
	jobs := &fakeJobStore{}
	exec := &slowExecutor{started: make(chan struct{}, 1), release: make(chan struct{})}
	close(exec.release)
	l := New(jobs, exec, common.NewSilentLogger(), testConfig())

	l.Start(context.Background())
	l.Stop()
	l.Stop() // should not panic
}
