package models

import "time"

// JobStatus is a state in the job lifecycle state machine (spec §4.B).
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// DefaultMaxRetries is the retry budget a job gets when none is specified.
const DefaultMaxRetries = 3

// MarkFailedOutcome is the outcome of JobStore.MarkFailed, the signal that
// drives whether PipelineExecutor releases the publisher's reserved slot.
type MarkFailedOutcome string

const (
	OutcomeRequeued          MarkFailedOutcome = "REQUEUED"
	OutcomePermanentlyFailed MarkFailedOutcome = "PERMANENTLY_FAILED"
)

// JobResult is the opaque success payload recorded on a completed job.
type JobResult struct {
	SummaryGenerated  bool `json:"summary_generated"`
	QuestionsGenerated int `json:"questions_generated"`
	EmbeddingsGenerated bool `json:"embeddings_generated"`
}

// Job is a durable queue entry owned exclusively by JobStore.
type Job struct {
	JobID          string                `json:"job_id"`
	BlogURL        string                `json:"blog_url"`
	PublisherID    string                `json:"publisher_id"`
	Status         JobStatus             `json:"status"`
	FailureCount   int                   `json:"failure_count"`
	MaxRetries     int                   `json:"max_retries"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
	Result         *JobResult            `json:"result,omitempty"`
	ConfigSnapshot PublisherConfig       `json:"config_snapshot"`
}

// IsTerminal reports whether the job is in a state that never transitions again.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStats is the queue-count-by-status summary returned by JobStore.Stats.
type JobStats map[JobStatus]int

// JobEventType names a transition broadcast over the admin job-event stream.
type JobEventType string

const (
	JobEventQueued    JobEventType = "job_queued"
	JobEventStarted   JobEventType = "job_started"
	JobEventCompleted JobEventType = "job_completed"
	JobEventFailed    JobEventType = "job_failed"
)

// JobEvent is a point-in-time notification of a job's lifecycle transition,
// broadcast to admin tooling. It is observability only — nothing reads it
// back to drive state.
type JobEvent struct {
	Type      JobEventType `json:"type"`
	JobID     string       `json:"job_id"`
	BlogURL   string       `json:"blog_url"`
	Publisher string       `json:"publisher_id"`
	Status    JobStatus    `json:"status"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
