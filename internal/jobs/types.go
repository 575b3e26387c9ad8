package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/site-ledger/internal/pipeline"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the voice note was recorded.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the voice note could not be recorded.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// VoiceNoteJob is one voice note waiting for, or done with, the pipeline.
type VoiceNoteJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// NoteID identifies the voice message at its source (Telegram message, upload).
	NoteID   string `json:"note_id"`
	Source   string `json:"source"`
	Sender   string `json:"sender,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`

	// Audio is opened by the pipeline's download stage. It is dropped once the job finishes.
	Audio pipeline.AudioSource `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// Outcome and Reply are set when the pipeline has run.
	Outcome *pipeline.Outcome `json:"outcome,omitempty"`
	Reply   string            `json:"reply,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed. Zero means the job runs once.
	MaxRetries int `json:"max_retries"`
}

// Note is the pipeline input for this job.
func (j *VoiceNoteJob) Note() pipeline.VoiceNote {
	return pipeline.VoiceNote{
		ID:         j.NoteID,
		Source:     j.Source,
		ChatID:     j.ChatID,
		Sender:     j.Sender,
		MIMEType:   j.MIMEType,
		Audio:      j.Audio,
		ReceivedAt: j.CreatedAt,
	}
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishVoiceNote enqueues a voice note.
	PublishVoiceNote(ctx context.Context, job *VoiceNoteJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed.
type JobHandler func(ctx context.Context, job *VoiceNoteJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *VoiceNoteJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*VoiceNoteJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*VoiceNoteJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Source filters jobs by ingress (telegram, http, cli).
	Source string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
