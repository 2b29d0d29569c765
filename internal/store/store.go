// Package store persists job records in SQLite.
package store

import (
	"clipd/internal/jobs"
)

// Store defines the persistence interface for job data.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateJob inserts a new queued job.
	CreateJob(job *jobs.Job) error

	// GetJob retrieves a job by ID; jobs.ErrJobNotFound when missing.
	GetJob(id string) (*jobs.Job, error)

	// ClaimQueued atomically picks the oldest queued job and marks it
	// running. Returns (nil, nil) when the queue is empty.
	ClaimQueued() (*jobs.Job, error)

	// UpdateProgress sets progress and message while the job is running.
	// Progress never moves backwards; lower values only update the
	// message.
	UpdateProgress(id string, progress int, message string) error

	// MarkDone transitions running → done. A job already canceled stays
	// canceled.
	MarkDone(id string) error

	// MarkFailed transitions running → failed with an error detail. A
	// job already canceled stays canceled.
	MarkFailed(id string, errText string) error

	// MarkCanceled transitions queued/running → canceled.
	MarkCanceled(id string) error

	// RequestCancel sets the cancellation flag without touching status.
	RequestCancel(id string) error

	// IsCancelRequested reads the cancellation flag.
	IsCancelRequested(id string) (bool, error)

	// CountActive counts queued + running jobs.
	CountActive() (int, error)

	// ListRecent returns the newest jobs first, up to limit.
	ListRecent(limit int) ([]*jobs.Job, error)

	// ResetInterrupted re-queues jobs left running by a previous process.
	// Returns the number of jobs reset.
	ResetInterrupted() (int, error)

	// Close releases the underlying database.
	Close() error
}
